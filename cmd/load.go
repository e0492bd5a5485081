package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catalog-cli/internal/model"
)

// batchFile is the on-disk shape of a batch of items.
type batchFile struct {
	Items []model.ItemPayload `json:"items" yaml:"items"`
}

// tierFile is the on-disk shape of a tier set.
type tierFile struct {
	Tiers []model.RawTier `json:"tiers" yaml:"tiers"`
}

// decodeFile reads path as JSON (by extension) or YAML.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(v); err != nil {
			return eris.Wrapf(err, "parse json %s", path)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "parse yaml %s", path)
	}
	return nil
}

func readBatchFile(path string) ([]model.ItemPayload, error) {
	var f batchFile
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	if len(f.Items) == 0 {
		return nil, eris.Errorf("%s: no items", path)
	}
	return f.Items, nil
}

func readTierFile(path string) ([]model.RawTier, error) {
	var f tierFile
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	return f.Tiers, nil
}
