// Package specs stores item specifications.
package specs

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/model"
)

// Store persists specifications.
type Store interface {
	ReplaceSpecifications(ctx context.Context, itemID string, specs []model.Specification) error
}

// Processor implements pipeline.SpecProcessor.
type Processor struct {
	store Store
}

// NewProcessor creates a Processor over st.
func NewProcessor(st Store) *Processor {
	return &Processor{store: st}
}

// Process cleans specs and replaces the item's specifications with them.
func (p *Processor) Process(ctx context.Context, itemID string, specs []model.Specification) error {
	if err := p.store.ReplaceSpecifications(ctx, itemID, Clean(specs)); err != nil {
		return eris.Wrapf(err, "specs: replace specifications for item %s", itemID)
	}
	return nil
}

// Clean trims every field, drops entries without a name and keeps only the
// last entry for names that differ in case alone. The result keeps the
// position of each name's first appearance and is numbered from 0.
func Clean(specs []model.Specification) []model.Specification {
	out := make([]model.Specification, 0, len(specs))
	index := make(map[string]int, len(specs))

	for _, s := range specs {
		s.Name = strings.TrimSpace(s.Name)
		s.Value = strings.TrimSpace(s.Value)
		s.Unit = strings.TrimSpace(s.Unit)
		if s.Name == "" {
			continue
		}
		key := strings.ToLower(s.Name)
		if i, ok := index[key]; ok {
			out[i] = s
			continue
		}
		index[key] = len(out)
		out = append(out, s)
	}

	for i := range out {
		out[i].SortOrder = i
	}
	return out
}
