// Package media stores item images: raw uploads are optimized and pushed to
// the asset service, then the item's image records are replaced.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/pkg/assets"
)

// ImageStore persists image records.
type ImageStore interface {
	ReplaceImages(ctx context.Context, itemID string, images []model.ItemImage) error
}

// Processor implements pipeline.ImageProcessor.
type Processor struct {
	store     ImageStore
	assets    assets.Client
	optimizer Optimizer
}

// NewProcessor creates a Processor. client may be nil when only hosted URLs
// are submitted.
func NewProcessor(st ImageStore, client assets.Client, opt Optimizer) *Processor {
	return &Processor{store: st, assets: client, optimizer: opt}
}

// Upload replaces the item's images with images. Raw data is optimized and
// stored under a key derived from its content, so repeating an upload writes
// the same objects again. An empty list removes every image.
func (p *Processor) Upload(ctx context.Context, itemID, ownerID string, images []model.ImageInput) error {
	records := make([]model.ItemImage, 0, len(images))
	primary := primaryIndex(images)

	for i, in := range images {
		rec := model.ItemImage{ItemID: itemID, SortOrder: i, IsPrimary: i == primary}
		switch {
		case len(in.Data) > 0:
			obj, err := p.put(ctx, itemID, ownerID, in)
			if err != nil {
				return eris.Wrapf(err, "media: image %d", i+1)
			}
			rec.URL = obj.URL
			rec.ObjectKey = obj.Key
		case in.URL != "":
			rec.URL = in.URL
		default:
			return eris.Errorf("media: image %d: url or data is required", i+1)
		}
		records = append(records, rec)
	}

	if err := p.store.ReplaceImages(ctx, itemID, records); err != nil {
		return eris.Wrapf(err, "media: replace images for item %s", itemID)
	}
	zap.L().Debug("media: images replaced", zap.String("item_id", itemID), zap.Int("count", len(records)))
	return nil
}

func (p *Processor) put(ctx context.Context, itemID, ownerID string, in model.ImageInput) (*assets.Object, error) {
	if p.assets == nil {
		return nil, eris.New("asset service not configured")
	}
	data, err := p.optimizer.Optimize(in.Data)
	if err != nil {
		return nil, err
	}
	return p.assets.Put(ctx, ObjectKey(ownerID, itemID, data), "image/jpeg", data)
}

// ObjectKey returns the storage key for optimized image bytes.
func ObjectKey(ownerID, itemID string, data []byte) string {
	if ownerID == "" {
		ownerID = "shared"
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s/%s/%s.jpg", ownerID, itemID, hex.EncodeToString(sum[:12]))
}

// primaryIndex picks the first image flagged primary, else the first image.
func primaryIndex(images []model.ImageInput) int {
	for i, in := range images {
		if in.IsPrimary {
			return i
		}
	}
	return 0
}
