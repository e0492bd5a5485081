package pipeline

import (
	"context"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/tier"
)

// BaseStore persists the base item record.
type BaseStore interface {
	CreateItem(ctx context.Context, fields model.ItemFields) (*model.Item, error)
	UpdateItem(ctx context.Context, id string, patch model.ItemPatch) error
}

// ImageProcessor replaces an item's images. An empty list removes them all.
type ImageProcessor interface {
	Upload(ctx context.Context, itemID, ownerID string, images []model.ImageInput) error
}

// SpecProcessor replaces an item's specifications.
type SpecProcessor interface {
	Process(ctx context.Context, itemID string, specs []model.Specification) error
}

// TierPersister validates and replaces an item's price tiers.
type TierPersister interface {
	Persist(ctx context.Context, itemID string, raw []model.RawTier) (*tier.PersistResult, error)
}

// Reloader refreshes cached views of an item. Failures are logged only.
type Reloader interface {
	Refresh(ctx context.Context, itemID string) error
}

// Archiver keeps cleared tasks for later inspection.
type Archiver interface {
	ArchiveTask(ctx context.Context, task *model.BackgroundTask) error
}

// Deps are the collaborators of a Pipeline. Reloader and Archiver may be nil.
type Deps struct {
	Base     BaseStore
	Images   ImageProcessor
	Specs    SpecProcessor
	Tiers    TierPersister
	Reloader Reloader
	Archiver Archiver
}
