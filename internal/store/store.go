package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ItemFilter specifies criteria for listing items.
type ItemFilter struct {
	OwnerID  string `json:"owner_id,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for catalog items and their
// sub-resources. Every Replace* method is a full replace: all existing rows
// for the item are deleted and the new set inserted in one transaction.
type Store interface {
	// Items
	CreateItem(ctx context.Context, fields model.ItemFields) (*model.Item, error)
	UpdateItem(ctx context.Context, id string, patch model.ItemPatch) error
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error)

	// Price tiers
	ReplaceTiers(ctx context.Context, itemID string, tiers []model.PriceTier) error
	ListTiers(ctx context.Context, itemID string) ([]model.PriceTier, error)

	// Specifications
	ReplaceSpecifications(ctx context.Context, itemID string, specs []model.Specification) error
	ListSpecifications(ctx context.Context, itemID string) ([]model.Specification, error)

	// Images
	ReplaceImages(ctx context.Context, itemID string, images []model.ItemImage) error
	ListImages(ctx context.Context, itemID string) ([]model.ItemImage, error)

	// Task archive
	ArchiveTask(ctx context.Context, task *model.BackgroundTask) error
	ListArchivedTasks(ctx context.Context, itemID string) ([]model.BackgroundTask, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Snapshot reads an item with all of its sub-resources.
func Snapshot(ctx context.Context, st Store, itemID string) (*model.ItemSnapshot, error) {
	item, err := st.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	tiers, err := st.ListTiers(ctx, itemID)
	if err != nil {
		return nil, err
	}
	specs, err := st.ListSpecifications(ctx, itemID)
	if err != nil {
		return nil, err
	}
	images, err := st.ListImages(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return &model.ItemSnapshot{
		Item:           *item,
		Images:         images,
		Specifications: specs,
		PriceTiers:     tiers,
	}, nil
}

// defaultCurrency is applied when an item is created without one.
const defaultCurrency = "USD"

func newItem(id string, fields model.ItemFields) model.Item {
	item := model.Item{
		ID:          id,
		OwnerID:     fields.OwnerID,
		Name:        fields.Name,
		Description: fields.Description,
		Category:    fields.Category,
		BasePrice:   fields.BasePrice,
		Currency:    fields.Currency,
		Active:      true,
	}
	if item.Currency == "" {
		item.Currency = defaultCurrency
	}
	if fields.Active != nil {
		item.Active = *fields.Active
	}
	return item
}

func validateFields(fields model.ItemFields) error {
	if fields.Name == "" {
		return eris.New("store: item name is required")
	}
	if fields.BasePrice.IsNegative() {
		return eris.Errorf("store: base price must not be negative, got %s", fields.BasePrice)
	}
	return nil
}

// applyPatch returns item with the non-nil patch fields applied.
func applyPatch(item model.Item, patch model.ItemPatch) (model.Item, error) {
	if patch.Name != nil {
		if *patch.Name == "" {
			return item, eris.New("store: item name must not be empty")
		}
		item.Name = *patch.Name
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.Category != nil {
		item.Category = *patch.Category
	}
	if patch.BasePrice != nil {
		if patch.BasePrice.IsNegative() {
			return item, eris.Errorf("store: base price must not be negative, got %s", *patch.BasePrice)
		}
		item.BasePrice = *patch.BasePrice
	}
	if patch.Currency != nil {
		item.Currency = *patch.Currency
	}
	if patch.Active != nil {
		item.Active = *patch.Active
	}
	return item, nil
}

func marshalOperations(ops map[model.Step]model.StepStatus) ([]byte, error) {
	data, err := json.Marshal(ops)
	return data, eris.Wrap(err, "store: marshal operations")
}

func unmarshalOperations(data []byte) (map[model.Step]model.StepStatus, error) {
	ops := map[model.Step]model.StepStatus{}
	if len(data) == 0 {
		return ops, nil
	}
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal operations")
	}
	return ops, nil
}
