package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/event"
	"github.com/sells-group/catalog-cli/internal/store"
)

// StoreReloader re-reads an item with its sub-resources and publishes the
// snapshot as an item.reloaded event.
type StoreReloader struct {
	store store.Store
	bus   *event.Bus
}

// NewStoreReloader creates a reloader over st. bus may be nil, in which case
// Refresh only checks that the item can be read.
func NewStoreReloader(st store.Store, bus *event.Bus) *StoreReloader {
	return &StoreReloader{store: st, bus: bus}
}

// Refresh implements Reloader.
func (r *StoreReloader) Refresh(ctx context.Context, itemID string) error {
	snap, err := store.Snapshot(ctx, r.store, itemID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: reload item %s", itemID)
	}
	if r.bus != nil {
		r.bus.Publish(event.Event{Type: event.ItemReloaded, ItemID: itemID, Data: snap})
	}
	return nil
}
