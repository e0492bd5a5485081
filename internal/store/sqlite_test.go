package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createTestItem(t *testing.T, st *SQLiteStore, name string) *model.Item {
	t.Helper()
	item, err := st.CreateItem(context.Background(), model.ItemFields{
		OwnerID:   "owner-1",
		Name:      name,
		Category:  "tools",
		BasePrice: decimal.RequireFromString("19.99"),
	})
	require.NoError(t, err)
	return item
}

// --- Items ---

func TestSQLite_CreateItem_And_GetItem(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created := createTestItem(t, st, "Widget")

	got, err := st.GetItem(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, "USD", got.Currency)
	assert.True(t, got.Active)
	assert.True(t, decimal.RequireFromString("19.99").Equal(got.BasePrice))
}

func TestSQLite_CreateItem_InactiveAndCurrency(t *testing.T) {
	st := newTestSQLiteStore(t)
	inactive := false

	item, err := st.CreateItem(context.Background(), model.ItemFields{Name: "Gadget", Currency: "EUR", Active: &inactive})
	require.NoError(t, err)

	got, err := st.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, "EUR", got.Currency)
	assert.False(t, got.Active)
}

func TestSQLite_GetItem_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetItem(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_UpdateItem(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	item := createTestItem(t, st, "Widget")

	desc := "Now with more widget"
	price := decimal.RequireFromString("24.50")
	require.NoError(t, st.UpdateItem(ctx, item.ID, model.ItemPatch{Description: &desc, BasePrice: &price}))

	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
	assert.Equal(t, desc, got.Description)
	assert.True(t, price.Equal(got.BasePrice))
}

func TestSQLite_UpdateItem_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	name := "x"

	err := st.UpdateItem(context.Background(), "missing", model.ItemPatch{Name: &name})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_UpdateItem_EmptyNameRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	item := createTestItem(t, st, "Widget")
	empty := ""

	err := st.UpdateItem(context.Background(), item.ID, model.ItemPatch{Name: &empty})
	require.Error(t, err)

	got, err := st.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
}

func TestSQLite_ListItems_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	createTestItem(t, st, "A")
	createTestItem(t, st, "B")
	_, err := st.CreateItem(ctx, model.ItemFields{OwnerID: "owner-2", Name: "C", Category: "paint"})
	require.NoError(t, err)

	all, err := st.ListItems(ctx, ItemFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byOwner, err := st.ListItems(ctx, ItemFilter{OwnerID: "owner-2"})
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, "C", byOwner[0].Name)

	byCategory, err := st.ListItems(ctx, ItemFilter{Category: "tools", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, byCategory, 1)
}

// --- Price tiers ---

func TestSQLite_ReplaceTiers_FullReplace(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	item := createTestItem(t, st, "Widget")

	require.NoError(t, st.ReplaceTiers(ctx, item.ID, []model.PriceTier{
		{MinQuantity: 1, MaxQuantity: model.Int64Ptr(4), UnitPrice: decimal.NewFromInt(10)},
		{MinQuantity: 5, MaxQuantity: model.Int64Ptr(9), UnitPrice: decimal.NewFromInt(9)},
		{MinQuantity: 10, UnitPrice: decimal.NewFromInt(8)},
	}))

	replacement := []model.PriceTier{
		{MinQuantity: 1, MaxQuantity: model.Int64Ptr(9), UnitPrice: decimal.RequireFromString("1000.25")},
		{MinQuantity: 10, UnitPrice: decimal.NewFromInt(800)},
	}
	require.NoError(t, st.ReplaceTiers(ctx, item.ID, replacement))
	// Writing the same set twice leaves the same rows.
	require.NoError(t, st.ReplaceTiers(ctx, item.ID, replacement))

	tiers, err := st.ListTiers(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, int64(1), tiers[0].MinQuantity)
	assert.Equal(t, int64(9), *tiers[0].MaxQuantity)
	assert.True(t, decimal.RequireFromString("1000.25").Equal(tiers[0].UnitPrice))
	assert.Nil(t, tiers[1].MaxQuantity)
}

func TestSQLite_ReplaceTiers_KeepsExactPrice(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	item := createTestItem(t, st, "Fastener")

	require.NoError(t, st.ReplaceTiers(ctx, item.ID, []model.PriceTier{
		{MinQuantity: 1, UnitPrice: decimal.RequireFromString("0.00005")},
	}))

	tiers, err := st.ListTiers(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, "0.00005", tiers[0].UnitPrice.String())
}

func TestSQLite_ReplaceTiers_EmptyClears(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	item := createTestItem(t, st, "Widget")

	require.NoError(t, st.ReplaceTiers(ctx, item.ID, []model.PriceTier{{MinQuantity: 1, UnitPrice: decimal.NewFromInt(5)}}))
	require.NoError(t, st.ReplaceTiers(ctx, item.ID, nil))

	tiers, err := st.ListTiers(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, tiers)
}

func TestSQLite_ReplaceTiers_DuplicateMinRollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	item := createTestItem(t, st, "Widget")

	require.NoError(t, st.ReplaceTiers(ctx, item.ID, []model.PriceTier{{MinQuantity: 1, UnitPrice: decimal.NewFromInt(5)}}))

	err := st.ReplaceTiers(ctx, item.ID, []model.PriceTier{
		{MinQuantity: 1, MaxQuantity: model.Int64Ptr(5), UnitPrice: decimal.NewFromInt(5)},
		{MinQuantity: 1, UnitPrice: decimal.NewFromInt(4)},
	})
	require.Error(t, err)

	tiers, err := st.ListTiers(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.True(t, decimal.NewFromInt(5).Equal(tiers[0].UnitPrice))
}

// --- Specifications and images ---

func TestSQLite_ReplaceSpecifications(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	item := createTestItem(t, st, "Widget")

	require.NoError(t, st.ReplaceSpecifications(ctx, item.ID, []model.Specification{
		{Name: "weight", Value: "2", Unit: "kg", SortOrder: 1},
		{Name: "color", Value: "red", SortOrder: 0},
	}))

	specs, err := st.ListSpecifications(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "color", specs[0].Name)
	assert.Equal(t, "kg", specs[1].Unit)
}

func TestSQLite_ReplaceImages(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	item := createTestItem(t, st, "Widget")

	require.NoError(t, st.ReplaceImages(ctx, item.ID, []model.ItemImage{
		{URL: "https://cdn.example.com/a.jpg", ObjectKey: "items/a.jpg", IsPrimary: true, SortOrder: 0},
		{URL: "https://cdn.example.com/b.jpg", SortOrder: 1},
	}))

	images, err := st.ListImages(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.True(t, images[0].IsPrimary)
	assert.Equal(t, item.ID, images[1].ItemID)

	require.NoError(t, st.ReplaceImages(ctx, item.ID, []model.ItemImage{}))
	images, err = st.ListImages(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestSQLite_Snapshot(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	item := createTestItem(t, st, "Widget")
	require.NoError(t, st.ReplaceTiers(ctx, item.ID, []model.PriceTier{{MinQuantity: 1, UnitPrice: decimal.NewFromInt(5)}}))

	snap, err := Snapshot(ctx, st, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", snap.Item.Name)
	assert.Len(t, snap.PriceTiers, 1)
	assert.Empty(t, snap.Images)
	assert.Empty(t, snap.Specifications)

	_, err = Snapshot(ctx, st, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Task archive ---

func TestSQLite_ArchiveTask_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	failed := started.Add(30 * time.Second)

	require.NoError(t, st.ArchiveTask(ctx, &model.BackgroundTask{
		ItemID:          "item-1",
		Status:          model.TaskStatusFailed,
		ProgressPercent: 50,
		Operations: map[model.Step]model.StepStatus{
			model.StepImages:         model.StepStatusCompleted,
			model.StepSpecifications: model.StepStatusSkipped,
			model.StepPriceTiers:     model.StepStatusFailed,
		},
		StartTime: started,
		FailedAt:  &failed,
		Error:     "Error processing priceTiers: boom",
		Attempts:  2,
	}))

	tasks, err := st.ListArchivedTasks(ctx, "item-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	got := tasks[0]
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, 50, got.ProgressPercent)
	assert.Equal(t, model.StepStatusFailed, got.Operations[model.StepPriceTiers])
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.FailedAt)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, failed.Equal(*got.FailedAt))
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}
