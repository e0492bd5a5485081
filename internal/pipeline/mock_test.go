package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/tier"
)

// --- Base store mock ---

type mockBaseStore struct {
	mock.Mock
}

func (m *mockBaseStore) CreateItem(ctx context.Context, fields model.ItemFields) (*model.Item, error) {
	args := m.Called(ctx, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Item), args.Error(1)
}

func (m *mockBaseStore) UpdateItem(ctx context.Context, id string, patch model.ItemPatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

// --- Image processor mock ---

type mockImageProcessor struct {
	mock.Mock
}

func (m *mockImageProcessor) Upload(ctx context.Context, itemID, ownerID string, images []model.ImageInput) error {
	args := m.Called(ctx, itemID, ownerID, images)
	return args.Error(0)
}

// --- Spec processor mock ---

type mockSpecProcessor struct {
	mock.Mock
}

func (m *mockSpecProcessor) Process(ctx context.Context, itemID string, specs []model.Specification) error {
	args := m.Called(ctx, itemID, specs)
	return args.Error(0)
}

// --- Tier persister mock ---

type mockTierPersister struct {
	mock.Mock
}

func (m *mockTierPersister) Persist(ctx context.Context, itemID string, raw []model.RawTier) (*tier.PersistResult, error) {
	args := m.Called(ctx, itemID, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tier.PersistResult), args.Error(1)
}

// --- Reloader mock ---

type mockReloader struct {
	mock.Mock
}

func (m *mockReloader) Refresh(ctx context.Context, itemID string) error {
	args := m.Called(ctx, itemID)
	return args.Error(0)
}

// --- Archiver mock ---

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) ArchiveTask(ctx context.Context, t *model.BackgroundTask) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}
