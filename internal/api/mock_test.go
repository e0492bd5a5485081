package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/catalog-cli/internal/model"
)

// --- Orchestrator mock ---

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) CreateItem(ctx context.Context, payload model.ItemPayload) (*model.Item, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Item), args.Error(1)
}

func (m *mockOrchestrator) UpdateItem(ctx context.Context, itemID string, payload model.ItemPayload) error {
	args := m.Called(ctx, itemID, payload)
	return args.Error(0)
}

func (m *mockOrchestrator) Retry(ctx context.Context, itemID string, payload model.ItemPayload) error {
	args := m.Called(ctx, itemID, payload)
	return args.Error(0)
}

func (m *mockOrchestrator) TaskStatus(itemID string) *model.BackgroundTask {
	args := m.Called(itemID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*model.BackgroundTask)
}

func (m *mockOrchestrator) Cancel(itemID string) (*model.BackgroundTask, error) {
	args := m.Called(itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BackgroundTask), args.Error(1)
}

func (m *mockOrchestrator) ClearTask(ctx context.Context, itemID string) (*model.BackgroundTask, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BackgroundTask), args.Error(1)
}

// --- Batch runner mock ---

type mockBatch struct {
	mock.Mock
}

func (m *mockBatch) Run(ctx context.Context, items []model.ItemPayload, batchSize int) *model.BatchResult {
	args := m.Called(ctx, items, batchSize)
	return args.Get(0).(*model.BatchResult)
}
