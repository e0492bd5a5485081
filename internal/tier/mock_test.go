package tier

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/catalog-cli/internal/model"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ReplaceTiers(ctx context.Context, itemID string, tiers []model.PriceTier) error {
	args := m.Called(ctx, itemID, tiers)
	return args.Error(0)
}

func (m *mockStore) ListTiers(ctx context.Context, itemID string) ([]model.PriceTier, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PriceTier), args.Error(1)
}
