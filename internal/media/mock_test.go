package media

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/pkg/assets"
)

type mockImageStore struct {
	mock.Mock
}

func (m *mockImageStore) ReplaceImages(ctx context.Context, itemID string, images []model.ItemImage) error {
	args := m.Called(ctx, itemID, images)
	return args.Error(0)
}

type mockAssets struct {
	mock.Mock
}

func (m *mockAssets) Put(ctx context.Context, key, contentType string, data []byte) (*assets.Object, error) {
	args := m.Called(ctx, key, contentType, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assets.Object), args.Error(1)
}
