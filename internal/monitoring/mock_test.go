package monitoring

import (
	"github.com/sells-group/catalog-cli/internal/model"
)

type stubSource struct {
	tasks []*model.BackgroundTask
}

func (s *stubSource) List() []*model.BackgroundTask { return s.tasks }
