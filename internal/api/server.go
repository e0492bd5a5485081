// Package api exposes item mutations, task tracking and tier tools over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/config"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/monitoring"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/internal/tier"
)

// maxBodyBytes bounds request bodies; raw image data travels inline.
const maxBodyBytes = 32 << 20

// Orchestrator runs item mutations. pipeline.Pipeline satisfies it.
type Orchestrator interface {
	CreateItem(ctx context.Context, payload model.ItemPayload) (*model.Item, error)
	UpdateItem(ctx context.Context, itemID string, payload model.ItemPayload) error
	Retry(ctx context.Context, itemID string, payload model.ItemPayload) error
	TaskStatus(itemID string) *model.BackgroundTask
	Cancel(itemID string) (*model.BackgroundTask, error)
	ClearTask(ctx context.Context, itemID string) (*model.BackgroundTask, error)
}

// BatchRunner creates items in chunks. batch.Runner satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, items []model.ItemPayload, batchSize int) *model.BatchResult
}

// Server holds the HTTP handlers' collaborators.
type Server struct {
	pipeline Orchestrator
	batch    BatchRunner
	store    store.Store
	tiers    *tier.Engine
	origins  []string
	stats    *monitoring.Collector
	lookback int
}

// New creates a Server.
func New(p Orchestrator, b BatchRunner, st store.Store, engine *tier.Engine, cfg config.ServerConfig) *Server {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{pipeline: p, batch: b, store: st, tiers: engine, origins: origins}
}

// WithStats enables GET /tasks/stats backed by the given collector.
// lookbackMins is the default window when the request sets none.
func (s *Server) WithStats(c *monitoring.Collector, lookbackMins int) *Server {
	s.stats = c
	s.lookback = lookbackMins
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/items", func(r chi.Router) {
		r.Post("/", s.createItem)
		r.Post("/batch", s.createBatch)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getItem)
			r.Patch("/", s.updateItem)
			r.Get("/task", s.getTask)
			r.Delete("/task", s.clearTask)
			r.Post("/task/retry", s.retryTask)
			r.Post("/task/cancel", s.cancelTask)
		})
	})

	if s.stats != nil {
		r.Get("/tasks/stats", s.taskStats)
	}

	r.Route("/tiers", func(r chi.Router) {
		r.Post("/validate", s.validateTiers)
		r.Post("/quote", s.quote)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
