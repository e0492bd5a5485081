// Package batch creates many items in paced, concurrent chunks.
package batch

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-cli/internal/config"
	"github.com/sells-group/catalog-cli/internal/model"
)

// DefaultSize is the chunk size used when none is configured.
const DefaultSize = 3

// Creator creates one item. pipeline.Pipeline satisfies it.
type Creator interface {
	CreateItem(ctx context.Context, payload model.ItemPayload) (*model.Item, error)
}

// Runner submits items chunk by chunk. All items of a chunk start at once and
// the next chunk starts only after every item of the current one settled.
type Runner struct {
	creator Creator
	size    int
	pause   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Runner from cfg.
func New(creator Creator, cfg config.BatchConfig) *Runner {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	return &Runner{creator: creator, size: size, pause: cfg.Pause(), sleep: sleepCtx}
}

// Run creates items and reports one outcome per item, in input order. A
// batchSize of zero uses the configured size. Once ctx is done, items that
// have not started are rejected with the context error.
func (r *Runner) Run(ctx context.Context, items []model.ItemPayload, batchSize int) *model.BatchResult {
	if batchSize <= 0 {
		batchSize = r.size
	}
	res := &model.BatchResult{Total: len(items), Results: make([]model.Outcome, len(items))}
	log := zap.L().With(zap.Int("items", len(items)), zap.Int("batch_size", batchSize))
	log.Info("batch: starting")

	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))

		if start > 0 && r.pause > 0 {
			if err := r.sleep(ctx, r.pause); err != nil {
				rejectFrom(res, start, err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			rejectFrom(res, start, err)
			break
		}

		r.runChunk(ctx, items, start, end, res.Results)
		log.Debug("batch: chunk settled", zap.Int("from", start), zap.Int("to", end))
	}

	for _, o := range res.Results {
		if o.Status == model.OutcomeFulfilled {
			res.Successful++
		} else {
			res.Failed++
		}
	}
	log.Info("batch: complete", zap.Int("successful", res.Successful), zap.Int("failed", res.Failed))
	return res
}

// runChunk settles every item in items[start:end]. Failures never stop the
// chunk, so the group error is always nil.
func (r *Runner) runChunk(ctx context.Context, items []model.ItemPayload, start, end int, out []model.Outcome) {
	var g errgroup.Group
	for i := start; i < end; i++ {
		g.Go(func() error {
			item, err := r.creator.CreateItem(ctx, items[i])
			if err != nil {
				zap.L().Warn("batch: item rejected", zap.Int("index", i), zap.Error(err))
				out[i] = model.Outcome{Status: model.OutcomeRejected, Reason: err.Error()}
				return nil
			}
			out[i] = model.Outcome{Status: model.OutcomeFulfilled, Value: item}
			return nil
		})
	}
	_ = g.Wait()
}

func rejectFrom(res *model.BatchResult, start int, err error) {
	for i := start; i < len(res.Results); i++ {
		res.Results[i] = model.Outcome{Status: model.OutcomeRejected, Reason: err.Error()}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
