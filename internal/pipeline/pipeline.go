// Package pipeline drives item mutations: the base record first, then the
// images, specifications and price tiers steps, tracked per item in a
// task.Registry.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/config"
	"github.com/sells-group/catalog-cli/internal/event"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/task"
)

// ErrCancelled is returned when a task was cancelled before the pipeline
// reached its end.
var ErrCancelled = eris.New("pipeline: task cancelled")

// ErrShuttingDown is returned when background work is refused because Wait
// has begun.
var ErrShuttingDown = eris.New("pipeline: shutting down")

// StepError reports the step that failed a pipeline.
type StepError struct {
	Step model.Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("Error processing %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// mode selects which sub-resources count as present.
type mode int

const (
	// modeCreate runs specifications and tiers only when they carry data.
	modeCreate mode = iota
	// modeUpdate also runs tiers for an explicit empty list, clearing them.
	modeUpdate
)

// Pipeline orchestrates item creation and updates.
type Pipeline struct {
	deps        Deps
	registry    *task.Registry
	bus         *event.Bus
	resyncDelay time.Duration
	timeout     time.Duration
	archive     bool

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// New creates a Pipeline. bus may be nil.
func New(cfg config.PipelineConfig, deps Deps, registry *task.Registry, bus *event.Bus) *Pipeline {
	return &Pipeline{
		deps:        deps,
		registry:    registry,
		bus:         bus,
		resyncDelay: cfg.ResyncDelay(),
		timeout:     cfg.Timeout(),
		archive:     cfg.ArchiveTasks,
	}
}

// plan returns the initial step statuses for payload. Images run whenever a
// list is given, even an empty one, so that images can be cleared.
func plan(payload model.ItemPayload, m mode) map[model.Step]model.StepStatus {
	status := func(applies bool) model.StepStatus {
		if applies {
			return model.StepStatusPending
		}
		return model.StepStatusSkipped
	}
	tiers := len(payload.PriceTiers) > 0
	if m == modeUpdate {
		tiers = payload.PriceTiers != nil
	}
	return map[model.Step]model.StepStatus{
		model.StepImages:         status(payload.Images != nil),
		model.StepSpecifications: status(len(payload.Specifications) > 0),
		model.StepPriceTiers:     status(tiers),
	}
}

// RunPipeline processes payload's sub-resources for an existing item and
// waits for the outcome.
func (p *Pipeline) RunPipeline(ctx context.Context, itemID string, payload model.ItemPayload) error {
	run, err := p.registry.Start(itemID, plan(payload, modeCreate))
	if err != nil {
		return err
	}
	return p.execute(ctx, run, itemID, payload)
}

// CreateItem stores the base record and returns it. Sub-resources, if any,
// are processed in the background; poll TaskStatus or Watch for the outcome.
func (p *Pipeline) CreateItem(ctx context.Context, payload model.ItemPayload) (*model.Item, error) {
	item, err := p.deps.Base.CreateItem(ctx, payload.Base)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create base item")
	}
	if !payload.HasSubResources() {
		return item, nil
	}

	run, err := p.registry.Start(item.ID, plan(payload, modeCreate))
	if err != nil {
		return item, eris.Wrapf(err, "pipeline: start task for item %s", item.ID)
	}
	if payload.Base.OwnerID == "" {
		payload.Base.OwnerID = item.OwnerID
	}

	spawned := p.spawn(ctx, func(bg context.Context) {
		if err := p.execute(bg, run, item.ID, payload); err != nil {
			zap.L().Warn("pipeline: background task did not complete",
				zap.String("item_id", item.ID),
				zap.Error(err),
			)
		}
	})
	if !spawned {
		run.Fail(ErrShuttingDown.Error())
		return item, eris.Wrapf(ErrShuttingDown, "pipeline: start task for item %s", item.ID)
	}
	return item, nil
}

// UpdateItem applies the base patch, then processes the given sub-resources
// before returning.
func (p *Pipeline) UpdateItem(ctx context.Context, itemID string, payload model.ItemPayload) error {
	if !payload.Patch.IsEmpty() {
		if err := p.deps.Base.UpdateItem(ctx, itemID, payload.Patch); err != nil {
			return eris.Wrapf(err, "pipeline: update base item %s", itemID)
		}
	}

	steps := plan(payload, modeUpdate)
	if !applicable(steps) {
		p.refresh(ctx, itemID)
		return nil
	}
	run, err := p.registry.Start(itemID, steps)
	if err != nil {
		return err
	}
	return p.execute(ctx, run, itemID, payload)
}

// Retry re-runs a failed item's pipeline from the first step. Steps that
// succeeded before are done again; processors must tolerate repeats.
func (p *Pipeline) Retry(ctx context.Context, itemID string, payload model.ItemPayload) error {
	if _, err := p.registry.MarkRetrying(itemID); err != nil {
		return err
	}
	run, err := p.registry.Resume(itemID, plan(payload, modeUpdate))
	if err != nil {
		return err
	}
	return p.execute(ctx, run, itemID, payload)
}

// TaskStatus returns a copy of the item's task, or nil.
func (p *Pipeline) TaskStatus(itemID string) *model.BackgroundTask {
	return p.registry.Get(itemID)
}

// Watch streams task changes for itemID.
func (p *Pipeline) Watch(itemID string) (<-chan *model.BackgroundTask, func()) {
	return p.registry.Watch(itemID)
}

// Cancel marks the item's active task cancelled. The running step finishes;
// later steps do not start.
func (p *Pipeline) Cancel(itemID string) (*model.BackgroundTask, error) {
	return p.registry.Cancel(itemID)
}

// ClearTask drops a finished task from the registry, archiving it first when
// archiving is enabled.
func (p *Pipeline) ClearTask(ctx context.Context, itemID string) (*model.BackgroundTask, error) {
	t, err := p.registry.Clear(itemID)
	if err != nil {
		return nil, err
	}
	if p.archive && p.deps.Archiver != nil {
		if err := p.deps.Archiver.ArchiveTask(ctx, t); err != nil {
			zap.L().Warn("pipeline: archive task failed", zap.String("item_id", itemID), zap.Error(err))
		}
	}
	return t, nil
}

// Wait blocks until background work has finished or ctx is done. Once Wait
// has been called no new background work is accepted.
func (p *Pipeline) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "pipeline: wait for background tasks")
	}
}

// spawn runs fn in a tracked goroutine that outlives the caller's context.
// It reports false, without running fn, once Wait has begun.
func (p *Pipeline) spawn(ctx context.Context, fn func(context.Context)) bool {
	if !p.track() {
		return false
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer p.wg.Done()
		fn(bg)
	}()
	return true
}

// track adds one unit of background work unless Wait has begun. The caller
// must call p.wg.Done when it reports true.
func (p *Pipeline) track() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		return false
	}
	p.wg.Add(1)
	return true
}

func applicable(steps map[model.Step]model.StepStatus) bool {
	for _, s := range steps {
		if s != model.StepStatusSkipped {
			return true
		}
	}
	return false
}
