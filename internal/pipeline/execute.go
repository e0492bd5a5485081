package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/event"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/task"
)

var errNoProcessor = eris.New("no processor configured")

// execute walks the planned steps in order, stopping at the first failure.
// Cancellation is checked before each step. The run keeps its claim on the
// item until execute returns.
func (p *Pipeline) execute(ctx context.Context, run *task.Run, itemID string, payload model.ItemPayload) (err error) {
	defer run.Release()
	snap := run.Snapshot()
	log := zap.L().With(zap.String("item_id", itemID), zap.Int("attempt", snap.Attempts))
	log.Info("pipeline: starting", zap.Int("steps", snap.ApplicableSteps()))
	start := time.Now()

	if p.timeout > 0 {
		timer := time.AfterFunc(p.timeout, func() {
			if run.Cancel() {
				log.Warn("pipeline: timed out, task cancelled", zap.Duration("timeout", p.timeout))
			}
		})
		defer timer.Stop()
	}

	var current model.Step
	defer func() {
		if r := recover(); r != nil {
			serr := &StepError{Step: current, Err: eris.Errorf("panic: %v", r)}
			log.Error("pipeline: step panicked", zap.String("step", string(current)), zap.Any("panic", r))
			run.SetStep(current, model.StepStatusFailed)
			run.Fail(serr.Error())
			err = serr
		}
	}()

	for _, step := range model.Steps {
		if snap.Operations[step] == model.StepStatusSkipped {
			continue
		}
		if !run.Active() {
			log.Info("pipeline: cancelled before step", zap.String("step", string(step)))
			return ErrCancelled
		}

		current = step
		run.SetStep(step, model.StepStatusProcessing)
		stepStart := time.Now()
		if serr := p.runStep(ctx, step, itemID, payload); serr != nil {
			run.SetStep(step, model.StepStatusFailed)
			failure := &StepError{Step: step, Err: serr}
			run.Fail(failure.Error())
			log.Error("pipeline: step failed",
				zap.String("step", string(step)),
				zap.Int64("duration_ms", time.Since(stepStart).Milliseconds()),
				zap.Error(serr),
			)
			return failure
		}
		run.SetStep(step, model.StepStatusCompleted)
		log.Info("pipeline: step complete",
			zap.String("step", string(step)),
			zap.Int64("duration_ms", time.Since(stepStart).Milliseconds()),
		)

		if step == model.StepImages {
			p.imagesUpdated(ctx, itemID)
		}
	}

	// The reload signal is best-effort and not a tracked step.
	p.refresh(ctx, itemID)

	if !run.Complete() {
		log.Info("pipeline: cancelled during last step")
		return ErrCancelled
	}
	log.Info("pipeline: complete", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, step model.Step, itemID string, payload model.ItemPayload) error {
	switch step {
	case model.StepImages:
		if p.deps.Images == nil {
			return errNoProcessor
		}
		return p.deps.Images.Upload(ctx, itemID, payload.Base.OwnerID, payload.Images)
	case model.StepSpecifications:
		if p.deps.Specs == nil {
			return errNoProcessor
		}
		return p.deps.Specs.Process(ctx, itemID, payload.Specifications)
	case model.StepPriceTiers:
		if p.deps.Tiers == nil {
			return errNoProcessor
		}
		_, err := p.deps.Tiers.Persist(ctx, itemID, payload.PriceTiers)
		return err
	}
	return eris.Errorf("unknown step %q", step)
}

// imagesUpdated notifies readers right away and schedules a delayed reload
// so they eventually see the stored state.
func (p *Pipeline) imagesUpdated(ctx context.Context, itemID string) {
	if p.bus != nil {
		p.bus.Publish(event.Event{Type: event.ImagesUpdated, ItemID: itemID})
	}
	if p.deps.Reloader == nil {
		return
	}

	if !p.track() {
		zap.L().Debug("pipeline: shutting down, image resync skipped", zap.String("item_id", itemID))
		return
	}
	bg := context.WithoutCancel(ctx)
	time.AfterFunc(p.resyncDelay, func() {
		defer p.wg.Done()
		p.refresh(bg, itemID)
	})
}

func (p *Pipeline) refresh(ctx context.Context, itemID string) {
	if p.deps.Reloader == nil {
		return
	}
	if err := p.deps.Reloader.Refresh(ctx, itemID); err != nil {
		zap.L().Warn("pipeline: reload failed", zap.String("item_id", itemID), zap.Error(err))
	}
}
