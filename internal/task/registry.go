// Package task keeps the per-item background task records of running and
// finished pipelines.
package task

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/event"
	"github.com/sells-group/catalog-cli/internal/model"
)

var (
	// ErrTaskActive is returned when a pipeline already owns the item.
	ErrTaskActive = eris.New("task: item already has an active task")
	// ErrRetryNotAllowed is returned when retrying a task that has not failed.
	ErrRetryNotAllowed = eris.New("task: retry is only allowed for failed tasks")
	// ErrNotFound is returned for items without a task record.
	ErrNotFound = eris.New("task: no task for item")
	// ErrNotActive is returned when cancelling a task that is not running.
	ErrNotActive = eris.New("task: task is not active")
)

const watchBuffer = 8

// Registry owns every BackgroundTask keyed by item id. Callers only ever see
// copies; all mutation goes through the methods below.
type Registry struct {
	mu       sync.Mutex
	tasks    map[string]*model.BackgroundTask
	inflight map[string]*Run
	watchers map[string]map[int]chan *model.BackgroundTask
	nextID   int
	bus      *event.Bus
	now      func() time.Time
}

// NewRegistry creates an empty registry. bus may be nil.
func NewRegistry(bus *event.Bus) *Registry {
	return &Registry{
		tasks:    make(map[string]*model.BackgroundTask),
		inflight: make(map[string]*Run),
		watchers: make(map[string]map[int]chan *model.BackgroundTask),
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run is the handle a pipeline uses to update the task it started. Updates
// through a stale handle, after the task was replaced or cleared, are ignored.
// The run owns its item until it finishes or is released, so a cancelled run
// whose step is still writing blocks new runs for the same item.
type Run struct {
	reg    *Registry
	itemID string
	task   *model.BackgroundTask
}

// Start opens a processing task for itemID with the given step plan. Steps
// planned as skipped never count toward progress. An item whose task is
// processing or retrying, or whose cancelled run has not been released yet,
// cannot be started again.
func (r *Registry) Start(itemID string, plan map[model.Step]model.StepStatus) (*Run, error) {
	return r.open(itemID, plan, false)
}

// Resume takes over a task marked retrying, keeping its attempt count.
func (r *Registry) Resume(itemID string, plan map[model.Step]model.StepStatus) (*Run, error) {
	return r.open(itemID, plan, true)
}

func (r *Registry) open(itemID string, plan map[model.Step]model.StepStatus, resume bool) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempts := 1
	prev, ok := r.tasks[itemID]
	switch {
	case resume && (!ok || prev.Status != model.TaskStatusRetrying):
		return nil, eris.Wrapf(ErrRetryNotAllowed, "item %s is not being retried", itemID)
	case resume:
		attempts = prev.Attempts
	case ok && prev.Status.Active():
		return nil, eris.Wrapf(ErrTaskActive, "item %s is %s", itemID, prev.Status)
	case r.inflight[itemID] != nil:
		return nil, eris.Wrapf(ErrTaskActive, "item %s is cancelled but its last step is still running", itemID)
	}

	t := &model.BackgroundTask{
		ItemID:     itemID,
		Status:     model.TaskStatusProcessing,
		Operations: make(map[model.Step]model.StepStatus, len(plan)),
		StartTime:  r.now(),
		Attempts:   attempts,
	}
	for step, st := range plan {
		t.Operations[step] = st
	}
	run := &Run{reg: r, itemID: itemID, task: t}
	r.tasks[itemID] = t
	r.inflight[itemID] = run
	r.notify(t)
	return run, nil
}

// current reports whether the run still owns a processing task. Must be
// called with the registry lock held.
func (run *Run) current() bool {
	return run.reg.tasks[run.itemID] == run.task && run.task.Status == model.TaskStatusProcessing
}

// Active reports whether the pipeline should go on with its next step.
func (run *Run) Active() bool {
	run.reg.mu.Lock()
	defer run.reg.mu.Unlock()
	return run.current()
}

// Snapshot returns a copy of the run's task.
func (run *Run) Snapshot() *model.BackgroundTask {
	run.reg.mu.Lock()
	defer run.reg.mu.Unlock()
	return run.task.Clone()
}

// SetStep records a step transition and recomputes progress.
func (run *Run) SetStep(step model.Step, status model.StepStatus) {
	r := run.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	if !run.current() {
		return
	}
	run.task.Operations[step] = status
	run.task.ProgressPercent = progress(run.task)
	r.notify(run.task)
}

// progress is completed applicable steps over all applicable steps.
func progress(t *model.BackgroundTask) int {
	total := t.ApplicableSteps()
	if total == 0 {
		return 0
	}
	done := 0
	for _, s := range t.Operations {
		if s == model.StepStatusCompleted {
			done++
		}
	}
	return done * 100 / total
}

// Complete marks the task completed. It reports false when the task left
// processing in the meantime, e.g. because it was cancelled.
func (run *Run) Complete() bool {
	return run.finish(func(t *model.BackgroundTask, at time.Time) {
		t.Status = model.TaskStatusCompleted
		t.ProgressPercent = 100
		t.CompletedAt = &at
	})
}

// Fail marks the task failed with msg.
func (run *Run) Fail(msg string) bool {
	return run.finish(func(t *model.BackgroundTask, at time.Time) {
		t.Status = model.TaskStatusFailed
		t.Error = msg
		t.FailedAt = &at
	})
}

// Cancel marks the run's own task cancelled. It reports false when the run
// no longer owns a processing task.
func (run *Run) Cancel() bool {
	r := run.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	if !run.current() {
		return false
	}
	r.cancel(run.task)
	return true
}

// Release gives up the run's claim on its item. It is safe to call more than
// once and after Complete or Fail.
func (run *Run) Release() {
	run.reg.mu.Lock()
	defer run.reg.mu.Unlock()
	run.release()
}

// release must be called with the registry lock held.
func (run *Run) release() {
	if run.reg.inflight[run.itemID] == run {
		delete(run.reg.inflight, run.itemID)
	}
}

func (run *Run) finish(apply func(*model.BackgroundTask, time.Time)) bool {
	r := run.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	run.release()
	if !run.current() {
		return false
	}
	apply(run.task, r.now())
	r.notify(run.task)
	r.publishFinished(run.task)
	return true
}

// Cancel marks an active task cancelled. A step already running is not
// interrupted; the pipeline stops before its next step.
func (r *Registry) Cancel(itemID string) (*model.BackgroundTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[itemID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "item %s", itemID)
	}
	if !t.Status.Active() {
		return nil, eris.Wrapf(ErrNotActive, "item %s is %s", itemID, t.Status)
	}
	r.cancel(t)
	return t.Clone(), nil
}

// cancel must be called with r.mu held.
func (r *Registry) cancel(t *model.BackgroundTask) {
	at := r.now()
	t.Status = model.TaskStatusCancelled
	t.CancelledAt = &at
	r.notify(t)
	r.publishFinished(t)
}

// MarkRetrying moves a failed task to retrying, clearing its error and
// counting the new attempt. Any other state is left untouched.
func (r *Registry) MarkRetrying(itemID string) (*model.BackgroundTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[itemID]
	if !ok {
		return nil, eris.Wrapf(ErrRetryNotAllowed, "item %s has no task", itemID)
	}
	if t.Status != model.TaskStatusFailed {
		return nil, eris.Wrapf(ErrRetryNotAllowed, "item %s is %s", itemID, t.Status)
	}
	t.Status = model.TaskStatusRetrying
	t.Error = ""
	t.FailedAt = nil
	t.Attempts++
	r.notify(t)
	return t.Clone(), nil
}

// Get returns a copy of the item's task, or nil.
func (r *Registry) Get(itemID string) *model.BackgroundTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[itemID].Clone()
}

// List returns copies of all tasks, oldest first.
func (r *Registry) List() []*model.BackgroundTask {
	r.mu.Lock()
	out := make([]*model.BackgroundTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *model.BackgroundTask) int {
		return cmp.Or(a.StartTime.Compare(b.StartTime), cmp.Compare(a.ItemID, b.ItemID))
	})
	return out
}

// Clear removes a finished task and returns it. Active tasks stay.
func (r *Registry) Clear(itemID string) (*model.BackgroundTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[itemID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "item %s", itemID)
	}
	if t.Status.Active() {
		return nil, eris.Wrapf(ErrTaskActive, "item %s", itemID)
	}
	delete(r.tasks, itemID)
	for id, ch := range r.watchers[itemID] {
		close(ch)
		delete(r.watchers[itemID], id)
	}
	delete(r.watchers, itemID)
	return t, nil
}

// Watch streams a copy of the item's task after every change, starting with
// the current state if there is one. Slow readers miss intermediate states.
// The channel closes when the task is cleared or stop is called.
func (r *Registry) Watch(itemID string) (<-chan *model.BackgroundTask, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan *model.BackgroundTask, watchBuffer)
	id := r.nextID
	r.nextID++
	if r.watchers[itemID] == nil {
		r.watchers[itemID] = make(map[int]chan *model.BackgroundTask)
	}
	r.watchers[itemID][id] = ch
	if t, ok := r.tasks[itemID]; ok {
		ch <- t.Clone()
	}

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.watchers[itemID][id]; ok {
			close(c)
			delete(r.watchers[itemID], id)
		}
	}
}

// notify must be called with r.mu held.
func (r *Registry) notify(t *model.BackgroundTask) {
	for _, ch := range r.watchers[t.ItemID] {
		select {
		case ch <- t.Clone():
		default:
		}
	}
}

func (r *Registry) publishFinished(t *model.BackgroundTask) {
	zap.L().Debug("task: finished",
		zap.String("item_id", t.ItemID),
		zap.String("status", string(t.Status)),
		zap.Int("attempts", t.Attempts),
	)
	if r.bus != nil {
		r.bus.Publish(event.Event{Type: event.TaskFinished, ItemID: t.ItemID, Data: t.Clone()})
	}
}
