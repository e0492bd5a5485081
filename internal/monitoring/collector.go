package monitoring

import (
	"time"

	"github.com/sells-group/catalog-cli/internal/model"
)

// TaskSource lists the tasks currently tracked in memory.
type TaskSource interface {
	List() []*model.BackgroundTask
}

// TaskSnapshot holds aggregated task health for one lookback window.
type TaskSnapshot struct {
	Total         int       `json:"total"`
	Active        int       `json:"active"`
	Completed     int       `json:"completed"`
	Failed        int       `json:"failed"`
	Cancelled     int       `json:"cancelled"`
	Stuck         []string  `json:"stuck,omitempty"`
	FailRate      float64   `json:"fail_rate"`
	AvgAttempts   float64   `json:"avg_attempts"`
	LookbackMins  int       `json:"lookback_mins"`
	CollectedAt   time.Time `json:"collected_at"`
	RecentFailure string    `json:"recent_failure,omitempty"`
}

// Collector aggregates task state into a TaskSnapshot.
type Collector struct {
	source     TaskSource
	stuckAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. Tasks active for longer than stuckAfter
// are reported as stuck; zero disables the check.
func NewCollector(source TaskSource, stuckAfter time.Duration) *Collector {
	return &Collector{source: source, stuckAfter: stuckAfter, now: time.Now}
}

// Collect gathers task metrics for tasks started within the lookback window.
// A non-positive lookback includes every tracked task.
func (c *Collector) Collect(lookbackMins int) *TaskSnapshot {
	now := c.now().UTC()
	snap := &TaskSnapshot{LookbackMins: lookbackMins, CollectedAt: now}

	var since time.Time
	if lookbackMins > 0 {
		since = now.Add(-time.Duration(lookbackMins) * time.Minute)
	}

	var attempts int
	var lastFailed time.Time
	for _, t := range c.source.List() {
		if !since.IsZero() && t.StartTime.Before(since) {
			continue
		}
		snap.Total++
		attempts += t.Attempts

		switch t.Status {
		case model.TaskStatusProcessing, model.TaskStatusRetrying:
			snap.Active++
			if c.stuckAfter > 0 && now.Sub(t.StartTime) > c.stuckAfter {
				snap.Stuck = append(snap.Stuck, t.ItemID)
			}
		case model.TaskStatusCompleted:
			snap.Completed++
		case model.TaskStatusFailed:
			snap.Failed++
			if t.FailedAt != nil && t.FailedAt.After(lastFailed) {
				lastFailed = *t.FailedAt
				snap.RecentFailure = t.Error
			}
		case model.TaskStatusCancelled:
			snap.Cancelled++
		}
	}

	if finished := snap.Completed + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if snap.Total > 0 {
		snap.AvgAttempts = float64(attempts) / float64(snap.Total)
	}
	return snap
}
