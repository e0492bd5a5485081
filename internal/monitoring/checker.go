package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker periodically evaluates task health under serve: failure rate over
// recently finished tasks and tasks stuck in processing.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a task health checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg}
}

// Interval returns the configured check interval, defaulting to five minutes.
func (c *Checker) Interval() time.Duration {
	if d := time.Duration(c.cfg.CheckIntervalSecs) * time.Second; d > 0 {
		return d
	}
	return defaultCheckInterval
}

// Run checks task health every Interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := c.Interval()
	zap.L().Info("monitoring: task health checks started",
		zap.Duration("interval", interval),
		zap.Int("lookback_mins", c.cfg.LookbackWindowMins),
		zap.Int("stuck_after_secs", c.cfg.StuckAfterSecs),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("monitoring: task health checks stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check takes one task snapshot, sends the alerts it triggers and returns
// how many were triggered.
func (c *Checker) Check(ctx context.Context) int {
	snap := c.collector.Collect(c.cfg.LookbackWindowMins)
	log := zap.L().With(
		zap.Int("tasks", snap.Total),
		zap.Int("failed", snap.Failed),
		zap.Int("stuck", len(snap.Stuck)),
	)

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: tasks healthy")
		return 0
	}
	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("monitoring: task health alerts raised",
		zap.Int("alerts", len(alerts)),
		zap.Int("sent", sent),
	)
	return len(alerts)
}
