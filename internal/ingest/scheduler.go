package ingest

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs SyncAll every 6 hours, per SPEC_FULL §5.6.
const DefaultSchedule = "0 0 */6 * * *"

// Scheduler drives periodic catalog sync on a cron expression. Manual
// Sync/SyncAll calls (e.g. from the CLI) run independently of the
// schedule and do not reset it.
type Scheduler struct {
	cron     *cron.Cron
	ingester *Ingester
	logger   *slog.Logger
}

// NewScheduler constructs a Scheduler and registers SyncAll against expr.
// expr uses the 6-field cron format (seconds included), matching
// robfig/cron/v3's WithSeconds parser.
func NewScheduler(ingester *Ingester, expr string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if expr == "" {
		expr = DefaultSchedule
	}
	c := cron.New(cron.WithSeconds())
	s := &Scheduler{cron: c, ingester: ingester, logger: logger}

	_, err := c.AddFunc(expr, func() {
		report := ingester.SyncAll(context.Background())
		logger.Info("scheduled catalog sync complete", "total_synced", report.Total, "providers", len(report.Reports))
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule without waiting; the returned context is done
// once any in-flight run has finished.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }
