/*
scheduler.go - Periodic incentive recalculation

PURPOSE:
  Policies are resolved against a contribution's reference date, and a new
  policy version may become effective while contributions are still in
  review. The scheduler periodically re-splits every open contribution so
  stored pools and shares follow the policy in force.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Only non-terminal contributions are touched; completed and rejected
    ones keep the split they were decided with
  - Individual failures (e.g. no policy for a type any more) are logged
    and kept in LastReport, they never stop the run

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecalculationScheduler(service, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RecalculateAll endpoint (manual run)
  - contribution/service.go: RecalculateAll
*/
package api

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/generic"
)

// SchedulerActor is recorded as the actor of scheduled recalculations.
const SchedulerActor generic.ActorID = "system:scheduler"

// RecalculationScheduler handles automated recalculation of open contributions.
type RecalculationScheduler struct {
	Service       *contribution.Service
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{} // nil while stopped
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
	last    *contribution.RecalcReport
}

// NewRecalculationScheduler creates a new scheduler.
func NewRecalculationScheduler(svc *contribution.Service, logger *slog.Logger) *RecalculationScheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RecalculationScheduler{
		Service:       svc,
		Logger:        logger.With("component", "scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *RecalculationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.CheckInterval <= 0 {
		rs.Logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker.C, rs.stop)

	rs.Logger.Info("started", "interval", rs.CheckInterval)
}

// Stop stops the scheduler and waits for a run in progress. The scheduler
// can be started again afterwards.
func (rs *RecalculationScheduler) Stop() {
	rs.mu.Lock()
	ticker, stop := rs.ticker, rs.stop
	rs.ticker, rs.stop = nil, nil
	rs.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		rs.wg.Wait()
		rs.Logger.Info("stopped")
	}
}

func (rs *RecalculationScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.recalculate(stop)

	for {
		select {
		case <-tick:
			rs.recalculate(stop)
		case <-stop:
			return
		}
	}
}

// recalculate runs one pass, cancelled when stop closes. A nil stop never
// cancels.
func (rs *RecalculationScheduler) recalculate(stop <-chan struct{}) *contribution.RecalcReport {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	report, err := rs.Service.RecalculateAll(ctx, nil, SchedulerActor)
	if err != nil {
		rs.Logger.Error("recalculation aborted", "error", err)
	}
	if report == nil {
		return nil
	}
	for id, msg := range report.Failed {
		rs.Logger.Warn("recalculation failed", "contribution", id, "error", msg)
	}

	rs.mu.Lock()
	rs.lastRun = start
	rs.last = report
	rs.mu.Unlock()

	if report.Checked > 0 {
		rs.Logger.Info("recalculation completed",
			"checked", report.Checked, "updated", report.Updated,
			"failed", len(report.Failed), "took", time.Since(start))
	}
	return report
}

// RunNow triggers an immediate run (for testing/admin).
func (rs *RecalculationScheduler) RunNow() *contribution.RecalcReport {
	rs.mu.Lock()
	stop := rs.stop
	rs.mu.Unlock()
	return rs.recalculate(stop)
}

// LastReport returns the result of the most recent run, nil before the first.
func (rs *RecalculationScheduler) LastReport() (*contribution.RecalcReport, time.Time) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.last, rs.lastRun
}

// GetNextRunTime returns when the next scheduled run will occur.
func (rs *RecalculationScheduler) GetNextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lastRun.IsZero() {
		return time.Now().Add(rs.CheckInterval)
	}
	return rs.lastRun.Add(rs.CheckInterval)
}
