/*
scheduler.go - Automated monthly report scheduler

PURPOSE:
  Closes each month by recomputing the office and professional rankings of
  the previous calendar month and recording the outcome as a report run.
  The runs back GET /api/reports/runs.

DESIGN:
  - robfig/cron drives the schedule (default "0 3 1 * *", 03:00 on day 1)
  - Start also runs one catch-up pass so a missed month is filled in
  - Kinds whose period already has a completed run are skipped
  - Every attempt is recorded: running, then completed or failed

CONFIGURATION:
  - Spec:    cron expression, five fields (LOYALTY_REPORT_CRON)
  - Enabled: whether the scheduler is active (LOYALTY_SCHEDULER_ENABLED)
  - Timeout: bound on one pass (default: 5 minutes)

USAGE:
  scheduler := NewReportScheduler(store, handler, cfg.ReportCron)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ListReportRuns endpoint
  - generic/recompute.go: Recomputer
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/loyalty-engine/generic"
	"github.com/warp/loyalty-engine/logger"
	"github.com/warp/loyalty-engine/office"
	"github.com/warp/loyalty-engine/professional"
	"github.com/warp/loyalty-engine/store/sqlite"
)

const (
	DefaultReportCron = "0 3 1 * *"

	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ReportScheduler handles the automated month-end reports.
type ReportScheduler struct {
	Store   *sqlite.Store
	Handler *Handler
	Spec    string
	Enabled bool
	Timeout time.Duration

	cron *cron.Cron
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// NewReportScheduler creates a new scheduler.
func NewReportScheduler(store *sqlite.Store, handler *Handler, spec string) *ReportScheduler {
	if spec == "" {
		spec = DefaultReportCron
	}
	return &ReportScheduler{
		Store:   store,
		Handler: handler,
		Spec:    spec,
		Enabled: true,
		Timeout: 5 * time.Minute,
	}
}

func (rs *ReportScheduler) log() *logger.Logger {
	return rs.Handler.Logger
}

// Start registers the cron job, starts it and runs one catch-up pass.
func (rs *ReportScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	ctx := rs.log().WithField(context.Background(), "component", "scheduler")
	if !rs.Enabled {
		rs.log().Info(ctx, "scheduler disabled, not starting")
		return nil
	}
	if rs.cron != nil {
		return nil
	}

	clog := cronLogger{log: rs.log(), ctx: ctx}
	c := cron.New(
		cron.WithLocation(rs.Handler.Location),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		cron.WithLogger(clog),
	)
	if _, err := c.AddFunc(rs.Spec, func() { rs.RunNow(ctx) }); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", rs.Spec, err)
	}
	c.Start()
	rs.cron = c

	rs.wg.Add(1)
	go func() {
		defer rs.wg.Done()
		rs.RunNow(ctx)
	}()

	rs.log().Info(rs.log().WithField(ctx, "spec", rs.Spec), "scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (rs *ReportScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cron == nil {
		return
	}
	<-rs.cron.Stop().Done()
	rs.wg.Wait()
	rs.cron = nil
	rs.log().Info(context.Background(), "scheduler stopped")
}

// RunNow closes the month before the current one.
func (rs *ReportScheduler) RunNow(ctx context.Context) {
	rs.RunPeriod(ctx, generic.PreviousMonth(rs.Handler.now()))
}

// RunPeriod records one run per actor kind for period, skipping kinds that
// already completed. It returns how many runs were processed and skipped.
func (rs *ReportScheduler) RunPeriod(ctx context.Context, period generic.Period) (processed, skipped int) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout())
	defer cancel()
	ctx = rs.log().WithField(ctx, "period", period.String())

	jobs := []struct {
		kind    generic.ActorKind
		reports actorReports
	}{
		{office.Kind{}, rs.Handler.Offices},
		{professional.Kind{}, rs.Handler.Professionals},
	}

	for _, job := range jobs {
		kindID := job.kind.KindID()
		kctx := rs.log().WithField(ctx, "kind", kindID)

		done, err := rs.Store.IsReportRunComplete(kctx, kindID, period)
		if err != nil {
			rs.log().Error(kctx, "failed to check report run status", err)
			continue
		}
		if done {
			skipped++
			continue
		}

		if err := rs.processReport(kctx, kindID, job.reports, period); err != nil {
			rs.log().Error(kctx, "scheduled report failed", err)
			continue
		}
		processed++
	}

	if processed > 0 || skipped > 0 {
		rs.log().Info(rs.log().WithFields(ctx, map[string]any{
			"processed": processed,
			"skipped":   skipped,
		}), "scheduled reports finished")
	}
	return processed, skipped
}

func (rs *ReportScheduler) processReport(ctx context.Context, kindID string, reports actorReports, period generic.Period) error {
	startTime := time.Now()
	run := sqlite.ReportRun{
		Kind:        kindID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Status:      RunRunning,
		StartedAt:   &startTime,
		CreatedAt:   startTime,
	}
	if err := rs.Store.SaveReportRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}

	report, err := reports.Ranking(ctx, period, false)
	completedTime := time.Now()
	run.CompletedAt = &completedTime
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		if saveErr := rs.Store.SaveReportRun(ctx, run); saveErr != nil {
			rs.log().Error(ctx, "failed to record failed run", saveErr)
		}
		return err
	}

	run.Status = RunCompleted
	run.Actors = len(report.Rows)
	run.Points = report.Total.Points
	run.IndexedValue = report.Total.IndexedValue
	run.TierVersion = report.TierVersion
	run.Issues = report.ConfigurationIssues
	if err := rs.Store.SaveReportRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update run record: %w", err)
	}

	rs.log().Info(rs.log().WithFields(ctx, map[string]any{
		"actors": run.Actors,
		"points": run.Points,
	}), "scheduled report completed")
	return nil
}

func (rs *ReportScheduler) timeout() time.Duration {
	if rs.Timeout <= 0 {
		return 5 * time.Minute
	}
	return rs.Timeout
}

// NextRun returns when the cron job fires next, or the zero time when stopped.
func (rs *ReportScheduler) NextRun() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cron == nil {
		return time.Time{}
	}
	entries := rs.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
	ctx context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(l.with(keysAndValues), "cron: "+msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(l.with(keysAndValues), "cron: "+msg, err)
}

func (l cronLogger) with(keysAndValues []interface{}) context.Context {
	if len(keysAndValues) < 2 {
		return l.ctx
	}
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.log.WithFields(l.ctx, fields)
}
