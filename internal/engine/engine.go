// Package engine orchestrates the scheduled batch runs: daily signal
// aggregation and rule evaluation + delivery across the user population.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/dispatch"
	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/evaluator"
	"github.com/pennywise-app/nudge-engine/internal/metrics"
	"github.com/pennywise-app/nudge-engine/internal/render"
	"github.com/pennywise-app/nudge-engine/internal/repository"
	"github.com/pennywise-app/nudge-engine/internal/rules"
	"github.com/pennywise-app/nudge-engine/internal/signal"
)

// Config bounds the batch worker pools. Users are independent, so both runs
// parallelize per user with no shared mutable state during matching.
type Config struct {
	AggregationWorkers int
	EvaluationWorkers  int
}

// Engine runs the aggregation and evaluation batches.
type Engine struct {
	snapshots  repository.SnapshotRepository
	store      repository.NudgeStore
	aggregator *signal.Aggregator
	dispatcher *dispatch.Dispatcher
	config     Config
	log        *zap.Logger
	now        func() time.Time
}

// New creates an engine.
func New(snapshots repository.SnapshotRepository, store repository.NudgeStore,
	aggregator *signal.Aggregator, dispatcher *dispatch.Dispatcher, config Config, log *zap.Logger) *Engine {

	if config.AggregationWorkers <= 0 {
		config.AggregationWorkers = 16
	}
	if config.EvaluationWorkers <= 0 {
		config.EvaluationWorkers = 16
	}

	return &Engine{
		snapshots:  snapshots,
		store:      store,
		aggregator: aggregator,
		dispatcher: dispatcher,
		config:     config,
		log:        log,
		now:        time.Now,
	}
}

// AggregationReport summarizes one aggregation run.
type AggregationReport struct {
	Users     int
	Processed int64
	Skipped   int64
}

// EvaluationReport summarizes one evaluation + delivery run.
type EvaluationReport struct {
	Users      int
	Processed  int64
	Skipped    int64
	Delivered  int64
	Suppressed int64
	Dropped    int64
}

// RunAggregation computes the daily snapshot for every known user. A
// per-user failure is skipped and logged, never aborts the batch, and never
// writes a partial snapshot. Re-runs are idempotent per (user, date).
func (e *Engine) RunAggregation(ctx context.Context, date time.Time) (AggregationReport, error) {
	date = domain.DateOf(date)
	started := e.now()

	userIDs, err := e.store.ListUserIDs(ctx)
	if err != nil {
		return AggregationReport{}, fmt.Errorf("failed to list users for aggregation: %w", err)
	}

	report := AggregationReport{Users: len(userIDs)}
	e.log.Info("Aggregation run starting",
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("users", report.Users),
		zap.Int("workers", e.config.AggregationWorkers))

	work := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < e.config.AggregationWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range work {
				if _, err := e.aggregator.ComputeDailySignals(ctx, userID, date); err != nil {
					atomic.AddInt64(&report.Skipped, 1)
					metrics.UsersSkipped.WithLabelValues("aggregation", skipReason(err)).Inc()
					e.log.Warn("Skipping user in aggregation",
						zap.String("user_id", userID),
						zap.Error(err))
					continue
				}
				atomic.AddInt64(&report.Processed, 1)
				metrics.UsersProcessed.WithLabelValues("aggregation").Inc()
			}
		}()
	}

	e.feed(ctx, work, userIDs)
	wg.Wait()

	metrics.AggregationDuration.Observe(e.now().Sub(started).Seconds())
	e.log.Info("Aggregation run finished",
		zap.String("date", date.Format("2006-01-02")),
		zap.Int64("processed", report.Processed),
		zap.Int64("skipped", report.Skipped),
		zap.Duration("elapsed", e.now().Sub(started)))

	return report, ctx.Err()
}

// RunEvaluation evaluates every user's snapshot for the date against the
// active catalog and delivers at most one nudge per user for the cycle. An
// empty or unloadable catalog halts the batch; everything else is isolated
// per user or rule. A cancelled run leaves committed deliveries intact —
// the next run catches up because evaluation is idempotent per (user, cycle).
func (e *Engine) RunEvaluation(ctx context.Context, date time.Time) (EvaluationReport, error) {
	date = domain.DateOf(date)
	started := e.now()

	catalog, err := rules.LoadCatalog(ctx, e.store, e.log)
	if err != nil {
		// Fatal by design: nothing to evaluate means the run is misconfigured.
		return EvaluationReport{}, fmt.Errorf("failed to load rule catalog: %w", err)
	}

	userIDs, err := e.store.ListUserIDs(ctx)
	if err != nil {
		return EvaluationReport{}, fmt.Errorf("failed to list users for evaluation: %w", err)
	}

	report := EvaluationReport{Users: len(userIDs)}
	e.log.Info("Evaluation run starting",
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("users", report.Users),
		zap.Int("rules", len(catalog)),
		zap.Int("workers", e.config.EvaluationWorkers))

	work := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < e.config.EvaluationWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range work {
				e.evaluateUser(ctx, userID, date, catalog, &report)
			}
		}()
	}

	e.feed(ctx, work, userIDs)
	wg.Wait()

	metrics.EvaluationDuration.Observe(e.now().Sub(started).Seconds())
	e.log.Info("Evaluation run finished",
		zap.String("date", date.Format("2006-01-02")),
		zap.Int64("processed", report.Processed),
		zap.Int64("skipped", report.Skipped),
		zap.Int64("delivered", report.Delivered),
		zap.Int64("suppressed", report.Suppressed),
		zap.Int64("dropped", report.Dropped),
		zap.Duration("elapsed", e.now().Sub(started)))

	return report, ctx.Err()
}

// evaluateUser runs the match → admit → render → deliver chain for one user.
func (e *Engine) evaluateUser(ctx context.Context, userID string, date time.Time,
	catalog []rules.Rule, report *EvaluationReport) {

	// Evaluation only runs once the user's snapshot for the date exists;
	// existence, not wall clock, is the ordering guarantee.
	snapshot, err := e.snapshots.GetSnapshot(ctx, userID, date)
	if err != nil {
		atomic.AddInt64(&report.Skipped, 1)
		reason := "snapshot_error"
		if errors.Is(err, domain.ErrNotFound) {
			reason = "no_snapshot"
		}
		metrics.UsersSkipped.WithLabelValues("evaluation", reason).Inc()
		e.log.Warn("Skipping user in evaluation",
			zap.String("user_id", userID),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}

	prefs, err := e.store.GetPrefs(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		atomic.AddInt64(&report.Skipped, 1)
		metrics.UsersSkipped.WithLabelValues("evaluation", "prefs_error").Inc()
		e.log.Warn("Skipping user in evaluation",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	responsiveness, err := e.store.Responsiveness(ctx, userID)
	if err != nil {
		// The score is an optional signal; evaluate without it.
		e.log.Warn("Failed to load responsiveness, evaluating without it",
			zap.String("user_id", userID),
			zap.Error(err))
		responsiveness = nil
	}

	matches := evaluator.Evaluate(userID, snapshot, catalog, prefs.Traits, responsiveness, e.now().UTC())
	atomic.AddInt64(&report.Processed, 1)
	metrics.UsersProcessed.WithLabelValues("evaluation").Inc()

	if len(matches) == 0 {
		return
	}

	// Evaluate many, deliver at most one per cycle.
	top := matches[0]

	rendered, err := render.Render(top.Rule, snapshot, prefs.Traits)
	if err != nil {
		atomic.AddInt64(&report.Dropped, 1)
		metrics.RenderFailures.Inc()
		e.log.Error("Dropping candidate on render failure",
			zap.String("user_id", userID),
			zap.String("rule_id", top.Rule.RuleID),
			zap.Error(err))
		return
	}

	outcome, err := e.dispatcher.Deliver(ctx, top.Candidate, top.Rule, rendered, e.now().UTC())
	if err != nil {
		atomic.AddInt64(&report.Dropped, 1)
		e.log.Error("Delivery failed",
			zap.String("user_id", userID),
			zap.String("rule_id", top.Rule.RuleID),
			zap.Error(err))
		return
	}

	if outcome.Delivery != nil {
		atomic.AddInt64(&report.Delivered, 1)
	} else {
		atomic.AddInt64(&report.Suppressed, 1)
	}
}

// feed pushes user IDs to the workers, stopping early on cancellation.
func (e *Engine) feed(ctx context.Context, work chan<- string, userIDs []string) {
	defer close(work)
	for _, userID := range userIDs {
		select {
		case <-ctx.Done():
			return
		case work <- userID:
		}
	}
}

func skipReason(err error) string {
	if errors.Is(err, domain.ErrDataUnavailable) {
		return "data_unavailable"
	}
	return "error"
}
