// Package corrector reacts to reported runtime problems with a bounded,
// auditable remediation cycle: safety snapshot, strategy, apply, verify,
// rollback on failure, report.
package corrector

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rollguard/pkg/model"
	"rollguard/pkg/oplog"
	"rollguard/pkg/retry"
	"rollguard/pkg/snapshot"
	"rollguard/pkg/store"
)

// Corrector serializes itself process-wide: overlapping reports are rejected,
// not queued. Stacking remediation attempts against a moving target is
// unsafe.
type Corrector struct {
	store   store.Store
	snaps   *snapshot.Manager
	harness snapshot.Harness
	super   snapshot.Supervisor
	notify  snapshot.Notifier
	retrier *retry.Executor
	journal *oplog.Journal // optional, best-effort

	service       string
	stabilization time.Duration

	inFlight atomic.Bool
}

// Option tweaks corrector behaviour.
type Option func(*Corrector)

// WithStabilization overrides the post-apply settle delay before
// verification. Default 5s.
func WithStabilization(d time.Duration) Option {
	return func(c *Corrector) { c.stabilization = d }
}

// WithJournal attaches a local operation journal.
func WithJournal(j *oplog.Journal) Option {
	return func(c *Corrector) { c.journal = j }
}

func New(st store.Store, snaps *snapshot.Manager, harness snapshot.Harness,
	super snapshot.Supervisor, notify snapshot.Notifier, retrier *retry.Executor,
	service string, opts ...Option) *Corrector {
	c := &Corrector{
		store:         st,
		snaps:         snaps,
		harness:       harness,
		super:         super,
		notify:        notify,
		retrier:       retrier,
		service:       service,
		stabilization: 5 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ReportProblem runs one full correction cycle. Concurrent calls while a
// cycle is in flight return immediately without queueing.
func (c *Corrector) ReportProblem(ctx context.Context, report model.ProblemReport) model.CorrectionResult {
	if !c.inFlight.CompareAndSwap(false, true) {
		return model.CorrectionResult{
			Success:  false,
			Message:  "correction already in progress",
			Strategy: "",
		}
	}
	defer c.inFlight.Store(false)

	attempt := model.CorrectionAttempt{
		AttemptID:   uuid.NewString(),
		DetectedAt:  time.Now(),
		ProblemType: report.Type,
		Severity:    report.Severity,
		Description: report.Description,
		StartedAt:   time.Now(),
	}

	result := c.runCycle(ctx, report, &attempt)

	attempt.FinishedAt = time.Now()
	attempt.DurationMillis = attempt.FinishedAt.Sub(attempt.StartedAt).Milliseconds()
	if err := c.store.AppendCorrection(&attempt); err != nil {
		log.Printf("correction attempt write failed: %v", err)
	}
	c.journal.Record("correction", fmt.Sprintf("type=%s severity=%s strategy=%s success=%t",
		report.Type, report.Severity, result.Strategy, result.Success))
	c.report(report, result)
	result.AttemptID = attempt.AttemptID
	return result
}

// runCycle executes the state machine. Panics and step errors are converted
// to a failed result with strategy "error"; the supervising process stays up.
func (c *Corrector) runCycle(ctx context.Context, report model.ProblemReport, attempt *model.CorrectionAttempt) (result model.CorrectionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("correction cycle panicked: %v", r)
			attempt.Strategy = model.StrategyError
			attempt.Success = false
			result = model.CorrectionResult{
				Strategy: model.StrategyError,
				Message:  fmt.Sprintf("correction cycle panicked: %v", r),
			}
		}
	}()

	pre, err := c.snaps.Create(ctx, model.CategoryPreChange, snapshot.CreateOptions{
		Description: fmt.Sprintf("before correction of %s (%s)", report.Type, report.Severity),
	})
	if err != nil {
		attempt.Strategy = model.StrategyError
		return model.CorrectionResult{
			Strategy: model.StrategyError,
			Message:  fmt.Sprintf("safety snapshot failed: %v", err),
		}
	}
	attempt.SnapshotID = pre.ID

	strategy := ChooseStrategy(report.Type, report.Severity)
	attempt.Strategy = strategy

	applyErr := c.apply(ctx, strategy, attempt)

	verified := c.verify(ctx, report, applyErr)
	attempt.Success = verified

	if !verified && (report.Severity == model.SeverityHigh || report.Severity == model.SeverityCritical) {
		attempt.RollbackTriggered = true
		attempt.RollbackSucceeded = c.rollback(ctx, pre.ID, report)
	}

	msg := fmt.Sprintf("strategy=%s verified=%t", strategy, verified)
	if applyErr != nil {
		msg = fmt.Sprintf("%s applyError=%v", msg, applyErr)
	}
	return model.CorrectionResult{
		Success:           verified,
		Strategy:          strategy,
		Message:           msg,
		RollbackTriggered: attempt.RollbackTriggered,
	}
}

// ChooseStrategy maps (type, severity) to a remediation strategy
// deterministically. Unmapped combinations fall back to restart, the safe
// default.
func ChooseStrategy(problemType, severity string) string {
	if severity == model.SeverityCritical {
		switch problemType {
		case model.ProblemTestFailure, model.ProblemAPIError, model.ProblemHealthCheckFailure:
			return model.StrategyRollback
		}
	}
	return model.StrategyRestart
}

// apply executes the chosen strategy. Rollback is deferred to the
// post-verification step, which knows the target snapshot.
func (c *Corrector) apply(ctx context.Context, strategy string, attempt *model.CorrectionAttempt) error {
	switch strategy {
	case model.StrategyRestart:
		res := c.retrier.ExecuteWithRetry(ctx, "service-restart", func(ctx context.Context) error {
			return c.super.Restart(ctx, c.service)
		}, retry.Options{MaxAttempts: 3, InitialDelay: time.Second})
		if !res.Success {
			attempt.Applied = fmt.Sprintf("restart of %s failed after %d attempts", c.service, res.Attempts)
			return res.Err
		}
		attempt.Applied = fmt.Sprintf("restarted %s (attempts=%d)", c.service, res.Attempts)
		return nil
	case model.StrategyRollback:
		attempt.Applied = "rollback deferred to verification"
		return nil
	default:
		attempt.Applied = "no action"
		return nil
	}
}

// verify re-checks the reported problem after a stabilization delay.
// Test failures re-run the harness; other problem types are verified by the
// absence of a crash, so a clean apply counts as verified.
func (c *Corrector) verify(ctx context.Context, report model.ProblemReport, applyErr error) bool {
	if applyErr != nil {
		return false
	}
	if c.stabilization > 0 {
		t := time.NewTimer(c.stabilization)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
	switch report.Type {
	case model.ProblemTestFailure:
		rep, err := c.harness.RunAll(ctx)
		if err != nil {
			log.Printf("verification harness run failed: %v", err)
			return false
		}
		return rep.Failing == 0
	default:
		return true
	}
}

// rollback restores the most recent snapshot other than the safety snapshot
// just created. The target is resolved explicitly by id, never by list
// position alone.
func (c *Corrector) rollback(ctx context.Context, safetyID uint, report model.ProblemReport) bool {
	items, err := c.snaps.List(5)
	if err != nil {
		log.Printf("rollback target lookup failed: %v", err)
		return false
	}
	var targetID uint
	for _, s := range items {
		if s.ID != safetyID {
			targetID = s.ID
			break
		}
	}
	if targetID == 0 {
		log.Printf("rollback skipped: no snapshot prior to safety snapshot %d", safetyID)
		return false
	}
	detail := fmt.Sprintf("correction of %s (%s) did not verify", report.Type, report.Severity)
	if err := c.snaps.Restore(ctx, targetID, model.ReasonAutoCorrection, detail, "corrector"); err != nil {
		log.Printf("rollback to snapshot %d failed: %v", targetID, err)
		return false
	}
	return true
}

// report notifies operators of the cycle outcome. Failures here never affect
// the result.
func (c *Corrector) report(report model.ProblemReport, result model.CorrectionResult) {
	if c.notify == nil {
		return
	}
	title := "correction succeeded"
	if !result.Success {
		title = "correction failed"
	}
	if result.Strategy == model.StrategyError {
		title = "correction error"
	}
	c.notify.Notify(title, fmt.Sprintf("type=%s severity=%s %s", report.Type, report.Severity, result.Message))
}
