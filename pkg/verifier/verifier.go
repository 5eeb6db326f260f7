// Package verifier runs the full test harness on a recurring schedule,
// records every run, and escalates to rollback when the failure rate crosses
// the configured threshold.
package verifier

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"rollguard/pkg/model"
	"rollguard/pkg/sched"
	"rollguard/pkg/snapshot"
	"rollguard/pkg/store"
)

const maxOutputBytes = 8192

// Verifier owns the scheduled verification loop.
type Verifier struct {
	store   store.Store
	snaps   *snapshot.Manager
	harness snapshot.Harness
	notify  snapshot.Notifier

	mu      sync.Mutex
	trigger *sched.Trigger
}

func New(st store.Store, snaps *snapshot.Manager, harness snapshot.Harness, notify snapshot.Notifier) *Verifier {
	return &Verifier{store: st, snaps: snaps, harness: harness, notify: notify}
}

// Start wires the recurring trigger from the stored config. Disabled config
// leaves the verifier idle.
func (v *Verifier) Start() error {
	cfg, err := v.store.GetVerifierConfig()
	if err != nil {
		return fmt.Errorf("load verifier config: %w", err)
	}
	if !cfg.Enabled {
		log.Printf("scheduled verification disabled")
		return nil
	}
	trigger, err := sched.New(cfg.Schedule, func() {
		v.RunNow(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.trigger != nil {
		v.trigger.Stop()
	}
	v.trigger = trigger
	trigger.Start()
	log.Printf("scheduled verification started: %s", cfg.Schedule)
	return nil
}

// Stop halts the recurring trigger.
func (v *Verifier) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.trigger != nil {
		v.trigger.Stop()
		v.trigger = nil
	}
}

// Restart reloads the stored config and reschedules. Used after config
// updates through the API.
func (v *Verifier) Restart() error {
	v.Stop()
	return v.Start()
}

// RunNow executes one verification cycle immediately, bypassing the
// schedule. The run is always recorded; errors never escape, so one bad run
// cannot stop the next scheduled one.
func (v *Verifier) RunNow(ctx context.Context) model.VerificationRun {
	cfg, err := v.store.GetVerifierConfig()
	if err != nil {
		log.Printf("verification: config read failed: %v", err)
		cfg = model.DefaultVerifierConfig()
	}

	run := model.VerificationRun{StartedAt: time.Now(), ActionTaken: model.ActionNone}
	v.execute(ctx, cfg, &run)
	run.FinishedAt = time.Now()
	run.DurationMillis = run.FinishedAt.Sub(run.StartedAt).Milliseconds()

	if err := v.store.AppendRun(&run); err != nil {
		log.Printf("verification run write failed: %v", err)
	}
	v.notifyRun(cfg, run)
	return run
}

func (v *Verifier) execute(ctx context.Context, cfg model.VerifierConfig, run *model.VerificationRun) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("verification run panicked: %v", r)
			run.Status = model.RunFailed
			run.Output = truncate(fmt.Sprintf("panic: %v", r))
		}
	}()

	pre, err := v.snaps.Create(ctx, model.CategoryPreChange, snapshot.CreateOptions{
		Description: "before scheduled verification",
	})
	if err != nil {
		log.Printf("verification: safety snapshot failed: %v", err)
		run.Status = model.RunFailed
		run.Output = truncate(fmt.Sprintf("safety snapshot failed: %v", err))
		return
	}
	run.ActionTaken = model.ActionBackupCreated

	report, err := v.harness.RunAll(ctx)
	if err != nil {
		log.Printf("verification: harness run failed: %v", err)
		run.Status = model.RunFailed
		run.Output = truncate(fmt.Sprintf("harness failed: %v", err))
		return
	}

	run.TotalTests = report.Total
	run.PassingTests = report.Passing
	run.FailingTests = report.Failing
	run.Output = truncate(report.Output)
	if report.Total > 0 {
		run.PassRate = float64(report.Passing) / float64(report.Total)
	}

	failureRate := 0.0
	if report.Total > 0 {
		failureRate = float64(report.Failing) / float64(report.Total)
	}

	switch {
	case report.Failing == 0:
		run.Status = model.RunSuccess
	case failureRate*100 <= cfg.FailureThresholdPercent:
		// Failures within tolerance: recorded, not escalated.
		run.Status = model.RunFailed
	default:
		run.Status = model.RunThresholdExceeded
		if cfg.AutoRollbackOnFailure {
			v.escalate(ctx, pre.ID, run)
		}
	}
}

// escalate rolls back to the most recent snapshot other than the safety
// snapshot just created. The target is resolved by id so that a failed
// safety-snapshot creation can never shift the selection.
func (v *Verifier) escalate(ctx context.Context, safetyID uint, run *model.VerificationRun) {
	items, err := v.snaps.List(5)
	if err != nil {
		log.Printf("verification: rollback target lookup failed: %v", err)
		run.ActionTaken = model.ActionRollbackFailed
		return
	}
	var targetID uint
	for _, s := range items {
		if s.ID != safetyID {
			targetID = s.ID
			break
		}
	}
	if targetID == 0 {
		log.Printf("verification: threshold exceeded but no prior snapshot to restore")
		run.ActionTaken = model.ActionNoBackup
		return
	}
	detail := fmt.Sprintf("failure rate %.1f%% exceeded threshold (%d/%d failing)",
		100*float64(run.FailingTests)/float64(run.TotalTests), run.FailingTests, run.TotalTests)
	if err := v.snaps.Restore(ctx, targetID, model.ReasonAutoCorrection, detail, "verifier"); err != nil {
		log.Printf("verification: rollback to snapshot %d failed: %v", targetID, err)
		run.ActionTaken = model.ActionRollbackFailed
		return
	}
	run.ActionTaken = model.ActionRollbackTriggered
}

func (v *Verifier) notifyRun(cfg model.VerifierConfig, run model.VerificationRun) {
	if v.notify == nil {
		return
	}
	switch run.Status {
	case model.RunSuccess:
		if cfg.NotifyOnSuccess {
			v.notify.Notify("verification passed",
				fmt.Sprintf("%d/%d tests passing", run.PassingTests, run.TotalTests))
		}
	case model.RunFailed, model.RunThresholdExceeded:
		if cfg.NotifyOnFailure {
			v.notify.Notify("verification "+run.Status,
				fmt.Sprintf("%d/%d failing, action=%s", run.FailingTests, run.TotalTests, run.ActionTaken))
		}
	}
}

func truncate(s string) string {
	if len(s) > maxOutputBytes {
		return s[:maxOutputBytes]
	}
	return s
}
