package snapshot

import (
	"context"
	"fmt"
	"log"
	"time"

	"rollguard/pkg/model"
	"rollguard/pkg/store"
)

// Restore extracts the target snapshot's archive over the working tree and
// restarts the service. A fresh pre-change snapshot is always taken first; a
// RestoreRecord is written whether or not the restore succeeds. Restores are
// never retried automatically.
func (m *Manager) Restore(ctx context.Context, id uint, reason, detail, requestedBy string) error {
	target, ok, err := m.store.GetSnapshot(id)
	if err != nil {
		return fmt.Errorf("load snapshot %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("snapshot %d: %w", id, store.ErrNotFound)
	}

	rec := model.RestoreRecord{
		SnapshotID:  target.ID,
		Version:     target.Version,
		HealthScore: target.HealthScore,
		Reason:      reason,
		Detail:      detail,
		RequestedBy: requestedBy,
		StartedAt:   time.Now(),
	}

	restoreErr := m.restore(ctx, target)

	rec.FinishedAt = time.Now()
	rec.DurationMillis = rec.FinishedAt.Sub(rec.StartedAt).Milliseconds()
	rec.Success = restoreErr == nil
	if restoreErr != nil {
		rec.Error = restoreErr.Error()
	}
	if err := m.store.AppendRestore(&rec); err != nil {
		log.Printf("restore record write failed for snapshot %d: %v", target.ID, err)
	}

	if restoreErr != nil {
		if m.notify != nil {
			m.notify.Notify("restore failed",
				fmt.Sprintf("snapshot=%d reason=%s error=%v", target.ID, reason, restoreErr))
		}
		return restoreErr
	}

	now := time.Now()
	target.LastRestoredAt = &now
	target.RestoreCount++
	if err := m.store.UpdateSnapshot(&target); err != nil {
		log.Printf("restore count update failed for snapshot %d: %v", target.ID, err)
	}
	if policy, err := m.store.GetSnapshotPolicy(); err == nil && policy.NotifyOnRestore && m.notify != nil {
		m.notify.Notify("restore completed",
			fmt.Sprintf("snapshot=%d version=%s reason=%s requestedBy=%s", target.ID, target.Version, reason, requestedBy))
	}
	return nil
}

func (m *Manager) restore(ctx context.Context, target model.Snapshot) error {
	// Safety net before touching the tree. Never restore blind.
	pre, err := m.Create(ctx, model.CategoryPreChange, CreateOptions{
		Description: fmt.Sprintf("before restore of snapshot %d", target.ID),
	})
	if err != nil {
		return fmt.Errorf("pre-change snapshot: %w", err)
	}
	log.Printf("restore: pre-change snapshot id=%d taken before restoring snapshot %d", pre.ID, target.ID)

	if err := m.archiver.Extract(ctx, target.ArchivePath, m.cfg.WorkDir); err != nil {
		return fmt.Errorf("extract %s: %w", target.ArchivePath, err)
	}
	if err := m.deps.Resolve(ctx); err != nil {
		return fmt.Errorf("resolve dependencies: %w", err)
	}
	if err := m.super.Restart(ctx, m.cfg.ServiceName); err != nil {
		return fmt.Errorf("restart %s: %w", m.cfg.ServiceName, err)
	}
	return nil
}

// RestoreGolden restores the configured golden snapshot. Fails fast when none
// is configured.
func (m *Manager) RestoreGolden(ctx context.Context, requestedBy, detail string) error {
	policy, err := m.store.GetSnapshotPolicy()
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	if policy.GoldenSnapshotID == 0 {
		return ErrNoGolden
	}
	return m.Restore(ctx, policy.GoldenSnapshotID, model.ReasonRollbackRequested, detail, requestedBy)
}
