// Package snapshot produces, retains, and restores versioned archives of the
// supervised system tree, and computes the health score attached to each one.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rollguard/pkg/model"
	"rollguard/pkg/store"
)

// ErrNoGolden is returned by RestoreGolden when no golden snapshot is
// configured.
var ErrNoGolden = errors.New("no golden snapshot configured")

// TestReport is the parsed outcome of a full harness run.
type TestReport struct {
	Total   int
	Passing int
	Failing int
	Output  string
}

// Archiver packs and unpacks system trees.
type Archiver interface {
	Archive(ctx context.Context, sourceTree, destination string, exclude []string) (int64, error)
	Extract(ctx context.Context, archivePath, destinationTree string) error
}

// Harness runs the full test suite and reports parsed counts.
type Harness interface {
	RunAll(ctx context.Context) (TestReport, error)
}

// Supervisor restarts the managed service.
type Supervisor interface {
	Restart(ctx context.Context, service string) error
}

// VersionSource resolves the current deployed version identifier.
// Implementations return "unknown" when unavailable.
type VersionSource interface {
	CurrentVersion() string
}

// DepResolver re-resolves runtime dependencies after an extract.
type DepResolver interface {
	Resolve(ctx context.Context) error
}

// Inspector measures the source tree for the SystemState fingerprint.
type Inspector interface {
	CountSource() (files, lines int, err error)
	CountEndpoints() (int, error)
	Dependencies() (map[string]string, error)
}

// Notifier informs operators. Fire-and-forget; implementations never block
// or fail the caller.
type Notifier interface {
	Notify(title, body string)
}

// Config carries the paths and names the manager operates on.
type Config struct {
	WorkDir     string   // the deployed tree being snapshotted
	ArchiveDir  string   // where archives land; preserved across restores
	Excludes    []string // patterns excluded from archives (caches, archives, build output)
	ServiceName string   // process supervisor unit to restart after a restore
}

// Manager owns all snapshot metadata writes. Creation and the retention sweep
// serialize on an internal mutex so a sweep never observes a row still being
// written.
type Manager struct {
	store     store.Store
	archiver  Archiver
	harness   Harness
	super     Supervisor
	version   VersionSource
	deps      DepResolver
	inspector Inspector
	notify    Notifier
	cfg       Config

	mu sync.Mutex
}

func NewManager(st store.Store, archiver Archiver, harness Harness, super Supervisor,
	version VersionSource, deps DepResolver, inspector Inspector, notify Notifier, cfg Config) *Manager {
	return &Manager{
		store:     st,
		archiver:  archiver,
		harness:   harness,
		super:     super,
		version:   version,
		deps:      deps,
		inspector: inspector,
		notify:    notify,
		cfg:       cfg,
	}
}

// CreateOptions are the optional fields of a snapshot creation.
type CreateOptions struct {
	Description string
	Notes       string
	MarkGolden  bool
}

// Create captures the current system state, archives the tree, persists the
// snapshot, and runs the retention sweep.
func (m *Manager) Create(ctx context.Context, category string, opts CreateOptions) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	state, hasErrors := m.captureState(ctx)
	snap := model.Snapshot{
		CreatedAt:   now,
		Bucket:      int(now.Weekday()),
		Version:     m.version.CurrentVersion(),
		Category:    category,
		State:       state,
		HealthScore: HealthScore(state),
		HasErrors:   hasErrors,
		Description: opts.Description,
		Notes:       opts.Notes,
	}

	dest := filepath.Join(m.cfg.ArchiveDir, fmt.Sprintf("snap-b%d-%d.tar.gz", snap.Bucket, now.UnixNano()))
	size, err := m.archiver.Archive(ctx, m.cfg.WorkDir, dest, m.cfg.Excludes)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("archive %s: %w", m.cfg.WorkDir, err)
	}
	snap.ArchivePath = dest
	snap.SizeBytes = size

	if err := m.store.SaveSnapshot(&snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("persist snapshot: %w", err)
	}

	if opts.MarkGolden {
		if err := m.markGoldenLocked(&snap); err != nil {
			log.Printf("mark golden failed for snapshot %d: %v", snap.ID, err)
		}
	}

	m.sweepLocked()

	if policy, err := m.store.GetSnapshotPolicy(); err == nil && policy.NotifyOnCreate && m.notify != nil {
		m.notify.Notify("snapshot created",
			fmt.Sprintf("id=%d category=%s score=%d version=%s", snap.ID, category, snap.HealthScore, snap.Version))
	}
	return snap, nil
}

// MarkGolden flags an existing snapshot as the protected baseline.
func (m *Manager) MarkGolden(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok, err := m.store.GetSnapshot(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot %d: %w", id, store.ErrNotFound)
	}
	return m.markGoldenLocked(&snap)
}

// markGoldenLocked flags snap and records it as the active golden in the
// policy row. Prior golden rows keep their flag; the sweep skips any flagged
// row.
func (m *Manager) markGoldenLocked(snap *model.Snapshot) error {
	snap.IsGolden = true
	if err := m.store.UpdateSnapshot(snap); err != nil {
		return err
	}
	policy, err := m.store.GetSnapshotPolicy()
	if err != nil {
		return err
	}
	policy.GoldenSnapshotID = snap.ID
	return m.store.SaveSnapshotPolicy(policy)
}

// List returns snapshots newest first, at most limit entries.
func (m *Manager) List(limit int) ([]model.Snapshot, error) {
	return m.store.ListSnapshots(limit)
}

// captureState probes the system best-effort. A failed probe zeroes its
// fields and logs rather than aborting the snapshot.
func (m *Manager) captureState(ctx context.Context) (model.SystemState, bool) {
	var state model.SystemState
	hasErrors := false

	report, err := m.harness.RunAll(ctx)
	if err != nil {
		log.Printf("state capture: harness run failed: %v", err)
		hasErrors = true
	} else {
		state.TotalTests = report.Total
		state.PassingTests = report.Passing
		state.FailingTests = report.Failing
		if report.Total > 0 {
			state.PassRate = float64(report.Passing) / float64(report.Total)
		}
		hasErrors = report.Failing > 0
	}

	if files, lines, err := m.inspector.CountSource(); err != nil {
		log.Printf("state capture: source count failed: %v", err)
	} else {
		state.FileCount = files
		state.LineCount = lines
	}
	if n, err := m.inspector.CountEndpoints(); err != nil {
		log.Printf("state capture: endpoint count failed: %v", err)
	} else {
		state.EndpointCount = n
	}
	if deps, err := m.inspector.Dependencies(); err != nil {
		log.Printf("state capture: dependency probe failed: %v", err)
	} else {
		state.Dependencies = deps
	}
	return state, hasErrors
}

// sweepLocked enforces rolling retention per category: newest maxRetained
// survive, golden rows are never deleted.
func (m *Manager) sweepLocked() {
	policy, err := m.store.GetSnapshotPolicy()
	if err != nil {
		log.Printf("retention sweep: policy read failed: %v", err)
		return
	}
	if policy.MaxRetained <= 0 {
		return
	}
	for _, category := range []string{model.CategoryScheduled, model.CategoryManual, model.CategoryPreChange, model.CategorySystem} {
		items, err := m.store.ListSnapshotsByCategory(category)
		if err != nil {
			log.Printf("retention sweep: list %s failed: %v", category, err)
			continue
		}
		for i, snap := range items {
			if i < policy.MaxRetained {
				continue
			}
			if snap.IsGolden {
				log.Printf("retention sweep: skipping golden snapshot id=%d category=%s", snap.ID, category)
				continue
			}
			m.deleteSnapshot(snap)
		}
	}
}

// deleteSnapshot removes the archive first, tolerating a missing file, then
// the metadata row.
func (m *Manager) deleteSnapshot(snap model.Snapshot) {
	if snap.ArchivePath != "" {
		if err := os.Remove(snap.ArchivePath); err != nil && !os.IsNotExist(err) {
			log.Printf("retention sweep: remove archive %s failed: %v", snap.ArchivePath, err)
		}
	}
	if err := m.store.DeleteSnapshot(snap.ID); err != nil {
		log.Printf("retention sweep: delete snapshot %d failed: %v", snap.ID, err)
		return
	}
	log.Printf("retention sweep: deleted snapshot id=%d category=%s createdAt=%s", snap.ID, snap.Category, snap.CreatedAt.Format(time.RFC3339))
}

// HealthScore derives the deterministic 0-100 score from a state fingerprint:
// 50 points scaled by pass rate, 30 in tiers by failing count, 20 by suite
// breadth. Rewards both correctness and coverage of the suite.
func HealthScore(st model.SystemState) int {
	score := 0
	if st.TotalTests > 0 {
		score += int(50 * float64(st.PassingTests) / float64(st.TotalTests))
	}
	switch {
	case st.FailingTests == 0:
		score += 30
	case st.FailingTests <= 2:
		score += 20
	case st.FailingTests <= 5:
		score += 10
	}
	switch {
	case st.TotalTests >= 100:
		score += 20
	case st.TotalTests >= 50:
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}
