package store

import (
	"sort"
	"sync"

	"rollguard/pkg/model"
)

// MemoryStore is a simple in-memory implementation, intended for dev/demo and
// tests.
type MemoryStore struct {
	mu          sync.RWMutex
	snapshots   map[uint]model.Snapshot
	restores    []model.RestoreRecord
	corrections []model.CorrectionAttempt
	runs        []model.VerificationRun
	audit       []model.AuditEntry
	verifier    model.VerifierConfig
	policy      model.SnapshotPolicy
	nextSnap    uint
	nextRestore uint
	nextCorr    uint
	nextRun     uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[uint]model.Snapshot),
		verifier:  model.DefaultVerifierConfig(),
		policy:    model.DefaultSnapshotPolicy(),
	}
}

func (m *MemoryStore) SaveSnapshot(s *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSnap++
	s.ID = m.nextSnap
	m.snapshots[s.ID] = *s
	return nil
}

func (m *MemoryStore) UpdateSnapshot(s *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[s.ID]; !ok {
		return ErrNotFound
	}
	m.snapshots[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSnapshot(id uint) (model.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[id]
	return s, ok, nil
}

func (m *MemoryStore) ListSnapshots(limit int) ([]model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	sortSnapshots(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListSnapshotsByCategory(category string) ([]model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Snapshot{}
	for _, s := range m.snapshots {
		if s.Category == category {
			out = append(out, s)
		}
	}
	sortSnapshots(out)
	return out, nil
}

func (m *MemoryStore) DeleteSnapshot(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return ErrNotFound
	}
	delete(m.snapshots, id)
	return nil
}

// sortSnapshots orders newest first; IDs break ties for same-instant rows.
func sortSnapshots(items []model.Snapshot) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func (m *MemoryStore) AppendRestore(r *model.RestoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRestore++
	r.ID = m.nextRestore
	m.restores = append(m.restores, *r)
	return nil
}

func (m *MemoryStore) ListRestores(limit int) ([]model.RestoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.restores, limit), nil
}

func (m *MemoryStore) AppendCorrection(c *model.CorrectionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCorr++
	c.ID = m.nextCorr
	m.corrections = append(m.corrections, *c)
	return nil
}

func (m *MemoryStore) ListCorrections(limit int) ([]model.CorrectionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.corrections, limit), nil
}

func (m *MemoryStore) AppendRun(r *model.VerificationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRun++
	r.ID = m.nextRun
	m.runs = append(m.runs, *r)
	return nil
}

func (m *MemoryStore) ListRuns(limit int) ([]model.VerificationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.runs, limit), nil
}

func (m *MemoryStore) GetVerifierConfig() (model.VerifierConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.verifier, nil
}

func (m *MemoryStore) SaveVerifierConfig(cfg model.VerifierConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifier = cfg
	return nil
}

func (m *MemoryStore) GetSnapshotPolicy() (model.SnapshotPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy, nil
}

func (m *MemoryStore) SaveSnapshotPolicy(p model.SnapshotPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
	return nil
}

func (m *MemoryStore) AppendAudit(e model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *MemoryStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.audit, limit), nil
}

// Ping reports readiness for health/info endpoints.
func (m *MemoryStore) Ping() error { return nil }

// lastN returns the most recent entries, newest first.
func lastN[T any](items []T, limit int) []T {
	n := len(items)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]T, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, items[i])
	}
	return out
}
