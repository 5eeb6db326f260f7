package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/pkg/model"
)

func TestMemorySnapshotCRUD(t *testing.T) {
	m := NewMemoryStore()

	s := model.Snapshot{Category: model.CategoryManual, CreatedAt: time.Now()}
	require.NoError(t, m.SaveSnapshot(&s))
	assert.Equal(t, uint(1), s.ID)

	got, ok, err := m.GetSnapshot(s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.CategoryManual, got.Category)

	got.Notes = "updated"
	require.NoError(t, m.UpdateSnapshot(&got))
	got2, _, _ := m.GetSnapshot(s.ID)
	assert.Equal(t, "updated", got2.Notes)

	require.NoError(t, m.DeleteSnapshot(s.ID))
	_, ok, err = m.GetSnapshot(s.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, m.DeleteSnapshot(s.ID), ErrNotFound)
	assert.ErrorIs(t, m.UpdateSnapshot(&got), ErrNotFound)
}

func TestMemoryListSnapshotsNewestFirst(t *testing.T) {
	m := NewMemoryStore()
	base := time.Now()
	for i := 0; i < 5; i++ {
		s := model.Snapshot{Category: model.CategoryScheduled, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, m.SaveSnapshot(&s))
	}

	items, err := m.ListSnapshots(3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, uint(5), items[0].ID)
	assert.Equal(t, uint(4), items[1].ID)
	assert.Equal(t, uint(3), items[2].ID)

	all, err := m.ListSnapshots(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryListSnapshotsSameInstantTiebreak(t *testing.T) {
	m := NewMemoryStore()
	at := time.Now()
	for i := 0; i < 3; i++ {
		s := model.Snapshot{Category: model.CategoryManual, CreatedAt: at}
		require.NoError(t, m.SaveSnapshot(&s))
	}
	items, err := m.ListSnapshots(0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	// Higher id wins when timestamps collide.
	assert.Equal(t, uint(3), items[0].ID)
	assert.Equal(t, uint(1), items[2].ID)
}

func TestMemoryListByCategory(t *testing.T) {
	m := NewMemoryStore()
	for _, c := range []string{model.CategoryManual, model.CategoryScheduled, model.CategoryManual} {
		s := model.Snapshot{Category: c, CreatedAt: time.Now()}
		require.NoError(t, m.SaveSnapshot(&s))
	}
	items, err := m.ListSnapshotsByCategory(model.CategoryManual)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	items, err = m.ListSnapshotsByCategory(model.CategoryPreChange)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryAppendOnlyLogs(t *testing.T) {
	m := NewMemoryStore()
	for i := 0; i < 4; i++ {
		require.NoError(t, m.AppendRestore(&model.RestoreRecord{SnapshotID: uint(i + 1)}))
	}
	items, err := m.ListRestores(2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Newest first.
	assert.Equal(t, uint(4), items[0].SnapshotID)
	assert.Equal(t, uint(3), items[1].SnapshotID)

	require.NoError(t, m.AppendCorrection(&model.CorrectionAttempt{AttemptID: "a-1"}))
	corrs, err := m.ListCorrections(0)
	require.NoError(t, err)
	require.Len(t, corrs, 1)
	assert.Equal(t, uint(1), corrs[0].ID)

	require.NoError(t, m.AppendRun(&model.VerificationRun{Status: model.RunSuccess}))
	runs, err := m.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, m.AppendAudit(model.AuditEntry{Actor: "operator", Action: "snapshot_create"}))
	audit, err := m.ListAudit(10)
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestMemoryConfigDefaultsAndRoundTrip(t *testing.T) {
	m := NewMemoryStore()

	cfg, err := m.GetVerifierConfig()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultVerifierConfig(), cfg)

	cfg.Schedule = "@every 6h"
	cfg.FailureThresholdPercent = 10
	require.NoError(t, m.SaveVerifierConfig(cfg))
	got, err := m.GetVerifierConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	policy, err := m.GetSnapshotPolicy()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSnapshotPolicy(), policy)

	policy.MaxRetained = 3
	policy.GoldenSnapshotID = 9
	require.NoError(t, m.SaveSnapshotPolicy(policy))
	gotPolicy, err := m.GetSnapshotPolicy()
	require.NoError(t, err)
	assert.Equal(t, policy, gotPolicy)
}
