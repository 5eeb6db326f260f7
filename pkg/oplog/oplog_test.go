package oplog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "oplog.db"))
	require.NoError(t, err)
	defer j.Close()

	j.Record("correction", "type=crash strategy=restart success=true")
	j.Record("restore", "snapshot=3 reason=manual")

	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, "restore", entries[0].Op)
	assert.Equal(t, "correction", entries[1].Op)
	assert.WithinDuration(t, time.Now(), entries[0].At, time.Minute)
}

func TestJournalRecentLimit(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "oplog.db"))
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 5; i++ {
		j.Record("op", "detail")
	}
	entries, err := j.Recent(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestJournalPurge(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "oplog.db"))
	require.NoError(t, err)
	defer j.Close()

	j.Record("old", "kept only briefly")
	j.Purge(-time.Second) // cutoff in the future sweeps every entry

	entries, err := j.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournalReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oplog.db")
	j, err := Open(path)
	require.NoError(t, err)
	j.Record("correction", "persisted")
	require.NoError(t, j.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()
	entries, err := j2.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "persisted", entries[0].Detail)
}

func TestNilJournalIsSafe(t *testing.T) {
	var j *Journal
	j.Record("op", "detail")
	j.Purge(time.Hour)
	entries, err := j.Recent(10)
	assert.NoError(t, err)
	assert.Nil(t, entries)
	assert.NoError(t, j.Close())
}
