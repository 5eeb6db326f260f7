package store

import (
	"errors"

	"rollguard/pkg/model"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence layer for supervisor state. All snapshot
// metadata writes go through the snapshot manager; other components only
// append their own records.
type Store interface {
	SaveSnapshot(*model.Snapshot) error
	UpdateSnapshot(*model.Snapshot) error
	GetSnapshot(id uint) (model.Snapshot, bool, error)
	ListSnapshots(limit int) ([]model.Snapshot, error)
	ListSnapshotsByCategory(category string) ([]model.Snapshot, error)
	DeleteSnapshot(id uint) error

	AppendRestore(*model.RestoreRecord) error
	ListRestores(limit int) ([]model.RestoreRecord, error)

	AppendCorrection(*model.CorrectionAttempt) error
	ListCorrections(limit int) ([]model.CorrectionAttempt, error)

	AppendRun(*model.VerificationRun) error
	ListRuns(limit int) ([]model.VerificationRun, error)

	GetVerifierConfig() (model.VerifierConfig, error)
	SaveVerifierConfig(model.VerifierConfig) error
	GetSnapshotPolicy() (model.SnapshotPolicy, error)
	SaveSnapshotPolicy(model.SnapshotPolicy) error

	AppendAudit(model.AuditEntry) error
	ListAudit(limit int) ([]model.AuditEntry, error)
}
