package model

import "time"

// Restore reasons.
const (
	ReasonManual            = "manual"
	ReasonAutoCorrection    = "auto-correction-failed"
	ReasonCriticalError     = "critical-error"
	ReasonRollbackRequested = "rollback-requested"
)

// RestoreRecord is an append-only audit entry for one restore attempt.
// Written exactly once per attempt, success or not.
type RestoreRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SnapshotID     uint      `gorm:"index" json:"snapshotId"`
	Version        string    `json:"version"`     // target version prior to restore
	HealthScore    int       `json:"healthScore"` // target score prior to restore
	Reason         string    `gorm:"size:64" json:"reason"`
	Detail         string    `json:"detail,omitempty"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	RequestedBy    string    `gorm:"size:64" json:"requestedBy"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	DurationMillis int64     `json:"durationMillis"`
}
