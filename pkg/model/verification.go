package model

import "time"

// Verification run statuses.
const (
	RunSuccess           = "success"
	RunFailed            = "failed"
	RunThresholdExceeded = "threshold-exceeded"
)

// Actions a verification run may take.
const (
	ActionNone              = "none"
	ActionBackupCreated     = "backup-created"
	ActionRollbackTriggered = "rollback-triggered"
	ActionRollbackFailed    = "rollback-failed"
	ActionNoBackup          = "no-backup-available"
)

// VerificationRun records one scheduled (or manual) verifier execution.
// Append-only.
type VerificationRun struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	DurationMillis int64     `json:"durationMillis"`
	TotalTests     int       `json:"totalTests"`
	PassingTests   int       `json:"passingTests"`
	FailingTests   int       `json:"failingTests"`
	PassRate       float64   `json:"passRate"`
	Output         string    `json:"output,omitempty"` // raw harness output, truncated
	Status         string    `gorm:"size:32" json:"status"`
	ActionTaken    string    `gorm:"size:32" json:"actionTaken"`
}
