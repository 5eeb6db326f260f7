package model

import "time"

// Problem types accepted by the corrector.
const (
	ProblemTestFailure        = "test-failure"
	ProblemCrash              = "crash"
	ProblemMemoryLeak         = "memory-leak"
	ProblemAPIError           = "api-error"
	ProblemHealthCheckFailure = "health-check-failure"
)

// Problem severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Remediation strategies.
const (
	StrategyRestart  = "restart"
	StrategyRollback = "rollback"
	StrategyError    = "error" // unhandled failure inside the cycle itself
)

// ProblemReport is a detected runtime problem handed to the corrector.
type ProblemReport struct {
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Severity    string            `json:"severity"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CorrectionAttempt records one full corrector cycle, finalized at the end
// and never mutated afterward.
type CorrectionAttempt struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	AttemptID         string    `gorm:"uniqueIndex;size:64" json:"attemptId"`
	DetectedAt        time.Time `json:"detectedAt"`
	ProblemType       string    `gorm:"size:32" json:"problemType"`
	Severity          string    `gorm:"size:16" json:"severity"`
	Description       string    `json:"description,omitempty"`
	SnapshotID        uint      `json:"snapshotId"` // pre-change safety snapshot
	Strategy          string    `gorm:"size:16" json:"strategy"`
	Applied           string    `json:"applied,omitempty"` // what was actually done
	Success           bool      `json:"success"`
	RollbackTriggered bool      `json:"rollbackTriggered"`
	RollbackSucceeded bool      `json:"rollbackSucceeded"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
	DurationMillis    int64     `json:"durationMillis"`
}

// CorrectionResult is returned to the caller of ReportProblem.
type CorrectionResult struct {
	Success           bool   `json:"success"`
	Strategy          string `json:"strategy"`
	Message           string `json:"message"`
	RollbackTriggered bool   `json:"rollbackTriggered"`
	AttemptID         string `json:"attemptId,omitempty"`
}
