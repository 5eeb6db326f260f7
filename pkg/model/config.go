package model

// VerifierConfig is the single-row configuration for the scheduled verifier.
type VerifierConfig struct {
	ID                      uint    `gorm:"primaryKey" json:"-"`
	Enabled                 bool    `json:"enabled"`
	Schedule                string  `gorm:"size:64" json:"schedule"` // e.g. "02:00" or "@every 6h"
	FailureThresholdPercent float64 `json:"failureThresholdPercent"`
	AutoRollbackOnFailure   bool    `json:"autoRollbackOnFailure"`
	NotifyOnSuccess         bool    `json:"notifyOnSuccess"`
	NotifyOnFailure         bool    `json:"notifyOnFailure"`
}

// DefaultVerifierConfig returns the configuration used until an operator
// saves one.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		Enabled:                 true,
		Schedule:                "02:00",
		FailureThresholdPercent: 5,
		AutoRollbackOnFailure:   true,
		NotifyOnFailure:         true,
	}
}

// SnapshotPolicy is the single-row retention/golden configuration for the
// snapshot manager.
type SnapshotPolicy struct {
	ID               uint `gorm:"primaryKey" json:"-"`
	MaxRetained      int  `json:"maxRetained"`
	GoldenSnapshotID uint `json:"goldenSnapshotId"` // 0 = none configured
	NotifyOnCreate   bool `json:"notifyOnCreate"`
	NotifyOnRestore  bool `json:"notifyOnRestore"`
}

// DefaultSnapshotPolicy keeps seven snapshots per category, one rolling week.
func DefaultSnapshotPolicy() SnapshotPolicy {
	return SnapshotPolicy{MaxRetained: 7, NotifyOnRestore: true}
}
