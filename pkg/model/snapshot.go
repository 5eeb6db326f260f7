package model

import "time"

// Snapshot categories.
const (
	CategoryScheduled = "scheduled"
	CategoryManual    = "manual"
	CategoryPreChange = "pre-change"
	CategorySystem    = "system"
)

// SystemState is a point-in-time health fingerprint captured with a snapshot.
// It is written once at capture time and never partially mutated.
type SystemState struct {
	TotalTests    int               `json:"totalTests"`
	PassingTests  int               `json:"passingTests"`
	FailingTests  int               `json:"failingTests"`
	PassRate      float64           `json:"passRate"`
	FileCount     int               `json:"fileCount"`
	LineCount     int               `json:"lineCount"`
	EndpointCount int               `json:"endpointCount"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
}

// Snapshot is an immutable record of system state plus an archive of the
// deployed tree. Only LastRestoredAt/RestoreCount and the golden flag are
// updated after creation; everything else is write-once.
type Snapshot struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time   `json:"createdAt"`
	Bucket         int         `json:"bucket"` // day-of-week 0-6, rolling slot key
	Version        string      `json:"version"`
	Category       string      `gorm:"index;size:32" json:"category"`
	IsGolden       bool        `json:"isGolden"`
	ArchivePath    string      `json:"archivePath"`
	SizeBytes      int64       `json:"sizeBytes"`
	State          SystemState `gorm:"serializer:json" json:"state"`
	HealthScore    int         `json:"healthScore"`
	HasErrors      bool        `json:"hasErrors"`
	Description    string      `json:"description,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	LastRestoredAt *time.Time  `json:"lastRestoredAt,omitempty"`
	RestoreCount   int         `json:"restoreCount"`
}
