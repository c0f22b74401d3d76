package models

import "time"

// IssueSeverity ranks a HealthIssue.
type IssueSeverity string

const (
	SeverityInfo     IssueSeverity = "Info"
	SeverityWarning  IssueSeverity = "Warning"
	SeverityCritical IssueSeverity = "Critical"
)

// HealthIssue describes one observed problem with a recommendation.
type HealthIssue struct {
	Category       string
	Description    string
	Severity       IssueSeverity
	Recommendation string
}

// DatabaseHealth aggregates the engine's health indicators at one instant.
// Status is derived from the indicators by the monitor layer; adapters never
// set it independently of them.
type DatabaseHealth struct {
	Status             HealthStatus
	Uptime             time.Duration
	CPUPercent         float64
	MemoryPercent      float64
	DiskPercent        float64
	ActiveConnections  int64
	MaxConnections     int64
	TotalQueries       int64
	SlowQueries        int64
	BlockedQueries     int64
	Issues             []HealthIssue
}

// ConnectionUsagePercent is the share of the connection limit in use.
// Derived, never stored, so it cannot disagree with its inputs.
func (h DatabaseHealth) ConnectionUsagePercent() float64 {
	if h.MaxConnections <= 0 {
		return 0
	}
	return float64(h.ActiveConnections) / float64(h.MaxConnections) * 100
}
