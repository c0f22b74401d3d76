package models

import "time"

// QueryMetric is an aggregate statistics snapshot for one normalized query.
type QueryMetric struct {
	QueryID        string
	QueryText      string // normalized text
	DatabaseName   string
	ExecutionCount int64
	TotalTimeMs    float64
	AverageTimeMs  float64
	MinTimeMs      float64
	MaxTimeMs      float64
	RowsReturned   int64
	LastExecutedAt time.Time
}

// Valid reports whether the aggregate timings are internally consistent:
// MinTimeMs <= AverageTimeMs <= MaxTimeMs whenever the query has executed.
func (m QueryMetric) Valid() bool {
	if m.ExecutionCount <= 0 {
		return true
	}
	return m.MinTimeMs <= m.AverageTimeMs && m.AverageTimeMs <= m.MaxTimeMs
}

// QueryDetails is the full drill-down for a single tracked query.
type QueryDetails struct {
	QueryID        string
	QueryText      string // full text
	NormalizedText string
	// Statistics maps engine-specific statistic names to their values, e.g.
	// "total_logical_reads" for SQL Server or "shared_blks_hit" for Postgres.
	Statistics    map[string]float64
	TablesTouched []string
	EstimatedCost float64
	Plan          *ExecutionPlan // nil when no plan is available
}

// QueryStatistic is a single time-series sample for a query. Sequences of
// samples are ordered by Timestamp and append-only over a time range.
type QueryStatistic struct {
	Timestamp       time.Time
	QueryID         string
	ExecutionTimeMs float64
	RowsReturned    int64
	CPUTimeMs       float64
	LogicalReads    int64
	PhysicalReads   int64
}

// RunningQuery is a live session snapshot, valid only at observation time.
// Session identity does not persist across calls.
type RunningQuery struct {
	SessionID    string
	QueryText    string
	StartTime    time.Time
	Duration     time.Duration
	Status       string
	UserName     string
	DatabaseName string
	CPUTimeMs    float64
	MemoryKB     int64
}
