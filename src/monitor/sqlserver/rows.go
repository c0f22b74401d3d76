package sqlserver

import "time"

// Scan targets for the DMV queries. Pointer fields tolerate NULLs that the
// DMVs return for queries without text or attributes.

type topQueryRow struct {
	QueryID        *string    `db:"query_id"`
	QueryText      *string    `db:"query_text"`
	DatabaseName   *string    `db:"database_name"`
	ExecutionCount *int64     `db:"execution_count"`
	TotalTimeMs    *float64   `db:"total_time_ms"`
	AvgTimeMs      *float64   `db:"avg_time_ms"`
	MinTimeMs      *float64   `db:"min_time_ms"`
	MaxTimeMs      *float64   `db:"max_time_ms"`
	RowsReturned   *int64     `db:"rows_returned"`
	LastExecutedAt *time.Time `db:"last_executed_at"`
}

type queryDetailsRow struct {
	QueryID            *string `db:"query_id"`
	QueryText          *string `db:"query_text"`
	ExecutionCount     *int64  `db:"execution_count"`
	TotalWorkerTime    *int64  `db:"total_worker_time"`
	TotalElapsedTime   *int64  `db:"total_elapsed_time"`
	TotalLogicalReads  *int64  `db:"total_logical_reads"`
	TotalPhysicalReads *int64  `db:"total_physical_reads"`
	TotalLogicalWrites *int64  `db:"total_logical_writes"`
	TotalRows          *int64  `db:"total_rows"`
}

type planNodeRow struct {
	NodeID           *int     `db:"node_id"`
	PhysicalOp       *string  `db:"physical_op"`
	LogicalOp        *string  `db:"logical_op"`
	EstimateRows     *float64 `db:"estimate_rows"`
	TotalSubtreeCost *float64 `db:"total_subtree_cost"`
	ObjectName       *string  `db:"object_name"`
}

type queryStatisticRow struct {
	SampleTime      *time.Time `db:"sample_time"`
	QueryID         *string    `db:"query_id"`
	ExecutionTimeMs *float64   `db:"execution_time_ms"`
	RowsReturned    *int64     `db:"rows_returned"`
	CPUTimeMs       *float64   `db:"cpu_time_ms"`
	LogicalReads    *int64     `db:"logical_reads"`
	PhysicalReads   *int64     `db:"physical_reads"`
}

type runningQueryRow struct {
	SessionID    *string    `db:"session_id"`
	QueryText    *string    `db:"query_text"`
	StartTime    *time.Time `db:"start_time"`
	DurationMs   *int64     `db:"duration_ms"`
	Status       *string    `db:"status"`
	UserName     *string    `db:"user_name"`
	DatabaseName *string    `db:"database_name"`
	CPUTimeMs    *float64   `db:"cpu_time_ms"`
	MemoryKB     *int64     `db:"memory_kb"`
}

type healthRow struct {
	UptimeSeconds     *int64   `db:"uptime_seconds"`
	ActiveConnections *int64   `db:"active_connections"`
	MaxConnections    *int64   `db:"max_connections"`
	TotalQueries      *int64   `db:"total_queries"`
	SlowQueries       *int64   `db:"slow_queries"`
	BlockedQueries    *int64   `db:"blocked_queries"`
	MemoryPercent     *float64 `db:"memory_percent"`
}

type volumeStatsRow struct {
	TotalBytes     *int64 `db:"total_bytes"`
	AvailableBytes *int64 `db:"available_bytes"`
}

type memoryStatsRow struct {
	TotalMemoryBytes *int64 `db:"total_memory_bytes"`
	UsedMemoryBytes  *int64 `db:"used_memory_bytes"`
}

type databaseSizeRow struct {
	DatabaseName *string `db:"database_name"`
	DataBytes    *int64  `db:"data_bytes"`
	LogBytes     *int64  `db:"log_bytes"`
}

type connectionStatsRow struct {
	ActiveConnections *int64 `db:"active_connections"`
	IdleConnections   *int64 `db:"idle_connections"`
	MaxConnections    *int64 `db:"max_connections"`
}

type waitStatRow struct {
	WaitType   *string  `db:"wait_type"`
	WaitTimeMs *float64 `db:"wait_time_ms"`
	WaitCount  *int64   `db:"wait_count"`
}

type configurationRow struct {
	Name  *string `db:"name"`
	Value *string `db:"value"`
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func intVal(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func floatVal(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func timeVal(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}
