// Package postgres implements the monitoring contracts against the
// PostgreSQL statistics collector and the pg_stat_statements extension.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor"
)

// Monitor collects query telemetry and health snapshots from one PostgreSQL
// target. Every call acquires a fresh connection and closes it on return.
type Monitor struct {
	source     monitor.TargetSource
	thresholds monitor.Thresholds
}

var (
	_ monitor.QueryMonitor  = (*Monitor)(nil)
	_ monitor.HealthMonitor = (*Monitor)(nil)
)

// NewMonitor creates a PostgreSQL monitor reading connections from source.
func NewMonitor(source monitor.TargetSource, thresholds monitor.Thresholds) *Monitor {
	return &Monitor{source: source, thresholds: thresholds}
}

func queryFailure(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dberr.NewTimeoutError(op, err)
	}
	return dberr.NewEngineError(op, err)
}

type topQueryRow struct {
	QueryID        *string  `db:"query_id"`
	QueryText      *string  `db:"query_text"`
	DatabaseName   *string  `db:"database_name"`
	ExecutionCount *int64   `db:"execution_count"`
	TotalTimeMs    *float64 `db:"total_time_ms"`
	AvgTimeMs      *float64 `db:"avg_time_ms"`
	MinTimeMs      *float64 `db:"min_time_ms"`
	MaxTimeMs      *float64 `db:"max_time_ms"`
	RowsReturned   *int64   `db:"rows_returned"`
}

// TopQueries returns the heaviest normalized statements from
// pg_stat_statements, ordered by descending mean execution time with ties
// broken by descending call count and then ascending query id. The extension
// does not track a last-execution timestamp, so that field stays zero.
func (m *Monitor) TopQueries(ctx context.Context, limit int) ([]models.QueryMetric, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []topQueryRow
	query := fmt.Sprintf(topQueriesQueryTemplate, monitor.ClampLimit(limit))
	if err := conn.QueryContext(ctx, &rows, query); err != nil {
		return nil, queryFailure("top queries", err)
	}

	metrics := make([]models.QueryMetric, 0, len(rows))
	for _, row := range rows {
		metrics = append(metrics, models.QueryMetric{
			QueryID:        strVal(row.QueryID),
			QueryText:      strVal(row.QueryText),
			DatabaseName:   strVal(row.DatabaseName),
			ExecutionCount: intVal(row.ExecutionCount),
			TotalTimeMs:    floatVal(row.TotalTimeMs),
			AverageTimeMs:  floatVal(row.AvgTimeMs),
			MinTimeMs:      floatVal(row.MinTimeMs),
			MaxTimeMs:      floatVal(row.MaxTimeMs),
			RowsReturned:   intVal(row.RowsReturned),
		})
	}
	return metrics, nil
}

type queryDetailsRow struct {
	QueryID         *string  `db:"query_id"`
	QueryText       *string  `db:"query_text"`
	Calls           *int64   `db:"calls"`
	TotalExecTime   *float64 `db:"total_exec_time"`
	Rows            *int64   `db:"rows"`
	SharedBlksHit   *int64   `db:"shared_blks_hit"`
	SharedBlksRead  *int64   `db:"shared_blks_read"`
	TempBlksRead    *int64   `db:"temp_blks_read"`
	TempBlksWritten *int64   `db:"temp_blks_written"`
}

// QueryDetails drills into one normalized statement by its queryid. A plan is
// attached when the stored text can be re-planned; normalized texts with bind
// placeholders cannot, and that absence does not fail the call.
func (m *Monitor) QueryDetails(ctx context.Context, queryID string) (*models.QueryDetails, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []queryDetailsRow
	if err := conn.QueryContext(ctx, &rows, queryDetailsQuery, queryID); err != nil {
		return nil, queryFailure("query details", err)
	}
	if len(rows) == 0 {
		return nil, dberr.NewNotFoundError("query", queryID)
	}
	row := rows[0]

	details := &models.QueryDetails{
		QueryID:        strVal(row.QueryID),
		QueryText:      strVal(row.QueryText),
		NormalizedText: strVal(row.QueryText),
		Statistics: map[string]float64{
			"calls":             float64(intVal(row.Calls)),
			"total_exec_time":   floatVal(row.TotalExecTime),
			"rows":              float64(intVal(row.Rows)),
			"shared_blks_hit":   float64(intVal(row.SharedBlksHit)),
			"shared_blks_read":  float64(intVal(row.SharedBlksRead)),
			"temp_blks_read":    float64(intVal(row.TempBlksRead)),
			"temp_blks_written": float64(intVal(row.TempBlksWritten)),
		},
	}

	if plan, err := m.explainStoredText(ctx, conn, strVal(row.QueryText)); err == nil {
		details.Plan = plan
		details.EstimatedCost = plan.EstimatedCost
		seen := make(map[string]bool)
		planRelations(plan.Root, seen, &details.TablesTouched)
	}
	return details, nil
}

// ExecutionPlan re-plans the stored statement text for a queryid and parses
// the JSON payload into an operator tree. Statements whose normalized text
// carries bind placeholders cannot be re-planned and yield an EngineError.
func (m *Monitor) ExecutionPlan(ctx context.Context, queryID string) (*models.ExecutionPlan, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var texts []string
	if err := conn.QueryContext(ctx, &texts, queryTextQuery, queryID); err != nil {
		return nil, queryFailure("execution plan", err)
	}
	if len(texts) == 0 {
		return nil, dberr.NewNotFoundError("query", queryID)
	}
	return m.explainStoredText(ctx, conn, texts[0])
}

func (m *Monitor) explainStoredText(ctx context.Context, conn connectionQuerier, sqlText string) (*models.ExecutionPlan, error) {
	var payloads []string
	if err := conn.QueryContext(ctx, &payloads, explainQueryPrefix+sqlText); err != nil {
		return nil, queryFailure("execution plan", err)
	}
	if len(payloads) == 0 {
		return nil, dberr.NewNotFoundError("execution plan", sqlText)
	}
	return parsePlanJSON(payloads[0])
}

type connectionQuerier interface {
	QueryContext(ctx context.Context, v interface{}, query string, queryArgs ...interface{}) error
}

type queryStatisticRow struct {
	SampleTime      *time.Time `db:"sample_time"`
	QueryID         *string    `db:"query_id"`
	ExecutionTimeMs *float64   `db:"execution_time_ms"`
	RowsReturned    *int64     `db:"rows_returned"`
	LogicalReads    *int64     `db:"logical_reads"`
	PhysicalReads   *int64     `db:"physical_reads"`
}

// QueryStatistics snapshots the cumulative pg_stat_statements counters. The
// collector keeps no history, so each call yields at most one sample per
// query, stamped with the collection time and filtered against [from, to].
func (m *Monitor) QueryStatistics(ctx context.Context, from, to time.Time) ([]models.QueryStatistic, error) {
	if err := monitor.ValidateRange(from, to); err != nil {
		return nil, err
	}

	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []queryStatisticRow
	if err := conn.QueryContext(ctx, &rows, queryStatisticsQuery); err != nil {
		return nil, queryFailure("query statistics", err)
	}

	samples := make([]models.QueryStatistic, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, models.QueryStatistic{
			Timestamp:       timeVal(row.SampleTime),
			QueryID:         strVal(row.QueryID),
			ExecutionTimeMs: floatVal(row.ExecutionTimeMs),
			RowsReturned:    intVal(row.RowsReturned),
			LogicalReads:    intVal(row.LogicalReads),
			PhysicalReads:   intVal(row.PhysicalReads),
		})
	}
	return monitor.FilterStatistics(samples, from, to), nil
}

type runningQueryRow struct {
	SessionID    *string    `db:"session_id"`
	QueryText    *string    `db:"query_text"`
	StartTime    *time.Time `db:"start_time"`
	DurationMs   *int64     `db:"duration_ms"`
	Status       *string    `db:"status"`
	UserName     *string    `db:"user_name"`
	DatabaseName *string    `db:"database_name"`
}

// RunningQueries snapshots the non-idle backends, excluding this session.
// PostgreSQL does not expose per-backend CPU or memory, so those stay zero.
func (m *Monitor) RunningQueries(ctx context.Context) ([]models.RunningQuery, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []runningQueryRow
	if err := conn.QueryContext(ctx, &rows, runningQueriesQuery); err != nil {
		return nil, queryFailure("running queries", err)
	}

	running := make([]models.RunningQuery, 0, len(rows))
	for _, row := range rows {
		running = append(running, models.RunningQuery{
			SessionID:    strVal(row.SessionID),
			QueryText:    strVal(row.QueryText),
			StartTime:    timeVal(row.StartTime),
			Duration:     time.Duration(intVal(row.DurationMs)) * time.Millisecond,
			Status:       strVal(row.Status),
			UserName:     strVal(row.UserName),
			DatabaseName: strVal(row.DatabaseName),
		})
	}
	return running, nil
}

type healthRow struct {
	UptimeSeconds     *int64 `db:"uptime_seconds"`
	ActiveConnections *int64 `db:"active_connections"`
	MaxConnections    *int64 `db:"max_connections"`
	TotalQueries      *int64 `db:"total_queries"`
	BlockedQueries    *int64 `db:"blocked_queries"`
}

// Health aggregates the collector's indicators and derives the discrete
// status. Host CPU, memory, and disk are not visible through SQL on
// PostgreSQL, so the status rests on connection saturation and uptime. The
// slow query count needs pg_stat_statements and is skipped when the
// extension is absent.
func (m *Monitor) Health(ctx context.Context) (*models.DatabaseHealth, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []healthRow
	if err := conn.QueryContext(ctx, &rows, healthQuery); err != nil {
		return nil, queryFailure("health", err)
	}
	if len(rows) == 0 {
		return nil, dberr.NewEngineError("health", errors.New("health query returned no rows"))
	}
	row := rows[0]

	health := models.DatabaseHealth{
		Uptime:            time.Duration(intVal(row.UptimeSeconds)) * time.Second,
		ActiveConnections: intVal(row.ActiveConnections),
		MaxConnections:    intVal(row.MaxConnections),
		TotalQueries:      intVal(row.TotalQueries),
		BlockedQueries:    intVal(row.BlockedQueries),
	}

	var slowRows []struct {
		SlowQueries *int64 `db:"slow_queries"`
	}
	if err := conn.QueryContext(ctx, &slowRows, slowQueryCountQuery); err == nil && len(slowRows) > 0 {
		health.SlowQueries = intVal(slowRows[0].SlowQueries)
	}

	health.Status = monitor.DeriveStatus(health, m.thresholds)
	health.Issues = monitor.BuildIssues(health, m.thresholds)
	return &health, nil
}

type databaseSizeRow struct {
	DatabaseName *string `db:"database_name"`
	DataBytes    *int64  `db:"data_bytes"`
	LogBytes     *int64  `db:"log_bytes"`
}

// DatabaseSize reports the current database size plus the WAL directory.
func (m *Monitor) DatabaseSize(ctx context.Context) (*models.DatabaseSize, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []databaseSizeRow
	if err := conn.QueryContext(ctx, &rows, databaseSizeQuery); err != nil {
		return nil, queryFailure("database size", err)
	}
	if len(rows) == 0 {
		return nil, dberr.NewEngineError("database size", errors.New("size query returned no rows"))
	}
	row := rows[0]

	return &models.DatabaseSize{
		DatabaseName: strVal(row.DatabaseName),
		DataBytes:    intVal(row.DataBytes),
		LogBytes:     intVal(row.LogBytes),
		TotalBytes:   intVal(row.DataBytes) + intVal(row.LogBytes),
		CollectedAt:  time.Now(),
	}, nil
}

type connectionStatsRow struct {
	ActiveConnections *int64 `db:"active_connections"`
	IdleConnections   *int64 `db:"idle_connections"`
	MaxConnections    *int64 `db:"max_connections"`
}

// ConnectionStats snapshots backend counts against max_connections.
func (m *Monitor) ConnectionStats(ctx context.Context) (*models.ConnectionStatistics, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []connectionStatsRow
	if err := conn.QueryContext(ctx, &rows, connectionStatsQuery); err != nil {
		return nil, queryFailure("connection stats", err)
	}
	if len(rows) == 0 {
		return nil, dberr.NewEngineError("connection stats", errors.New("activity query returned no rows"))
	}
	row := rows[0]

	return &models.ConnectionStatistics{
		ActiveConnections: intVal(row.ActiveConnections),
		IdleConnections:   intVal(row.IdleConnections),
		MaxConnections:    intVal(row.MaxConnections),
		CollectedAt:       time.Now(),
	}, nil
}

type resourceUtilizationRow struct {
	MemoryTotalBytes *int64 `db:"memory_total_bytes"`
	DiskUsedBytes    *int64 `db:"disk_used_bytes"`
}

// ResourceUtilization reports what the engine exposes through SQL: the
// shared buffer allocation and the database footprint on disk. Host-level
// CPU and memory consumption are outside the engine's view.
func (m *Monitor) ResourceUtilization(ctx context.Context) (*models.ResourceUtilization, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []resourceUtilizationRow
	if err := conn.QueryContext(ctx, &rows, resourceUtilizationQuery); err != nil {
		return nil, queryFailure("resource utilization", err)
	}
	if len(rows) == 0 {
		return nil, dberr.NewEngineError("resource utilization", errors.New("settings query returned no rows"))
	}
	row := rows[0]

	return &models.ResourceUtilization{
		MemoryTotalBytes: intVal(row.MemoryTotalBytes),
		DiskUsedBytes:    intVal(row.DiskUsedBytes),
		CollectedAt:      time.Now(),
	}, nil
}

type waitStatRow struct {
	WaitType  *string `db:"wait_type"`
	WaitCount *int64  `db:"wait_count"`
}

// WaitStatistics aggregates the wait events currently observed across
// backends. PostgreSQL does not accumulate wait durations, so only counts
// are populated.
func (m *Monitor) WaitStatistics(ctx context.Context) ([]models.WaitStatistic, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []waitStatRow
	if err := conn.QueryContext(ctx, &rows, waitStatsQuery); err != nil {
		return nil, queryFailure("wait statistics", err)
	}

	collectedAt := time.Now()
	waits := make([]models.WaitStatistic, 0, len(rows))
	for _, row := range rows {
		waits = append(waits, models.WaitStatistic{
			WaitType:    strVal(row.WaitType),
			WaitCount:   intVal(row.WaitCount),
			CollectedAt: collectedAt,
		})
	}
	return waits, nil
}

type configurationRow struct {
	Name  *string `db:"name"`
	Value *string `db:"value"`
}

// Configuration reads pg_settings as name/value pairs.
func (m *Monitor) Configuration(ctx context.Context) (map[string]string, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []configurationRow
	if err := conn.QueryContext(ctx, &rows, configurationQuery); err != nil {
		return nil, queryFailure("configuration", err)
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[strVal(row.Name)] = strVal(row.Value)
	}
	return settings, nil
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
