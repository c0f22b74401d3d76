// Package mysql implements the monitoring contracts against the MySQL
// performance_schema and information_schema.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor"
)

// Monitor collects query telemetry and health snapshots from one MySQL
// target. Every call acquires a fresh connection and closes it on return.
type Monitor struct {
	source     monitor.TargetSource
	thresholds monitor.Thresholds
}

var (
	_ monitor.QueryMonitor  = (*Monitor)(nil)
	_ monitor.HealthMonitor = (*Monitor)(nil)
)

// NewMonitor creates a MySQL monitor reading connections from source.
func NewMonitor(source monitor.TargetSource, thresholds monitor.Thresholds) *Monitor {
	return &Monitor{source: source, thresholds: thresholds}
}

func queryFailure(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dberr.NewTimeoutError(op, err)
	}
	return dberr.NewEngineError(op, err)
}

type connectionQuerier interface {
	QueryContext(ctx context.Context, v interface{}, query string, queryArgs ...interface{}) error
}

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

// TopQueries returns the heaviest statement digests, ordered by descending
// average wait time with ties broken by descending execution count and then
// ascending digest.
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
			LastExecutedAt: timeVal(row.LastExecutedAt),
		})
	}
	return metrics, nil
}

type queryDetailsRow struct {
	QueryID                 *string  `db:"query_id"`
	QueryText               *string  `db:"query_text"`
	CountStar               *int64   `db:"count_star"`
	SumTimerWaitMs          *float64 `db:"sum_timer_wait_ms"`
	SumRowsSent             *int64   `db:"sum_rows_sent"`
	SumRowsExamined         *int64   `db:"sum_rows_examined"`
	SumNoIndexUsed          *int64   `db:"sum_no_index_used"`
	SumCreatedTmpDiskTables *int64   `db:"sum_created_tmp_disk_tables"`
}

// QueryDetails drills into one statement digest. A plan is attached when the
// digest text can be re-planned; digest texts carry ? placeholders for
// literals, so most cannot, and that absence does not fail the call.
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
			"count_star":                  float64(intVal(row.CountStar)),
			"sum_timer_wait_ms":           floatVal(row.SumTimerWaitMs),
			"sum_rows_sent":               float64(intVal(row.SumRowsSent)),
			"sum_rows_examined":           float64(intVal(row.SumRowsExamined)),
			"sum_no_index_used":           float64(intVal(row.SumNoIndexUsed)),
			"sum_created_tmp_disk_tables": float64(intVal(row.SumCreatedTmpDiskTables)),
		},
	}

	if plan, err := m.explainStoredText(ctx, conn, strVal(row.QueryText)); err == nil {
		details.Plan = plan
		details.EstimatedCost = plan.EstimatedCost
		details.TablesTouched = planTables(plan)
	}
	return details, nil
}

// ExecutionPlan re-plans the digest text for a digest and parses the JSON
// payload into an operator tree. Digest texts with ? placeholders cannot be
// re-planned and yield an EngineError.
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

type queryStatisticRow struct {
	SampleTime      *time.Time `db:"sample_time"`
	QueryID         *string    `db:"query_id"`
	ExecutionTimeMs *float64   `db:"execution_time_ms"`
	RowsReturned    *int64     `db:"rows_returned"`
}

// QueryStatistics returns one sample per digest whose last activity falls
// inside [from, to], ordered by timestamp. The digest table does not track
// read counters, so those stay zero.
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
	if err := conn.QueryContext(ctx, &rows, queryStatisticsQuery, from, to); err != nil {
		return nil, queryFailure("query statistics", err)
	}

	samples := make([]models.QueryStatistic, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, models.QueryStatistic{
			Timestamp:       timeVal(row.SampleTime),
			QueryID:         strVal(row.QueryID),
			ExecutionTimeMs: floatVal(row.ExecutionTimeMs),
			RowsReturned:    intVal(row.RowsReturned),
		})
	}
	return samples, nil
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

// RunningQueries snapshots the live processlist, excluding sleeping threads
// and this session.
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
	SlowQueries       *int64 `db:"slow_queries"`
	BlockedQueries    *int64 `db:"blocked_queries"`
}

// Health aggregates the global status counters and derives the discrete
// status. MySQL does not expose host CPU or disk pressure through SQL, so
// the status rests on connection saturation and uptime.
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
		SlowQueries:       intVal(row.SlowQueries),
		BlockedQueries:    intVal(row.BlockedQueries),
	}

	health.Status = monitor.DeriveStatus(health, m.thresholds)
	health.Issues = monitor.BuildIssues(health, m.thresholds)
	return &health, nil
}

type databaseSizeRow struct {
	DatabaseName *string `db:"database_name"`
	DataBytes    *int64  `db:"data_bytes"`
}

// DatabaseSize sums data and index length over the current schema. The
// binary log footprint is not visible through information_schema, so the log
// component stays zero.
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
		TotalBytes:   intVal(row.DataBytes),
		CollectedAt:  time.Now(),
	}, nil
}

type connectionStatsRow struct {
	ActiveConnections *int64 `db:"active_connections"`
	TotalConnections  *int64 `db:"total_connections"`
	MaxConnections    *int64 `db:"max_connections"`
}

// ConnectionStats splits Threads_connected into running and idle against
// max_connections.
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
		return nil, dberr.NewEngineError("connection stats", errors.New("status query returned no rows"))
	}
	row := rows[0]

	active := intVal(row.ActiveConnections)
	idle := intVal(row.TotalConnections) - active
	if idle < 0 {
		idle = 0
	}
	return &models.ConnectionStatistics{
		ActiveConnections: active,
		IdleConnections:   idle,
		MaxConnections:    intVal(row.MaxConnections),
		CollectedAt:       time.Now(),
	}, nil
}

type resourceUtilizationRow struct {
	MemoryTotalBytes *int64 `db:"memory_total_bytes"`
	MemoryUsedBytes  *int64 `db:"memory_used_bytes"`
	DiskUsedBytes    *int64 `db:"disk_used_bytes"`
}

// ResourceUtilization reports buffer pool allocation and usage plus the data
// footprint across all schemas. Host CPU is outside the engine's view.
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
		return nil, dberr.NewEngineError("resource utilization", errors.New("status query returned no rows"))
	}
	row := rows[0]

	return &models.ResourceUtilization{
		MemoryTotalBytes: intVal(row.MemoryTotalBytes),
		MemoryUsedBytes:  intVal(row.MemoryUsedBytes),
		DiskUsedBytes:    intVal(row.DiskUsedBytes),
		CollectedAt:      time.Now(),
	}, nil
}

const topWaitStatsCount = 20

type waitStatRow struct {
	WaitType   *string  `db:"wait_type"`
	WaitTimeMs *float64 `db:"wait_time_ms"`
	WaitCount  *int64   `db:"wait_count"`
}

// WaitStatistics returns the heaviest cumulative wait events since restart.
func (m *Monitor) WaitStatistics(ctx context.Context) ([]models.WaitStatistic, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []waitStatRow
	query := fmt.Sprintf(waitStatsQueryTemplate, topWaitStatsCount)
	if err := conn.QueryContext(ctx, &rows, query); err != nil {
		return nil, queryFailure("wait statistics", err)
	}

	collectedAt := time.Now()
	waits := make([]models.WaitStatistic, 0, len(rows))
	for _, row := range rows {
		waits = append(waits, models.WaitStatistic{
			WaitType:    strVal(row.WaitType),
			WaitTimeMs:  floatVal(row.WaitTimeMs),
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

// Configuration reads the global variables as name/value pairs.
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
