// Package oracle implements the monitoring contracts against the Oracle v$
// performance views.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor"
)

// Monitor collects query telemetry and health snapshots from one Oracle
// target. Every call acquires a fresh connection and closes it on return.
// Most views it reads need SELECT_CATALOG_ROLE or an equivalent grant.
type Monitor struct {
	source     monitor.TargetSource
	thresholds monitor.Thresholds
}

var (
	_ monitor.QueryMonitor  = (*Monitor)(nil)
	_ monitor.HealthMonitor = (*Monitor)(nil)
)

// NewMonitor creates an Oracle monitor reading connections from source.
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

// TopQueries returns the heaviest cursors from v$sqlarea, ordered by
// descending average elapsed time with ties broken by descending execution
// count and then ascending sql_id.
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
	QueryID       *string  `db:"query_id"`
	QueryText     *string  `db:"query_text"`
	Executions    *int64   `db:"executions"`
	ElapsedTimeMs *float64 `db:"elapsed_time_ms"`
	CPUTimeMs     *float64 `db:"cpu_time_ms"`
	BufferGets    *int64   `db:"buffer_gets"`
	DiskReads     *int64   `db:"disk_reads"`
	RowsProcessed *int64   `db:"rows_processed"`
}

// QueryDetails drills into one cursor by sql_id. The plan is attached when
// v$sql_plan still holds rows for it; a flushed plan does not fail the call.
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
			"executions":      float64(intVal(row.Executions)),
			"elapsed_time_ms": floatVal(row.ElapsedTimeMs),
			"cpu_time_ms":     floatVal(row.CPUTimeMs),
			"buffer_gets":     float64(intVal(row.BufferGets)),
			"disk_reads":      float64(intVal(row.DiskReads)),
			"rows_processed":  float64(intVal(row.RowsProcessed)),
		},
	}

	plan, err := m.executionPlan(ctx, conn, queryID)
	switch {
	case err == nil:
		details.Plan = plan
		details.EstimatedCost = plan.EstimatedCost
		details.TablesTouched = planObjects(plan)
	case errors.Is(err, dberr.ErrNotFound):
		// Plan flushed from the shared pool, details still stand.
	default:
		return nil, err
	}
	return details, nil
}

type planNodeRow struct {
	NodeID      *int     `db:"node_id"`
	Operation   *string  `db:"operation"`
	Options     *string  `db:"options"`
	ObjectName  *string  `db:"object_name"`
	Cost        *float64 `db:"cost"`
	Cardinality *float64 `db:"cardinality"`
}

// ExecutionPlan reads the cached plan rows for a sql_id from v$sql_plan and
// renders both a formatted text listing and an operator tree.
func (m *Monitor) ExecutionPlan(ctx context.Context, queryID string) (*models.ExecutionPlan, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return m.executionPlan(ctx, conn, queryID)
}

func (m *Monitor) executionPlan(ctx context.Context, conn connectionQuerier, queryID string) (*models.ExecutionPlan, error) {
	var rows []planNodeRow
	if err := conn.QueryContext(ctx, &rows, executionPlanQuery, queryID); err != nil {
		return nil, queryFailure("execution plan", err)
	}
	if len(rows) == 0 {
		return nil, dberr.NewNotFoundError("execution plan", queryID)
	}

	plan := &models.ExecutionPlan{
		Platform: models.PlatformOracle,
		PlanText: renderPlanText(rows),
		Root:     buildPlanTree(rows),
	}
	if plan.Root != nil {
		plan.EstimatedCost = plan.Root.Cost
	}
	return plan, nil
}

type connectionQuerier interface {
	QueryContext(ctx context.Context, v interface{}, query string, queryArgs ...interface{}) error
}

func renderPlanText(rows []planNodeRow) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		line := fmt.Sprintf("%d %s", intPtrVal(row.NodeID), operationName(row))
		if obj := strVal(row.ObjectName); obj != "" {
			line += " " + obj
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func operationName(row planNodeRow) string {
	if opts := strVal(row.Options); opts != "" {
		return strVal(row.Operation) + " " + opts
	}
	return strVal(row.Operation)
}

// buildPlanTree shapes the flat v$sql_plan rows into a one-level tree: the
// first row is the root, the rest are its children with cost percentages as
// shares of the summed child costs.
func buildPlanTree(rows []planNodeRow) *models.ExecutionPlanNode {
	if len(rows) == 0 {
		return nil
	}

	root := &models.ExecutionPlanNode{
		Operation:     operationName(rows[0]),
		Description:   strVal(rows[0].ObjectName),
		Cost:          floatVal(rows[0].Cost),
		EstimatedRows: floatVal(rows[0].Cardinality),
	}

	var childCostTotal float64
	for _, row := range rows[1:] {
		childCostTotal += floatVal(row.Cost)
	}
	for _, row := range rows[1:] {
		child := models.ExecutionPlanNode{
			Operation:     operationName(row),
			Description:   strVal(row.ObjectName),
			Cost:          floatVal(row.Cost),
			EstimatedRows: floatVal(row.Cardinality),
		}
		if childCostTotal > 0 {
			child.CostPercentage = child.Cost / childCostTotal * 100
		}
		root.Children = append(root.Children, child)
	}
	return root
}

func planObjects(plan *models.ExecutionPlan) []string {
	if plan == nil || plan.Root == nil {
		return nil
	}
	seen := make(map[string]bool)
	var objects []string
	collect := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		objects = append(objects, name)
	}
	collect(plan.Root.Description)
	for i := range plan.Root.Children {
		collect(plan.Root.Children[i].Description)
	}
	return objects
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

// QueryStatistics returns one per-execution averaged sample per cursor whose
// last activity falls inside [from, to], ordered by timestamp.
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
			CPUTimeMs:       floatVal(row.CPUTimeMs),
			LogicalReads:    intVal(row.LogicalReads),
			PhysicalReads:   intVal(row.PhysicalReads),
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

// RunningQueries snapshots the active user sessions with a statement in
// flight, excluding this session.
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

// Health aggregates the instance indicators and derives the discrete status.
// Oracle exposes no instantaneous host CPU or memory percentage through the
// v$ views, so the status rests on session saturation and uptime.
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
	LogBytes     *int64  `db:"log_bytes"`
}

// DatabaseSize reports datafile and redo log sizes.
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

// ConnectionStats snapshots user session counts against the sessions
// parameter.
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
		return nil, dberr.NewEngineError("connection stats", errors.New("session query returned no rows"))
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
	MemoryUsedBytes  *int64 `db:"memory_used_bytes"`
	DiskUsedBytes    *int64 `db:"disk_used_bytes"`
}

// ResourceUtilization reports SGA allocation and usage plus the datafile
// footprint. Host CPU is outside the engine's view.
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
		return nil, dberr.NewEngineError("resource utilization", errors.New("sga query returned no rows"))
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

// WaitStatistics returns the heaviest non-idle wait events since startup.
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

// Configuration reads the instance parameters as name/value pairs.
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

func intPtrVal(p *int) int {
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
