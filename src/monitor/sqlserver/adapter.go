// Package sqlserver implements the monitoring contracts against SQL Server
// dynamic management views and the Query Store.
package sqlserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor"
)

// Monitor collects query telemetry and health snapshots from one SQL Server
// target. Every call acquires a fresh connection and closes it before
// returning, so calls are independent and safe to run concurrently.
type Monitor struct {
	source     monitor.TargetSource
	thresholds monitor.Thresholds
}

var (
	_ monitor.QueryMonitor  = (*Monitor)(nil)
	_ monitor.HealthMonitor = (*Monitor)(nil)
)

// NewMonitor creates a SQL Server monitor reading connections from source.
func NewMonitor(source monitor.TargetSource, thresholds monitor.Thresholds) *Monitor {
	return &Monitor{source: source, thresholds: thresholds}
}

// queryFailure maps a low-level query error to the right taxonomy member.
func queryFailure(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dberr.NewTimeoutError(op, err)
	}
	return dberr.NewEngineError(op, err)
}

// TopQueries returns the heaviest aggregated queries from
// sys.dm_exec_query_stats, ordered by descending average elapsed time with
// ties broken by descending execution count and then ascending query id.
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

// QueryDetails drills into one tracked query by its query hash. The plan is
// attached when one is still cached; a missing plan does not fail the call.
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
			"execution_count":      float64(intVal(row.ExecutionCount)),
			"total_worker_time":    float64(intVal(row.TotalWorkerTime)),
			"total_elapsed_time":   float64(intVal(row.TotalElapsedTime)),
			"total_logical_reads":  float64(intVal(row.TotalLogicalReads)),
			"total_physical_reads": float64(intVal(row.TotalPhysicalReads)),
			"total_logical_writes": float64(intVal(row.TotalLogicalWrites)),
			"total_rows":           float64(intVal(row.TotalRows)),
		},
	}

	plan, err := m.executionPlan(ctx, conn, queryID)
	switch {
	case err == nil:
		details.Plan = plan
		details.EstimatedCost = plan.EstimatedCost
		details.TablesTouched = planTables(plan)
	case errors.Is(err, dberr.ErrNotFound):
		// Plan already evicted from cache, details still stand on their own.
	default:
		return nil, err
	}
	return details, nil
}

// ExecutionPlan fetches the cached plan for a query hash as showplan XML plus
// a flattened operator tree.
func (m *Monitor) ExecutionPlan(ctx context.Context, queryID string) (*models.ExecutionPlan, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return m.executionPlan(ctx, conn, queryID)
}

func (m *Monitor) executionPlan(ctx context.Context, conn connectionQuerier, queryID string) (*models.ExecutionPlan, error) {
	var planRows []struct {
		PlanXML *string `db:"plan_xml"`
	}
	if err := conn.QueryContext(ctx, &planRows, executionPlanXMLQuery, queryID); err != nil {
		return nil, queryFailure("execution plan", err)
	}
	if len(planRows) == 0 || strVal(planRows[0].PlanXML) == "" {
		return nil, dberr.NewNotFoundError("execution plan", queryID)
	}

	plan := &models.ExecutionPlan{
		Platform: models.PlatformSQLServer,
		PlanXML:  strVal(planRows[0].PlanXML),
	}

	var nodeRows []planNodeRow
	if err := conn.QueryContext(ctx, &nodeRows, executionPlanNodesQuery, queryID); err != nil {
		return nil, queryFailure("execution plan operators", err)
	}
	plan.Root = buildPlanTree(nodeRows)
	if plan.Root != nil {
		plan.EstimatedCost = plan.Root.Cost
	}
	return plan, nil
}

// connectionQuerier is the slice of SQLConnection the plan reader needs.
type connectionQuerier interface {
	QueryContext(ctx context.Context, v interface{}, query string, queryArgs ...interface{}) error
}

// buildPlanTree shapes the flat RelOp rows into a one-level tree: the first
// operator is the root, the rest are its children. Child cost percentages are
// shares of the summed child subtree costs, so they always total 100.
func buildPlanTree(rows []planNodeRow) *models.ExecutionPlanNode {
	if len(rows) == 0 {
		return nil
	}

	root := &models.ExecutionPlanNode{
		Operation:     strVal(rows[0].PhysicalOp),
		Description:   strVal(rows[0].LogicalOp),
		Cost:          floatVal(rows[0].TotalSubtreeCost),
		EstimatedRows: floatVal(rows[0].EstimateRows),
	}
	if obj := strVal(rows[0].ObjectName); obj != "" {
		root.Description = fmt.Sprintf("%s on %s", root.Description, obj)
	}

	var childCostTotal float64
	for _, row := range rows[1:] {
		childCostTotal += floatVal(row.TotalSubtreeCost)
	}

	for _, row := range rows[1:] {
		child := models.ExecutionPlanNode{
			Operation:     strVal(row.PhysicalOp),
			Description:   strVal(row.LogicalOp),
			Cost:          floatVal(row.TotalSubtreeCost),
			EstimatedRows: floatVal(row.EstimateRows),
		}
		if obj := strVal(row.ObjectName); obj != "" {
			child.Description = fmt.Sprintf("%s on %s", child.Description, obj)
		}
		if childCostTotal > 0 {
			child.CostPercentage = child.Cost / childCostTotal * 100
		}
		root.Children = append(root.Children, child)
	}
	return root
}

func planTables(plan *models.ExecutionPlan) []string {
	if plan == nil || plan.Root == nil {
		return nil
	}
	seen := make(map[string]bool)
	var tables []string
	collect := func(description string) {
		_, object, found := strings.Cut(description, " on ")
		if !found || seen[object] {
			return
		}
		seen[object] = true
		tables = append(tables, object)
	}
	collect(plan.Root.Description)
	for i := range plan.Root.Children {
		collect(plan.Root.Children[i].Description)
	}
	return tables
}

// QueryStatistics reads per-interval runtime samples from the Query Store.
// Targets older than SQL Server 2016 do not have the Query Store and are
// rejected up front.
func (m *Monitor) QueryStatistics(ctx context.Context, from, to time.Time) ([]models.QueryStatistic, error) {
	if err := monitor.ValidateRange(from, to); err != nil {
		return nil, err
	}

	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	version, err := serverVersion(ctx, conn)
	if err != nil {
		return nil, err
	}
	if !supportsQueryStore(version) {
		return nil, dberr.NewEngineError("query statistics",
			fmt.Errorf("query store requires SQL Server 2016 or later, target reports %s", version))
	}

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

// RunningQueries snapshots the live user requests, excluding this session.
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
			CPUTimeMs:    floatVal(row.CPUTimeMs),
			MemoryKB:     intVal(row.MemoryKB),
		})
	}
	return running, nil
}

// Health aggregates the core indicators and derives the discrete status. CPU
// and disk readings come from instance-level views that need VIEW SERVER
// STATE on the host volume; when they are unreadable the snapshot carries
// zeros for them rather than failing.
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
		MemoryPercent:     floatVal(row.MemoryPercent),
		ActiveConnections: intVal(row.ActiveConnections),
		MaxConnections:    intVal(row.MaxConnections),
		TotalQueries:      intVal(row.TotalQueries),
		SlowQueries:       intVal(row.SlowQueries),
		BlockedQueries:    intVal(row.BlockedQueries),
	}

	if cpu, err := m.cpuPercent(ctx, conn); err != nil {
		log.Debug("CPU utilization unavailable: %s", err.Error())
	} else {
		health.CPUPercent = cpu
	}
	if used, total, err := m.diskBytes(ctx, conn); err != nil {
		log.Debug("Volume stats unavailable: %s", err.Error())
	} else if total > 0 {
		health.DiskPercent = float64(used) / float64(total) * 100
	}

	health.Status = monitor.DeriveStatus(health, m.thresholds)
	health.Issues = monitor.BuildIssues(health, m.thresholds)
	return &health, nil
}

func (m *Monitor) cpuPercent(ctx context.Context, conn connectionQuerier) (float64, error) {
	var rows []struct {
		ProcessUtilization *float64 `db:"process_utilization"`
	}
	if err := conn.QueryContext(ctx, &rows, cpuUtilizationQuery); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errors.New("no scheduler monitor records")
	}
	return floatVal(rows[0].ProcessUtilization), nil
}

func (m *Monitor) diskBytes(ctx context.Context, conn connectionQuerier) (used, total int64, err error) {
	var rows []volumeStatsRow
	if err := conn.QueryContext(ctx, &rows, volumeStatsQuery); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, errors.New("no volume stats")
	}
	total = intVal(rows[0].TotalBytes)
	used = total - intVal(rows[0].AvailableBytes)
	return used, total, nil
}

// DatabaseSize reports the data and log file sizes of the current database.
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

// ConnectionStats snapshots user session counts against the connection limit.
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

// ResourceUtilization snapshots host CPU, memory, and data volume usage.
func (m *Monitor) ResourceUtilization(ctx context.Context) (*models.ResourceUtilization, error) {
	conn, err := m.source.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var memRows []memoryStatsRow
	if err := conn.QueryContext(ctx, &memRows, memoryStatsQuery); err != nil {
		return nil, queryFailure("resource utilization", err)
	}
	if len(memRows) == 0 {
		return nil, dberr.NewEngineError("resource utilization", errors.New("memory query returned no rows"))
	}

	utilization := models.ResourceUtilization{
		MemoryTotalBytes: intVal(memRows[0].TotalMemoryBytes),
		MemoryUsedBytes:  intVal(memRows[0].UsedMemoryBytes),
		CollectedAt:      time.Now(),
	}

	if cpu, err := m.cpuPercent(ctx, conn); err != nil {
		log.Debug("CPU utilization unavailable: %s", err.Error())
	} else {
		utilization.CPUPercent = cpu
	}
	if used, total, err := m.diskBytes(ctx, conn); err != nil {
		log.Debug("Volume stats unavailable: %s", err.Error())
	} else {
		utilization.DiskUsedBytes = used
		utilization.DiskTotalBytes = total
	}
	return &utilization, nil
}

const topWaitStatsCount = 20

// WaitStatistics returns the heaviest cumulative wait types since restart.
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

// Configuration reads the effective server configuration as name/value pairs.
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
