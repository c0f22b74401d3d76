package sqlserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/connection"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor"
)

const versionBanner2019 = "Microsoft SQL Server 2019 (RTM) - 15.0.2000.5 (X64)"

type mockSource struct {
	conn       *connection.SQLConnection
	acquireErr error
	acquired   int
}

func (m *mockSource) AcquireConnection(ctx context.Context) (*connection.SQLConnection, error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	m.acquired++
	return m.conn, nil
}

func createMockMonitor(t *testing.T) (*Monitor, *mockSource, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Errorf("Unexpected error while mocking: %s", err.Error())
		t.FailNow()
	}

	source := &mockSource{
		conn: &connection.SQLConnection{Connection: sqlx.NewDb(mockDB, "sqlmock")},
	}
	return NewMonitor(source, monitor.DefaultThresholds()), source, mock
}

func Test_TopQueries(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	lastExecuted := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	columns := []string{"query_id", "query_text", "database_name", "execution_count",
		"total_time_ms", "avg_time_ms", "min_time_ms", "max_time_ms", "rows_returned", "last_executed_at"}

	mock.ExpectQuery(`SELECT TOP \(2\)`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("0x8C2E9A", "SELECT a FROM accounts", "sales", int64(120), 4800.0, 40.0, 10.0, 95.0, int64(360), lastExecuted).
			AddRow("0x11F0B2", "UPDATE orders SET state = 1", "sales", int64(60), 1800.0, 30.0, 30.0, 30.0, int64(60), lastExecuted))

	metrics, err := m.TopQueries(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	assert.Equal(t, "0x8C2E9A", metrics[0].QueryID)
	assert.Equal(t, "sales", metrics[0].DatabaseName)
	assert.Equal(t, int64(120), metrics[0].ExecutionCount)
	assert.Equal(t, 40.0, metrics[0].AverageTimeMs)
	assert.Equal(t, lastExecuted, metrics[0].LastExecutedAt)
	for _, metric := range metrics {
		assert.True(t, metric.Valid(), "timing aggregates must be internally consistent")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_TopQueries_NonPositiveLimitUsesDefault(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery(`SELECT TOP \(50\)`).
		WillReturnRows(sqlmock.NewRows([]string{"query_id"}))

	_, err := m.TopQueries(context.Background(), 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_TopQueries_EngineFault(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery(`SELECT TOP \(10\)`).WillReturnError(errors.New("VIEW SERVER STATE permission was denied"))

	_, err := m.TopQueries(context.Background(), 10)
	require.Error(t, err)

	var engineErr *dberr.EngineError
	assert.True(t, errors.As(err, &engineErr))
}

func Test_TopQueries_AcquisitionErrorPassthrough(t *testing.T) {
	m, source, _ := createMockMonitor(t)
	source.acquireErr = dberr.NewConfigurationError("no connection target has been set", nil)

	_, err := m.TopQueries(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberr.ErrNotConfigured))
}

func Test_QueryDetails_UnknownQueryID(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("dm_exec_query_stats").
		WithArgs("0xDEAD").
		WillReturnRows(sqlmock.NewRows([]string{"query_id"}))

	_, err := m.QueryDetails(context.Background(), "0xDEAD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberr.ErrNotFound))
}

func Test_QueryDetails_WithPlan(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	detailColumns := []string{"query_id", "query_text", "execution_count", "total_worker_time",
		"total_elapsed_time", "total_logical_reads", "total_physical_reads", "total_logical_writes", "total_rows"}
	mock.ExpectQuery("dm_exec_query_stats").
		WithArgs("0x8C2E9A").
		WillReturnRows(sqlmock.NewRows(detailColumns).
			AddRow("0x8C2E9A", "SELECT a FROM accounts", int64(120), int64(900), int64(4800), int64(220), int64(12), int64(0), int64(360)))

	mock.ExpectQuery("dm_exec_query_plan").
		WithArgs("0x8C2E9A").
		WillReturnRows(sqlmock.NewRows([]string{"plan_xml"}).AddRow("<ShowPlanXML></ShowPlanXML>"))

	nodeColumns := []string{"node_id", "physical_op", "logical_op", "estimate_rows", "total_subtree_cost", "object_name"}
	mock.ExpectQuery("RelOp").
		WithArgs("0x8C2E9A").
		WillReturnRows(sqlmock.NewRows(nodeColumns).
			AddRow(0, "Nested Loops", "Inner Join", 360.0, 1.25, nil).
			AddRow(1, "Index Seek", "Index Seek", 360.0, 0.75, "accounts").
			AddRow(2, "Key Lookup", "Key Lookup", 360.0, 0.25, "accounts"))

	details, err := m.QueryDetails(context.Background(), "0x8C2E9A")
	require.NoError(t, err)

	assert.Equal(t, "SELECT a FROM accounts", details.QueryText)
	assert.Equal(t, 120.0, details.Statistics["execution_count"])
	assert.Equal(t, 4800.0, details.Statistics["total_elapsed_time"])
	require.NotNil(t, details.Plan)
	assert.Equal(t, 1.25, details.EstimatedCost)
	assert.Equal(t, []string{"accounts"}, details.TablesTouched)
}

func Test_QueryDetails_MissingPlanIsNotFatal(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	detailColumns := []string{"query_id", "query_text", "execution_count", "total_worker_time",
		"total_elapsed_time", "total_logical_reads", "total_physical_reads", "total_logical_writes", "total_rows"}
	mock.ExpectQuery("dm_exec_query_stats").
		WithArgs("0x8C2E9A").
		WillReturnRows(sqlmock.NewRows(detailColumns).
			AddRow("0x8C2E9A", "SELECT a FROM accounts", int64(120), int64(900), int64(4800), int64(220), int64(12), int64(0), int64(360)))

	// Plan already evicted from the cache.
	mock.ExpectQuery("dm_exec_query_plan").
		WithArgs("0x8C2E9A").
		WillReturnRows(sqlmock.NewRows([]string{"plan_xml"}))

	details, err := m.QueryDetails(context.Background(), "0x8C2E9A")
	require.NoError(t, err)
	assert.Nil(t, details.Plan)
	assert.Empty(t, details.TablesTouched)
}

func Test_ExecutionPlan(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("dm_exec_query_plan").
		WithArgs("0x8C2E9A").
		WillReturnRows(sqlmock.NewRows([]string{"plan_xml"}).AddRow("<ShowPlanXML></ShowPlanXML>"))

	nodeColumns := []string{"node_id", "physical_op", "logical_op", "estimate_rows", "total_subtree_cost", "object_name"}
	mock.ExpectQuery("RelOp").
		WithArgs("0x8C2E9A").
		WillReturnRows(sqlmock.NewRows(nodeColumns).
			AddRow(0, "Hash Match", "Inner Join", 1000.0, 4.0, nil).
			AddRow(1, "Clustered Index Scan", "Clustered Index Scan", 1000.0, 3.0, "orders").
			AddRow(2, "Index Seek", "Index Seek", 1000.0, 1.0, "customers"))

	plan, err := m.ExecutionPlan(context.Background(), "0x8C2E9A")
	require.NoError(t, err)

	assert.Equal(t, models.PlatformSQLServer, plan.Platform)
	assert.Equal(t, "<ShowPlanXML></ShowPlanXML>", plan.PlanXML)
	assert.Equal(t, 4.0, plan.EstimatedCost)

	require.NotNil(t, plan.Root)
	assert.Equal(t, "Hash Match", plan.Root.Operation)
	require.Len(t, plan.Root.Children, 2)
	assert.Equal(t, 75.0, plan.Root.Children[0].CostPercentage)
	assert.Equal(t, 25.0, plan.Root.Children[1].CostPercentage)
	assert.True(t, plan.Root.ChildCostConsistent())
}

func Test_ExecutionPlan_NotCached(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("dm_exec_query_plan").
		WithArgs("0xDEAD").
		WillReturnRows(sqlmock.NewRows([]string{"plan_xml"}))

	_, err := m.ExecutionPlan(context.Background(), "0xDEAD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberr.ErrNotFound))
}

func Test_QueryStatistics(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	mock.ExpectQuery("@@VERSION").
		WillReturnRows(sqlmock.NewRows([]string{""}).AddRow(versionBanner2019))

	statColumns := []string{"sample_time", "query_id", "execution_time_ms", "rows_returned",
		"cpu_time_ms", "logical_reads", "physical_reads"}
	mock.ExpectQuery("query_store_runtime_stats").
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(statColumns).
			AddRow(from.Add(10*time.Minute), "0x8C2E9A", 42.5, int64(360), 12.0, int64(220), int64(3)).
			AddRow(from.Add(20*time.Minute), "0x8C2E9A", 44.0, int64(355), 13.5, int64(224), int64(0)))

	samples, err := m.QueryStatistics(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.True(t, samples[0].Timestamp.Before(samples[1].Timestamp), "samples are ordered by timestamp")
	assert.Equal(t, 42.5, samples[0].ExecutionTimeMs)
	assert.Equal(t, int64(220), samples[0].LogicalReads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_QueryStatistics_InvertedRange(t *testing.T) {
	m, source, _ := createMockMonitor(t)

	now := time.Now()
	_, err := m.QueryStatistics(context.Background(), now, now.Add(-time.Hour))
	require.Error(t, err)

	var valErr *dberr.ValidationError
	assert.True(t, errors.As(err, &valErr))
	assert.Zero(t, source.acquired, "validation failure must not acquire a connection")
}

func Test_QueryStatistics_PreQueryStoreVersion(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("@@VERSION").
		WillReturnRows(sqlmock.NewRows([]string{""}).
			AddRow("Microsoft SQL Server 2012 - 11.0.2100.60 (X64)"))

	_, err := m.QueryStatistics(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)

	var engineErr *dberr.EngineError
	assert.True(t, errors.As(err, &engineErr))
	assert.Contains(t, err.Error(), "2016")
}

func Test_RunningQueries(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	columns := []string{"session_id", "query_text", "start_time", "duration_ms", "status",
		"user_name", "database_name", "cpu_time_ms", "memory_kb"}
	mock.ExpectQuery("dm_exec_requests").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("61", "SELECT a FROM accounts", started, int64(2500), "running", "app_user", "sales", 120.0, int64(4096)))

	running, err := m.RunningQueries(context.Background())
	require.NoError(t, err)
	require.Len(t, running, 1)

	assert.Equal(t, "61", running[0].SessionID)
	assert.Equal(t, 2500*time.Millisecond, running[0].Duration)
	assert.Equal(t, "app_user", running[0].UserName)
	assert.Equal(t, int64(4096), running[0].MemoryKB)
}

func Test_Health(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	healthColumns := []string{"uptime_seconds", "active_connections", "max_connections",
		"total_queries", "slow_queries", "blocked_queries", "memory_percent"}
	mock.ExpectQuery("dm_os_sys_info").
		WillReturnRows(sqlmock.NewRows(healthColumns).
			AddRow(int64(86400), int64(12), int64(100), int64(50000), int64(3), int64(0), 42.0))
	mock.ExpectQuery("dm_os_ring_buffers").
		WillReturnRows(sqlmock.NewRows([]string{"process_utilization"}).AddRow(35.0))
	mock.ExpectQuery("dm_os_volume_stats").
		WillReturnRows(sqlmock.NewRows([]string{"total_bytes", "available_bytes"}).
			AddRow(int64(1000), int64(700)))

	health, err := m.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusHealthy, health.Status)
	assert.Equal(t, 24*time.Hour, health.Uptime)
	assert.Equal(t, 35.0, health.CPUPercent)
	assert.Equal(t, 42.0, health.MemoryPercent)
	assert.Equal(t, 30.0, health.DiskPercent)
	assert.Equal(t, 12.0, health.ConnectionUsagePercent())
	assert.Empty(t, health.Issues)
}

func Test_Health_DegradedIndicatorsRaiseIssues(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	healthColumns := []string{"uptime_seconds", "active_connections", "max_connections",
		"total_queries", "slow_queries", "blocked_queries", "memory_percent"}
	mock.ExpectQuery("dm_os_sys_info").
		WillReturnRows(sqlmock.NewRows(healthColumns).
			AddRow(int64(86400), int64(12), int64(100), int64(50000), int64(3), int64(2), 96.0))
	mock.ExpectQuery("dm_os_ring_buffers").
		WillReturnRows(sqlmock.NewRows([]string{"process_utilization"}).AddRow(80.0))
	mock.ExpectQuery("dm_os_volume_stats").
		WillReturnRows(sqlmock.NewRows([]string{"total_bytes", "available_bytes"}).
			AddRow(int64(1000), int64(700)))

	health, err := m.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCritical, health.Status, "memory at 96% is past the critical threshold")
	require.NotEmpty(t, health.Issues)
}

// Instance-level CPU and volume views can be unreadable without VIEW SERVER
// STATE; the snapshot still stands on the core indicators.
func Test_Health_ToleratesMissingInstanceViews(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	healthColumns := []string{"uptime_seconds", "active_connections", "max_connections",
		"total_queries", "slow_queries", "blocked_queries", "memory_percent"}
	mock.ExpectQuery("dm_os_sys_info").
		WillReturnRows(sqlmock.NewRows(healthColumns).
			AddRow(int64(86400), int64(12), int64(100), int64(50000), int64(3), int64(0), 42.0))
	mock.ExpectQuery("dm_os_ring_buffers").WillReturnError(errors.New("permission denied"))
	mock.ExpectQuery("dm_os_volume_stats").WillReturnError(errors.New("permission denied"))

	health, err := m.Health(context.Background())
	require.NoError(t, err)
	assert.Zero(t, health.CPUPercent)
	assert.Zero(t, health.DiskPercent)
	assert.Equal(t, models.StatusHealthy, health.Status)
}

func Test_DatabaseSize(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("database_files").
		WillReturnRows(sqlmock.NewRows([]string{"database_name", "data_bytes", "log_bytes"}).
			AddRow("sales", int64(8388608), int64(1048576)))

	size, err := m.DatabaseSize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sales", size.DatabaseName)
	assert.Equal(t, int64(8388608), size.DataBytes)
	assert.Equal(t, int64(9437184), size.TotalBytes)
	assert.False(t, size.CollectedAt.IsZero())
}

func Test_ConnectionStats(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("dm_exec_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"active_connections", "idle_connections", "max_connections"}).
			AddRow(int64(8), int64(12), int64(100)))

	stats, err := m.ConnectionStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(8), stats.ActiveConnections)
	assert.Equal(t, int64(12), stats.IdleConnections)
	assert.Equal(t, 20.0, stats.UsagePercent())
}

func Test_ResourceUtilization(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("dm_os_sys_memory").
		WillReturnRows(sqlmock.NewRows([]string{"total_memory_bytes", "used_memory_bytes"}).
			AddRow(int64(16000), int64(4000)))
	mock.ExpectQuery("dm_os_ring_buffers").
		WillReturnRows(sqlmock.NewRows([]string{"process_utilization"}).AddRow(22.0))
	mock.ExpectQuery("dm_os_volume_stats").
		WillReturnRows(sqlmock.NewRows([]string{"total_bytes", "available_bytes"}).
			AddRow(int64(1000), int64(400)))

	utilization, err := m.ResourceUtilization(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 22.0, utilization.CPUPercent)
	assert.Equal(t, 25.0, utilization.MemoryUsagePercent())
	assert.Equal(t, 60.0, utilization.DiskUsagePercent())
}

func Test_WaitStatistics(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("dm_os_wait_stats").
		WillReturnRows(sqlmock.NewRows([]string{"wait_type", "wait_time_ms", "wait_count"}).
			AddRow("PAGEIOLATCH_SH", 5230.0, int64(420)).
			AddRow("CXPACKET", 1200.0, int64(88)))

	waits, err := m.WaitStatistics(context.Background())
	require.NoError(t, err)
	require.Len(t, waits, 2)

	assert.Equal(t, "PAGEIOLATCH_SH", waits[0].WaitType)
	assert.Equal(t, 5230.0, waits[0].WaitTimeMs)
	assert.Equal(t, int64(420), waits[0].WaitCount)
}

func Test_Configuration(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("sys.configurations").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("max degree of parallelism", "4").
			AddRow("max server memory (MB)", "8192"))

	settings, err := m.Configuration(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "4", settings["max degree of parallelism"])
	assert.Equal(t, "8192", settings["max server memory (MB)"])
}
