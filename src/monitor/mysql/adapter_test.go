package mysql

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

const exampleDigest = "4fb483e86e1d4ba9a8b2c0b1f3f4d5e6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2"

func Test_TopQueries(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	lastSeen := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	columns := []string{"query_id", "query_text", "database_name", "execution_count",
		"total_time_ms", "avg_time_ms", "min_time_ms", "max_time_ms", "rows_returned", "last_executed_at"}
	mock.ExpectQuery("events_statements_summary_by_digest").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(exampleDigest, "SELECT `a` FROM `accounts` WHERE `id` = ?", "sales",
				int64(300), 7500.0, 25.0, 10.0, 60.0, int64(300), lastSeen))

	metrics, err := m.TopQueries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	assert.Equal(t, exampleDigest, metrics[0].QueryID)
	assert.Equal(t, "sales", metrics[0].DatabaseName)
	assert.Equal(t, lastSeen, metrics[0].LastExecutedAt)
	assert.True(t, metrics[0].Valid())
}

func Test_QueryDetails_UnknownDigest(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("events_statements_summary_by_digest").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"query_id"}))

	_, err := m.QueryDetails(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberr.ErrNotFound))
}

func Test_QueryDetails_PlaceholderTextCannotBeReplanned(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	detailColumns := []string{"query_id", "query_text", "count_star", "sum_timer_wait_ms",
		"sum_rows_sent", "sum_rows_examined", "sum_no_index_used", "sum_created_tmp_disk_tables"}
	mock.ExpectQuery("events_statements_summary_by_digest").
		WithArgs(exampleDigest).
		WillReturnRows(sqlmock.NewRows(detailColumns).
			AddRow(exampleDigest, "SELECT `a` FROM `accounts` WHERE `id` = ?",
				int64(300), 7500.0, int64(300), int64(300), int64(0), int64(0)))

	mock.ExpectQuery("EXPLAIN FORMAT=JSON").
		WillReturnError(errors.New("Error 1064: syntax error near '?'"))

	details, err := m.QueryDetails(context.Background(), exampleDigest)
	require.NoError(t, err)

	assert.Nil(t, details.Plan)
	assert.Equal(t, 300.0, details.Statistics["count_star"])
	assert.Equal(t, 300.0, details.Statistics["sum_rows_examined"])
}

const examplePlanJSON = `{"query_block": {"select_id": 1,
	"cost_info": {"query_cost": "120.50"},
	"nested_loop": [
		{"table": {"table_name": "orders", "access_type": "ALL", "rows_examined_per_scan": 1000,
			"cost_info": {"read_cost": "80.00", "eval_cost": "10.00"}}},
		{"table": {"table_name": "customers", "access_type": "eq_ref", "key": "PRIMARY", "rows_examined_per_scan": 1,
			"cost_info": {"read_cost": "25.00", "eval_cost": "5.00"}}}
	]}}`

func Test_ExecutionPlan(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("events_statements_summary_by_digest").
		WithArgs(exampleDigest).
		WillReturnRows(sqlmock.NewRows([]string{"digest_text"}).
			AddRow("SELECT o.id FROM orders o JOIN customers c ON c.id = o.customer_id"))
	mock.ExpectQuery("EXPLAIN FORMAT=JSON").
		WillReturnRows(sqlmock.NewRows([]string{"EXPLAIN"}).AddRow(examplePlanJSON))

	plan, err := m.ExecutionPlan(context.Background(), exampleDigest)
	require.NoError(t, err)

	assert.Equal(t, models.PlatformMySQL, plan.Platform)
	assert.Equal(t, 120.5, plan.EstimatedCost)
	require.NotNil(t, plan.Root)
	assert.Equal(t, "query_block", plan.Root.Operation)
	require.Len(t, plan.Root.Children, 2)

	assert.Equal(t, "ALL on orders", plan.Root.Children[0].Description)
	assert.Equal(t, 75.0, plan.Root.Children[0].CostPercentage)
	assert.Equal(t, "eq_ref on customers using PRIMARY", plan.Root.Children[1].Description)
	assert.Equal(t, 25.0, plan.Root.Children[1].CostPercentage)
	assert.True(t, plan.Root.ChildCostConsistent())

	assert.Equal(t, []string{"orders", "customers"}, planTables(plan))
}

func Test_ParsePlanJSON_Malformed(t *testing.T) {
	for _, payload := range []string{"-> Table scan on accounts", `{"rows": 5}`} {
		_, err := parsePlanJSON(payload)
		require.Error(t, err, payload)

		var engineErr *dberr.EngineError
		assert.True(t, errors.As(err, &engineErr))
	}
}

func Test_QueryStatistics(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	statColumns := []string{"sample_time", "query_id", "execution_time_ms", "rows_returned"}
	mock.ExpectQuery("events_statements_summary_by_digest").
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(statColumns).
			AddRow(from.Add(5*time.Minute), exampleDigest, 25.0, int64(1)).
			AddRow(from.Add(30*time.Minute), "other-digest", 40.0, int64(12)))

	samples, err := m.QueryStatistics(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.True(t, samples[0].Timestamp.Before(samples[1].Timestamp))
	assert.Zero(t, samples[0].LogicalReads, "digest rows carry no read counters")
}

func Test_QueryStatistics_InvertedRange(t *testing.T) {
	m, source, _ := createMockMonitor(t)

	now := time.Now()
	_, err := m.QueryStatistics(context.Background(), now, now.Add(-time.Hour))
	require.Error(t, err)

	var valErr *dberr.ValidationError
	assert.True(t, errors.As(err, &valErr))
	assert.Zero(t, source.acquired)
}

func Test_RunningQueries(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	columns := []string{"session_id", "query_text", "start_time", "duration_ms", "status",
		"user_name", "database_name"}
	mock.ExpectQuery("processlist").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("42", "SELECT a FROM accounts", started, int64(3000), "executing", "app_user", "sales"))

	running, err := m.RunningQueries(context.Background())
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "42", running[0].SessionID)
	assert.Equal(t, 3*time.Second, running[0].Duration)
}

func Test_Health(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	healthColumns := []string{"uptime_seconds", "active_connections", "max_connections",
		"total_queries", "slow_queries", "blocked_queries"}
	mock.ExpectQuery("global_status").
		WillReturnRows(sqlmock.NewRows(healthColumns).
			AddRow(int64(3600), int64(30), int64(151), int64(420000), int64(7), int64(0)))

	health, err := m.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusHealthy, health.Status)
	assert.Equal(t, time.Hour, health.Uptime)
	assert.Equal(t, int64(7), health.SlowQueries)
}

func Test_Health_ConnectionSaturation(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	healthColumns := []string{"uptime_seconds", "active_connections", "max_connections",
		"total_queries", "slow_queries", "blocked_queries"}
	mock.ExpectQuery("global_status").
		WillReturnRows(sqlmock.NewRows(healthColumns).
			AddRow(int64(3600), int64(130), int64(151), int64(420000), int64(7), int64(2)))

	health, err := m.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusWarning, health.Status)
	require.NotEmpty(t, health.Issues)
}

func Test_DatabaseSize(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"database_name", "data_bytes"}).
			AddRow("sales", int64(104857600)))

	size, err := m.DatabaseSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sales", size.DatabaseName)
	assert.Equal(t, int64(104857600), size.TotalBytes)
	assert.Zero(t, size.LogBytes, "binary log footprint is not visible through information_schema")
}

func Test_ConnectionStats(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("Threads_running").
		WillReturnRows(sqlmock.NewRows([]string{"active_connections", "total_connections", "max_connections"}).
			AddRow(int64(4), int64(30), int64(151)))

	stats, err := m.ConnectionStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.ActiveConnections)
	assert.Equal(t, int64(26), stats.IdleConnections)
}

func Test_ResourceUtilization(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("innodb_buffer_pool_size").
		WillReturnRows(sqlmock.NewRows([]string{"memory_total_bytes", "memory_used_bytes", "disk_used_bytes"}).
			AddRow(int64(134217728), int64(67108864), int64(524288000)))

	utilization, err := m.ResourceUtilization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50.0, utilization.MemoryUsagePercent())
	assert.Equal(t, int64(524288000), utilization.DiskUsedBytes)
}

func Test_WaitStatistics(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("events_waits_summary_global_by_event_name").
		WillReturnRows(sqlmock.NewRows([]string{"wait_type", "wait_time_ms", "wait_count"}).
			AddRow("wait/io/file/innodb/innodb_data_file", 9120.0, int64(15000)))

	waits, err := m.WaitStatistics(context.Background())
	require.NoError(t, err)
	require.Len(t, waits, 1)
	assert.Equal(t, "wait/io/file/innodb/innodb_data_file", waits[0].WaitType)
}

func Test_Configuration(t *testing.T) {
	m, _, mock := createMockMonitor(t)

	mock.ExpectQuery("global_variables").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("max_connections", "151").
			AddRow("innodb_buffer_pool_size", "134217728"))

	settings, err := m.Configuration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "151", settings["max_connections"])
}

func Test_AcquisitionErrorPassthrough(t *testing.T) {
	m, source, _ := createMockMonitor(t)
	source.acquireErr = dberr.NewConfigurationError("no connection target has been set", nil)

	_, err := m.TopQueries(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberr.ErrNotConfigured))
}
