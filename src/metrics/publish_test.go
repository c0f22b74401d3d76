package metrics

import (
	"testing"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
)

func createTestEntity(t *testing.T) *integration.Entity {
	i, err := integration.New("test", "1.0.0")
	if err != nil {
		t.Errorf("Unexpected error %s", err.Error())
		t.FailNow()
	}
	e, err := i.Entity("test", "instance")
	if err != nil {
		t.Errorf("Unexpected error %s", err.Error())
		t.FailNow()
	}
	return e
}

func Test_PopulateTopQueryMetrics(t *testing.T) {
	entity := createTestEntity(t)

	PopulateTopQueryMetrics(entity, "db-host", []models.QueryMetric{
		{
			QueryID:        "0x8C2E9A",
			QueryText:      "SELECT a FROM accounts",
			DatabaseName:   "sales",
			ExecutionCount: 120,
			TotalTimeMs:    4800,
			AverageTimeMs:  40,
			MinTimeMs:      10,
			MaxTimeMs:      95,
			RowsReturned:   360,
		},
		{QueryID: "0x11F0B2", ExecutionCount: 60},
	})

	require.Len(t, entity.Metrics, 2)
	sample := entity.Metrics[0].Metrics

	assert.Equal(t, "DbTopQuerySample", sample["event_type"])
	assert.Equal(t, "db-host", sample["host"])
	assert.Equal(t, "0x8C2E9A", sample["query.id"])
	assert.Equal(t, float64(120), sample["query.executionCount"])
	assert.Equal(t, 40.0, sample["query.averageTimeInMilliseconds"])
}

func Test_PopulateHealthMetrics(t *testing.T) {
	entity := createTestEntity(t)

	PopulateHealthMetrics(entity, "db-host", &models.DatabaseHealth{
		Status:            models.StatusWarning,
		Uptime:            90 * time.Minute,
		CPUPercent:        80,
		ActiveConnections: 20,
		MaxConnections:    100,
		Issues:            []models.HealthIssue{{Category: "CPU usage"}},
	})

	require.Len(t, entity.Metrics, 1)
	sample := entity.Metrics[0].Metrics

	assert.Equal(t, "DbHealthSample", sample["event_type"])
	assert.Equal(t, "Warning", sample["health.status"])
	assert.Equal(t, 5400.0, sample["health.uptimeInSeconds"])
	assert.Equal(t, 20.0, sample["health.connectionUsagePercent"])
	assert.Equal(t, 1.0, sample["health.issueCount"])
}

func Test_PopulateHealthMetrics_NilSnapshotIsSkipped(t *testing.T) {
	entity := createTestEntity(t)
	PopulateHealthMetrics(entity, "db-host", nil)
	assert.Empty(t, entity.Metrics)
}

func Test_PopulateWaitMetrics(t *testing.T) {
	entity := createTestEntity(t)

	PopulateWaitMetrics(entity, "db-host", []models.WaitStatistic{
		{WaitType: "PAGEIOLATCH_SH", WaitTimeMs: 5230, WaitCount: 420},
		{WaitType: "CXPACKET", WaitTimeMs: 1200, WaitCount: 88},
	})

	require.Len(t, entity.Metrics, 2)
	sample := entity.Metrics[0].Metrics
	assert.Equal(t, "DbWaitSample", sample["event_type"])
	assert.Equal(t, "PAGEIOLATCH_SH", sample["waitType"])
	assert.Equal(t, 5230.0, sample["wait.timeInMilliseconds"])
}

func Test_PopulateResourceMetrics(t *testing.T) {
	entity := createTestEntity(t)

	PopulateResourceMetrics(entity, "db-host",
		&models.DatabaseSize{DatabaseName: "sales", TotalBytes: 9437184, DataBytes: 8388608, LogBytes: 1048576},
		&models.ConnectionStatistics{ActiveConnections: 5, IdleConnections: 15, MaxConnections: 100},
		&models.ResourceUtilization{MemoryUsedBytes: 4000, MemoryTotalBytes: 16000})

	require.Len(t, entity.Metrics, 1)
	sample := entity.Metrics[0].Metrics

	assert.Equal(t, "DbResourceSample", sample["event_type"])
	assert.Equal(t, 9437184.0, sample["storage.totalBytes"])
	assert.Equal(t, 20.0, sample["connections.usagePercent"])
	assert.Equal(t, 25.0, sample["resource.memoryUsagePercent"])
}

func Test_PopulateResourceMetrics_PartialSnapshots(t *testing.T) {
	entity := createTestEntity(t)

	PopulateResourceMetrics(entity, "db-host", nil,
		&models.ConnectionStatistics{ActiveConnections: 5, MaxConnections: 100}, nil)

	require.Len(t, entity.Metrics, 1)
	sample := entity.Metrics[0].Metrics
	assert.Equal(t, 5.0, sample["connections.active"])
	_, hasStorage := sample["storage.totalBytes"]
	assert.False(t, hasStorage)
}

func Test_PopulateRunningQueryMetrics(t *testing.T) {
	entity := createTestEntity(t)

	PopulateRunningQueryMetrics(entity, "db-host", []models.RunningQuery{
		{
			SessionID:    "61",
			QueryText:    "SELECT a FROM accounts",
			Duration:     2500 * time.Millisecond,
			Status:       "running",
			UserName:     "app_user",
			DatabaseName: "sales",
		},
	})

	require.Len(t, entity.Metrics, 1)
	sample := entity.Metrics[0].Metrics
	assert.Equal(t, "DbRunningQuerySample", sample["event_type"])
	assert.Equal(t, "61", sample["sessionId"])
	assert.Equal(t, 2500.0, sample["session.durationInMilliseconds"])
}
