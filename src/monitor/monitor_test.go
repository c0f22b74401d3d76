package monitor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
)

func Test_ClampLimit(t *testing.T) {
	testCases := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero falls back to default", 0, DefaultTopQueryCount},
		{"negative falls back to default", -5, DefaultTopQueryCount},
		{"in range passes through", 5, 5},
		{"upper bound", MaxTopQueryCount, MaxTopQueryCount},
		{"above maximum clamps", MaxTopQueryCount + 1, MaxTopQueryCount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClampLimit(tc.limit))
		})
	}
}

func Test_ValidateRange(t *testing.T) {
	now := time.Now()

	assert.NoError(t, ValidateRange(now.Add(-time.Hour), now))
	assert.NoError(t, ValidateRange(now, now), "equal bounds form a valid range")
	assert.Error(t, ValidateRange(now, now.Add(-time.Hour)))
}

func Test_FilterStatistics(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := []models.QueryStatistic{
		{QueryID: "a", Timestamp: base.Add(-2 * time.Hour)},
		{QueryID: "b", Timestamp: base.Add(-time.Hour)},
		{QueryID: "c", Timestamp: base},
		{QueryID: "d", Timestamp: base.Add(time.Hour)},
	}

	filtered := FilterStatistics(samples, base.Add(-time.Hour), base)
	require.Len(t, filtered, 2)
	assert.Equal(t, "b", filtered[0].QueryID)
	assert.Equal(t, "c", filtered[1].QueryID)
}

func Test_DeriveStatus(t *testing.T) {
	thresholds := DefaultThresholds()

	testCases := []struct {
		name   string
		health models.DatabaseHealth
		want   models.HealthStatus
	}{
		{
			"no indicators populated",
			models.DatabaseHealth{},
			models.StatusUnknown,
		},
		{
			"all indicators nominal",
			models.DatabaseHealth{Uptime: time.Hour, CPUPercent: 20, MemoryPercent: 40, DiskPercent: 30, ActiveConnections: 10, MaxConnections: 100},
			models.StatusHealthy,
		},
		{
			"cpu at warning",
			models.DatabaseHealth{Uptime: time.Hour, CPUPercent: 80, MemoryPercent: 40, DiskPercent: 30, MaxConnections: 100},
			models.StatusWarning,
		},
		{
			"memory critical dominates warning",
			models.DatabaseHealth{Uptime: time.Hour, CPUPercent: 80, MemoryPercent: 96, DiskPercent: 30, MaxConnections: 100},
			models.StatusCritical,
		},
		{
			"connection saturation critical",
			models.DatabaseHealth{Uptime: time.Hour, CPUPercent: 10, ActiveConnections: 96, MaxConnections: 100},
			models.StatusCritical,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.health, thresholds))
		})
	}
}

func Test_BuildIssues(t *testing.T) {
	thresholds := DefaultThresholds()

	health := models.DatabaseHealth{
		Uptime:            time.Hour,
		CPUPercent:        92,
		MemoryPercent:     86,
		DiskPercent:       10,
		ActiveConnections: 5,
		MaxConnections:    100,
	}

	issues := BuildIssues(health, thresholds)
	require.Len(t, issues, 2)

	assert.Equal(t, "CPU usage", issues[0].Category)
	assert.Equal(t, models.SeverityCritical, issues[0].Severity)
	assert.Equal(t, "Memory usage", issues[1].Category)
	assert.Equal(t, models.SeverityWarning, issues[1].Severity)
	for _, issue := range issues {
		assert.NotEmpty(t, issue.Recommendation)
	}
}

func Test_LoadThresholds(t *testing.T) {
	defaults := DefaultThresholds()

	loaded, err := LoadThresholds("")
	require.NoError(t, err)
	assert.Equal(t, defaults, loaded)

	file := t.TempDir() + "/thresholds.yml"
	content := "cpu_critical_percent: 99\nconnection_warning_percent: 60\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	loaded, err = LoadThresholds(file)
	require.NoError(t, err)
	assert.Equal(t, 99.0, loaded.CPUCriticalPercent)
	assert.Equal(t, 60.0, loaded.ConnectionWarningPercent)
	// Untouched fields keep their defaults.
	assert.Equal(t, defaults.MemoryCriticalPercent, loaded.MemoryCriticalPercent)

	_, err = LoadThresholds(t.TempDir() + "/does-not-exist.yml")
	assert.Error(t, err)
}
