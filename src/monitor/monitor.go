// Package monitor defines the platform-neutral monitoring contracts that
// every engine adapter implements, plus the shared policy helpers (limit
// clamping, time-range validation, health status derivation) adapters use to
// honor them uniformly.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/connection"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/dberr"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
)

// TargetSource yields live connections to the currently configured target.
// *connection.Manager satisfies it; adapters depend on nothing more.
type TargetSource interface {
	AcquireConnection(ctx context.Context) (*connection.SQLConnection, error)
}

const (
	// DefaultTopQueryCount is used when a caller passes a non-positive limit.
	DefaultTopQueryCount = 50

	// MaxTopQueryCount caps a single TopQueries call.
	MaxTopQueryCount = 500
)

// QueryMonitor is the query-telemetry contract. Every call opens its own
// connection, runs concurrently with other calls, and is cancellable through
// its context.
//
// TopQueries ordering: descending average elapsed time, ties broken by
// descending execution count, then ascending query id. The rule is the same
// on every platform.
type QueryMonitor interface {
	TopQueries(ctx context.Context, limit int) ([]models.QueryMetric, error)
	QueryDetails(ctx context.Context, queryID string) (*models.QueryDetails, error)
	ExecutionPlan(ctx context.Context, queryID string) (*models.ExecutionPlan, error)
	QueryStatistics(ctx context.Context, from, to time.Time) ([]models.QueryStatistic, error)
	RunningQueries(ctx context.Context) ([]models.RunningQuery, error)
}

// HealthMonitor is the engine-health contract. Adapters fail with a
// ConfigurationError when no target is configured and an EngineError for any
// downstream fault; they never return zeroed snapshots that look healthy.
type HealthMonitor interface {
	Health(ctx context.Context) (*models.DatabaseHealth, error)
	DatabaseSize(ctx context.Context) (*models.DatabaseSize, error)
	ConnectionStats(ctx context.Context) (*models.ConnectionStatistics, error)
	ResourceUtilization(ctx context.Context) (*models.ResourceUtilization, error)
	WaitStatistics(ctx context.Context) ([]models.WaitStatistic, error)
	Configuration(ctx context.Context) (map[string]string, error)
}

// ClampLimit normalizes a caller-supplied TopQueries limit into
// [1, MaxTopQueryCount]. Non-positive limits fall back to the default.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultTopQueryCount
	}
	if limit > MaxTopQueryCount {
		return MaxTopQueryCount
	}
	return limit
}

// ValidateRange rejects inverted time ranges with a ValidationError.
func ValidateRange(from, to time.Time) error {
	if from.After(to) {
		return dberr.NewValidationError("time range",
			fmt.Sprintf("from %s is after to %s", from.Format(time.RFC3339), to.Format(time.RFC3339)))
	}
	return nil
}

// FilterStatistics returns only the samples whose timestamp falls inside
// [from, to], preserving order. Engines whose telemetry stores cannot filter
// server-side use this to honor the range contract.
func FilterStatistics(samples []models.QueryStatistic, from, to time.Time) []models.QueryStatistic {
	filtered := make([]models.QueryStatistic, 0, len(samples))
	for _, sample := range samples {
		if sample.Timestamp.Before(from) || sample.Timestamp.After(to) {
			continue
		}
		filtered = append(filtered, sample)
	}
	return filtered
}
