// Package metrics turns collected telemetry snapshots into infrastructure
// SDK metric sets on an integration entity.
package metrics

import (
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/data/attribute"
	"github.com/newrelic/infra-integrations-sdk/v3/data/metric"
	"github.com/newrelic/infra-integrations-sdk/v3/integration"
	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
)

// topQuerySample carries one QueryMetric through MarshalMetrics.
type topQuerySample struct {
	QueryID        string  `metric_name:"query.id" source_type:"attribute"`
	QueryText      string  `metric_name:"query.text" source_type:"attribute"`
	DatabaseName   string  `metric_name:"query.databaseName" source_type:"attribute"`
	ExecutionCount int64   `metric_name:"query.executionCount" source_type:"gauge"`
	TotalTimeMs    float64 `metric_name:"query.totalTimeInMilliseconds" source_type:"gauge"`
	AvgTimeMs      float64 `metric_name:"query.averageTimeInMilliseconds" source_type:"gauge"`
	MinTimeMs      float64 `metric_name:"query.minTimeInMilliseconds" source_type:"gauge"`
	MaxTimeMs      float64 `metric_name:"query.maxTimeInMilliseconds" source_type:"gauge"`
	RowsReturned   int64   `metric_name:"query.rowsReturned" source_type:"gauge"`
}

// PopulateTopQueryMetrics creates one DbTopQuerySample per collected query.
func PopulateTopQueryMetrics(entity *integration.Entity, host string, queryMetrics []models.QueryMetric) {
	for _, queryMetric := range queryMetrics {
		metricSet := entity.NewMetricSet("DbTopQuerySample",
			attribute.Attribute{Key: "displayName", Value: entity.Metadata.Name},
			attribute.Attribute{Key: "entityName", Value: entity.Metadata.Namespace + ":" + entity.Metadata.Name},
			attribute.Attribute{Key: "host", Value: host},
		)

		sample := topQuerySample{
			QueryID:        queryMetric.QueryID,
			QueryText:      queryMetric.QueryText,
			DatabaseName:   queryMetric.DatabaseName,
			ExecutionCount: queryMetric.ExecutionCount,
			TotalTimeMs:    queryMetric.TotalTimeMs,
			AvgTimeMs:      queryMetric.AverageTimeMs,
			MinTimeMs:      queryMetric.MinTimeMs,
			MaxTimeMs:      queryMetric.MaxTimeMs,
			RowsReturned:   queryMetric.RowsReturned,
		}
		if err := metricSet.MarshalMetrics(sample); err != nil {
			log.Error("Could not populate top query sample for query %s: %s", queryMetric.QueryID, err.Error())
		}
	}
}

// PopulateHealthMetrics creates one DbHealthSample from a health snapshot.
func PopulateHealthMetrics(entity *integration.Entity, host string, health *models.DatabaseHealth) {
	if health == nil {
		return
	}

	metricSet := entity.NewMetricSet("DbHealthSample",
		attribute.Attribute{Key: "displayName", Value: entity.Metadata.Name},
		attribute.Attribute{Key: "entityName", Value: entity.Metadata.Namespace + ":" + entity.Metadata.Name},
		attribute.Attribute{Key: "host", Value: host},
	)

	gauges := []struct {
		name  string
		value float64
	}{
		{"health.uptimeInSeconds", health.Uptime.Seconds()},
		{"health.cpuPercent", health.CPUPercent},
		{"health.memoryPercent", health.MemoryPercent},
		{"health.diskPercent", health.DiskPercent},
		{"health.activeConnections", float64(health.ActiveConnections)},
		{"health.maxConnections", float64(health.MaxConnections)},
		{"health.connectionUsagePercent", health.ConnectionUsagePercent()},
		{"health.totalQueries", float64(health.TotalQueries)},
		{"health.slowQueries", float64(health.SlowQueries)},
		{"health.blockedQueries", float64(health.BlockedQueries)},
		{"health.issueCount", float64(len(health.Issues))},
	}
	for _, gauge := range gauges {
		if err := metricSet.SetMetric(gauge.name, gauge.value, metric.GAUGE); err != nil {
			log.Error("Could not set health metric '%s': %s", gauge.name, err.Error())
		}
	}
	if err := metricSet.SetMetric("health.status", string(health.Status), metric.ATTRIBUTE); err != nil {
		log.Error("Could not set health status attribute: %s", err.Error())
	}
}

// PopulateWaitMetrics creates one DbWaitSample per wait type.
func PopulateWaitMetrics(entity *integration.Entity, host string, waits []models.WaitStatistic) {
	for _, wait := range waits {
		metricSet := entity.NewMetricSet("DbWaitSample",
			attribute.Attribute{Key: "displayName", Value: entity.Metadata.Name},
			attribute.Attribute{Key: "entityName", Value: entity.Metadata.Namespace + ":" + entity.Metadata.Name},
			attribute.Attribute{Key: "host", Value: host},
			attribute.Attribute{Key: "waitType", Value: wait.WaitType},
		)

		if err := metricSet.SetMetric("wait.timeInMilliseconds", wait.WaitTimeMs, metric.GAUGE); err != nil {
			log.Error("Could not set wait time metric for '%s': %s", wait.WaitType, err.Error())
		}
		if err := metricSet.SetMetric("wait.count", float64(wait.WaitCount), metric.GAUGE); err != nil {
			log.Error("Could not set wait count metric for '%s': %s", wait.WaitType, err.Error())
		}
	}
}

// PopulateResourceMetrics creates one DbResourceSample from the storage,
// connection, and utilization snapshots. Nil snapshots are skipped so a
// partial collection still publishes what it has.
func PopulateResourceMetrics(entity *integration.Entity, host string,
	size *models.DatabaseSize, connStats *models.ConnectionStatistics, utilization *models.ResourceUtilization) {
	if size == nil && connStats == nil && utilization == nil {
		return
	}

	metricSet := entity.NewMetricSet("DbResourceSample",
		attribute.Attribute{Key: "displayName", Value: entity.Metadata.Name},
		attribute.Attribute{Key: "entityName", Value: entity.Metadata.Namespace + ":" + entity.Metadata.Name},
		attribute.Attribute{Key: "host", Value: host},
	)

	setGauge := func(name string, value float64) {
		if err := metricSet.SetMetric(name, value, metric.GAUGE); err != nil {
			log.Error("Could not set resource metric '%s': %s", name, err.Error())
		}
	}

	if size != nil {
		setGauge("storage.totalBytes", float64(size.TotalBytes))
		setGauge("storage.dataBytes", float64(size.DataBytes))
		setGauge("storage.logBytes", float64(size.LogBytes))
	}
	if connStats != nil {
		setGauge("connections.active", float64(connStats.ActiveConnections))
		setGauge("connections.idle", float64(connStats.IdleConnections))
		setGauge("connections.max", float64(connStats.MaxConnections))
		setGauge("connections.usagePercent", connStats.UsagePercent())
	}
	if utilization != nil {
		setGauge("resource.cpuPercent", utilization.CPUPercent)
		setGauge("resource.memoryUsedBytes", float64(utilization.MemoryUsedBytes))
		setGauge("resource.memoryTotalBytes", float64(utilization.MemoryTotalBytes))
		setGauge("resource.memoryUsagePercent", utilization.MemoryUsagePercent())
		setGauge("resource.diskUsedBytes", float64(utilization.DiskUsedBytes))
		setGauge("resource.diskTotalBytes", float64(utilization.DiskTotalBytes))
		setGauge("resource.diskUsagePercent", utilization.DiskUsagePercent())
	}
}

// PopulatePlanMetrics records a captured execution plan payload as a
// DbPlanSample. An empty payload means no plan was produced and nothing is
// published.
func PopulatePlanMetrics(entity *integration.Entity, host string, platform models.PlatformType, payload string) {
	if payload == "" {
		return
	}

	metricSet := entity.NewMetricSet("DbPlanSample",
		attribute.Attribute{Key: "displayName", Value: entity.Metadata.Name},
		attribute.Attribute{Key: "entityName", Value: entity.Metadata.Namespace + ":" + entity.Metadata.Name},
		attribute.Attribute{Key: "host", Value: host},
		attribute.Attribute{Key: "platform", Value: string(platform)},
	)
	if err := metricSet.SetMetric("plan.payload", payload, metric.ATTRIBUTE); err != nil {
		log.Error("Could not set plan payload attribute: %s", err.Error())
	}
}

// PopulateRunningQueryMetrics creates one DbRunningQuerySample per live
// session observed at collection time.
func PopulateRunningQueryMetrics(entity *integration.Entity, host string, running []models.RunningQuery) {
	for _, query := range running {
		metricSet := entity.NewMetricSet("DbRunningQuerySample",
			attribute.Attribute{Key: "displayName", Value: entity.Metadata.Name},
			attribute.Attribute{Key: "entityName", Value: entity.Metadata.Namespace + ":" + entity.Metadata.Name},
			attribute.Attribute{Key: "host", Value: host},
			attribute.Attribute{Key: "sessionId", Value: query.SessionID},
		)

		attributes := []struct {
			name  string
			value string
		}{
			{"session.queryText", query.QueryText},
			{"session.status", query.Status},
			{"session.userName", query.UserName},
			{"session.databaseName", query.DatabaseName},
		}
		for _, attr := range attributes {
			if err := metricSet.SetMetric(attr.name, attr.value, metric.ATTRIBUTE); err != nil {
				log.Error("Could not set running query attribute '%s': %s", attr.name, err.Error())
			}
		}
		if err := metricSet.SetMetric("session.durationInMilliseconds",
			float64(query.Duration/time.Millisecond), metric.GAUGE); err != nil {
			log.Error("Could not set running query duration: %s", err.Error())
		}
	}
}
