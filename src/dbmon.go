package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/integration"
	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/args"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/connection"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/metrics"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor/mysql"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor/oracle"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor/postgres"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/monitor/sqlserver"
	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/plancapture"
)

const (
	integrationName    = "com.dboptimizer.db-monitor"
	integrationVersion = "0.1.0"
)

// engineMonitor is what every platform adapter provides to the collection
// loop.
type engineMonitor interface {
	monitor.QueryMonitor
	monitor.HealthMonitor
}

var cliArgs args.ArgumentList

func main() {
	i, err := integration.New(integrationName, integrationVersion, integration.Args(&cliArgs))
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	log.SetupLogging(cliArgs.Verbose)

	if err := cliArgs.Validate(); err != nil {
		log.Error("Configuration error: %s", err.Error())
		os.Exit(1)
	}

	thresholds, err := monitor.LoadThresholds(cliArgs.HealthThresholdsFile)
	if err != nil {
		log.Error("Configuration error: %s", err.Error())
		os.Exit(1)
	}

	descriptor, err := connection.NewDescriptor(&cliArgs)
	if err != nil {
		log.Error("Error building connection target: %s", err.Error())
		os.Exit(1)
	}

	manager := connection.NewManager()
	manager.SetTarget(descriptor)
	if !manager.Connected() {
		log.Error("Connection target could not be configured")
		os.Exit(1)
	}

	ctx, cancel := collectionContext(cliArgs.Timeout)
	defer cancel()

	if !manager.Probe(ctx) {
		log.Warn("Target %s is not reachable, collection will likely fail", manager.CurrentServer())
	}

	engine, err := monitorFor(descriptor.Platform, manager, thresholds)
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	entity, err := i.Entity(manager.CurrentServer(), "db-instance")
	if err != nil {
		log.Error("Unable to create entity for target: %s", err.Error())
		os.Exit(1)
	}

	if cliArgs.HasMetrics() {
		collect(ctx, entity, engine, manager)
	}

	if cliArgs.ExplainQuery != "" {
		capturePlan(ctx, entity, manager)
	}

	if err := i.Publish(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

// monitorFor picks the platform adapter. All adapters read connections from
// the manager, so a later SetTarget is picked up by the next call.
func monitorFor(platform models.PlatformType, manager *connection.Manager, thresholds monitor.Thresholds) (engineMonitor, error) {
	switch platform {
	case models.PlatformSQLServer:
		return sqlserver.NewMonitor(manager, thresholds), nil
	case models.PlatformPostgreSQL:
		return postgres.NewMonitor(manager, thresholds), nil
	case models.PlatformMySQL:
		return mysql.NewMonitor(manager, thresholds), nil
	case models.PlatformOracle:
		return oracle.NewMonitor(manager, thresholds), nil
	}
	return nil, fmt.Errorf("unsupported platform %q", platform)
}

// collect runs every collection concurrently, each on its own connection,
// and publishes whatever succeeded. Individual failures are logged, not
// fatal; one unreadable view must not cost the rest of the cycle.
func collect(ctx context.Context, entity *integration.Entity, engine engineMonitor, manager *connection.Manager) {
	host := manager.CurrentServer()

	var (
		wg          sync.WaitGroup
		topQueries  []models.QueryMetric
		running     []models.RunningQuery
		health      *models.DatabaseHealth
		size        *models.DatabaseSize
		connStats   *models.ConnectionStatistics
		utilization *models.ResourceUtilization
		waits       []models.WaitStatistic
	)

	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Error("Could not collect %s: %s", name, err.Error())
			}
		}()
	}

	run("top queries", func() (err error) {
		topQueries, err = engine.TopQueries(ctx, cliArgs.TopQueryCount)
		return
	})
	run("running queries", func() (err error) {
		running, err = engine.RunningQueries(ctx)
		return
	})
	run("health", func() (err error) {
		health, err = engine.Health(ctx)
		return
	})
	run("database size", func() (err error) {
		size, err = engine.DatabaseSize(ctx)
		return
	})
	run("connection stats", func() (err error) {
		connStats, err = engine.ConnectionStats(ctx)
		return
	})
	run("resource utilization", func() (err error) {
		utilization, err = engine.ResourceUtilization(ctx)
		return
	})
	run("wait statistics", func() (err error) {
		waits, err = engine.WaitStatistics(ctx)
		return
	})
	wg.Wait()

	metrics.PopulateTopQueryMetrics(entity, host, topQueries)
	metrics.PopulateRunningQueryMetrics(entity, host, running)
	metrics.PopulateHealthMetrics(entity, host, health)
	metrics.PopulateWaitMetrics(entity, host, waits)
	metrics.PopulateResourceMetrics(entity, host, size, connStats, utilization)
}

func capturePlan(ctx context.Context, entity *integration.Entity, manager *connection.Manager) {
	service := plancapture.NewService(manager)
	payload, err := service.CaptureEstimatedPlan(ctx, cliArgs.ExplainQuery, plancapture.DefaultTimeout)
	if err != nil {
		log.Error("Could not capture execution plan: %s", err.Error())
		return
	}
	metrics.PopulatePlanMetrics(entity, manager.CurrentServer(), manager.Target().Platform, payload)
}

// collectionContext derives the cycle deadline from the timeout argument,
// expressed in seconds. Zero or unparseable values mean no deadline.
func collectionContext(timeout string) (context.Context, context.CancelFunc) {
	seconds, err := strconv.Atoi(timeout)
	if err != nil || seconds <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), time.Duration(seconds)*time.Second)
}
