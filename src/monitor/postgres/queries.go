package postgres

// Statements backing the PostgreSQL adapter. Query telemetry comes from the
// pg_stat_statements extension; the adapter surfaces a clear error when the
// extension is not installed rather than inventing data.

const topQueriesQueryTemplate = `SELECT
		queryid::text AS query_id,
		query AS query_text,
		current_database() AS database_name,
		calls AS execution_count,
		total_exec_time AS total_time_ms,
		mean_exec_time AS avg_time_ms,
		min_exec_time AS min_time_ms,
		max_exec_time AS max_time_ms,
		rows AS rows_returned
	FROM pg_stat_statements
	WHERE calls > 0
	ORDER BY mean_exec_time DESC, calls DESC, queryid ASC
	LIMIT %d`

const queryDetailsQuery = `SELECT
		queryid::text AS query_id,
		query AS query_text,
		calls,
		total_exec_time,
		rows,
		shared_blks_hit,
		shared_blks_read,
		temp_blks_read,
		temp_blks_written
	FROM pg_stat_statements
	WHERE queryid::text = $1
	LIMIT 1`

const queryTextQuery = `SELECT query FROM pg_stat_statements WHERE queryid::text = $1 LIMIT 1`

// pg_stat_statements keeps cumulative counters, not a time series. The
// adapter stamps each snapshot with now() and filters client-side.
const queryStatisticsQuery = `SELECT
		now() AS sample_time,
		queryid::text AS query_id,
		mean_exec_time AS execution_time_ms,
		CASE WHEN calls > 0 THEN rows / calls ELSE 0 END AS rows_returned,
		shared_blks_hit AS logical_reads,
		shared_blks_read AS physical_reads
	FROM pg_stat_statements
	WHERE calls > 0
	ORDER BY queryid ASC`

const runningQueriesQuery = `SELECT
		pid::text AS session_id,
		query AS query_text,
		query_start AS start_time,
		COALESCE(EXTRACT(EPOCH FROM (now() - query_start)) * 1000, 0)::bigint AS duration_ms,
		state AS status,
		usename AS user_name,
		datname AS database_name
	FROM pg_stat_activity
	WHERE state IS NOT NULL
		AND state <> 'idle'
		AND pid <> pg_backend_pid()`

const healthQuery = `SELECT
		EXTRACT(EPOCH FROM (now() - pg_postmaster_start_time()))::bigint AS uptime_seconds,
		(SELECT COUNT(*) FROM pg_stat_activity WHERE state IS NOT NULL) AS active_connections,
		current_setting('max_connections')::bigint AS max_connections,
		(SELECT COALESCE(SUM(xact_commit + xact_rollback), 0) FROM pg_stat_database) AS total_queries,
		(SELECT COUNT(*) FROM pg_stat_activity WHERE wait_event_type = 'Lock') AS blocked_queries`

const slowQueryCountQuery = `SELECT COUNT(*) AS slow_queries FROM pg_stat_statements WHERE mean_exec_time > 500`

const databaseSizeQuery = `SELECT
		current_database() AS database_name,
		pg_database_size(current_database()) AS data_bytes,
		COALESCE((SELECT SUM(size) FROM pg_ls_waldir()), 0)::bigint AS log_bytes`

const connectionStatsQuery = `SELECT
		COUNT(*) FILTER (WHERE state = 'active') AS active_connections,
		COUNT(*) FILTER (WHERE state = 'idle') AS idle_connections,
		current_setting('max_connections')::bigint AS max_connections
	FROM pg_stat_activity
	WHERE state IS NOT NULL`

const resourceUtilizationQuery = `SELECT
		(SELECT setting::bigint * 8192 FROM pg_settings WHERE name = 'shared_buffers') AS memory_total_bytes,
		pg_database_size(current_database()) AS disk_used_bytes`

const waitStatsQuery = `SELECT
		wait_event_type || ':' || wait_event AS wait_type,
		COUNT(*) AS wait_count
	FROM pg_stat_activity
	WHERE wait_event IS NOT NULL
	GROUP BY wait_event_type, wait_event
	ORDER BY wait_count DESC, wait_type ASC`

const configurationQuery = `SELECT name, setting AS value FROM pg_settings ORDER BY name ASC`

const explainQueryPrefix = `EXPLAIN (FORMAT JSON) `
