package mysql

// Statements backing the MySQL adapter. Query telemetry comes from the
// performance_schema statement digests; timer columns are picoseconds and
// are scaled to milliseconds in SQL.

const topQueriesQueryTemplate = `SELECT
		digest AS query_id,
		digest_text AS query_text,
		IFNULL(schema_name, '') AS database_name,
		count_star AS execution_count,
		sum_timer_wait / 1000000000 AS total_time_ms,
		avg_timer_wait / 1000000000 AS avg_time_ms,
		min_timer_wait / 1000000000 AS min_time_ms,
		max_timer_wait / 1000000000 AS max_time_ms,
		sum_rows_sent AS rows_returned,
		last_seen AS last_executed_at
	FROM performance_schema.events_statements_summary_by_digest
	WHERE digest IS NOT NULL
		AND count_star > 0
	ORDER BY avg_time_ms DESC, execution_count DESC, query_id ASC
	LIMIT %d`

const queryDetailsQuery = `SELECT
		digest AS query_id,
		digest_text AS query_text,
		count_star,
		sum_timer_wait / 1000000000 AS sum_timer_wait_ms,
		sum_rows_sent,
		sum_rows_examined,
		sum_no_index_used,
		sum_created_tmp_disk_tables
	FROM performance_schema.events_statements_summary_by_digest
	WHERE digest = ?
	LIMIT 1`

const queryTextQuery = `SELECT digest_text
	FROM performance_schema.events_statements_summary_by_digest
	WHERE digest = ?
	LIMIT 1`

// Digest rows carry a last_seen timestamp, so a time range can be served
// directly, one sample per digest active inside the window.
const queryStatisticsQuery = `SELECT
		last_seen AS sample_time,
		digest AS query_id,
		avg_timer_wait / 1000000000 AS execution_time_ms,
		CASE WHEN count_star > 0 THEN sum_rows_sent / count_star ELSE 0 END AS rows_returned
	FROM performance_schema.events_statements_summary_by_digest
	WHERE digest IS NOT NULL
		AND last_seen BETWEEN ? AND ?
	ORDER BY last_seen ASC`

const runningQueriesQuery = `SELECT
		CONVERT(id, CHAR) AS session_id,
		IFNULL(info, '') AS query_text,
		NOW() - INTERVAL time SECOND AS start_time,
		time * 1000 AS duration_ms,
		IFNULL(state, '') AS status,
		user AS user_name,
		IFNULL(db, '') AS database_name
	FROM information_schema.processlist
	WHERE command <> 'Sleep'
		AND id <> CONNECTION_ID()`

const healthQuery = `SELECT
		(SELECT variable_value FROM performance_schema.global_status
			WHERE variable_name = 'Uptime') AS uptime_seconds,
		(SELECT variable_value FROM performance_schema.global_status
			WHERE variable_name = 'Threads_connected') AS active_connections,
		(SELECT variable_value FROM performance_schema.global_variables
			WHERE variable_name = 'max_connections') AS max_connections,
		(SELECT variable_value FROM performance_schema.global_status
			WHERE variable_name = 'Questions') AS total_queries,
		(SELECT variable_value FROM performance_schema.global_status
			WHERE variable_name = 'Slow_queries') AS slow_queries,
		(SELECT COUNT(*) FROM performance_schema.data_lock_waits) AS blocked_queries`

const databaseSizeQuery = `SELECT
		IFNULL(DATABASE(), '') AS database_name,
		IFNULL(SUM(data_length + index_length), 0) AS data_bytes
	FROM information_schema.tables
	WHERE table_schema = DATABASE()`

const connectionStatsQuery = `SELECT
		(SELECT variable_value FROM performance_schema.global_status
			WHERE variable_name = 'Threads_running') AS active_connections,
		(SELECT variable_value FROM performance_schema.global_status
			WHERE variable_name = 'Threads_connected') AS total_connections,
		(SELECT variable_value FROM performance_schema.global_variables
			WHERE variable_name = 'max_connections') AS max_connections`

const resourceUtilizationQuery = `SELECT
		(SELECT variable_value FROM performance_schema.global_variables
			WHERE variable_name = 'innodb_buffer_pool_size') AS memory_total_bytes,
		(SELECT variable_value FROM performance_schema.global_status
			WHERE variable_name = 'Innodb_buffer_pool_bytes_data') AS memory_used_bytes,
		(SELECT IFNULL(SUM(data_length + index_length), 0)
			FROM information_schema.tables) AS disk_used_bytes`

const waitStatsQueryTemplate = `SELECT
		event_name AS wait_type,
		sum_timer_wait / 1000000000 AS wait_time_ms,
		count_star AS wait_count
	FROM performance_schema.events_waits_summary_global_by_event_name
	WHERE count_star > 0
		AND event_name <> 'idle'
	ORDER BY sum_timer_wait DESC
	LIMIT %d`

const configurationQuery = `SELECT
		variable_name AS name,
		variable_value AS value
	FROM performance_schema.global_variables
	ORDER BY variable_name ASC`

const explainQueryPrefix = `EXPLAIN FORMAT=JSON `
