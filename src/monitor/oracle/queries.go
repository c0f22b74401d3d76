package oracle

// Statements backing the Oracle adapter, reading the v$ performance views.
// Elapsed and CPU times there are microseconds and are scaled to
// milliseconds in SQL. v$sqlarea keeps only totals, so the per-execution
// minimum and maximum are not recoverable and are reported as the average.

const topQueriesQueryTemplate = `SELECT
		sql_id AS query_id,
		sql_text AS query_text,
		parsing_schema_name AS database_name,
		executions AS execution_count,
		elapsed_time / 1000 AS total_time_ms,
		elapsed_time / GREATEST(executions, 1) / 1000 AS avg_time_ms,
		elapsed_time / GREATEST(executions, 1) / 1000 AS min_time_ms,
		elapsed_time / GREATEST(executions, 1) / 1000 AS max_time_ms,
		rows_processed AS rows_returned,
		last_active_time AS last_executed_at
	FROM v$sqlarea
	WHERE executions > 0
	ORDER BY avg_time_ms DESC, execution_count DESC, query_id ASC
	FETCH FIRST %d ROWS ONLY`

const queryDetailsQuery = `SELECT
		sql_id AS query_id,
		sql_fulltext AS query_text,
		executions,
		elapsed_time / 1000 AS elapsed_time_ms,
		cpu_time / 1000 AS cpu_time_ms,
		buffer_gets,
		disk_reads,
		rows_processed
	FROM v$sqlarea
	WHERE sql_id = :1`

const executionPlanQuery = `SELECT
		id AS node_id,
		operation,
		options,
		object_name,
		NVL(cost, 0) AS cost,
		NVL(cardinality, 0) AS cardinality
	FROM v$sql_plan
	WHERE sql_id = :1
		AND child_number = 0
	ORDER BY id ASC`

const queryStatisticsQuery = `SELECT
		last_active_time AS sample_time,
		sql_id AS query_id,
		elapsed_time / GREATEST(executions, 1) / 1000 AS execution_time_ms,
		ROUND(rows_processed / GREATEST(executions, 1)) AS rows_returned,
		cpu_time / GREATEST(executions, 1) / 1000 AS cpu_time_ms,
		ROUND(buffer_gets / GREATEST(executions, 1)) AS logical_reads,
		ROUND(disk_reads / GREATEST(executions, 1)) AS physical_reads
	FROM v$sqlarea
	WHERE executions > 0
		AND last_active_time BETWEEN :1 AND :2
	ORDER BY last_active_time ASC`

const runningQueriesQuery = `SELECT
		TO_CHAR(s.sid) AS session_id,
		q.sql_text AS query_text,
		s.sql_exec_start AS start_time,
		ROUND((SYSDATE - s.sql_exec_start) * 86400000) AS duration_ms,
		s.status,
		s.username AS user_name,
		SYS_CONTEXT('USERENV', 'DB_NAME') AS database_name
	FROM v$session s
	JOIN v$sql q ON q.sql_id = s.sql_id AND q.child_number = 0
	WHERE s.type = 'USER'
		AND s.status = 'ACTIVE'
		AND s.sql_exec_start IS NOT NULL
		AND s.audsid <> SYS_CONTEXT('USERENV', 'SESSIONID')`

const healthQuery = `SELECT
		ROUND((SYSDATE - (SELECT startup_time FROM v$instance)) * 86400) AS uptime_seconds,
		(SELECT COUNT(*) FROM v$session WHERE type = 'USER') AS active_connections,
		(SELECT TO_NUMBER(value) FROM v$parameter WHERE name = 'sessions') AS max_connections,
		(SELECT SUM(value) FROM v$sysstat WHERE name = 'user calls') AS total_queries,
		(SELECT COUNT(*) FROM v$sqlarea
			WHERE executions > 0
			AND elapsed_time / executions / 1000 > 500) AS slow_queries,
		(SELECT COUNT(*) FROM v$session WHERE blocking_session IS NOT NULL) AS blocked_queries
	FROM dual`

const databaseSizeQuery = `SELECT
		SYS_CONTEXT('USERENV', 'DB_NAME') AS database_name,
		(SELECT SUM(bytes) FROM dba_data_files) AS data_bytes,
		(SELECT SUM(bytes * members) FROM v$log) AS log_bytes
	FROM dual`

const connectionStatsQuery = `SELECT
		(SELECT COUNT(*) FROM v$session WHERE type = 'USER' AND status = 'ACTIVE') AS active_connections,
		(SELECT COUNT(*) FROM v$session WHERE type = 'USER' AND status <> 'ACTIVE') AS idle_connections,
		(SELECT TO_NUMBER(value) FROM v$parameter WHERE name = 'sessions') AS max_connections
	FROM dual`

const resourceUtilizationQuery = `SELECT
		(SELECT SUM(value) FROM v$sga) AS memory_total_bytes,
		(SELECT SUM(bytes) FROM v$sgastat WHERE name <> 'free memory') AS memory_used_bytes,
		(SELECT SUM(bytes) FROM dba_data_files) AS disk_used_bytes
	FROM dual`

const waitStatsQueryTemplate = `SELECT
		event AS wait_type,
		time_waited_micro / 1000 AS wait_time_ms,
		total_waits AS wait_count
	FROM v$system_event
	WHERE wait_class <> 'Idle'
	ORDER BY time_waited_micro DESC
	FETCH FIRST %d ROWS ONLY`

const configurationQuery = `SELECT name, value FROM v$parameter ORDER BY name ASC`
