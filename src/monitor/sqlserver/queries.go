package sqlserver

// DMV queries backing the SQL Server adapter. Limits are formatted into the
// statement because TOP does not accept a bind parameter in all supported
// versions; caller input always rides bind parameters.

const topQueriesQueryTemplate = `SELECT TOP (%d)
		CONVERT(VARCHAR(32), qs.query_hash, 1) AS query_id,
		MIN(st.text) AS query_text,
		DB_NAME(MIN(CONVERT(INT, pa.value))) AS database_name,
		SUM(qs.execution_count) AS execution_count,
		SUM(qs.total_elapsed_time) / 1000.0 AS total_time_ms,
		SUM(qs.total_elapsed_time) / NULLIF(SUM(qs.execution_count), 0) / 1000.0 AS avg_time_ms,
		MIN(qs.min_elapsed_time) / 1000.0 AS min_time_ms,
		MAX(qs.max_elapsed_time) / 1000.0 AS max_time_ms,
		SUM(qs.total_rows) AS rows_returned,
		MAX(qs.last_execution_time) AS last_executed_at
	FROM sys.dm_exec_query_stats qs
	CROSS APPLY sys.dm_exec_sql_text(qs.sql_handle) st
	CROSS APPLY sys.dm_exec_plan_attributes(qs.plan_handle) pa
	WHERE pa.attribute = 'dbid'
		AND qs.execution_count > 0
		AND st.text IS NOT NULL
	GROUP BY qs.query_hash
	ORDER BY avg_time_ms DESC, execution_count DESC, query_id ASC`

const queryDetailsQuery = `SELECT TOP 1
		CONVERT(VARCHAR(32), qs.query_hash, 1) AS query_id,
		st.text AS query_text,
		qs.execution_count,
		qs.total_worker_time,
		qs.total_elapsed_time,
		qs.total_logical_reads,
		qs.total_physical_reads,
		qs.total_logical_writes,
		qs.total_rows
	FROM sys.dm_exec_query_stats qs
	CROSS APPLY sys.dm_exec_sql_text(qs.sql_handle) st
	WHERE CONVERT(VARCHAR(32), qs.query_hash, 1) = @p1
	ORDER BY qs.last_execution_time DESC`

const executionPlanXMLQuery = `SELECT TOP 1
		CONVERT(NVARCHAR(MAX), qp.query_plan) AS plan_xml
	FROM sys.dm_exec_query_stats qs
	CROSS APPLY sys.dm_exec_query_plan(qs.plan_handle) qp
	WHERE CONVERT(VARCHAR(32), qs.query_hash, 1) = @p1
		AND qp.query_plan IS NOT NULL
	ORDER BY qs.last_execution_time DESC`

const executionPlanNodesQuery = `WITH XMLNAMESPACES (DEFAULT 'http://schemas.microsoft.com/sqlserver/2004/07/showplan'),
	LatestPlan AS (
		SELECT TOP 1 qp.query_plan
		FROM sys.dm_exec_query_stats qs
		CROSS APPLY sys.dm_exec_query_plan(qs.plan_handle) qp
		WHERE CONVERT(VARCHAR(32), qs.query_hash, 1) = @p1
			AND qp.query_plan IS NOT NULL
		ORDER BY qs.last_execution_time DESC
	)
	SELECT
		n.value('(@NodeId)[1]', 'INT') AS node_id,
		n.value('(@PhysicalOp)[1]', 'VARCHAR(128)') AS physical_op,
		n.value('(@LogicalOp)[1]', 'VARCHAR(128)') AS logical_op,
		n.value('(@EstimateRows)[1]', 'FLOAT') AS estimate_rows,
		n.value('(@EstimatedTotalSubtreeCost)[1]', 'FLOAT') AS total_subtree_cost,
		n.value('(.//Object/@Table)[1]', 'VARCHAR(128)') AS object_name
	FROM LatestPlan lp
	CROSS APPLY lp.query_plan.nodes('//RelOp') AS RelOps(n)
	ORDER BY node_id ASC`

// Query Store keeps per-interval runtime stats; it shipped with SQL Server
// 2016 (major version 13), which the adapter gates on.
const queryStatisticsQuery = `SELECT
		rsi.start_time AS sample_time,
		CONVERT(VARCHAR(32), q.query_hash, 1) AS query_id,
		rs.avg_duration / 1000.0 AS execution_time_ms,
		rs.avg_rowcount AS rows_returned,
		rs.avg_cpu_time / 1000.0 AS cpu_time_ms,
		rs.avg_logical_io_reads AS logical_reads,
		rs.avg_physical_io_reads AS physical_reads
	FROM sys.query_store_runtime_stats rs
	JOIN sys.query_store_runtime_stats_interval rsi
		ON rs.runtime_stats_interval_id = rsi.runtime_stats_interval_id
	JOIN sys.query_store_plan p ON rs.plan_id = p.plan_id
	JOIN sys.query_store_query q ON p.query_id = q.query_id
	WHERE rsi.start_time BETWEEN @p1 AND @p2
	ORDER BY rsi.start_time ASC`

const runningQueriesQuery = `SELECT
		CONVERT(VARCHAR(16), r.session_id) AS session_id,
		st.text AS query_text,
		r.start_time,
		DATEDIFF(MILLISECOND, r.start_time, GETDATE()) AS duration_ms,
		r.status,
		s.login_name AS user_name,
		DB_NAME(r.database_id) AS database_name,
		CONVERT(FLOAT, r.cpu_time) AS cpu_time_ms,
		r.granted_query_memory * 8 AS memory_kb
	FROM sys.dm_exec_requests r
	JOIN sys.dm_exec_sessions s ON r.session_id = s.session_id
	CROSS APPLY sys.dm_exec_sql_text(r.sql_handle) st
	WHERE s.is_user_process = 1
		AND r.session_id <> @@SPID`

const healthQuery = `SELECT
		DATEDIFF(SECOND, si.sqlserver_start_time, GETDATE()) AS uptime_seconds,
		(SELECT COUNT(*) FROM sys.dm_exec_sessions WHERE is_user_process = 1) AS active_connections,
		@@MAX_CONNECTIONS AS max_connections,
		(SELECT SUM(qs.execution_count) FROM sys.dm_exec_query_stats qs) AS total_queries,
		(SELECT COUNT(*) FROM sys.dm_exec_query_stats qs
			WHERE qs.execution_count > 0
			AND (qs.total_elapsed_time / qs.execution_count) / 1000.0 > 500) AS slow_queries,
		(SELECT COUNT(*) FROM sys.dm_exec_requests WHERE blocking_session_id <> 0) AS blocked_queries,
		(SELECT CONVERT(FLOAT, (sm.total_physical_memory_kb - sm.available_physical_memory_kb)) * 100.0
			/ NULLIF(sm.total_physical_memory_kb, 0)
			FROM sys.dm_os_sys_memory sm) AS memory_percent
	FROM sys.dm_os_sys_info si`

const cpuUtilizationQuery = `SELECT TOP 1
		record.value('(./Record/SchedulerMonitorEvent/SystemHealth/ProcessUtilization)[1]', 'int') AS process_utilization
	FROM (
		SELECT CONVERT(XML, record) AS record
		FROM sys.dm_os_ring_buffers
		WHERE ring_buffer_type = N'RING_BUFFER_SCHEDULER_MONITOR'
			AND record LIKE '%<SystemHealth>%'
	) AS rb`

const volumeStatsQuery = `SELECT TOP 1
		vs.total_bytes,
		vs.available_bytes
	FROM sys.master_files mf
	CROSS APPLY sys.dm_os_volume_stats(mf.database_id, mf.file_id) vs
	WHERE mf.database_id = DB_ID()`

const memoryStatsQuery = `SELECT
		total_physical_memory_kb * 1024 AS total_memory_bytes,
		(total_physical_memory_kb - available_physical_memory_kb) * 1024 AS used_memory_bytes
	FROM sys.dm_os_sys_memory`

const databaseSizeQuery = `SELECT
		DB_NAME() AS database_name,
		SUM(CASE WHEN type_desc = 'ROWS' THEN CONVERT(BIGINT, size) ELSE 0 END) * 8192 AS data_bytes,
		SUM(CASE WHEN type_desc = 'LOG' THEN CONVERT(BIGINT, size) ELSE 0 END) * 8192 AS log_bytes
	FROM sys.database_files`

const connectionStatsQuery = `SELECT
		SUM(CASE WHEN status <> 'sleeping' THEN 1 ELSE 0 END) AS active_connections,
		SUM(CASE WHEN status = 'sleeping' THEN 1 ELSE 0 END) AS idle_connections,
		@@MAX_CONNECTIONS AS max_connections
	FROM sys.dm_exec_sessions
	WHERE is_user_process = 1`

const waitStatsQueryTemplate = `SELECT TOP (%d)
		wait_type,
		CONVERT(FLOAT, wait_time_ms) AS wait_time_ms,
		waiting_tasks_count AS wait_count
	FROM sys.dm_os_wait_stats
	WHERE wait_time_ms > 0
	ORDER BY wait_time_ms DESC`

const configurationQuery = `SELECT
		name,
		CONVERT(VARCHAR(128), value_in_use) AS value
	FROM sys.configurations
	ORDER BY name ASC`

const serverVersionQuery = `SELECT @@VERSION`
