package models

import "time"

// DatabaseSize is a point-in-time storage snapshot.
type DatabaseSize struct {
	DatabaseName string
	TotalBytes   int64
	DataBytes    int64
	LogBytes     int64
	CollectedAt  time.Time
}

// ConnectionStatistics is a point-in-time connection usage snapshot.
type ConnectionStatistics struct {
	ActiveConnections int64
	IdleConnections   int64
	MaxConnections    int64
	CollectedAt       time.Time
}

// UsagePercent is the share of the connection limit in use. Derived from the
// stored fields on every call, never cached.
func (c ConnectionStatistics) UsagePercent() float64 {
	if c.MaxConnections <= 0 {
		return 0
	}
	return float64(c.ActiveConnections+c.IdleConnections) / float64(c.MaxConnections) * 100
}

// ResourceUtilization is a point-in-time host resource snapshot.
type ResourceUtilization struct {
	CPUPercent       float64
	MemoryUsedBytes  int64
	MemoryTotalBytes int64
	DiskUsedBytes    int64
	DiskTotalBytes   int64
	CollectedAt      time.Time
}

// MemoryUsagePercent is derived from the byte counters on every call.
func (r ResourceUtilization) MemoryUsagePercent() float64 {
	if r.MemoryTotalBytes <= 0 {
		return 0
	}
	return float64(r.MemoryUsedBytes) / float64(r.MemoryTotalBytes) * 100
}

// DiskUsagePercent is derived from the byte counters on every call.
func (r ResourceUtilization) DiskUsagePercent() float64 {
	if r.DiskTotalBytes <= 0 {
		return 0
	}
	return float64(r.DiskUsedBytes) / float64(r.DiskTotalBytes) * 100
}

// WaitStatistic is a point-in-time wait event snapshot.
type WaitStatistic struct {
	WaitType     string
	WaitTimeMs   float64
	WaitCount    int64
	ResourceName string
	CollectedAt  time.Time
}
