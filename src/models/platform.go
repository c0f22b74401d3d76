// Package models contains the platform-neutral telemetry data model shared by
// all engine adapters and their consumers. Every type is a point-in-time
// snapshot owned by the caller once returned; nothing aliases back into
// adapter internals.
package models

import "fmt"

// PlatformType identifies the database engine a snapshot originated from.
type PlatformType string

const (
	PlatformSQLServer  PlatformType = "sqlserver"
	PlatformPostgreSQL PlatformType = "postgres"
	PlatformMySQL      PlatformType = "mysql"
	PlatformOracle     PlatformType = "oracle"
)

// ParsePlatform converts a platform name into a PlatformType.
func ParsePlatform(name string) (PlatformType, error) {
	switch PlatformType(name) {
	case PlatformSQLServer, PlatformPostgreSQL, PlatformMySQL, PlatformOracle:
		return PlatformType(name), nil
	}
	return "", fmt.Errorf("unknown platform %q", name)
}

// Valid reports whether p is one of the supported engines.
func (p PlatformType) Valid() bool {
	_, err := ParsePlatform(string(p))
	return err == nil
}

func (p PlatformType) String() string {
	return string(p)
}

// HealthStatus is the discrete state derived from the raw health indicators.
// It is computed, never set directly; see monitor.DeriveStatus.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "Healthy"
	StatusWarning  HealthStatus = "Warning"
	StatusCritical HealthStatus = "Critical"
	StatusUnknown  HealthStatus = "Unknown"
)
