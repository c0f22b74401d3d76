package monitor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/rweisssieker-xp/DB-Optimizer-AI-sub003/src/models"
)

// Thresholds map raw health indicators to a discrete status. The defaults
// are deliberately conservative; deployments tune them through a YAML file.
type Thresholds struct {
	CPUWarningPercent         float64 `yaml:"cpu_warning_percent"`
	CPUCriticalPercent        float64 `yaml:"cpu_critical_percent"`
	MemoryWarningPercent      float64 `yaml:"memory_warning_percent"`
	MemoryCriticalPercent     float64 `yaml:"memory_critical_percent"`
	DiskWarningPercent        float64 `yaml:"disk_warning_percent"`
	DiskCriticalPercent       float64 `yaml:"disk_critical_percent"`
	ConnectionWarningPercent  float64 `yaml:"connection_warning_percent"`
	ConnectionCriticalPercent float64 `yaml:"connection_critical_percent"`
}

// DefaultThresholds returns the built-in threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarningPercent:         75,
		CPUCriticalPercent:        90,
		MemoryWarningPercent:      85,
		MemoryCriticalPercent:     95,
		DiskWarningPercent:        85,
		DiskCriticalPercent:       95,
		ConnectionWarningPercent:  80,
		ConnectionCriticalPercent: 95,
	}
}

// LoadThresholds reads threshold overrides from a YAML file. An empty path
// returns the defaults. Fields absent from the file keep their defaults.
func LoadThresholds(path string) (Thresholds, error) {
	thresholds := DefaultThresholds()
	if path == "" {
		return thresholds, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return thresholds, fmt.Errorf("failed to read health thresholds file: %w", err)
	}
	if err := yaml.Unmarshal(b, &thresholds); err != nil {
		return thresholds, fmt.Errorf("failed to parse health thresholds file: %w", err)
	}
	return thresholds, nil
}

// DeriveStatus computes the discrete health status from the indicators on h.
// Any indicator at or past its critical threshold makes the whole snapshot
// Critical; any at or past warning makes it Warning; a snapshot with no
// populated indicators is Unknown. Status is never settable independently of
// the indicators.
func DeriveStatus(h models.DatabaseHealth, thresholds Thresholds) models.HealthStatus {
	if h.Uptime == 0 && h.CPUPercent == 0 && h.MemoryPercent == 0 && h.DiskPercent == 0 && h.MaxConnections == 0 {
		return models.StatusUnknown
	}

	connectionUsage := h.ConnectionUsagePercent()

	switch {
	case h.CPUPercent >= thresholds.CPUCriticalPercent,
		h.MemoryPercent >= thresholds.MemoryCriticalPercent,
		h.DiskPercent >= thresholds.DiskCriticalPercent,
		h.MaxConnections > 0 && connectionUsage >= thresholds.ConnectionCriticalPercent:
		return models.StatusCritical
	case h.CPUPercent >= thresholds.CPUWarningPercent,
		h.MemoryPercent >= thresholds.MemoryWarningPercent,
		h.DiskPercent >= thresholds.DiskWarningPercent,
		h.MaxConnections > 0 && connectionUsage >= thresholds.ConnectionWarningPercent:
		return models.StatusWarning
	}
	return models.StatusHealthy
}

// BuildIssues derives the issue list that accompanies a non-healthy status.
// One issue per indicator past a threshold, critical first.
func BuildIssues(h models.DatabaseHealth, thresholds Thresholds) []models.HealthIssue {
	var issues []models.HealthIssue

	check := func(category string, value, warning, critical float64, recommendation string) {
		switch {
		case value >= critical:
			issues = append(issues, models.HealthIssue{
				Category:       category,
				Description:    fmt.Sprintf("%s at %.1f%% exceeds critical threshold %.1f%%", category, value, critical),
				Severity:       models.SeverityCritical,
				Recommendation: recommendation,
			})
		case value >= warning:
			issues = append(issues, models.HealthIssue{
				Category:       category,
				Description:    fmt.Sprintf("%s at %.1f%% exceeds warning threshold %.1f%%", category, value, warning),
				Severity:       models.SeverityWarning,
				Recommendation: recommendation,
			})
		}
	}

	check("CPU usage", h.CPUPercent, thresholds.CPUWarningPercent, thresholds.CPUCriticalPercent,
		"Identify the top CPU consumers and consider tuning or scaling")
	check("Memory usage", h.MemoryPercent, thresholds.MemoryWarningPercent, thresholds.MemoryCriticalPercent,
		"Review memory-intensive queries and buffer configuration")
	check("Disk usage", h.DiskPercent, thresholds.DiskWarningPercent, thresholds.DiskCriticalPercent,
		"Free storage or extend the data volume")
	if h.MaxConnections > 0 {
		check("Connection usage", h.ConnectionUsagePercent(), thresholds.ConnectionWarningPercent, thresholds.ConnectionCriticalPercent,
			"Investigate connection leaks or raise the connection limit")
	}

	return issues
}
