package domain

import "time"

// ResourceType names a resource the Health Monitor samples.
type ResourceType string

// Resource types the Health Monitor samples.
const (
	ResourceMemory    ResourceType = "memory"
	ResourceCPU       ResourceType = "cpu"
	ResourceDisk      ResourceType = "disk"
	ResourceThreads   ResourceType = "threads"
	ResourceWebhook   ResourceType = "webhook"
	ResourcePublicURL ResourceType = "public_url"
)

// HealthStatus is the derived status of a sample.
type HealthStatus string

// Status values, ordered least to most severe.
const (
	HealthHealthy   HealthStatus = "healthy"
	HealthWarning   HealthStatus = "warning"
	HealthCritical  HealthStatus = "critical"
	HealthEmergency HealthStatus = "emergency"
)

// HealthThresholds gates a resource's value (0-100) into a HealthStatus.
// The ordering Warning <= Critical <= Emergency is checked only by Valid;
// nothing rejects thresholds that break it.
type HealthThresholds struct {
	Warning   float64
	Critical  float64
	Emergency float64
}

// Valid reports whether the thresholds are monotonically non-decreasing.
func (t HealthThresholds) Valid() bool {
	return t.Warning <= t.Critical && t.Critical <= t.Emergency
}

// Status classifies a sampled value against the thresholds.
func (t HealthThresholds) Status(value float64) HealthStatus {
	switch {
	case value >= t.Emergency:
		return HealthEmergency
	case value >= t.Critical:
		return HealthCritical
	case value >= t.Warning:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

// DefaultHealthThresholds returns sane defaults per resource type.
func DefaultHealthThresholds() map[ResourceType]HealthThresholds {
	return map[ResourceType]HealthThresholds{
		ResourceMemory:    {Warning: 70, Critical: 85, Emergency: 95},
		ResourceCPU:       {Warning: 75, Critical: 90, Emergency: 98},
		ResourceDisk:      {Warning: 70, Critical: 85, Emergency: 95},
		ResourceThreads:   {Warning: 60, Critical: 80, Emergency: 95},
		ResourceWebhook:   {Warning: 20, Critical: 50, Emergency: 80},
		ResourcePublicURL: {Warning: 20, Critical: 50, Emergency: 80},
	}
}

// HealthMetric is one sample for one resource.
type HealthMetric struct {
	ID           string
	ResourceType ResourceType
	Timestamp    time.Time
	Value        float64
	Status       HealthStatus
	Metadata     map[string]string
}

// HealthMetricRepository is the Store's port for the persisted health log.
type HealthMetricRepository interface {
	AppendHealthMetric(ctx Context, m HealthMetric) (string, error)
	RecentHealthMetrics(ctx Context, resource ResourceType, limit int) ([]HealthMetric, error)
}
