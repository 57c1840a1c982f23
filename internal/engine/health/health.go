// Package health exposes the monitor's state over HTTP for liveness
// probes and Prometheus scraping.
package health

// Status is the aggregate health level.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)
