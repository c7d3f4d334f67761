package ports

//go:generate mockgen -source=health.go -destination=mocks/mock_health.go -package=mocks

import "context"

// HealthChecker is implemented by every backing store reported on /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string // e.g. "postgresql", "redis"
}
