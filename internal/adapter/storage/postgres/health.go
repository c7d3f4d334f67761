package postgres

import (
	"context"
	"errors"
	"fmt"
)

var errSchemaMissing = errors.New("transactions table missing, migrations not applied")

// HealthCheck reports PostgreSQL as healthy once the transaction schema is
// reachable, not merely the server.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	var present bool
	if err := h.pool.QueryRow(ctx, `SELECT to_regclass('transactions') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("probing schema: %w", err)
	}
	if !present {
		return errSchemaMissing
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
