package postgres

import (
	"context"
	"fmt"

	"topup-storefront/internal/core/domain"

	"github.com/google/uuid"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Create appends one event.
func (r *EventRepo) Create(ctx context.Context, e *domain.TransactionEvent) error {
	query := `INSERT INTO transaction_events (id, transaction_id, kind, from_status, to_status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.TransactionID, string(e.Kind),
		statusArg(e.FromStatus), statusArg(e.ToStatus), e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction event: %w", err)
	}
	return nil
}

// ListByTransaction returns the events of one transaction in order.
func (r *EventRepo) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.TransactionEvent, error) {
	query := `SELECT id, transaction_id, kind, from_status, to_status, detail, created_at
		FROM transaction_events WHERE transaction_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list transaction events: %w", err)
	}
	defer rows.Close()

	var events []domain.TransactionEvent
	for rows.Next() {
		var (
			e        domain.TransactionEvent
			kind     string
			from, to *string
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &kind, &from, &to, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.FromStatus = statusFrom(from)
		e.ToStatus = statusFrom(to)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction events: %w", err)
	}
	return events, nil
}

func statusArg(s *domain.TransactionStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func statusFrom(s *string) *domain.TransactionStatus {
	if s == nil {
		return nil
	}
	v := domain.TransactionStatus(*s)
	return &v
}
