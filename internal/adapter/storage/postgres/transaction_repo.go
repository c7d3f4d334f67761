package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, user_id, game_id, denomination_id, product_code, destination_account,
	display_name, total_price, payment_method, status, payment_session_token, payment_url,
	payment_expires_at, payment_reference, provider_response_enc, fulfillment_status,
	fulfillment_reference, fulfillment_message, created_at, updated_at`

// TransactionRepo implements ports.TransactionRepository. Every mutation is
// a single conditional UPDATE; RowsAffected tells the caller whether it won.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction.
func (r *TransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, user_id, game_id, denomination_id, product_code,
		destination_account, display_name, total_price, status, fulfillment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.UserID, t.GameID, t.DenominationID, t.ProductCode,
		t.DestinationAccount, t.DisplayName, t.TotalPrice,
		string(t.Status), string(t.FulfillmentStatus), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// SetPaymentMethod records the method on a PENDING transaction that has none
// or already has the same one.
func (r *TransactionRepo) SetPaymentMethod(ctx context.Context, id uuid.UUID, method string) (bool, error) {
	query := `UPDATE transactions SET payment_method = $2, updated_at = now()
		WHERE id = $1 AND status = 'PENDING' AND (payment_method IS NULL OR payment_method = $2)`

	tag, err := r.pool.Exec(ctx, query, id, method)
	if err != nil {
		return false, fmt.Errorf("set payment method: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SaveSession stores the gateway session while the transaction is PENDING.
func (r *TransactionRepo) SaveSession(ctx context.Context, id uuid.UUID, s *domain.PaymentSession) error {
	query := `UPDATE transactions
		SET payment_session_token = $2, payment_url = $3, payment_expires_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`

	if _, err := r.pool.Exec(ctx, query, id, s.Token, s.RedirectURL, s.ExpiresAt); err != nil {
		return fmt.Errorf("save payment session: %w", err)
	}
	return nil
}

// TransitionStatus moves the status to p.To only from one of p.From.
// The gateway reference and response blob are kept when not supplied.
func (r *TransactionRepo) TransitionStatus(ctx context.Context, p ports.TransitionParams) (bool, error) {
	if len(p.From) == 0 {
		return false, nil
	}
	from := make([]string, len(p.From))
	for i, s := range p.From {
		from[i] = string(s)
	}

	query := `UPDATE transactions
		SET status = $2,
			payment_reference = COALESCE($3, payment_reference),
			provider_response_enc = COALESCE($4, provider_response_enc),
			updated_at = now()
		WHERE id = $1 AND status = ANY($5)`

	tag, err := r.pool.Exec(ctx, query, p.ID, string(p.To), p.PaymentReference, p.ProviderResponseEnc, from)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimFulfillment takes the delivery claim of a COMPLETED transaction.
func (r *TransactionRepo) ClaimFulfillment(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE transactions SET fulfillment_status = 'IN_PROGRESS', updated_at = now()
		WHERE id = $1 AND status = 'COMPLETED' AND fulfillment_status IN ('NOT_STARTED', 'PENDING')`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("claim fulfillment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseFulfillment hands an IN_PROGRESS claim back.
func (r *TransactionRepo) ReleaseFulfillment(ctx context.Context, id uuid.UUID, to domain.FulfillmentStatus) error {
	query := `UPDATE transactions SET fulfillment_status = $2, updated_at = now()
		WHERE id = $1 AND fulfillment_status = 'IN_PROGRESS'`

	if _, err := r.pool.Exec(ctx, query, id, string(to)); err != nil {
		return fmt.Errorf("release fulfillment: %w", err)
	}
	return nil
}

// RecordFulfillment stores the provider verdict on the current claim.
func (r *TransactionRepo) RecordFulfillment(ctx context.Context, id uuid.UUID, res *domain.FulfillmentResult) (bool, error) {
	query := `UPDATE transactions
		SET fulfillment_status = $2, fulfillment_reference = $3, fulfillment_message = $4, updated_at = now()
		WHERE id = $1 AND fulfillment_status = 'IN_PROGRESS'`

	tag, err := r.pool.Exec(ctx, query, id, string(res.Status), res.Reference, res.Message)
	if err != nil {
		return false, fmt.Errorf("record fulfillment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseStaleClaim hands back a claim whose holder stopped before recording
// a verdict. PENDING makes it claimable again under the same provider ref_id.
func (r *TransactionRepo) ReleaseStaleClaim(ctx context.Context, id uuid.UUID, olderThan time.Time) (bool, error) {
	query := `UPDATE transactions SET fulfillment_status = 'PENDING', updated_at = now()
		WHERE id = $1 AND status = 'COMPLETED' AND fulfillment_status = 'IN_PROGRESS' AND updated_at < $2`

	tag, err := r.pool.Exec(ctx, query, id, olderThan)
	if err != nil {
		return false, fmt.Errorf("release stale claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListAwaitingSettlement returns unpaid transactions with a payment method,
// least recently checked first so abandoned sessions cannot hold the head
// of the queue.
func (r *TransactionRepo) ListAwaitingSettlement(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status IN ('PENDING', 'PROCESSING') AND payment_method IS NOT NULL
			AND COALESCE(reconciled_at, updated_at) < $1
		ORDER BY COALESCE(reconciled_at, updated_at) LIMIT $2`

	return r.list(ctx, query, olderThan, limit)
}

// MarkReconciled records when the reconciler last asked the gateway about id.
func (r *TransactionRepo) MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE transactions SET reconciled_at = $2 WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark reconciled: %w", err)
	}
	return nil
}

// ListAwaitingFulfillment returns paid transactions whose delivery has not
// reached a final verdict, oldest first.
func (r *TransactionRepo) ListAwaitingFulfillment(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = 'COMPLETED' AND fulfillment_status IN ('NOT_STARTED', 'PENDING') AND updated_at < $1
		ORDER BY updated_at LIMIT $2`

	return r.list(ctx, query, olderThan, limit)
}

func (r *TransactionRepo) list(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var status, fulfillment string
	err := row.Scan(
		&t.ID, &t.UserID, &t.GameID, &t.DenominationID, &t.ProductCode, &t.DestinationAccount,
		&t.DisplayName, &t.TotalPrice, &t.PaymentMethod, &status, &t.PaymentSessionToken, &t.PaymentURL,
		&t.PaymentExpiresAt, &t.PaymentReference, &t.ProviderResponseEnc, &fulfillment,
		&t.FulfillmentReference, &t.FulfillmentMessage, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TransactionStatus(status)
	t.FulfillmentStatus = domain.FulfillmentStatus(fulfillment)
	return t, nil
}
