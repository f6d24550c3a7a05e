package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"condobill/internal/domain"
)

// confirmedEquivalentStates are the confirmation states counted toward
// settlement. Applied uniformly to all three obligation kinds.
const confirmedEquivalentStates = `('confirmed', 'pending_verification')`

// PaymentRepository is the append-only payment ledger. Appends happen
// through the reconcile store's transaction; this type covers the read and
// post-commit paths.
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// refColumn maps an obligation kind to the tagged-union column on payments.
// Exactly one of the three is non-null per row (enforced by a table check).
func refColumn(kind domain.ObligationKind) string {
	switch kind {
	case domain.KindDue:
		return "due_id"
	case domain.KindFine:
		return "fine_id"
	default:
		return "reservation_charge_id"
	}
}

const paymentColumns = `id, party_id, due_id, fine_id, reservation_charge_id, amount, method,
	confirmation_state, reference, receipt_url, recorded_by, created_at, updated_at`

func scanPayment(scan func(dest ...any) error) (domain.Payment, error) {
	var (
		p             domain.Payment
		dueID         sql.NullInt64
		fineID        sql.NullInt64
		reservationID sql.NullInt64
	)
	err := scan(
		&p.ID,
		&p.PartyID,
		&dueID,
		&fineID,
		&reservationID,
		&p.Amount,
		&p.Method,
		&p.Confirmation,
		&p.Reference,
		&p.ReceiptURL,
		&p.RecordedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Payment{}, err
	}

	switch {
	case dueID.Valid:
		p.Ref = domain.ObligationRef{Kind: domain.KindDue, ID: dueID.Int64}
	case fineID.Valid:
		p.Ref = domain.ObligationRef{Kind: domain.KindFine, ID: fineID.Int64}
	case reservationID.Valid:
		p.Ref = domain.ObligationRef{Kind: domain.KindReservation, ID: reservationID.Int64}
	}
	return p, nil
}

func appendPayment(ctx context.Context, q querier, p *domain.Payment) error {
	query := fmt.Sprintf(`
		INSERT INTO payments (id, party_id, %s, amount, method, confirmation_state, reference, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		refColumn(p.Ref.Kind))
	_, err := q.ExecContext(ctx, query,
		p.ID, p.PartyID, p.Ref.ID, p.Amount, p.Method, p.Confirmation, p.Reference, p.RecordedBy, p.CreatedAt)
	return err
}

func sumConfirmedEquivalent(ctx context.Context, q querier, ref domain.ObligationRef) (decimal.Decimal, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE %s = $1 AND confirmation_state IN %s`,
		refColumn(ref.Kind), confirmedEquivalentStates)

	var total decimal.Decimal
	if err := q.QueryRowContext(ctx, query, ref.ID).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// Get loads one payment by id.
func (r *PaymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrNotFound
		}
		return domain.Payment{}, err
	}
	return p, nil
}

// ListByObligation returns every payment attempt against an obligation,
// oldest first, regardless of confirmation state.
func (r *PaymentRepository) ListByObligation(ctx context.Context, ref domain.ObligationRef) ([]domain.Payment, error) {
	query := fmt.Sprintf(
		`SELECT `+paymentColumns+` FROM payments WHERE %s = $1 ORDER BY created_at, id`,
		refColumn(ref.Kind))

	rows, err := r.db.QueryContext(ctx, query, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SumConfirmedEquivalent aggregates the confirmed-equivalent total for one
// obligation outside the atomic unit.
func (r *PaymentRepository) SumConfirmedEquivalent(ctx context.Context, ref domain.ObligationRef) (decimal.Decimal, error) {
	return sumConfirmedEquivalent(ctx, r.db, ref)
}

// UpdateReceiptURL attaches the stored receipt location to a payment.
func (r *PaymentRepository) UpdateReceiptURL(ctx context.Context, paymentID, url string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET receipt_url = $1, updated_at = now() WHERE id = $2`,
		url, paymentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
