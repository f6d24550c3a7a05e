package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"condobill/internal/domain"
	"condobill/internal/service"
)

// ReconcileStore opens the atomic unit around one obligation. The obligation
// row is selected FOR UPDATE, so concurrent payers of the same obligation
// serialize on it: the second caller's pending-amount read sees the first
// caller's committed payment. Different obligations never block each other.
type ReconcileStore struct {
	db *sql.DB
}

func NewReconcileStore(db *sql.DB) *ReconcileStore {
	return &ReconcileStore{db: db}
}

// txConflict reports whether err is a serialization failure or deadlock,
// which the engine retries once with a fresh read.
func txConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func translateTxErr(err error) error {
	if txConflict(err) {
		return fmt.Errorf("%w: %v", domain.ErrTxConflict, err)
	}
	return err
}

func lockObligation(ctx context.Context, tx *sql.Tx, ref domain.ObligationRef, ownerID *int64) (domain.Obligation, error) {
	base, err := obligationSelect(ref.Kind)
	if err != nil {
		return domain.Obligation{}, err
	}

	alias := kindAlias(ref.Kind)
	query := fmt.Sprintf("%s WHERE %s.id = $1", base, alias)
	args := []any{ref.ID}
	if ownerID != nil {
		query += " AND " + ownerClause(ref.Kind, 2)
		args = append(args, *ownerID)
	}
	query += fmt.Sprintf(" FOR UPDATE OF %s", alias)

	row := tx.QueryRowContext(ctx, query, args...)
	o, err := scanObligation(ref.Kind, row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Obligation{}, domain.ErrNotFound
		}
		return domain.Obligation{}, translateTxErr(err)
	}
	return o, nil
}

// Begin locks the obligation scoped to its owner. Absent ids and ownership
// mismatches are both domain.ErrNotFound.
func (s *ReconcileStore) Begin(ctx context.Context, ref domain.ObligationRef, partyID int64) (service.ReconcileTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translateTxErr(err)
	}

	o, err := lockObligation(ctx, tx, ref, &partyID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	return &reconcileTx{tx: tx, obligation: o}, nil
}

type reconcileTx struct {
	tx         *sql.Tx
	obligation domain.Obligation
}

func (t *reconcileTx) Obligation() domain.Obligation {
	return t.obligation
}

func (t *reconcileTx) SumConfirmedEquivalent(ctx context.Context) (decimal.Decimal, error) {
	total, err := sumConfirmedEquivalent(ctx, t.tx, t.obligation.Ref())
	if err != nil {
		return decimal.Zero, translateTxErr(err)
	}
	return total, nil
}

func (t *reconcileTx) AppendPayment(ctx context.Context, p *domain.Payment) error {
	return translateTxErr(appendPayment(ctx, t.tx, p))
}

func (t *reconcileTx) SetObligationState(ctx context.Context, s domain.ObligationState) error {
	return translateTxErr(setObligationState(ctx, t.tx, t.obligation.Ref(), s))
}

func (t *reconcileTx) Commit() error {
	return translateTxErr(t.tx.Commit())
}

func (t *reconcileTx) Rollback() error {
	return t.tx.Rollback()
}

// BeginByPayment enters the same atomic unit through a payment id, locking
// the obligation the payment references before any confirmation change.
func (s *ReconcileStore) BeginByPayment(ctx context.Context, paymentID string) (service.PaymentTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translateTxErr(err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID)
	p, err := scanPayment(row.Scan)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, translateTxErr(err)
	}

	o, err := lockObligation(ctx, tx, p.Ref, nil)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	return &paymentTx{tx: tx, payment: p, obligation: o}, nil
}

type paymentTx struct {
	tx         *sql.Tx
	payment    domain.Payment
	obligation domain.Obligation
}

func (t *paymentTx) Payment() domain.Payment {
	return t.payment
}

func (t *paymentTx) Obligation() domain.Obligation {
	return t.obligation
}

func (t *paymentTx) SetConfirmation(ctx context.Context, s domain.ConfirmationState) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE payments SET confirmation_state = $1, updated_at = now() WHERE id = $2`,
		s, t.payment.ID)
	return translateTxErr(err)
}

func (t *paymentTx) SumConfirmedEquivalent(ctx context.Context) (decimal.Decimal, error) {
	total, err := sumConfirmedEquivalent(ctx, t.tx, t.obligation.Ref())
	if err != nil {
		return decimal.Zero, translateTxErr(err)
	}
	return total, nil
}

func (t *paymentTx) SetObligationState(ctx context.Context, s domain.ObligationState) error {
	return translateTxErr(setObligationState(ctx, t.tx, t.obligation.Ref(), s))
}

func (t *paymentTx) Commit() error {
	return translateTxErr(t.tx.Commit())
}

func (t *paymentTx) Rollback() error {
	return t.tx.Rollback()
}
