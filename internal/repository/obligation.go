package repository

import (
	"context"
	"database/sql"
	"fmt"

	"condobill/internal/domain"
)

// ObligationRepository reads the three obligation tables. It holds no
// business logic: state transitions are decided by the reconciliation
// engine, this layer only stores and filters.
type ObligationRepository struct {
	db *sql.DB
}

func NewObligationRepository(db *sql.DB) *ObligationRepository {
	return &ObligationRepository{db: db}
}

// querier is satisfied by *sql.DB and *sql.Tx so the reconcile store can
// reuse the same selects inside its transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Per-kind bases. Dues attach to units, so ownership goes through the unit;
// fines are owned through either role; reservation charges directly.
const (
	dueSelect = `
		SELECT d.id, u.party_id, d.unit_id, 0, 0, u.label, d.period, d.amount, d.state
		FROM dues d
		JOIN units u ON u.id = d.unit_id`

	fineSelect = `
		SELECT f.id, 0, 0, f.responsible_party_id, f.infractor_party_id, f.reason, '', f.amount, f.state
		FROM fines f`

	reservationSelect = `
		SELECT r.id, r.party_id, 0, 0, 0, r.area_label, to_char(r.reserved_for, 'YYYY-MM-DD'), r.amount, r.state
		FROM reservation_charges r`
)

func obligationSelect(kind domain.ObligationKind) (string, error) {
	switch kind {
	case domain.KindDue:
		return dueSelect, nil
	case domain.KindFine:
		return fineSelect, nil
	case domain.KindReservation:
		return reservationSelect, nil
	}
	return "", fmt.Errorf("unknown obligation kind %q", kind)
}

func ownerClause(kind domain.ObligationKind, arg int) string {
	switch kind {
	case domain.KindDue:
		return fmt.Sprintf("u.party_id = $%d", arg)
	case domain.KindFine:
		return fmt.Sprintf("(f.responsible_party_id = $%d OR f.infractor_party_id = $%d)", arg, arg)
	default:
		return fmt.Sprintf("r.party_id = $%d", arg)
	}
}

func kindAlias(kind domain.ObligationKind) string {
	switch kind {
	case domain.KindFine:
		return "f"
	case domain.KindReservation:
		return "r"
	default:
		return "d"
	}
}

func stateTable(kind domain.ObligationKind) string {
	switch kind {
	case domain.KindDue:
		return "dues"
	case domain.KindFine:
		return "fines"
	default:
		return "reservation_charges"
	}
}

func scanObligation(kind domain.ObligationKind, scan func(dest ...any) error) (domain.Obligation, error) {
	o := domain.Obligation{Kind: kind}
	err := scan(
		&o.ID,
		&o.PartyID,
		&o.UnitID,
		&o.ResponsiblePartyID,
		&o.InfractorPartyID,
		&o.Label,
		&o.Period,
		&o.Total,
		&o.State,
	)
	return o, err
}

func getObligation(ctx context.Context, q querier, ref domain.ObligationRef, forUpdate bool) (domain.Obligation, error) {
	base, err := obligationSelect(ref.Kind)
	if err != nil {
		return domain.Obligation{}, err
	}
	alias := kindAlias(ref.Kind)
	query := fmt.Sprintf("%s WHERE %s.id = $1", base, alias)
	if forUpdate {
		query += fmt.Sprintf(" FOR UPDATE OF %s", alias)
	}

	row := q.QueryRowContext(ctx, query, ref.ID)
	o, err := scanObligation(ref.Kind, row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Obligation{}, domain.ErrNotFound
		}
		return domain.Obligation{}, err
	}
	return o, nil
}

// Get loads one obligation by reference, regardless of owner.
func (r *ObligationRepository) Get(ctx context.Context, ref domain.ObligationRef) (domain.Obligation, error) {
	return getObligation(ctx, r.db, ref, false)
}

// ListOutstanding returns the party's obligations of one kind in any
// non-terminal state (everything except paid).
func (r *ObligationRepository) ListOutstanding(ctx context.Context, partyID int64, kind domain.ObligationKind) ([]domain.Obligation, error) {
	return listOutstanding(ctx, r.db, partyID, kind)
}

func listOutstanding(ctx context.Context, q querier, partyID int64, kind domain.ObligationKind) ([]domain.Obligation, error) {
	base, err := obligationSelect(kind)
	if err != nil {
		return nil, err
	}

	alias := kindAlias(kind)
	query := fmt.Sprintf("%s WHERE %s AND %s.state <> 'paid' ORDER BY %s.id",
		base, ownerClause(kind, 1), alias, alias)

	rows, err := q.QueryContext(ctx, query, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Obligation
	for rows.Next() {
		o, err := scanObligation(kind, rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func setObligationState(ctx context.Context, q querier, ref domain.ObligationRef, state domain.ObligationState) error {
	res, err := q.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET state = $1, updated_at = now() WHERE id = $2", stateTable(ref.Kind)),
		state, ref.ID)
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

// SetState writes a new lifecycle state. Used by the engine via its
// transaction; exposed here for administrative flows (e.g. the overdue
// scheduler) that run outside the atomic unit.
func (r *ObligationRepository) SetState(ctx context.Context, ref domain.ObligationRef, state domain.ObligationState) error {
	return setObligationState(ctx, r.db, ref, state)
}
