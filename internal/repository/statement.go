package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"condobill/internal/domain"
	"condobill/internal/service"
)

// StatementRepository collects everything a statement needs in one
// repeatable-read, read-only transaction: the party's outstanding
// obligations of each kind plus one grouped ledger aggregation per kind.
// A concurrent registerPayment can never be observed mid-update.
type StatementRepository struct {
	db *sql.DB
}

func NewStatementRepository(db *sql.DB) *StatementRepository {
	return &StatementRepository{db: db}
}

// One grouped sum per kind, scoped to the party's outstanding obligations.
// This is the batched path: one aggregation query per obligation kind, never
// one per obligation.
const (
	dueSums = `
		SELECT p.due_id, COALESCE(SUM(p.amount), 0)
		FROM payments p
		JOIN dues d ON d.id = p.due_id
		JOIN units u ON u.id = d.unit_id
		WHERE u.party_id = $1 AND d.state <> 'paid'
		  AND p.confirmation_state IN ` + confirmedEquivalentStates + `
		GROUP BY p.due_id`

	fineSums = `
		SELECT p.fine_id, COALESCE(SUM(p.amount), 0)
		FROM payments p
		JOIN fines f ON f.id = p.fine_id
		WHERE (f.responsible_party_id = $1 OR f.infractor_party_id = $1) AND f.state <> 'paid'
		  AND p.confirmation_state IN ` + confirmedEquivalentStates + `
		GROUP BY p.fine_id`

	reservationSums = `
		SELECT p.reservation_charge_id, COALESCE(SUM(p.amount), 0)
		FROM payments p
		JOIN reservation_charges r ON r.id = p.reservation_charge_id
		WHERE r.party_id = $1 AND r.state <> 'paid'
		  AND p.confirmation_state IN ` + confirmedEquivalentStates + `
		GROUP BY p.reservation_charge_id`
)

func sumQuery(kind domain.ObligationKind) string {
	switch kind {
	case domain.KindDue:
		return dueSums
	case domain.KindFine:
		return fineSums
	default:
		return reservationSums
	}
}

// Collect reads one consistent snapshot for a party.
func (r *StatementRepository) Collect(ctx context.Context, partyID int64) (*service.StatementData, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	data := &service.StatementData{
		Paid: make(map[domain.ObligationRef]decimal.Decimal),
	}

	kinds := []domain.ObligationKind{domain.KindDue, domain.KindFine, domain.KindReservation}
	for _, kind := range kinds {
		obligations, err := listOutstanding(ctx, tx, partyID, kind)
		if err != nil {
			return nil, fmt.Errorf("list outstanding %s: %w", kind, err)
		}
		data.Obligations = append(data.Obligations, obligations...)

		if err := collectSums(ctx, tx, partyID, kind, data.Paid); err != nil {
			return nil, fmt.Errorf("sum payments %s: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return data, nil
}

func collectSums(ctx context.Context, tx *sql.Tx, partyID int64, kind domain.ObligationKind, into map[domain.ObligationRef]decimal.Decimal) error {
	rows, err := tx.QueryContext(ctx, sumQuery(kind), partyID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			total decimal.Decimal
		)
		if err := rows.Scan(&id, &total); err != nil {
			return err
		}
		into[domain.ObligationRef{Kind: kind, ID: id}] = total
	}
	return rows.Err()
}
