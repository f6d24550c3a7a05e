package service

import (
	"context"
	"errors"
	"log"

	"github.com/shopspring/decimal"

	"condobill/internal/domain"
	"condobill/internal/settlement"
)

// StatementData is one consistent snapshot of a party's outstanding
// obligations together with their confirmed-equivalent paid totals. The
// reader must take it inside a single read transaction and aggregate the
// ledger with one grouped query per obligation kind, not one per obligation.
type StatementData struct {
	Obligations []domain.Obligation
	Paid        map[domain.ObligationRef]decimal.Decimal
}

// StatementReader collects the snapshot for a party.
type StatementReader interface {
	Collect(ctx context.Context, partyID int64) (*StatementData, error)
}

// ObligationLine is one obligation with its derived amounts.
type ObligationLine struct {
	Obligation    domain.Obligation
	AmountPaid    decimal.Decimal
	AmountPending decimal.Decimal
}

// StatementSummary aggregates a statement.
type StatementSummary struct {
	TotalPending             decimal.Decimal
	TotalDuesPending         decimal.Decimal
	TotalFinesPending        decimal.Decimal
	TotalReservationsPending decimal.Decimal
	CountDues                int
	CountFines               int
	CountReservations        int
}

// Statement is the consolidated debt view for one billable party.
type Statement struct {
	Party        domain.BillableParty
	Dues         []ObligationLine
	Fines        []ObligationLine
	Reservations []ObligationLine
	Summary      StatementSummary
}

type statementCache interface {
	Get(ctx context.Context, partyID int64) (*Statement, bool, error)
	Set(ctx context.Context, partyID int64, st *Statement) error
}

// DebtService produces consolidated statements. Read-only; cached results
// may be slightly stale within the cache TTL, never mid-update.
type DebtService struct {
	parties PartyRepository
	reader  StatementReader
	cache   statementCache
}

func NewDebtService(parties PartyRepository, reader StatementReader, cache statementCache) *DebtService {
	return &DebtService{parties: parties, reader: reader, cache: cache}
}

// ListOutstanding resolves the requester to a billable party and returns its
// statement: per-kind obligation lines with paid/pending amounts plus
// aggregate totals.
func (s *DebtService) ListOutstanding(ctx context.Context, userID int64) (*Statement, error) {
	party, err := s.parties.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNotAParty
		}
		return nil, err
	}

	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, party.ID); err != nil {
			log.Printf("[STATEMENT] cache read for party %d: %v", party.ID, err)
		} else if ok {
			return cached, nil
		}
	}

	data, err := s.reader.Collect(ctx, party.ID)
	if err != nil {
		return nil, err
	}

	st := buildStatement(*party, data)

	if s.cache != nil {
		if err := s.cache.Set(ctx, party.ID, st); err != nil {
			log.Printf("[STATEMENT] cache write for party %d: %v", party.ID, err)
		}
	}
	return st, nil
}

func buildStatement(party domain.BillableParty, data *StatementData) *Statement {
	st := &Statement{
		Party: party,
		Summary: StatementSummary{
			TotalPending:             decimal.Zero,
			TotalDuesPending:         decimal.Zero,
			TotalFinesPending:        decimal.Zero,
			TotalReservationsPending: decimal.Zero,
		},
	}

	for _, o := range data.Obligations {
		paid := data.Paid[o.Ref()]
		line := ObligationLine{
			Obligation:    o,
			AmountPaid:    paid.Round(2),
			AmountPending: settlement.AmountPending(o.Total, paid),
		}

		st.Summary.TotalPending = st.Summary.TotalPending.Add(line.AmountPending)
		switch o.Kind {
		case domain.KindDue:
			st.Dues = append(st.Dues, line)
			st.Summary.TotalDuesPending = st.Summary.TotalDuesPending.Add(line.AmountPending)
			st.Summary.CountDues++
		case domain.KindFine:
			st.Fines = append(st.Fines, line)
			st.Summary.TotalFinesPending = st.Summary.TotalFinesPending.Add(line.AmountPending)
			st.Summary.CountFines++
		case domain.KindReservation:
			st.Reservations = append(st.Reservations, line)
			st.Summary.TotalReservationsPending = st.Summary.TotalReservationsPending.Add(line.AmountPending)
			st.Summary.CountReservations++
		}
	}
	return st
}
