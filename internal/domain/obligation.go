package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ObligationKind discriminates the three billable item variants.
type ObligationKind string

const (
	KindDue         ObligationKind = "due"
	KindFine        ObligationKind = "fine"
	KindReservation ObligationKind = "reservation"
)

func ParseObligationKind(s string) (ObligationKind, error) {
	switch ObligationKind(s) {
	case KindDue, KindFine, KindReservation:
		return ObligationKind(s), nil
	}
	return "", fmt.Errorf("unknown obligation kind %q", s)
}

// ObligationState is the lifecycle state of an obligation. Everything except
// StatePaid counts as outstanding. Fines never enter StatePartial.
type ObligationState string

const (
	StatePending   ObligationState = "pending"
	StatePartial   ObligationState = "partial"
	StatePaid      ObligationState = "paid"
	StateOverdue   ObligationState = "overdue"
	StateNotified  ObligationState = "notified"
	StateInDispute ObligationState = "in_dispute"
)

// ObligationRef identifies exactly one obligation. A payment row stores it as
// a tagged reference: one of due_id, fine_id or reservation_charge_id.
type ObligationRef struct {
	Kind ObligationKind
	ID   int64
}

func (r ObligationRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Obligation is one billable item: a periodic due, a fine or a common-area
// reservation charge. Total is always > 0. Only State mutates after creation,
// and only through the reconciliation engine.
type Obligation struct {
	Kind    ObligationKind
	ID      int64
	PartyID int64

	// Dues: the unit the due was issued for.
	UnitID int64

	// Fines carry two ownership roles; either one counts as owner for
	// listing and payment.
	ResponsiblePartyID int64
	InfractorPartyID   int64

	Label  string
	Period string
	Total  decimal.Decimal
	State  ObligationState
}

func (o Obligation) Ref() ObligationRef {
	return ObligationRef{Kind: o.Kind, ID: o.ID}
}

// Outstanding reports whether the obligation still has anything to collect.
func (o Obligation) Outstanding() bool {
	return o.State != StatePaid
}

// OwnedBy reports whether partyID may pay this obligation.
func (o Obligation) OwnedBy(partyID int64) bool {
	if o.Kind == KindFine {
		return o.ResponsiblePartyID == partyID || o.InfractorPartyID == partyID
	}
	return o.PartyID == partyID
}
