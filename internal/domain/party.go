package domain

import "time"

// BillableParty is the resident/owner entity obligations and payments are
// tracked against. It is resolved from the authenticated user; parties are
// provisioned externally and never deleted.
type BillableParty struct {
	ID        int64
	UserID    int64
	Document  string
	Email     string
	FirstName string
	LastName  string

	CreatedAt *time.Time
}

// Unit is a property unit owned by a party. Dues attach to units.
type Unit struct {
	ID      int64
	PartyID int64
	Label   string
}
