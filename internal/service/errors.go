package service

// DomainError is a request-level failure with a stable machine code. The
// REST layer maps the code to an HTTP status; the message is safe to show
// to the requester.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Sentinel domain errors. Compare with errors.Is; every one maps to a
// distinct wire code.
var (
	// ErrNotAParty: the authenticated requester has no billable-party
	// identity. Terminal until the party is provisioned externally.
	ErrNotAParty = &DomainError{Code: "not_a_party", Message: "requester has no billable party"}

	// ErrObligationNotFound: unknown id, or the obligation is not owned
	// by the requester. Ownership mismatches are folded into not-found so
	// ids of other parties' obligations are not probeable.
	ErrObligationNotFound = &DomainError{Code: "obligation_not_found", Message: "obligation not found"}

	// ErrAlreadySettled: nothing pending on the obligation. Informational,
	// not a bug condition.
	ErrAlreadySettled = &DomainError{Code: "already_settled", Message: "obligation is already settled"}

	// ErrInvalidAmount: non-positive or malformed amount.
	ErrInvalidAmount = &DomainError{Code: "invalid_amount", Message: "amount must be greater than zero"}

	// ErrExceedsPending: amount above the pending balance (dues and
	// reservation charges).
	ErrExceedsPending = &DomainError{Code: "exceeds_pending", Message: "amount exceeds pending balance"}

	// ErrPartialFineNotAllowed: fines are all-or-nothing; the only valid
	// amount is the exact pending balance.
	ErrPartialFineNotAllowed = &DomainError{Code: "partial_fine_not_allowed", Message: "fines must be paid in full"}

	// ErrConflictRetry: the atomic unit lost a serialization conflict
	// twice in a row. The caller should retry later.
	ErrConflictRetry = &DomainError{Code: "conflict_retry", Message: "concurrent update, retry later"}

	// ErrPaymentNotFound: unknown payment id on the confirmation path.
	ErrPaymentNotFound = &DomainError{Code: "payment_not_found", Message: "payment not found"}
)
