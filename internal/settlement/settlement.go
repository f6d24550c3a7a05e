// Package settlement derives paid/pending amounts and the resulting
// obligation state from ledger aggregates. It is the single source of truth
// for that math: both the single-obligation payment path and the batched
// statement path go through it.
//
// All amounts are fixed-point decimals at 2-decimal precision compared
// exactly; there is no floating-point tolerance anywhere.
package settlement

import (
	"github.com/shopspring/decimal"

	"condobill/internal/domain"
)

// AmountPending returns how much is still owed: max(0, total - paid).
// The clamp matters when a verification later rejects a counted payment and
// the re-sum runs against an obligation whose total was already reached.
func AmountPending(total, paid decimal.Decimal) decimal.Decimal {
	pending := total.Sub(paid)
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending.Round(2)
}

// Settled reports whether paid covers the full total.
func Settled(total, paid decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(total)
}

// ResolveState computes the obligation state implied by an amount paid.
//
// Fines are all-or-nothing: anything short of the total leaves the current
// state untouched (pending/notified/in_dispute are preserved; partial fine
// payments are rejected upstream and never reach the ledger).
//
// Dues and reservation charges move to partial as soon as anything counted
// toward settlement exists, and to paid once the total is covered. A drop
// back below the total (rejected or refunded payment) downgrades paid to
// partial or pending.
func ResolveState(o domain.Obligation, paid decimal.Decimal) domain.ObligationState {
	if Settled(o.Total, paid) {
		return domain.StatePaid
	}

	if o.Kind == domain.KindFine {
		if o.State == domain.StatePaid {
			return domain.StatePending
		}
		return o.State
	}

	if paid.IsPositive() {
		return domain.StatePartial
	}
	if o.State == domain.StatePaid || o.State == domain.StatePartial {
		return domain.StatePending
	}
	return o.State
}
