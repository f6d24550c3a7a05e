package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a payment was made.
type PaymentMethod string

const (
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
	MethodCash     PaymentMethod = "cash"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case MethodCard, MethodTransfer, MethodCash:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// ConfirmationState tags a payment attempt's verification outcome.
type ConfirmationState string

const (
	ConfirmationConfirmed           ConfirmationState = "confirmed"
	ConfirmationPendingVerification ConfirmationState = "pending_verification"
	ConfirmationRejected            ConfirmationState = "rejected"
	ConfirmationRefunded            ConfirmationState = "refunded"
)

func ParseConfirmationState(s string) (ConfirmationState, error) {
	switch ConfirmationState(s) {
	case ConfirmationConfirmed, ConfirmationPendingVerification,
		ConfirmationRejected, ConfirmationRefunded:
		return ConfirmationState(s), nil
	}
	return "", fmt.Errorf("unknown confirmation state %q", s)
}

// CountsTowardSettlement reports whether a payment in this state contributes
// to an obligation's paid amount ("confirmed-equivalent").
func (c ConfirmationState) CountsTowardSettlement() bool {
	return c == ConfirmationConfirmed || c == ConfirmationPendingVerification
}

// Payment is one attempt to settle an obligation. Rows are append-only;
// only Confirmation and ReceiptURL change after creation.
type Payment struct {
	ID      string
	PartyID int64
	Ref     ObligationRef

	Amount       decimal.Decimal
	Method       PaymentMethod
	Confirmation ConfirmationState

	// Reference is the external token; generated ("SIM-...") when the
	// payer supplied none.
	Reference string

	ReceiptURL *string

	RecordedBy int64
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}
