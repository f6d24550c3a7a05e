package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"condobill/internal/domain"
	"condobill/internal/service"
	"condobill/internal/transport/auth"
)

type PaymentRequest struct {
	Kind         domain.ObligationKind
	ObligationID int64
	Amount       *decimal.Decimal
	Method       domain.PaymentMethod
	Reference    string
}

type rawPaymentRequest struct {
	Kind         string      `json:"kind"`
	ObligationID interface{} `json:"obligationId"`
	Amount       interface{} `json:"amount"`
	Method       string      `json:"method"`
	Reference    interface{} `json:"reference"`
}

// ValidatePaymentRequest parses and validates the payment registration body.
// Amount and reference are optional; obligation existence and amount policy
// are the engine's concern.
func ValidatePaymentRequest(r *http.Request) (*PaymentRequest, error) {
	var raw rawPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}

	kind, err := domain.ParseObligationKind(raw.Kind)
	if err != nil {
		return nil, &ValidationError{Field: "kind", Message: "kind must be one of due, fine, reservation"}
	}

	obligationID, err := toInt64Ptr(raw.ObligationID)
	if err != nil || obligationID == nil {
		return nil, &ValidationError{Field: "obligationId", Message: "obligationId is required and must be an integer"}
	}

	amount, err := toDecimalPtr(raw.Amount)
	if err != nil {
		return nil, &ValidationError{Field: "amount", Message: "amount must be a decimal number or empty"}
	}

	method, err := domain.ParsePaymentMethod(raw.Method)
	if err != nil {
		return nil, &ValidationError{Field: "method", Message: "method must be one of card, transfer, cash"}
	}

	reference, err := toStringPtr(raw.Reference)
	if err != nil {
		return nil, &ValidationError{Field: "reference", Message: "reference must be a string or empty"}
	}

	req := &PaymentRequest{
		Kind:         kind,
		ObligationID: *obligationID,
		Amount:       amount,
		Method:       method,
	}
	if reference != nil {
		req.Reference = *reference
	}
	return req, nil
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	req, err := ValidatePaymentRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	payment, obligation, err := h.payments.RegisterPayment(r.Context(), service.RegisterPaymentInput{
		UserID:       userID,
		Kind:         req.Kind,
		ObligationID: req.ObligationID,
		Amount:       req.Amount,
		Method:       req.Method,
		Reference:    req.Reference,
	})
	if err != nil {
		ErrorFromService(w, err)
		return
	}

	SuccessCreated(w, "payment registered", map[string]interface{}{
		"payment":    toPaymentDTO(payment),
		"obligation": toObligationSnapshotDTO(obligation),
	})
}

type confirmationRequest struct {
	State string `json:"state"`
}

func (h *Handler) updateConfirmation(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.GetUserID(r.Context()); err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	paymentID := chi.URLParam(r, "payment_id")
	if paymentID == "" {
		ErrorBadRequest(w, "payment_id is required")
		return
	}

	var req confirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	state, err := domain.ParseConfirmationState(req.State)
	if err != nil {
		ErrorBadRequest(w, "state must be one of confirmed, pending_verification, rejected, refunded")
		return
	}

	payment, obligation, err := h.payments.UpdateConfirmation(r.Context(), paymentID, state)
	if err != nil {
		ErrorFromService(w, err)
		return
	}

	Success(w, "confirmation updated", map[string]interface{}{
		"payment":    toPaymentDTO(payment),
		"obligation": toObligationSnapshotDTO(obligation),
	})
}
