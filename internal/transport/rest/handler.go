package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"condobill/internal/domain"
	"condobill/internal/service"
)

// DebtLister produces the consolidated statement for a requester.
type DebtLister interface {
	ListOutstanding(ctx context.Context, userID int64) (*service.Statement, error)
}

// PaymentRegistrar registers payments and applies verification outcomes.
type PaymentRegistrar interface {
	RegisterPayment(ctx context.Context, in service.RegisterPaymentInput) (*domain.Payment, *domain.Obligation, error)
	UpdateConfirmation(ctx context.Context, paymentID string, state domain.ConfirmationState) (*domain.Payment, *domain.Obligation, error)
}

type Handler struct {
	debts    DebtLister
	payments PaymentRegistrar
}

func NewHandler(debts DebtLister, payments PaymentRegistrar) *Handler {
	return &Handler{
		debts:    debts,
		payments: payments,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}

	r.Route("/billing", func(r chi.Router) {
		r.Get("/debts", h.listDebts)
		r.Post("/payments", h.registerPayment)
		r.Post("/payments/{payment_id}/confirmation", h.updateConfirmation)
	})

	return r
}
