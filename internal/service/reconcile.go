package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"condobill/internal/domain"
	"condobill/internal/settlement"
)

// PartyRepository resolves billable parties.
type PartyRepository interface {
	FindByUser(ctx context.Context, userID int64) (*domain.BillableParty, error)
	FindByID(ctx context.Context, id int64) (*domain.BillableParty, error)
}

// ReconcileTx is the atomic unit around one obligation: the obligation row
// is locked for the lifetime of the tx, so the confirmed-equivalent sum, the
// payment append and the state write are serializable against concurrent
// payers of the same obligation.
type ReconcileTx interface {
	// Obligation is the locked row as read inside the transaction.
	Obligation() domain.Obligation

	SumConfirmedEquivalent(ctx context.Context) (decimal.Decimal, error)
	AppendPayment(ctx context.Context, p *domain.Payment) error
	SetObligationState(ctx context.Context, s domain.ObligationState) error

	Commit() error
	Rollback() error
}

// PaymentTx is the same atomic unit entered via a payment id, for
// confirmation-state updates coming from the verification collaborator.
type PaymentTx interface {
	Payment() domain.Payment
	Obligation() domain.Obligation

	SetConfirmation(ctx context.Context, s domain.ConfirmationState) error
	SumConfirmedEquivalent(ctx context.Context) (decimal.Decimal, error)
	SetObligationState(ctx context.Context, s domain.ObligationState) error

	Commit() error
	Rollback() error
}

// ReconcileStore opens atomic units. Begin locks the obligation scoped to
// the owning party (for fines either ownership role matches) and returns
// domain.ErrNotFound when the obligation is absent or owned by someone else.
type ReconcileStore interface {
	Begin(ctx context.Context, ref domain.ObligationRef, partyID int64) (ReconcileTx, error)
	BeginByPayment(ctx context.Context, paymentID string) (PaymentTx, error)
}

// PaymentWriter updates the mutable extras of an already-committed payment.
type PaymentWriter interface {
	UpdateReceiptURL(ctx context.Context, paymentID, url string) error
}

// ReceiptIssuer renders and stores a receipt document, returning its URL.
type ReceiptIssuer interface {
	Issue(ctx context.Context, party domain.BillableParty, o domain.Obligation, p domain.Payment) (string, error)
}

// Notifier pushes events to the party's connected portal sessions.
type Notifier interface {
	PaymentRegistered(ctx context.Context, userID int64, p domain.Payment, o domain.Obligation) error
	ObligationUpdated(ctx context.Context, userID int64, o domain.Obligation) error
	ReceiptReady(ctx context.Context, userID int64, paymentID, url string) error
}

// StatementCache invalidates cached statements after writes.
type StatementCache interface {
	Invalidate(ctx context.Context, partyID int64) error
}

// RegisterPaymentInput is one payment registration request. Amount and
// Reference are optional: a nil Amount means pay the full pending balance,
// an empty Reference gets a generated simulated-payment token.
type RegisterPaymentInput struct {
	UserID       int64
	Kind         domain.ObligationKind
	ObligationID int64
	Amount       *decimal.Decimal
	Method       domain.PaymentMethod
	Reference    string
}

// Reconciler validates payment requests against obligations, persists them
// and keeps obligation state in sync with the ledger.
type Reconciler struct {
	parties  PartyRepository
	store    ReconcileStore
	payments PaymentWriter
	receipts ReceiptIssuer
	notifier Notifier
	cache    StatementCache
}

func NewReconciler(parties PartyRepository, store ReconcileStore, payments PaymentWriter, receipts ReceiptIssuer, notifier Notifier, cache StatementCache) *Reconciler {
	return &Reconciler{
		parties:  parties,
		store:    store,
		payments: payments,
		receipts: receipts,
		notifier: notifier,
		cache:    cache,
	}
}

// RegisterPayment runs the full registration contract: resolve the party,
// lock the obligation, validate the amount against the pending balance,
// append a confirmed payment and write the resulting obligation state. The
// locked section is retried once on a storage conflict; validation failures
// abort before any write.
func (s *Reconciler) RegisterPayment(ctx context.Context, in RegisterPaymentInput) (*domain.Payment, *domain.Obligation, error) {
	party, err := s.parties.FindByUser(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, ErrNotAParty
		}
		return nil, nil, err
	}

	payment, obligation, err := s.registerLocked(ctx, party.ID, in)
	if errors.Is(err, domain.ErrTxConflict) {
		log.Printf("[RECONCILE] conflict on %s:%d, retrying once", in.Kind, in.ObligationID)
		payment, obligation, err = s.registerLocked(ctx, party.ID, in)
		if errors.Is(err, domain.ErrTxConflict) {
			return nil, nil, ErrConflictRetry
		}
	}
	if err != nil {
		return nil, nil, err
	}

	s.afterWrite(party, *obligation)
	if s.notifier != nil {
		_ = s.notifier.PaymentRegistered(ctx, party.UserID, *payment, *obligation)
	}
	s.issueReceiptAsync(*party, *obligation, *payment)

	return payment, obligation, nil
}

func (s *Reconciler) registerLocked(ctx context.Context, partyID int64, in RegisterPaymentInput) (*domain.Payment, *domain.Obligation, error) {
	ref := domain.ObligationRef{Kind: in.Kind, ID: in.ObligationID}

	tx, err := s.store.Begin(ctx, ref, partyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, ErrObligationNotFound
		}
		return nil, nil, err
	}
	defer tx.Rollback()

	obligation := tx.Obligation()

	paid, err := tx.SumConfirmedEquivalent(ctx)
	if err != nil {
		return nil, nil, err
	}
	pending := settlement.AmountPending(obligation.Total, paid)
	if !pending.IsPositive() {
		return nil, nil, ErrAlreadySettled
	}

	amount := pending
	if in.Amount != nil {
		amount = *in.Amount
	}
	if !amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if in.Kind == domain.KindFine {
		// Fines are all-or-nothing: the amount is accepted on the wire
		// but only the exact pending balance is ever valid.
		if !amount.Equal(pending) {
			return nil, nil, ErrPartialFineNotAllowed
		}
	} else if amount.GreaterThan(pending) {
		return nil, nil, ErrExceedsPending
	}

	reference := in.Reference
	if reference == "" {
		reference = simulatedReference(time.Now())
	}

	payment := &domain.Payment{
		ID:           uuid.NewString(),
		PartyID:      partyID,
		Ref:          ref,
		Amount:       amount.Round(2),
		Method:       in.Method,
		Confirmation: domain.ConfirmationConfirmed,
		Reference:    reference,
		RecordedBy:   in.UserID,
		CreatedAt:    time.Now(),
	}
	if err := tx.AppendPayment(ctx, payment); err != nil {
		return nil, nil, err
	}

	newState := settlement.ResolveState(obligation, paid.Add(payment.Amount))
	if newState != obligation.State {
		if err := tx.SetObligationState(ctx, newState); err != nil {
			return nil, nil, err
		}
		obligation.State = newState
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return payment, &obligation, nil
}

// UpdateConfirmation applies a verification outcome to an existing payment
// and resynchronizes the obligation's state with the new confirmed-equivalent
// total, in one atomic unit.
func (s *Reconciler) UpdateConfirmation(ctx context.Context, paymentID string, state domain.ConfirmationState) (*domain.Payment, *domain.Obligation, error) {
	payment, obligation, err := s.resyncLocked(ctx, paymentID, state)
	if errors.Is(err, domain.ErrTxConflict) {
		payment, obligation, err = s.resyncLocked(ctx, paymentID, state)
		if errors.Is(err, domain.ErrTxConflict) {
			return nil, nil, ErrConflictRetry
		}
	}
	if err != nil {
		return nil, nil, err
	}

	if party, perr := s.parties.FindByID(ctx, payment.PartyID); perr == nil {
		s.afterWrite(party, *obligation)
		if s.notifier != nil {
			_ = s.notifier.ObligationUpdated(ctx, party.UserID, *obligation)
		}
	} else {
		log.Printf("[RECONCILE] party %d lookup after resync: %v", payment.PartyID, perr)
	}

	return payment, obligation, nil
}

func (s *Reconciler) resyncLocked(ctx context.Context, paymentID string, state domain.ConfirmationState) (*domain.Payment, *domain.Obligation, error) {
	tx, err := s.store.BeginByPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, ErrPaymentNotFound
		}
		return nil, nil, err
	}
	defer tx.Rollback()

	payment := tx.Payment()
	obligation := tx.Obligation()

	if err := tx.SetConfirmation(ctx, state); err != nil {
		return nil, nil, err
	}
	payment.Confirmation = state

	paid, err := tx.SumConfirmedEquivalent(ctx)
	if err != nil {
		return nil, nil, err
	}
	newState := settlement.ResolveState(obligation, paid)
	if newState != obligation.State {
		if err := tx.SetObligationState(ctx, newState); err != nil {
			return nil, nil, err
		}
		obligation.State = newState
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &payment, &obligation, nil
}

func (s *Reconciler) afterWrite(party *domain.BillableParty, _ domain.Obligation) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, party.ID); err != nil {
		log.Printf("[RECONCILE] statement cache invalidate for party %d: %v", party.ID, err)
	}
}

func (s *Reconciler) issueReceiptAsync(party domain.BillableParty, o domain.Obligation, p domain.Payment) {
	if s.receipts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		url, err := s.receipts.Issue(ctx, party, o, p)
		if err != nil {
			log.Printf("[RECEIPT] issue for payment %s: %v", p.ID, err)
			return
		}
		if s.payments != nil {
			if err := s.payments.UpdateReceiptURL(ctx, p.ID, url); err != nil {
				log.Printf("[RECEIPT] store url for payment %s: %v", p.ID, err)
			}
		}
		if s.notifier != nil {
			_ = s.notifier.ReceiptReady(ctx, party.UserID, p.ID, url)
		}
	}()
}

func simulatedReference(t time.Time) string {
	return fmt.Sprintf("SIM-%s", t.Format("20060102150405"))
}
