package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"condobill/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func amt(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// memParties resolves parties from a fixed set, keyed by user id.
type memParties struct {
	byUser map[int64]*domain.BillableParty
}

func (m *memParties) FindByUser(_ context.Context, userID int64) (*domain.BillableParty, error) {
	p, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memParties) FindByID(_ context.Context, id int64) (*domain.BillableParty, error) {
	for _, p := range m.byUser {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// memStore is an in-memory ReconcileStore with the same locking contract as
// the postgres one: Begin holds an exclusive lock on the whole store until
// Commit or Rollback, so concurrent registrations serialize.
type memStore struct {
	mu          sync.Mutex
	obligations map[domain.ObligationRef]*domain.Obligation
	payments    []*domain.Payment

	// conflicts makes the next N Begin calls fail with a storage conflict.
	conflicts int
}

func newMemStore(obligations ...*domain.Obligation) *memStore {
	s := &memStore{obligations: make(map[domain.ObligationRef]*domain.Obligation)}
	for _, o := range obligations {
		s.obligations[o.Ref()] = o
	}
	return s
}

func (s *memStore) Begin(_ context.Context, ref domain.ObligationRef, partyID int64) (ReconcileTx, error) {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return nil, domain.ErrTxConflict
	}
	o, ok := s.obligations[ref]
	if !ok || !o.OwnedBy(partyID) {
		s.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	return &memTx{store: s, obligation: *o}, nil
}

func (s *memStore) BeginByPayment(_ context.Context, paymentID string) (PaymentTx, error) {
	s.mu.Lock()
	var payment *domain.Payment
	for _, p := range s.payments {
		if p.ID == paymentID {
			payment = p
			break
		}
	}
	if payment == nil {
		s.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	o, ok := s.obligations[payment.Ref]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	return &memPaymentTx{store: s, payment: *payment, obligation: *o}, nil
}

// sumLocked totals confirmed-equivalent payments for ref, with an optional
// staged confirmation override for one payment id. Caller holds the lock.
func (s *memStore) sumLocked(ref domain.ObligationRef, overrideID string, override domain.ConfirmationState) decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.payments {
		if p.Ref != ref {
			continue
		}
		state := p.Confirmation
		if p.ID == overrideID {
			state = override
		}
		if state.CountsTowardSettlement() {
			total = total.Add(p.Amount)
		}
	}
	return total
}

type memTx struct {
	store      *memStore
	obligation domain.Obligation
	appended   []*domain.Payment
	newState   *domain.ObligationState
	done       bool
}

func (t *memTx) Obligation() domain.Obligation { return t.obligation }

func (t *memTx) SumConfirmedEquivalent(_ context.Context) (decimal.Decimal, error) {
	return t.store.sumLocked(t.obligation.Ref(), "", ""), nil
}

func (t *memTx) AppendPayment(_ context.Context, p *domain.Payment) error {
	cp := *p
	t.appended = append(t.appended, &cp)
	return nil
}

func (t *memTx) SetObligationState(_ context.Context, s domain.ObligationState) error {
	t.newState = &s
	return nil
}

func (t *memTx) Commit() error {
	t.store.payments = append(t.store.payments, t.appended...)
	if t.newState != nil {
		t.store.obligations[t.obligation.Ref()].State = *t.newState
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

type memPaymentTx struct {
	store        *memStore
	payment      domain.Payment
	obligation   domain.Obligation
	confirmation *domain.ConfirmationState
	newState     *domain.ObligationState
	done         bool
}

func (t *memPaymentTx) Payment() domain.Payment       { return t.payment }
func (t *memPaymentTx) Obligation() domain.Obligation { return t.obligation }

func (t *memPaymentTx) SetConfirmation(_ context.Context, s domain.ConfirmationState) error {
	t.confirmation = &s
	return nil
}

func (t *memPaymentTx) SumConfirmedEquivalent(_ context.Context) (decimal.Decimal, error) {
	if t.confirmation != nil {
		return t.store.sumLocked(t.obligation.Ref(), t.payment.ID, *t.confirmation), nil
	}
	return t.store.sumLocked(t.obligation.Ref(), "", ""), nil
}

func (t *memPaymentTx) SetObligationState(_ context.Context, s domain.ObligationState) error {
	t.newState = &s
	return nil
}

func (t *memPaymentTx) Commit() error {
	if t.confirmation != nil {
		for _, p := range t.store.payments {
			if p.ID == t.payment.ID {
				p.Confirmation = *t.confirmation
			}
		}
	}
	if t.newState != nil {
		t.store.obligations[t.obligation.Ref()].State = *t.newState
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memPaymentTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

type memCache struct {
	mu          sync.Mutex
	invalidated []int64
}

func (c *memCache) Invalidate(_ context.Context, partyID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, partyID)
	return nil
}

type memNotifier struct {
	mu         sync.Mutex
	registered []string
	updated    []domain.ObligationRef
}

func (n *memNotifier) PaymentRegistered(_ context.Context, _ int64, p domain.Payment, _ domain.Obligation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registered = append(n.registered, p.ID)
	return nil
}

func (n *memNotifier) ObligationUpdated(_ context.Context, _ int64, o domain.Obligation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, o.Ref())
	return nil
}

func (n *memNotifier) ReceiptReady(_ context.Context, _ int64, _ string, _ string) error {
	return nil
}

const (
	testUserID  = int64(10)
	testPartyID = int64(1)
)

func testParties() *memParties {
	return &memParties{byUser: map[int64]*domain.BillableParty{
		testUserID: {ID: testPartyID, UserID: testUserID, Document: "40123456", FirstName: "Marta", LastName: "Quispe"},
		11:         {ID: 2, UserID: 11, Document: "40987654", FirstName: "Jorge", LastName: "Salas"},
	}}
}

func testDue(id int64, total string) *domain.Obligation {
	return &domain.Obligation{
		Kind: domain.KindDue, ID: id, PartyID: testPartyID, UnitID: 301,
		Label: "Maintenance", Period: "2026-03", Total: dec(total), State: domain.StatePending,
	}
}

func testFine(id int64, total string) *domain.Obligation {
	return &domain.Obligation{
		Kind: domain.KindFine, ID: id, ResponsiblePartyID: testPartyID, InfractorPartyID: 2,
		Label: "Noise after hours", Total: dec(total), State: domain.StateNotified,
	}
}

func newTestReconciler(store *memStore) (*Reconciler, *memCache, *memNotifier) {
	cache := &memCache{}
	notifier := &memNotifier{}
	return NewReconciler(testParties(), store, nil, nil, notifier, cache), cache, notifier
}

func registerInput(kind domain.ObligationKind, id int64, amount *decimal.Decimal) RegisterPaymentInput {
	return RegisterPaymentInput{
		UserID: testUserID, Kind: kind, ObligationID: id,
		Amount: amount, Method: domain.MethodCard,
	}
}

func TestRegisterPaymentNotAParty(t *testing.T) {
	rec, _, _ := newTestReconciler(newMemStore(testDue(1, "450.00")))

	in := registerInput(domain.KindDue, 1, nil)
	in.UserID = 999
	_, _, err := rec.RegisterPayment(context.Background(), in)
	require.ErrorIs(t, err, ErrNotAParty)
}

func TestRegisterPaymentObligationNotFound(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	rec, _, _ := newTestReconciler(store)

	_, _, err := rec.RegisterPayment(context.Background(), registerInput(domain.KindDue, 99, nil))
	require.ErrorIs(t, err, ErrObligationNotFound)

	// someone else's obligation reads as absent, not as forbidden
	in := registerInput(domain.KindDue, 1, nil)
	in.UserID = 11
	_, _, err = rec.RegisterPayment(context.Background(), in)
	require.ErrorIs(t, err, ErrObligationNotFound)
	require.Empty(t, store.payments)
}

func TestRegisterPaymentDefaultsToFullPending(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	rec, cache, notifier := newTestReconciler(store)

	payment, obligation, err := rec.RegisterPayment(context.Background(), registerInput(domain.KindDue, 1, nil))
	require.NoError(t, err)

	require.True(t, payment.Amount.Equal(dec("450.00")))
	require.Equal(t, domain.ConfirmationConfirmed, payment.Confirmation)
	require.True(t, strings.HasPrefix(payment.Reference, "SIM-"), "reference %q", payment.Reference)
	require.NotEmpty(t, payment.ID)

	require.Equal(t, domain.StatePaid, obligation.State)
	require.Equal(t, domain.StatePaid, store.obligations[obligation.Ref()].State)
	require.Len(t, store.payments, 1)

	require.Equal(t, []int64{testPartyID}, cache.invalidated)
	require.Equal(t, []string{payment.ID}, notifier.registered)
}

func TestRegisterPaymentPartialAccumulates(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	rec, _, _ := newTestReconciler(store)
	ctx := context.Background()

	_, obligation, err := rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, amt("200.00")))
	require.NoError(t, err)
	require.Equal(t, domain.StatePartial, obligation.State)

	_, obligation, err = rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, amt("100.00")))
	require.NoError(t, err)
	require.Equal(t, domain.StatePartial, obligation.State)

	// nil amount now means the 150.00 remainder, not the original total
	payment, obligation, err := rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, nil))
	require.NoError(t, err)
	require.True(t, payment.Amount.Equal(dec("150.00")))
	require.Equal(t, domain.StatePaid, obligation.State)
}

func TestRegisterPaymentAlreadySettled(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	rec, _, _ := newTestReconciler(store)
	ctx := context.Background()

	_, _, err := rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, nil))
	require.NoError(t, err)

	_, _, err = rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, amt("1.00")))
	require.ErrorIs(t, err, ErrAlreadySettled)
	require.Len(t, store.payments, 1)
}

func TestRegisterPaymentInvalidAmount(t *testing.T) {
	rec, _, _ := newTestReconciler(newMemStore(testDue(1, "450.00")))
	ctx := context.Background()

	_, _, err := rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, amt("0.00")))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, amt("-10.00")))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRegisterPaymentExceedsPending(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	rec, _, _ := newTestReconciler(store)

	_, _, err := rec.RegisterPayment(context.Background(), registerInput(domain.KindDue, 1, amt("450.01")))
	require.ErrorIs(t, err, ErrExceedsPending)
	require.Empty(t, store.payments)
	require.Equal(t, domain.StatePending, store.obligations[domain.ObligationRef{Kind: domain.KindDue, ID: 1}].State)
}

func TestRegisterPaymentFineAllOrNothing(t *testing.T) {
	store := newMemStore(testFine(5, "150.00"))
	rec, _, _ := newTestReconciler(store)
	ctx := context.Background()

	_, _, err := rec.RegisterPayment(ctx, registerInput(domain.KindFine, 5, amt("100.00")))
	require.ErrorIs(t, err, ErrPartialFineNotAllowed)

	// over the total is still a non-exact fine amount
	_, _, err = rec.RegisterPayment(ctx, registerInput(domain.KindFine, 5, amt("200.00")))
	require.ErrorIs(t, err, ErrPartialFineNotAllowed)
	require.Empty(t, store.payments)

	payment, obligation, err := rec.RegisterPayment(ctx, registerInput(domain.KindFine, 5, amt("150.00")))
	require.NoError(t, err)
	require.True(t, payment.Amount.Equal(dec("150.00")))
	require.Equal(t, domain.StatePaid, obligation.State)
}

func TestRegisterPaymentFineByInfractor(t *testing.T) {
	store := newMemStore(testFine(5, "150.00"))
	rec, _, _ := newTestReconciler(store)

	// party 2 is the infractor, not the responsible; still an owner
	in := registerInput(domain.KindFine, 5, nil)
	in.UserID = 11
	payment, obligation, err := rec.RegisterPayment(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, int64(2), payment.PartyID)
	require.Equal(t, domain.StatePaid, obligation.State)
}

func TestRegisterPaymentKeepsReference(t *testing.T) {
	rec, _, _ := newTestReconciler(newMemStore(testDue(1, "450.00")))

	in := registerInput(domain.KindDue, 1, nil)
	in.Reference = "BCP-0042"
	payment, _, err := rec.RegisterPayment(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "BCP-0042", payment.Reference)
}

func TestRegisterPaymentRetriesConflictOnce(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	store.conflicts = 1
	rec, _, _ := newTestReconciler(store)

	_, obligation, err := rec.RegisterPayment(context.Background(), registerInput(domain.KindDue, 1, nil))
	require.NoError(t, err)
	require.Equal(t, domain.StatePaid, obligation.State)
}

func TestRegisterPaymentGivesUpAfterSecondConflict(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	store.conflicts = 2
	rec, _, _ := newTestReconciler(store)

	_, _, err := rec.RegisterPayment(context.Background(), registerInput(domain.KindDue, 1, nil))
	require.ErrorIs(t, err, ErrConflictRetry)
	require.Empty(t, store.payments)
}

func TestRegisterPaymentConcurrentFullPayments(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	rec, _, _ := newTestReconciler(store)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = rec.RegisterPayment(context.Background(), registerInput(domain.KindDue, 1, nil))
		}(i)
	}
	wg.Wait()

	var ok, settled int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadySettled):
			settled++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, settled)
	require.Len(t, store.payments, 1)
	require.True(t, store.payments[0].Amount.Equal(dec("450.00")))
}

func TestUpdateConfirmationRejectReopens(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	rec, cache, notifier := newTestReconciler(store)
	ctx := context.Background()

	registered, _, err := rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, nil))
	require.NoError(t, err)

	payment, obligation, err := rec.UpdateConfirmation(ctx, registered.ID, domain.ConfirmationRejected)
	require.NoError(t, err)
	require.Equal(t, domain.ConfirmationRejected, payment.Confirmation)
	require.Equal(t, domain.StatePending, obligation.State)
	require.Equal(t, domain.StatePending, store.obligations[obligation.Ref()].State)

	// the obligation is payable again
	_, obligation, err = rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, nil))
	require.NoError(t, err)
	require.Equal(t, domain.StatePaid, obligation.State)

	require.Len(t, cache.invalidated, 3)
	require.Len(t, notifier.updated, 1)
}

func TestUpdateConfirmationPendingVerificationStillCounts(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	rec, _, _ := newTestReconciler(store)
	ctx := context.Background()

	registered, _, err := rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, nil))
	require.NoError(t, err)

	payment, obligation, err := rec.UpdateConfirmation(ctx, registered.ID, domain.ConfirmationPendingVerification)
	require.NoError(t, err)
	require.Equal(t, domain.ConfirmationPendingVerification, payment.Confirmation)
	require.Equal(t, domain.StatePaid, obligation.State)

	_, _, err = rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, amt("10.00")))
	require.ErrorIs(t, err, ErrAlreadySettled)
}

func TestUpdateConfirmationUnknownPayment(t *testing.T) {
	rec, _, _ := newTestReconciler(newMemStore(testDue(1, "450.00")))

	_, _, err := rec.UpdateConfirmation(context.Background(), "no-such-id", domain.ConfirmationRejected)
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestUpdateConfirmationPartialRejectDowngradesToPartial(t *testing.T) {
	store := newMemStore(testDue(1, "450.00"))
	rec, _, _ := newTestReconciler(store)
	ctx := context.Background()

	_, _, err := rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, amt("200.00")))
	require.NoError(t, err)
	second, _, err := rec.RegisterPayment(ctx, registerInput(domain.KindDue, 1, amt("250.00")))
	require.NoError(t, err)

	_, obligation, err := rec.UpdateConfirmation(ctx, second.ID, domain.ConfirmationRejected)
	require.NoError(t, err)
	require.Equal(t, domain.StatePartial, obligation.State)
}
