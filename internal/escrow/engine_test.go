package escrow

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a deterministic in-memory Store fake.
type memStore struct {
	snap    *Snapshot
	applied []Changeset
	failErr error
}

func (s *memStore) Load(ctx context.Context) (*Snapshot, error) {
	if s.snap == nil {
		return &Snapshot{}, nil
	}
	return s.snap, nil
}

func (s *memStore) Apply(ctx context.Context, cs Changeset) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.applied = append(s.applied, cs)
	return nil
}

type transferCall struct {
	to     AccountID
	amount uint64
}

type fakeBank struct {
	transfers []transferCall
	err       error
}

func (b *fakeBank) Transfer(ctx context.Context, to AccountID, amount uint64) error {
	if b.err != nil {
		return b.err
	}
	b.transfers = append(b.transfers, transferCall{to: to, amount: amount})
	return nil
}

type recordingEmitter struct {
	events []Event
}

func (r *recordingEmitter) Emit(ev Event) {
	r.events = append(r.events, ev)
}

const (
	vendorB = AccountID("acct-bob")
	buyerA  = AccountID("acct-alice")
)

func newTestEngine(t *testing.T) (*Engine, *memStore, *fakeBank, *recordingEmitter) {
	t.Helper()
	st := &memStore{}
	bank := &fakeBank{}
	e, err := New(context.Background(), vendorB, st, bank)
	require.NoError(t, err)
	em := &recordingEmitter{}
	e.SetEmitter(em)
	return e, st, bank, em
}

func TestNewSetsAdmin(t *testing.T) {
	e, st, _, _ := newTestEngine(t)

	assert.Equal(t, Config{Admin: vendorB}, e.Config())
	require.Len(t, st.applied, 1)
	require.NotNil(t, st.applied[0].Admin)
	assert.Equal(t, vendorB, *st.applied[0].Admin)
}

func TestOpenRestoresState(t *testing.T) {
	evidence := "tx1"
	st := &memStore{snap: &Snapshot{
		Admin:   vendorB,
		Vendors: []AccountID{vendorB},
		Listings: []Listing{
			{ID: 0, Vendor: vendorB, AvailableAmount: 5},
		},
		Orders: []Order{
			{ID: 0, Buyer: buyerA, Vendor: vendorB, Amount: 5, PaymentVerification: &evidence, Status: OrderPendingVerification},
		},
	}}

	e, err := Open(context.Background(), st, &fakeBank{})
	require.NoError(t, err)

	assert.Equal(t, Config{Admin: vendorB}, e.Config())
	assert.True(t, e.IsVendor(vendorB))
	assert.False(t, e.IsVendor(buyerA))

	listings := e.ListListings(0, 10)
	require.Len(t, listings, 1)
	assert.Equal(t, uint64(5), listings[0].AvailableAmount)

	orders := e.ListOrders(0, 10)
	require.Len(t, orders, 1)
	assert.Equal(t, OrderPendingVerification, orders[0].Status)
}

func TestOpenUninitialisedStore(t *testing.T) {
	_, err := Open(context.Background(), &memStore{}, &fakeBank{})
	assert.ErrorIs(t, err, ErrNotInitialised)
}

func TestCreateVendor(t *testing.T) {
	ctx := context.Background()
	e, _, _, em := newTestEngine(t)

	require.NoError(t, e.CreateVendor(ctx, vendorB))
	assert.True(t, e.IsVendor(vendorB))
	require.Len(t, em.events, 1)
	assert.Equal(t, VendorCreated{Caller: vendorB}, em.events[0])

	// Registering twice is rejected and the registry does not grow.
	err := e.CreateVendor(ctx, vendorB)
	assert.ErrorIs(t, err, ErrVendorAlreadyExists)
	assert.Len(t, e.vendors, 1)
	assert.Len(t, em.events, 1)
}

func TestCreateListing(t *testing.T) {
	ctx := context.Background()
	e, _, _, em := newTestEngine(t)

	// Non-vendors cannot open listings.
	err := e.CreateListing(ctx, buyerA)
	assert.ErrorIs(t, err, ErrNotAVendor)

	require.NoError(t, e.CreateVendor(ctx, vendorB))
	require.NoError(t, e.CreateListing(ctx, vendorB))
	require.NoError(t, e.CreateListing(ctx, vendorB))

	// Dense monotonic ids in creation order, zero starting balance.
	listings := e.ListListings(0, 10)
	require.Len(t, listings, 2)
	assert.Equal(t, uint32(1), listings[0].ID)
	assert.Equal(t, uint32(0), listings[1].ID)
	assert.Zero(t, listings[0].AvailableAmount)

	assert.Equal(t, ListingCreated{ID: 0, Vendor: vendorB}, em.events[1])
}

func TestCreateListingAtCapacity(t *testing.T) {
	ctx := context.Background()
	e, st, _, _ := newTestEngine(t)
	require.NoError(t, e.CreateVendor(ctx, vendorB))

	e.listings.length = math.MaxUint32
	applied := len(st.applied)

	err := e.CreateListing(ctx, vendorB)
	assert.ErrorIs(t, err, ErrListingLimitReached)
	assert.Equal(t, uint32(math.MaxUint32), e.listings.Length())
	assert.Len(t, st.applied, applied, "a rejected call must not write")
}

func TestDepositIntoListing(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t)
	require.NoError(t, e.CreateVendor(ctx, vendorB))
	require.NoError(t, e.CreateListing(ctx, vendorB))

	err := e.DepositIntoListing(ctx, 7, vendorB, 10)
	assert.ErrorIs(t, err, ErrListingNotFound)

	err = e.DepositIntoListing(ctx, 0, buyerA, 10)
	assert.ErrorIs(t, err, ErrUnauthorised)

	require.NoError(t, e.DepositIntoListing(ctx, 0, vendorB, 10))
	listing, _ := e.listings.Get(0)
	assert.Equal(t, uint64(10), listing.AvailableAmount)
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	e, _, _, em := newTestEngine(t)
	require.NoError(t, e.CreateVendor(ctx, vendorB))
	require.NoError(t, e.CreateListing(ctx, vendorB))

	err := e.CreateOrder(ctx, 9, 5, buyerA)
	assert.ErrorIs(t, err, ErrListingNotFound)

	// A vendor may not buy its own listing.
	err = e.CreateOrder(ctx, 0, 5, vendorB)
	assert.ErrorIs(t, err, ErrUnauthorised)

	err = e.CreateOrder(ctx, 0, 5, buyerA)
	assert.ErrorIs(t, err, ErrAmountUnavailable)

	require.NoError(t, e.DepositIntoListing(ctx, 0, vendorB, 10))
	require.NoError(t, e.CreateOrder(ctx, 0, 5, buyerA))

	// The reservation moved value out of the listing and into the order.
	listing, _ := e.listings.Get(0)
	assert.Equal(t, uint64(5), listing.AvailableAmount)

	order, ok := e.orders.Get(0)
	require.True(t, ok)
	assert.Equal(t, uint64(0), order.ID)
	assert.Equal(t, buyerA, order.Buyer)
	assert.Equal(t, vendorB, order.Vendor)
	assert.Equal(t, uint64(5), order.Amount)
	assert.Equal(t, OrderOpen, order.Status)
	assert.Nil(t, order.PaymentVerification)

	assert.Equal(t, OrderCreated{ID: 0, Buyer: buyerA, Vendor: vendorB}, em.events[len(em.events)-1])
}

func TestSubmitPaymentVerification(t *testing.T) {
	ctx := context.Background()
	e, _, _, em := newTestEngine(t)
	require.NoError(t, e.CreateVendor(ctx, vendorB))
	require.NoError(t, e.CreateListing(ctx, vendorB))
	require.NoError(t, e.DepositIntoListing(ctx, 0, vendorB, 10))
	require.NoError(t, e.CreateOrder(ctx, 0, 5, buyerA))

	err := e.SubmitPaymentVerification(ctx, 3, "tx1", buyerA)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	err = e.SubmitPaymentVerification(ctx, 0, "tx1", vendorB)
	assert.ErrorIs(t, err, ErrUnauthorised)

	require.NoError(t, e.SubmitPaymentVerification(ctx, 0, "tx1", buyerA))
	order, _ := e.orders.Get(0)
	require.NotNil(t, order.PaymentVerification)
	assert.Equal(t, "tx1", *order.PaymentVerification)
	assert.Equal(t, OrderPendingVerification, order.Status)
	assert.Equal(t, OrderUpdated{ID: 0, Status: OrderPendingVerification}, em.events[len(em.events)-1])

	// Evidence is replaceable while the order is still open to updates.
	require.NoError(t, e.SubmitPaymentVerification(ctx, 0, "tx2", buyerA))
	order, _ = e.orders.Get(0)
	assert.Equal(t, "tx2", *order.PaymentVerification)

	// A disputed order accepts fresh evidence and drops back to pending.
	order.Status = OrderDisputed
	e.orders.Update(order)
	require.NoError(t, e.SubmitPaymentVerification(ctx, 0, "tx3", buyerA))
	order, _ = e.orders.Get(0)
	assert.Equal(t, OrderPendingVerification, order.Status)

	// Finalised and Cancelled are terminal.
	order.Status = OrderFinalised
	e.orders.Update(order)
	err = e.SubmitPaymentVerification(ctx, 0, "tx4", buyerA)
	assert.ErrorIs(t, err, ErrOrderFinalised)

	order.Status = OrderCancelled
	e.orders.Update(order)
	err = e.SubmitPaymentVerification(ctx, 0, "tx4", buyerA)
	assert.ErrorIs(t, err, ErrOrderCancelled)

	order, _ = e.orders.Get(0)
	assert.Equal(t, "tx3", *order.PaymentVerification, "terminal statuses must not accept evidence")
}

func TestWithdrawFromListing(t *testing.T) {
	ctx := context.Background()
	e, _, bank, _ := newTestEngine(t)
	require.NoError(t, e.CreateVendor(ctx, vendorB))
	require.NoError(t, e.CreateListing(ctx, vendorB))
	require.NoError(t, e.DepositIntoListing(ctx, 0, vendorB, 10))
	require.NoError(t, e.CreateOrder(ctx, 0, 5, buyerA))

	err := e.WithdrawFromListing(ctx, 4, 1, vendorB)
	assert.ErrorIs(t, err, ErrListingNotFound)

	err = e.WithdrawFromListing(ctx, 0, 1, buyerA)
	assert.ErrorIs(t, err, ErrUnauthorised)

	require.NoError(t, e.WithdrawFromListing(ctx, 0, 1, vendorB))
	listing, _ := e.listings.Get(0)
	assert.Equal(t, uint64(4), listing.AvailableAmount)
	require.Len(t, bank.transfers, 1)
	assert.Equal(t, transferCall{to: vendorB, amount: 1}, bank.transfers[0])

	err = e.WithdrawFromListing(ctx, 0, 5, vendorB)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	listing, _ = e.listings.Get(0)
	assert.Equal(t, uint64(4), listing.AvailableAmount)
	assert.Len(t, bank.transfers, 1)
}

func TestWithdrawTransferFailureAborts(t *testing.T) {
	ctx := context.Background()
	e, st, bank, _ := newTestEngine(t)
	require.NoError(t, e.CreateVendor(ctx, vendorB))
	require.NoError(t, e.CreateListing(ctx, vendorB))
	require.NoError(t, e.DepositIntoListing(ctx, 0, vendorB, 10))

	bank.err = errors.New("balance floor violated")
	applied := len(st.applied)

	err := e.WithdrawFromListing(ctx, 0, 3, vendorB)

	var tfe *TransferFailedError
	require.ErrorAs(t, err, &tfe)
	assert.Equal(t, uint32(0), tfe.ListingID)
	assert.Equal(t, uint64(3), tfe.Amount)
	assert.NotErrorIs(t, err, ErrInsufficientFunds)

	// The abort left the balance fully intact and committed nothing.
	listing, _ := e.listings.Get(0)
	assert.Equal(t, uint64(10), listing.AvailableAmount)
	assert.Len(t, st.applied, applied)
	assert.Empty(t, bank.transfers)
}

func TestStoreFailureLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	e, st, _, em := newTestEngine(t)
	require.NoError(t, e.CreateVendor(ctx, vendorB))
	require.NoError(t, e.CreateListing(ctx, vendorB))
	require.NoError(t, e.DepositIntoListing(ctx, 0, vendorB, 10))

	st.failErr = errors.New("disk full")
	events := len(em.events)

	err := e.CreateOrder(ctx, 0, 5, buyerA)
	require.Error(t, err)

	listing, _ := e.listings.Get(0)
	assert.Equal(t, uint64(10), listing.AvailableAmount, "reservation must not survive a failed commit")
	assert.Equal(t, uint64(0), e.orders.Length())
	assert.Len(t, em.events, events, "no notification for an aborted call")
}

// The end-to-end scenario from the acceptance checklist: register, list,
// deposit, reserve, verify, settle.
func TestOrderLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	e, _, bank, _ := newTestEngine(t)

	require.NoError(t, e.CreateVendor(ctx, vendorB))
	require.NoError(t, e.CreateListing(ctx, vendorB))
	require.NoError(t, e.DepositIntoListing(ctx, 0, vendorB, 10))
	require.NoError(t, e.CreateOrder(ctx, 0, 5, buyerA))

	listing, _ := e.listings.Get(0)
	require.Equal(t, uint64(5), listing.AvailableAmount)

	require.NoError(t, e.SubmitPaymentVerification(ctx, 0, "tx1", buyerA))
	order, _ := e.orders.Get(0)
	require.Equal(t, OrderPendingVerification, order.Status)
	require.Equal(t, "tx1", *order.PaymentVerification)

	// An out-of-scope settlement collaborator finalises the order directly.
	order.Status = OrderFinalised
	e.orders.Update(order)
	err := e.SubmitPaymentVerification(ctx, 0, "tx1-retry", buyerA)
	require.ErrorIs(t, err, ErrOrderFinalised)

	require.NoError(t, e.WithdrawFromListing(ctx, 0, 1, vendorB))
	listing, _ = e.listings.Get(0)
	assert.Equal(t, uint64(4), listing.AvailableAmount)
	require.Len(t, bank.transfers, 1)
	assert.Equal(t, uint64(1), bank.transfers[0].amount)

	err = e.WithdrawFromListing(ctx, 0, 5, vendorB)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}
