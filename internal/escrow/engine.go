package escrow

import (
	"context"
	"fmt"
	"sync"
)

// Engine implements the escrow marketplace: the vendor registry, the listing
// and order ledgers, and the accounting that moves value between them.
//
// Every operation is a single all-or-nothing transaction: it validates
// against the in-memory state, commits its write set through the store, and
// only then mutates memory and emits notifications. The mutex serializes
// operations, so no call ever observes a partial write.
type Engine struct {
	mu sync.Mutex

	admin    AccountID
	vendors  map[AccountID]struct{}
	listings *Ledger[uint32, Listing]
	orders   *Ledger[uint64, Order]

	store   Store
	bank    Bank
	emitter Emitter
}

func newEngine(store Store, bank Bank) *Engine {
	return &Engine{
		vendors:  make(map[AccountID]struct{}),
		listings: NewLedger[uint32, Listing](),
		orders:   NewLedger[uint64, Order](),
		store:    store,
		bank:     bank,
		emitter:  NoopEmitter{},
	}
}

// New initialises fresh state with the calling account as admin and persists
// the ownership record. The admin is fixed for the lifetime of the state;
// ownership transfer is not supported.
func New(ctx context.Context, caller AccountID, store Store, bank Bank) (*Engine, error) {
	e := newEngine(store, bank)
	admin := caller
	if err := store.Apply(ctx, Changeset{Admin: &admin}); err != nil {
		return nil, fmt.Errorf("persist admin record: %w", err)
	}
	e.admin = caller
	return e, nil
}

// Open restores an engine from previously persisted state. It returns
// ErrNotInitialised when the store was never initialised with New.
func Open(ctx context.Context, store Store, bank Bank) (*Engine, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if snap == nil || snap.Admin == "" {
		return nil, ErrNotInitialised
	}
	e := newEngine(store, bank)
	e.admin = snap.Admin
	for _, v := range snap.Vendors {
		e.vendors[v] = struct{}{}
	}
	e.listings.load(snap.Listings)
	e.orders.load(snap.Orders)
	return e, nil
}

// SetEmitter configures the notification sink. Passing nil resets it to a
// no-op implementation.
func (e *Engine) SetEmitter(em Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if em == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = em
}

// Config returns the read-only ownership projection.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Config{Admin: e.admin}
}

// IsVendor reports whether the account is registered as a vendor.
func (e *Engine) IsVendor(account AccountID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.vendors[account]
	return ok
}

// CreateVendor registers the caller as a vendor. Registration is permanent
// and unique per account.
func (e *Engine) CreateVendor(ctx context.Context, caller AccountID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.vendors[caller]; ok {
		return ErrVendorAlreadyExists
	}
	if err := e.store.Apply(ctx, Changeset{Vendors: []AccountID{caller}}); err != nil {
		return fmt.Errorf("persist vendor: %w", err)
	}
	e.vendors[caller] = struct{}{}
	e.emitter.Emit(VendorCreated{Caller: caller})
	return nil
}

// CreateListing opens a new empty listing owned by the calling vendor. The
// id is the listing ledger length at creation time.
func (e *Engine) CreateListing(ctx context.Context, caller AccountID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listings.AtCapacity() {
		return ErrListingLimitReached
	}
	if _, ok := e.vendors[caller]; !ok {
		return ErrNotAVendor
	}

	listing := Listing{
		ID:     e.listings.Length(),
		Vendor: caller,
	}
	if err := e.store.Apply(ctx, Changeset{Listings: []Listing{listing}}); err != nil {
		return fmt.Errorf("persist listing: %w", err)
	}
	e.listings.Create(listing)
	e.emitter.Emit(ListingCreated{ID: listing.ID, Vendor: listing.Vendor})
	return nil
}

// DepositIntoListing credits the host-attached transfer amount to a listing
// owned by the caller. The amount comes from the host's value-transfer
// mechanism, not from a caller-chosen argument.
func (e *Engine) DepositIntoListing(ctx context.Context, id uint32, caller AccountID, transferred uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	listing, ok := e.listings.Get(id)
	if !ok {
		return ErrListingNotFound
	}
	if listing.Vendor != caller {
		return ErrUnauthorised
	}

	listing.AvailableAmount += transferred
	if err := e.store.Apply(ctx, Changeset{Listings: []Listing{listing}}); err != nil {
		return fmt.Errorf("persist deposit: %w", err)
	}
	e.listings.Update(listing)
	return nil
}

// CreateOrder reserves amount from the listing's available balance into a
// new Open order. No native transfer happens here; settlement to the vendor
// only occurs on withdrawal. A vendor may not buy its own listing.
func (e *Engine) CreateOrder(ctx context.Context, listingID uint32, amount uint64, caller AccountID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	listing, ok := e.listings.Get(listingID)
	if !ok {
		return ErrListingNotFound
	}
	if listing.Vendor == caller {
		return ErrUnauthorised
	}
	if amount > listing.AvailableAmount {
		return ErrAmountUnavailable
	}

	listing.AvailableAmount -= amount
	order := Order{
		ID:     e.orders.Length(),
		Buyer:  caller,
		Vendor: listing.Vendor,
		Amount: amount,
		Status: OrderOpen,
	}
	// One write set: the reservation debit and the order commit together.
	cs := Changeset{Listings: []Listing{listing}, Orders: []Order{order}}
	if err := e.store.Apply(ctx, cs); err != nil {
		return fmt.Errorf("persist order: %w", err)
	}
	e.listings.Update(listing)
	e.orders.Create(order)
	e.emitter.Emit(OrderCreated{ID: order.ID, Buyer: order.Buyer, Vendor: order.Vendor})
	return nil
}

// SubmitPaymentVerification records the buyer's payment evidence and moves
// the order to PendingVerification. Finalised and Cancelled are terminal for
// this operation; any other status accepts fresh evidence, so a disputed
// order drops back to pending review when the buyer resubmits.
func (e *Engine) SubmitPaymentVerification(ctx context.Context, orderID uint64, evidence string, caller AccountID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders.Get(orderID)
	if !ok {
		return ErrOrderNotFound
	}
	if order.Buyer != caller {
		return ErrUnauthorised
	}
	switch order.Status {
	case OrderFinalised:
		return ErrOrderFinalised
	case OrderCancelled:
		return ErrOrderCancelled
	}

	order.PaymentVerification = &evidence
	order.Status = OrderPendingVerification
	if err := e.store.Apply(ctx, Changeset{Orders: []Order{order}}); err != nil {
		return fmt.Errorf("persist verification: %w", err)
	}
	e.orders.Update(order)
	e.emitter.Emit(OrderUpdated{ID: order.ID, Status: order.Status})
	return nil
}

// WithdrawFromListing settles amount to the owning vendor through the native
// transfer primitive and debits the listing.
//
// The transfer runs before anything is committed: a refused transfer must
// abort the whole transaction with no state change, and there is no
// surrounding rollback to lean on here, so the debit is only persisted once
// the payment went through.
func (e *Engine) WithdrawFromListing(ctx context.Context, id uint32, amount uint64, caller AccountID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	listing, ok := e.listings.Get(id)
	if !ok {
		return ErrListingNotFound
	}
	if listing.Vendor != caller {
		return ErrUnauthorised
	}
	if amount > listing.AvailableAmount {
		return ErrInsufficientFunds
	}

	if err := e.bank.Transfer(ctx, listing.Vendor, amount); err != nil {
		return &TransferFailedError{
			ListingID: id,
			Vendor:    listing.Vendor,
			Amount:    amount,
			Err:       err,
		}
	}

	listing.AvailableAmount -= amount
	if err := e.store.Apply(ctx, Changeset{Listings: []Listing{listing}}); err != nil {
		return fmt.Errorf("persist withdrawal: %w", err)
	}
	e.listings.Update(listing)
	return nil
}

// ListListings returns listings newest-first; see Ledger.Index for the page
// boundary contract.
func (e *Engine) ListListings(page uint32, size uint8) []Listing {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listings.Index(page, size)
}

// ListOrders returns orders newest-first; see Ledger.Index for the page
// boundary contract.
func (e *Engine) ListOrders(page uint64, size uint8) []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders.Index(page, size)
}
