package escrow

// Notification type identifiers. These are the canonical names indexers and
// the audit journal key on.
const (
	EventTypeVendorCreated  = "escrow.vendor.created"
	EventTypeListingCreated = "escrow.listing.created"
	EventTypeOrderCreated   = "escrow.order.created"
	EventTypeOrderUpdated   = "escrow.order.updated"
)

// Event is a structured notification emitted as a side effect of a committed
// operation. Events are never emitted for failed or aborted calls.
type Event interface {
	EventType() string
}

// VendorCreated is emitted when an account registers as a vendor.
type VendorCreated struct {
	Caller AccountID `json:"caller"`
}

func (VendorCreated) EventType() string { return EventTypeVendorCreated }

// ListingCreated is emitted when a vendor opens a new listing.
type ListingCreated struct {
	ID     uint32    `json:"id"`
	Vendor AccountID `json:"vendor"`
}

func (ListingCreated) EventType() string { return EventTypeListingCreated }

// OrderCreated is emitted when a buyer reserves funds from a listing.
type OrderCreated struct {
	ID     uint64    `json:"id"`
	Buyer  AccountID `json:"buyer"`
	Vendor AccountID `json:"vendor"`
}

func (OrderCreated) EventType() string { return EventTypeOrderCreated }

// OrderUpdated is emitted when an order's status changes.
type OrderUpdated struct {
	ID     uint64      `json:"id"`
	Status OrderStatus `json:"status"`
}

func (OrderUpdated) EventType() string { return EventTypeOrderUpdated }

// Emitter receives notifications after an operation commits.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all notifications. It is the default sink.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}
