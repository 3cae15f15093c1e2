package escrow

// AccountID identifies a participant account in the host ledger. The engine
// never interprets it; it is captured at creation time and compared for
// authorization checks.
type AccountID string

// OrderStatus is the lifecycle position of an order. The numeric values are
// part of the storage and notification format and must not be renumbered.
type OrderStatus uint8

const (
	OrderOpen OrderStatus = iota
	OrderPendingVerification
	OrderFinalised
	OrderCancelled
	OrderDisputed
)

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	return s <= OrderDisputed
}

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderPendingVerification:
		return "pending_verification"
	case OrderFinalised:
		return "finalised"
	case OrderCancelled:
		return "cancelled"
	case OrderDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// Listing is a vendor's sellable balance pool. AvailableAmount is currency
// the vendor has deposited and not yet reserved by an order or withdrawn; it
// is only ever mutated by exactly the transacted amount and never goes
// negative.
type Listing struct {
	ID              uint32    `json:"id"`
	Vendor          AccountID `json:"vendor"`
	AvailableAmount uint64    `json:"available_amount"`
}

// LedgerID satisfies the ledger record contract.
func (l Listing) LedgerID() uint32 { return l.ID }

// Order is a buyer's reservation of part of a listing's balance. Amount is
// fixed at creation; PaymentVerification is buyer-supplied evidence and stays
// nil until the buyer submits it.
type Order struct {
	ID                  uint64      `json:"id"`
	Buyer               AccountID   `json:"buyer"`
	Vendor              AccountID   `json:"vendor"`
	Amount              uint64      `json:"amount"`
	PaymentVerification *string     `json:"payment_verification,omitempty"`
	Status              OrderStatus `json:"status"`
}

// LedgerID satisfies the ledger record contract.
func (o Order) LedgerID() uint64 { return o.ID }

// Config is the read-only projection of the ownership record. Admin is fixed
// when the engine is first initialized and no operation changes it.
type Config struct {
	Admin AccountID `json:"admin"`
}
