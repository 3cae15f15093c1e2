package escrow

import "context"

// Snapshot is the full persisted state of an engine. Listings and Orders are
// dense and ordered by id; Vendors are ordered by registration.
type Snapshot struct {
	Admin    AccountID
	Vendors  []AccountID
	Listings []Listing
	Orders   []Order
}

// Changeset is the write set of a single operation: upserts keyed by the
// record's own id (or account, for vendors). A store must apply the whole
// set atomically or not at all. The engine performs no compensation when a
// commit fails, it simply keeps its previous in-memory state.
type Changeset struct {
	Admin    *AccountID
	Vendors  []AccountID
	Listings []Listing
	Orders   []Order
}

// Empty reports whether the changeset carries no writes.
func (c Changeset) Empty() bool {
	return c.Admin == nil && len(c.Vendors) == 0 && len(c.Listings) == 0 && len(c.Orders) == 0
}

// Store is the host's persistent key/value capability, narrowed to the three
// escrow ledgers and the admin record.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Apply(ctx context.Context, cs Changeset) error
}

// Bank is the host's native-currency transfer primitive. Only withdrawal
// settlement uses it; a refused transfer aborts the whole operation.
type Bank interface {
	Transfer(ctx context.Context, to AccountID, amount uint64) error
}

// BankFunc adapts a function to the Bank interface.
type BankFunc func(ctx context.Context, to AccountID, amount uint64) error

func (f BankFunc) Transfer(ctx context.Context, to AccountID, amount uint64) error {
	return f(ctx, to, amount)
}
