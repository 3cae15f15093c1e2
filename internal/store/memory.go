package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/escrow-hub/internal/escrow"
)

// Memory keeps the full escrow state in process memory. It backs the dev
// store driver and doubles as the deterministic fake the engine tests
// substitute for a real database.
type Memory struct {
	mu        sync.Mutex
	admin     escrow.AccountID
	vendors   map[escrow.AccountID]struct{}
	vendorSeq []escrow.AccountID
	listings  []escrow.Listing
	orders    []escrow.Order
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{vendors: make(map[escrow.AccountID]struct{})}
}

func (m *Memory) Load(ctx context.Context) (*escrow.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &escrow.Snapshot{
		Admin:    m.admin,
		Vendors:  append([]escrow.AccountID(nil), m.vendorSeq...),
		Listings: append([]escrow.Listing(nil), m.listings...),
		Orders:   append([]escrow.Order(nil), m.orders...),
	}
	return snap, nil
}

func (m *Memory) Apply(ctx context.Context, cs escrow.Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the whole set before touching anything so a bad changeset is
	// a no-op, matching the atomicity the driver-backed stores get from
	// database transactions.
	for _, l := range cs.Listings {
		if int(l.ID) > len(m.listings) {
			return fmt.Errorf("memory store: listing id %d leaves a gap (length %d)", l.ID, len(m.listings))
		}
	}
	for _, o := range cs.Orders {
		if int(o.ID) > len(m.orders) {
			return fmt.Errorf("memory store: order id %d leaves a gap (length %d)", o.ID, len(m.orders))
		}
	}

	if cs.Admin != nil {
		m.admin = *cs.Admin
	}
	for _, v := range cs.Vendors {
		if _, ok := m.vendors[v]; ok {
			continue
		}
		m.vendors[v] = struct{}{}
		m.vendorSeq = append(m.vendorSeq, v)
	}
	for _, l := range cs.Listings {
		if int(l.ID) == len(m.listings) {
			m.listings = append(m.listings, l)
			continue
		}
		m.listings[l.ID] = l
	}
	for _, o := range cs.Orders {
		if int(o.ID) == len(m.orders) {
			m.orders = append(m.orders, o)
			continue
		}
		m.orders[o.ID] = o
	}
	return nil
}
