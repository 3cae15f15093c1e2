package escrow

// ident constrains the id widths the ledgers are instantiated with: uint32
// for listings, uint64 for orders.
type ident interface {
	~uint32 | ~uint64
}

type ledgerRecord[I ident] interface {
	LedgerID() I
}

// Ledger is an append-only collection keyed by a dense, monotonically
// increasing 0-based id. Ids are assigned as the ledger length at creation
// time and never reused; records are updated in place and never deleted.
type Ledger[I ident, R ledgerRecord[I]] struct {
	values map[I]R
	length I
}

// NewLedger returns an empty ledger.
func NewLedger[I ident, R ledgerRecord[I]]() *Ledger[I, R] {
	return &Ledger[I, R]{values: make(map[I]R)}
}

// Length is the number of records, which is also the next id to assign.
func (l *Ledger[I, R]) Length() I { return l.length }

// AtCapacity reports whether the id space is exhausted. Callers must check
// this before Create; at capacity the next id would wrap.
func (l *Ledger[I, R]) AtCapacity() bool { return l.length == ^I(0) }

// Get returns the record stored at id.
func (l *Ledger[I, R]) Get(id I) (R, bool) {
	r, ok := l.values[id]
	return r, ok
}

// Create writes the record at the current length slot. The length grows only
// when the slot was vacant, so an occupied slot can never be counted twice.
func (l *Ledger[I, R]) Create(r R) {
	_, occupied := l.values[l.length]
	l.values[l.length] = r
	if !occupied {
		l.length++
	}
}

// Update overwrites the record at its own id. The length is unchanged.
func (l *Ledger[I, R]) Update(r R) {
	l.values[r.LedgerID()] = r
}

// Index returns records newest-first. The page offset is page*size with
// checked multiplication in the ledger's id width; on overflow, or when the
// offset consumes the whole ledger, the result is empty.
//
// Both ends of the page range are inclusive, so a page carries up to size+1
// records and consecutive pages share one record at the boundary. Known
// quirk, kept for compatibility with the deployed pagination contract; do
// not change without product sign-off.
func (l *Ledger[I, R]) Index(page I, size uint8) []R {
	out := make([]R, 0, int(size)+1)
	if l.length == 0 {
		return out
	}
	skip := page * I(size)
	if size != 0 && skip/I(size) != page {
		return out
	}
	if skip >= l.length {
		return out
	}
	end := l.length - skip - 1
	start := I(0)
	if end > I(size) {
		start = end - I(size)
	}
	for i := end; ; i-- {
		if r, ok := l.values[i]; ok {
			out = append(out, r)
		}
		if i == start {
			break
		}
	}
	return out
}

// load replaces the ledger contents with a dense snapshot ordered by id.
func (l *Ledger[I, R]) load(records []R) {
	l.values = make(map[I]R, len(records))
	for _, r := range records {
		l.values[r.LedgerID()] = r
	}
	l.length = I(len(records))
}
