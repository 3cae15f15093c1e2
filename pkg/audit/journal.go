package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is a single journal record. Each entry's hash covers the previous
// entry's hash, so any tampering with a stored record breaks the chain from
// that point on.
type Entry struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// Journal is a tamper-evident, hash-chained record of escrow notifications
// and API activity.
type Journal struct {
	mu           sync.Mutex
	previousHash string
	entries      []*Entry
}

// NewJournal creates a journal anchored at a zero hash.
func NewJournal() *Journal {
	return &Journal{
		previousHash: strings.Repeat("0", 64),
	}
}

// Append adds a payload to the chain and returns the stored entry.
func (j *Journal) Append(payload string) *Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := &Entry{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		PreviousHash: j.previousHash,
		Payload:      payload,
	}
	entry.Hash = entryHash(entry)

	j.previousHash = entry.Hash
	j.entries = append(j.entries, entry)
	return entry
}

// Entries returns a copy of the journal contents in append order.
func (j *Journal) Entries() []*Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len reports the number of entries appended so far.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

func entryHash(e *Entry) string {
	sum := sha256.Sum256([]byte(e.PreviousHash + "|" + e.Timestamp + "|" + e.Payload))
	return hex.EncodeToString(sum[:])
}

// Verify checks that a slice of entries forms an unbroken hash chain.
func Verify(entries []*Entry) bool {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false
		}
		if entryHash(entry) != entry.Hash {
			return false
		}
	}
	return true
}
