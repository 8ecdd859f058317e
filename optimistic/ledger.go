package optimistic

import (
	"sync"
	"time"

	"github.com/kendall-kelly/marketplace-orders/negotiation"
)

// Entry is the bookkeeping for one in-flight or unconfirmed optimistic change
type Entry struct {
	OrderID       string
	PendingStatus negotiation.Status
	SubmittedAt   time.Time

	// PendingCounterBy is the counter-offer turn after the change. A counter made
	// while already negotiating keeps the status, so the turn tells it apart.
	PendingCounterBy negotiation.Role

	// committedStamp is the collection stamp taken when the server accepted the
	// change; zero while the request is in flight.
	committedStamp uint64
	committedAt    time.Time
}

// EntryFor builds the ledger entry for the locally computed result of a mutation
func EntryFor(after negotiation.Order, submittedAt time.Time) Entry {
	return Entry{
		OrderID:          after.ID,
		PendingStatus:    after.Status,
		PendingCounterBy: after.Counter.OfferedBy,
		SubmittedAt:      submittedAt,
	}
}

// Matches reports whether fetched shows the change as applied
func (e Entry) Matches(fetched negotiation.Order) bool {
	return fetched.Status == e.PendingStatus && fetched.Counter.OfferedBy == e.PendingCounterBy
}

// Committed reports whether the server has accepted the change
func (e Entry) Committed() bool {
	return e.committedStamp != 0
}

// Ledger holds at most one Entry per order id
type Ledger struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
}

// NewLedger creates a ledger. Committed entries older than ttl stop overriding
// fetched data even if no fetch ever confirmed them; zero disables expiry.
func NewLedger(ttl time.Duration) *Ledger {
	return &Ledger{entries: make(map[string]Entry), ttl: ttl}
}

// Record stores e, replacing any earlier entry for the same order
func (l *Ledger) Record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.OrderID] = e
}

// Commit marks the entry for orderID as accepted by the server. submittedAt must
// match the recorded entry so a stale commit cannot confirm a newer mutation.
func (l *Ledger) Commit(orderID string, submittedAt time.Time, stamp uint64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[orderID]
	if !ok || !e.SubmittedAt.Equal(submittedAt) {
		return
	}
	e.committedStamp = stamp
	e.committedAt = now
	l.entries[orderID] = e
}

// Drop removes the entry for orderID if it still belongs to the mutation submitted at submittedAt
func (l *Ledger) Drop(orderID string, submittedAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[orderID]; ok && e.SubmittedAt.Equal(submittedAt) {
		delete(l.entries, orderID)
	}
}

// Get returns the entry for orderID
func (l *Ledger) Get(orderID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[orderID]
	return e, ok
}

// Len returns the number of entries
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Resolve decides whether the locally held version of fetched must be kept.
//
// The entry is cleared and the fetched order wins when the fetched order matches
// the pending change, when the fetch started after the server accepted the
// change, or when a committed entry has expired. Otherwise the fetch is stale
// with respect to the local change and the local version is re-asserted.
func (l *Ledger) Resolve(fetched negotiation.Order, fetchStamp uint64, now time.Time) (keepLocal bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[fetched.ID]
	if !ok {
		return false
	}
	if e.Matches(fetched) {
		delete(l.entries, fetched.ID)
		return false
	}
	if !e.Committed() {
		return true
	}
	if fetchStamp > e.committedStamp {
		delete(l.entries, fetched.ID)
		return false
	}
	if l.ttl > 0 && now.Sub(e.committedAt) > l.ttl {
		delete(l.entries, fetched.ID)
		return false
	}
	return true
}
