package optimistic

import (
	"sync"

	"github.com/kendall-kelly/marketplace-orders/negotiation"
)

// Collection is the in-memory order list plus the currently open order.
// Every write replaces a whole record keyed by order id.
//
// Each record carries the stamp of the write that produced it. Stamps come from
// one counter shared by local writes and fetch starts, so a fetch that began
// before a record was written can be recognised as stale.
type Collection struct {
	mu       sync.RWMutex
	ids      []string
	byID     map[string]entry
	selected *negotiation.Order
	stamp    uint64
}

type entry struct {
	order negotiation.Order
	stamp uint64
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{byID: make(map[string]entry)}
}

// BeginFetch returns the stamp a fetch must present when its result is merged
func (c *Collection) BeginFetch() uint64 {
	return c.NextStamp()
}

// NextStamp advances the shared stamp counter
func (c *Collection) NextStamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stamp++
	return c.stamp
}

// All returns the orders in list order
func (c *Collection) All() []negotiation.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]negotiation.Order, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.byID[id].order)
	}
	return out
}

// Len returns the number of orders held
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Get returns the order with id from the list, falling back to the open order
func (c *Collection) Get(id string) (negotiation.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.byID[id]; ok {
		return e.order, true
	}
	if c.selected != nil && c.selected.ID == id {
		return *c.selected, true
	}
	return negotiation.Order{}, false
}

// Selected returns the open order, if any
func (c *Collection) Selected() (negotiation.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected == nil {
		return negotiation.Order{}, false
	}
	return *c.selected, true
}

// Select makes o the open order. Passing the zero order clears the selection.
func (c *Collection) Select(o negotiation.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.ID == "" {
		c.selected = nil
		return
	}
	if e, ok := c.byID[o.ID]; ok {
		o = e.order
	}
	c.selected = &o
}

// ClearSelection closes the open order
func (c *Collection) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = nil
}

// Put writes a local version of o into both the list and the open-order
// reference, unconditionally. It returns the stamp given to the write.
func (c *Collection) Put(o negotiation.Order) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stamp++
	c.putLocked(o, c.stamp)
	return c.stamp
}

// Annotate changes view-only fields of a held order in place, in both the list
// and the open-order reference. The record keeps its stamp.
func (c *Collection) Annotate(id string, fn func(o *negotiation.Order)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := false
	if e, ok := c.byID[id]; ok {
		fn(&e.order)
		c.byID[id] = e
		found = true
	}
	if c.selected != nil && c.selected.ID == id {
		sel := *c.selected
		fn(&sel)
		c.selected = &sel
		found = true
	}
	return found
}

// Merge writes a fetched version of o unless the held record was written after
// the fetch started. It reports whether the write happened.
func (c *Collection) Merge(o negotiation.Order, fetchStamp uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byID[o.ID]; ok && e.stamp > fetchStamp {
		return false
	}
	c.putLocked(o, fetchStamp)
	return true
}

// ReplaceAll installs a full fetched list. Orders written after the fetch started
// keep their local version; orders missing from the list are dropped unless they
// were written after the fetch started. keep decides, per fetched order, whether
// the held version must win regardless of stamps.
func (c *Collection) ReplaceAll(list []negotiation.Order, fetchStamp uint64, keep func(held, fetched negotiation.Order) bool) []negotiation.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(list))
	byID := make(map[string]entry, len(list))
	for _, o := range list {
		if _, dup := byID[o.ID]; dup {
			continue
		}
		held, ok := c.byID[o.ID]
		switch {
		case ok && held.stamp > fetchStamp:
			byID[o.ID] = held
		case ok && keep != nil && keep(held.order, o):
			byID[o.ID] = held
		default:
			byID[o.ID] = entry{order: o, stamp: fetchStamp}
		}
		ids = append(ids, o.ID)
	}
	for _, id := range c.ids {
		if _, listed := byID[id]; listed {
			continue
		}
		if held := c.byID[id]; held.stamp > fetchStamp {
			byID[id] = held
			ids = append(ids, id)
		}
	}

	c.ids = ids
	c.byID = byID
	if c.selected != nil {
		if e, ok := byID[c.selected.ID]; ok {
			o := e.order
			c.selected = &o
		}
	}

	out := make([]negotiation.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id].order)
	}
	return out
}

// Restore puts back a snapshot taken before an optimistic write. The open-order
// reference is restored only if it pointed at the order when the snapshot was taken.
func (c *Collection) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stamp++
	if s.inList {
		c.setListLocked(s.order, c.stamp)
	} else {
		c.removeLocked(s.order.ID)
	}
	if s.wasSelected {
		o := s.order
		c.selected = &o
	}
}

// Snapshot is the state of one order before an optimistic write
type Snapshot struct {
	order       negotiation.Order
	inList      bool
	wasSelected bool
}

// Order returns the order as it was captured
func (s Snapshot) Order() negotiation.Order {
	return s.order
}

// snapshot captures order id for a later Restore
func (c *Collection) snapshot(id string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{}
	if e, ok := c.byID[id]; ok {
		s.order = e.order
		s.inList = true
	}
	if c.selected != nil && c.selected.ID == id {
		s.wasSelected = true
		if !s.inList {
			s.order = *c.selected
		}
	}
	if !s.inList && !s.wasSelected {
		return Snapshot{}, false
	}
	return s, true
}

func (c *Collection) putLocked(o negotiation.Order, stamp uint64) {
	c.setListLocked(o, stamp)
	if c.selected != nil && c.selected.ID == o.ID {
		sel := o
		c.selected = &sel
	}
}

func (c *Collection) setListLocked(o negotiation.Order, stamp uint64) {
	if _, ok := c.byID[o.ID]; !ok {
		c.ids = append(c.ids, o.ID)
	}
	c.byID[o.ID] = entry{order: o, stamp: stamp}
}

func (c *Collection) removeLocked(id string) {
	if _, ok := c.byID[id]; !ok {
		return
	}
	delete(c.byID, id)
	for i, held := range c.ids {
		if held == id {
			c.ids = append(c.ids[:i:i], c.ids[i+1:]...)
			break
		}
	}
}
