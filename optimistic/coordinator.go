// Package optimistic applies order transitions locally before the server
// confirms them, and reconciles later fetches against those local changes.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kendall-kelly/marketplace-orders/negotiation"
)

var (
	ErrOrderNotLoaded   = errors.New("order is not loaded")
	ErrMutationInFlight = errors.New("a change to this order is already in progress")
)

// Signaler propagates a confirmed change so other views can refetch the order
type Signaler interface {
	OrderMutated(ctx context.Context, orderID string, action negotiation.Action)
}

// Notifier is the user-facing sink for failures
type Notifier interface {
	MutationFailed(orderID string, action negotiation.Action, err error)
	IntegrityWarning(o negotiation.Order, err error)
}

// Remote performs the authoritative version of a mutation
type Remote func(ctx context.Context, action negotiation.Action, after negotiation.Order) error

// Options configures a Coordinator
type Options struct {
	Signaler  Signaler
	Notifier  Notifier
	Clock     func() time.Time
	Logger    *slog.Logger
	LedgerTTL time.Duration
}

// Coordinator owns the optimistic mutation protocol for one collection
type Coordinator struct {
	coll     *Collection
	ledger   *Ledger
	signaler Signaler
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewCoordinator creates a coordinator for coll
func NewCoordinator(coll *Collection, opts Options) *Coordinator {
	c := &Coordinator{
		coll:     coll,
		ledger:   NewLedger(opts.LedgerTTL),
		signaler: opts.Signaler,
		notifier: opts.Notifier,
		now:      opts.Clock,
		logger:   opts.Logger,
		inFlight: make(map[string]bool),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.notifier == nil {
		c.notifier = LogNotifier{Logger: c.logger}
	}
	return c
}

// SetSignaler wires the synchronization layer after construction
func (c *Coordinator) SetSignaler(s Signaler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signaler = s
}

// Collection returns the collection the coordinator writes to
func (c *Coordinator) Collection() *Collection {
	return c.coll
}

// Ledger returns the pending-reconciliation ledger
func (c *Coordinator) Ledger() *Ledger {
	return c.ledger
}

// InFlight reports whether a mutation of orderID is awaiting the server
func (c *Coordinator) InFlight(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[orderID]
}

// Command is one applied optimistic change awaiting Commit or Rollback
type Command struct {
	c           *Coordinator
	action      negotiation.Action
	before      Snapshot
	after       negotiation.Order
	submittedAt time.Time

	once sync.Once
}

// Action returns the transition the command applied
func (cmd *Command) Action() negotiation.Action { return cmd.action }

// Before returns the order as it was before the change
func (cmd *Command) Before() negotiation.Order { return cmd.before.Order() }

// After returns the locally computed result of the change
func (cmd *Command) After() negotiation.Order { return cmd.after }

// Apply computes the transition for the held order, writes the result to the
// list and the open-order reference, and records a ledger entry.
func (c *Coordinator) Apply(orderID string, actor negotiation.Role, t negotiation.Transition) (*Command, error) {
	snap, ok := c.coll.snapshot(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotLoaded, orderID)
	}

	now := c.now()
	after, err := t.Apply(snap.Order(), actor, now)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.inFlight[orderID] {
		c.mu.Unlock()
		return nil, ErrMutationInFlight
	}
	c.inFlight[orderID] = true
	c.mu.Unlock()

	// The entry goes in first so a reload resolving in between keeps the local write.
	c.ledger.Record(EntryFor(after, now))
	c.coll.Put(after)

	return &Command{
		c:           c,
		action:      t.Action,
		before:      snap,
		after:       after,
		submittedAt: now,
	}, nil
}

// Commit finishes a command whose server call succeeded. The ledger entry stays
// until a fetch confirms it.
func (cmd *Command) Commit(ctx context.Context) {
	cmd.once.Do(func() {
		c := cmd.c
		c.ledger.Commit(cmd.after.ID, cmd.submittedAt, c.coll.NextStamp(), c.now())
		c.release(cmd.after.ID)

		c.mu.Lock()
		signaler := c.signaler
		c.mu.Unlock()
		if signaler != nil {
			signaler.OrderMutated(ctx, cmd.after.ID, cmd.action)
		}
	})
}

// Rollback finishes a command whose server call failed: the snapshot is
// restored, the ledger entry dropped and the failure reported.
func (cmd *Command) Rollback(cause error) {
	cmd.once.Do(func() {
		c := cmd.c
		c.coll.Restore(cmd.before)
		c.ledger.Drop(cmd.after.ID, cmd.submittedAt)
		c.release(cmd.after.ID)

		c.logger.Warn("order change rolled back",
			slog.String("order_id", cmd.after.ID),
			slog.String("action", string(cmd.action)),
			slog.Any("err", cause))
		c.notifier.MutationFailed(cmd.after.ID, cmd.action, cause)
	})
}

func (c *Coordinator) release(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, orderID)
}

// Execute runs the whole protocol: apply locally, call remote, then commit or roll back.
// It returns the order as visible after the protocol finished.
func (c *Coordinator) Execute(ctx context.Context, orderID string, actor negotiation.Role, t negotiation.Transition, remote Remote) (negotiation.Order, error) {
	cmd, err := c.Apply(orderID, actor, t)
	if err != nil {
		c.notifier.MutationFailed(orderID, t.Action, err)
		return negotiation.Order{}, err
	}
	if err := remote(ctx, cmd.action, cmd.after); err != nil {
		cmd.Rollback(err)
		return cmd.Before(), err
	}
	cmd.Commit(ctx)
	return cmd.After(), nil
}

// Reconcile merges one authoritative order fetched with fetchStamp. It reports
// whether the fetched version was written.
func (c *Coordinator) Reconcile(fetched negotiation.Order, fetchStamp uint64) bool {
	c.checkIntegrity(fetched)
	if c.ledger.Resolve(fetched, fetchStamp, c.now()) {
		c.logger.Debug("kept optimistic order over stale fetch",
			slog.String("order_id", fetched.ID),
			slog.String("fetched_status", string(fetched.Status)))
		return false
	}
	return c.coll.Merge(fetched, fetchStamp)
}

// ReconcileAll installs a full authoritative list fetched with fetchStamp
func (c *Coordinator) ReconcileAll(list []negotiation.Order, fetchStamp uint64) []negotiation.Order {
	for _, o := range list {
		c.checkIntegrity(o)
	}
	now := c.now()
	return c.coll.ReplaceAll(list, fetchStamp, func(_, fetched negotiation.Order) bool {
		return c.ledger.Resolve(fetched, fetchStamp, now)
	})
}

func (c *Coordinator) checkIntegrity(o negotiation.Order) {
	if err := negotiation.CheckIntegrity(o); err != nil {
		c.logger.Warn("order integrity warning",
			slog.String("order_id", o.ID),
			slog.String("status", string(o.Status)),
			slog.Any("err", err))
		c.notifier.IntegrityWarning(o, err)
	}
}

// LogNotifier reports failures to a structured logger only
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) MutationFailed(orderID string, action negotiation.Action, err error) {
	n.logger().Error("order change failed",
		slog.String("order_id", orderID),
		slog.String("action", string(action)),
		slog.Any("err", err))
}

func (n LogNotifier) IntegrityWarning(o negotiation.Order, err error) {
	n.logger().Warn("inconsistent order received",
		slog.String("order_id", o.ID),
		slog.Any("err", err))
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}
