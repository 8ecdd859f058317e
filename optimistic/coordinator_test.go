package optimistic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func order(id string, status negotiation.Status) negotiation.Order {
	created := testNow.Add(-24 * time.Hour)
	return negotiation.Order{
		ID:           id,
		Buyer:        negotiation.Party{ID: "buyer-1"},
		Seller:       negotiation.Party{ID: "seller-1"},
		Quantity:     nullDec("8"),
		Unit:         "kg",
		PricePerUnit: nullDec("100"),
		TotalAmount:  nullDec("800"),
		Status:       status,
		CreatedAt:    &created,
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	failures  []error
	integrity []string
}

func (n *recordingNotifier) MutationFailed(_ string, _ negotiation.Action, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
}

func (n *recordingNotifier) IntegrityWarning(o negotiation.Order, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.integrity = append(n.integrity, o.ID)
}

type recordingSignaler struct {
	mu      sync.Mutex
	signals []string
}

func (s *recordingSignaler) OrderMutated(_ context.Context, orderID string, action negotiation.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, orderID+":"+string(action))
}

func newCoordinator(orders ...negotiation.Order) (*Coordinator, *recordingNotifier, *recordingSignaler) {
	coll := NewCollection()
	coll.ReplaceAll(orders, coll.BeginFetch(), nil)
	n := &recordingNotifier{}
	s := &recordingSignaler{}
	c := NewCoordinator(coll, Options{
		Notifier:  n,
		Signaler:  s,
		Clock:     func() time.Time { return testNow },
		LedgerTTL: time.Minute,
	})
	return c, n, s
}

func succeed(context.Context, negotiation.Action, negotiation.Order) error { return nil }

func TestExecuteAppliesAndSignals(t *testing.T) {
	c, n, s := newCoordinator(order("A", negotiation.StatusNew))

	got, err := c.Execute(context.Background(), "A", negotiation.RoleSeller, negotiation.Accept(), succeed)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusAccepted, got.Status)

	held, ok := c.Collection().Get("A")
	require.True(t, ok)
	assert.Equal(t, negotiation.StatusAccepted, held.Status)
	assert.Empty(t, n.failures)
	assert.Equal(t, []string{"A:accept"}, s.signals)

	e, ok := c.Ledger().Get("A")
	require.True(t, ok, "entry stays until a fetch confirms it")
	assert.True(t, e.Committed())
	assert.False(t, c.InFlight("A"))
}

func TestRemoteIsCalledWithOptimisticResult(t *testing.T) {
	c, _, _ := newCoordinator(order("A", negotiation.StatusNew))

	var seen negotiation.Order
	_, err := c.Execute(context.Background(), "A", negotiation.RoleBuyer,
		negotiation.Counter(decimal.RequireFromString("90"), decimal.NullDecimal{}, "lower?"),
		func(_ context.Context, action negotiation.Action, after negotiation.Order) error {
			assert.Equal(t, negotiation.ActionCounter, action)
			held, _ := c.Collection().Get("A")
			assert.Equal(t, negotiation.StatusNegotiating, held.Status, "local change is visible before the server answers")
			seen = after
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "720", seen.Counter.TotalAmount.Decimal.String())
}

func TestFailedRemoteRestoresSnapshotExactly(t *testing.T) {
	before := order("A", negotiation.StatusNegotiating)
	offered := testNow.Add(-time.Hour)
	before.Counter = negotiation.CounterOffer{
		PricePerUnit: nullDec("95"),
		Quantity:     nullDec("8"),
		TotalAmount:  nullDec("760"),
		OfferedAt:    &offered,
		OfferedBy:    negotiation.RoleSeller,
	}
	c, n, s := newCoordinator(before)
	c.Collection().Select(before)

	boom := errors.New("connection reset")
	got, err := c.Execute(context.Background(), "A", negotiation.RoleBuyer, negotiation.AcceptCounter(),
		func(context.Context, negotiation.Action, negotiation.Order) error { return boom })
	require.ErrorIs(t, err, boom)

	assert.Equal(t, before, got)
	held, _ := c.Collection().Get("A")
	assert.Equal(t, before, held)
	sel, ok := c.Collection().Selected()
	require.True(t, ok)
	assert.Equal(t, before, sel)

	assert.Equal(t, 0, c.Ledger().Len())
	assert.Equal(t, []error{boom}, n.failures)
	assert.Empty(t, s.signals)
	assert.False(t, c.InFlight("A"))
}

func TestRollbackDoesNotReopenClosedOrder(t *testing.T) {
	o := order("A", negotiation.StatusNew)
	c, _, _ := newCoordinator(o)

	cmd, err := c.Apply("A", negotiation.RoleSeller, negotiation.Accept())
	require.NoError(t, err)
	cmd.Rollback(errors.New("boom"))

	_, ok := c.Collection().Selected()
	assert.False(t, ok)
}

func TestIllegalTransitionIsPreempted(t *testing.T) {
	c, n, _ := newCoordinator(order("A", negotiation.StatusNew))

	called := false
	_, err := c.Execute(context.Background(), "A", negotiation.RoleBuyer, negotiation.Accept(),
		func(context.Context, negotiation.Action, negotiation.Order) error {
			called = true
			return nil
		})
	require.ErrorIs(t, err, negotiation.ErrWrongParty)
	assert.False(t, called)
	assert.Len(t, n.failures, 1)
	assert.Equal(t, 0, c.Ledger().Len())
}

func TestUnknownOrder(t *testing.T) {
	c, _, _ := newCoordinator()
	_, err := c.Apply("missing", negotiation.RoleSeller, negotiation.Accept())
	assert.ErrorIs(t, err, ErrOrderNotLoaded)
}

func TestSecondMutationWhileInFlightIsRefused(t *testing.T) {
	c, _, _ := newCoordinator(order("A", negotiation.StatusNew))

	cmd, err := c.Apply("A", negotiation.RoleSeller, negotiation.Accept())
	require.NoError(t, err)

	_, err = c.Apply("A", negotiation.RoleSeller, negotiation.Cancel("changed my mind"))
	assert.ErrorIs(t, err, negotiation.ErrNotAllowedInStatus, "the optimistic status is the one checked")

	_, err = c.Apply("A", negotiation.RoleSeller, negotiation.Complete())
	assert.ErrorIs(t, err, ErrMutationInFlight)

	cmd.Commit(context.Background())
	_, err = c.Apply("A", negotiation.RoleSeller, negotiation.Complete())
	assert.NoError(t, err)
}

func TestStalePollDuringFlightKeepsOptimisticVersion(t *testing.T) {
	c, _, _ := newCoordinator(order("A", negotiation.StatusNew))

	fetch := c.Collection().BeginFetch()
	cmd, err := c.Apply("A", negotiation.RoleSeller, negotiation.Accept())
	require.NoError(t, err)

	// Poll started before the mutation and returns the old status.
	c.ReconcileAll([]negotiation.Order{order("A", negotiation.StatusNew)}, fetch)
	held, _ := c.Collection().Get("A")
	assert.Equal(t, negotiation.StatusAccepted, held.Status)

	// Poll started after the mutation but before the server applied it.
	fetch = c.Collection().BeginFetch()
	c.ReconcileAll([]negotiation.Order{order("A", negotiation.StatusNew)}, fetch)
	held, _ = c.Collection().Get("A")
	assert.Equal(t, negotiation.StatusAccepted, held.Status, "uncommitted change is re-asserted")

	cmd.Commit(context.Background())
	_, ok := c.Ledger().Get("A")
	assert.True(t, ok)
}

func TestConcurrentPollNeverUndoesApply(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, _, _ := newCoordinator(order("A", negotiation.StatusNew))

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				fetch := c.Collection().BeginFetch()
				c.ReconcileAll([]negotiation.Order{order("A", negotiation.StatusNew)}, fetch)
			}
		}()

		_, err := c.Apply("A", negotiation.RoleSeller, negotiation.Accept())
		require.NoError(t, err)
		for j := 0; j < 20; j++ {
			held, _ := c.Collection().Get("A")
			if !assert.Equal(t, negotiation.StatusAccepted, held.Status, "iteration %d", i) {
				break
			}
		}

		close(stop)
		wg.Wait()
	}
}

func TestFetchAfterCommitIsAuthoritative(t *testing.T) {
	c, _, _ := newCoordinator(order("A", negotiation.StatusNew))

	_, err := c.Execute(context.Background(), "A", negotiation.RoleSeller, negotiation.Accept(), succeed)
	require.NoError(t, err)

	// The server later cancelled the order on someone else's behalf.
	fetch := c.Collection().BeginFetch()
	server := order("A", negotiation.StatusCancelled)
	assert.True(t, c.Reconcile(server, fetch))

	held, _ := c.Collection().Get("A")
	assert.Equal(t, negotiation.StatusCancelled, held.Status)
	assert.Equal(t, 0, c.Ledger().Len())
}

func TestMatchingFetchClearsEntry(t *testing.T) {
	c, _, _ := newCoordinator(order("A", negotiation.StatusNew))
	_, err := c.Execute(context.Background(), "A", negotiation.RoleSeller, negotiation.Accept(), succeed)
	require.NoError(t, err)

	c.ReconcileAll([]negotiation.Order{order("A", negotiation.StatusAccepted)}, c.Collection().BeginFetch())
	assert.Equal(t, 0, c.Ledger().Len())
}

func TestCommittedEntryExpires(t *testing.T) {
	now := testNow
	coll := NewCollection()
	stale := coll.BeginFetch()
	coll.ReplaceAll([]negotiation.Order{order("A", negotiation.StatusNew)}, stale, nil)
	c := NewCoordinator(coll, Options{Clock: func() time.Time { return now }, LedgerTTL: time.Minute})

	_, err := c.Execute(context.Background(), "A", negotiation.RoleSeller, negotiation.Accept(), succeed)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	assert.False(t, c.Ledger().Resolve(order("A", negotiation.StatusNew), stale, now))
	assert.Equal(t, 0, c.Ledger().Len())
}

func TestReconcileReportsIntegrityProblems(t *testing.T) {
	c, n, _ := newCoordinator()
	bad := order("B", negotiation.StatusNegotiating)
	bad.BuyerAcceptedCounter = true

	c.ReconcileAll([]negotiation.Order{bad}, c.Collection().BeginFetch())
	assert.Equal(t, []string{"B"}, n.integrity)

	held, ok := c.Collection().Get("B")
	require.True(t, ok, "the order is still shown")
	assert.Equal(t, negotiation.StatusNegotiating, held.Status)
}
