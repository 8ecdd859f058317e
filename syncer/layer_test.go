package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kendall-kelly/marketplace-orders/mapper"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/kendall-kelly/marketplace-orders/optimistic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLayer(api *fakeAPI, cfg Config) *Layer {
	coord := optimistic.NewCoordinator(optimistic.NewCollection(), optimistic.Options{})
	return NewLayer(api, coord, mapper.Viewer{UserID: "seller-1"}, nil, cfg)
}

func statusOf(t *testing.T, l *Layer, id string) negotiation.Status {
	t.Helper()
	o, ok := l.coord.Collection().Get(id)
	require.True(t, ok, "order %s is held", id)
	return o.Status
}

func TestReloadInstallsOrders(t *testing.T) {
	api := newFakeAPI(record("A", "new"), record("B", "pending"))
	l := newLayer(api, Config{})

	var reloaded []negotiation.Order
	l.Bus().OnReloaded(func(_ context.Context, orders []negotiation.Order) { reloaded = orders })

	orders, err := l.Reload(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, negotiation.KindSale, orders[0].Type)
	assert.Len(t, reloaded, 2)
}

func TestReloadFailureKeepsLastKnownOrders(t *testing.T) {
	api := newFakeAPI(record("A", "new"))
	l := newLayer(api, Config{})
	_, err := l.Reload(context.Background())
	require.NoError(t, err)

	boom := errors.New("service unavailable")
	api.listErr = boom
	_, err = l.Reload(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, negotiation.StatusNew, statusOf(t, l, "A"))
}

func TestReloadTimesOut(t *testing.T) {
	api := newFakeAPI()
	api.listEntered = make(chan struct{})
	api.listGate = make(chan []mapper.Record)
	l := newLayer(api, Config{ListTimeout: 20 * time.Millisecond})

	_, err := l.Reload(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefetchMergesInPlace(t *testing.T) {
	api := newFakeAPI(record("A", "new"), record("B", "new"))
	l := newLayer(api, Config{})
	_, err := l.Reload(context.Background())
	require.NoError(t, err)

	var merged []string
	l.Bus().OnMerged(func(_ context.Context, o negotiation.Order) { merged = append(merged, o.ID) })

	api.put(record("B", "accepted"))
	require.NoError(t, l.Refetch(context.Background(), "B"))

	assert.Equal(t, negotiation.StatusAccepted, statusOf(t, l, "B"))
	assert.Equal(t, negotiation.StatusNew, statusOf(t, l, "A"))
	assert.Equal(t, []string{"B"}, merged)
}

func TestRefetchFailureKeepsHeldOrder(t *testing.T) {
	api := newFakeAPI(record("A", "new"))
	l := newLayer(api, Config{})
	_, err := l.Reload(context.Background())
	require.NoError(t, err)

	api.getErr = errors.New("offline")
	assert.Error(t, l.Refetch(context.Background(), "A"))
	assert.Equal(t, negotiation.StatusNew, statusOf(t, l, "A"))
}

func TestSlowReloadDoesNotOverwriteTargetedMerge(t *testing.T) {
	api := newFakeAPI(record("A", "new"))
	l := newLayer(api, Config{})
	_, err := l.Reload(context.Background())
	require.NoError(t, err)

	api.mu.Lock()
	api.listEntered = make(chan struct{})
	api.listGate = make(chan []mapper.Record)
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := l.Reload(context.Background())
		done <- err
	}()
	<-api.listEntered

	api.put(record("A", "accepted"))
	require.NoError(t, l.Refetch(context.Background(), "A"))

	api.listGate <- []mapper.Record{record("A", "new")}
	require.NoError(t, <-done)

	assert.Equal(t, negotiation.StatusAccepted, statusOf(t, l, "A"))
}

func TestCommitSignalsChannelAndRefetches(t *testing.T) {
	hub := NewLocalHub(nil)
	mine, theirs := hub.Join(), hub.Join()
	defer mine.Close()
	defer theirs.Close()

	received := make(chan Signal, 1)
	theirs.Listen(func(s Signal) { received <- s })

	api := newFakeAPI(record("A", "new"))
	l := newLayer(api, Config{Channel: mine, Origin: "tab-1"})
	_, err := l.Reload(context.Background())
	require.NoError(t, err)

	_, err = l.coord.Execute(context.Background(), "A", negotiation.RoleSeller, negotiation.Accept(),
		func(ctx context.Context, _ negotiation.Action, _ negotiation.Order) error {
			api.put(record("A", "accepted"))
			return nil
		})
	require.NoError(t, err)

	select {
	case s := <-received:
		assert.Equal(t, "A", s.OrderID)
		assert.Equal(t, negotiation.ActionAccept, s.Action)
		assert.Equal(t, "tab-1", s.Origin)
		assert.NotEmpty(t, s.ID)
	case <-time.After(time.Second):
		t.Fatal("signal was not delivered to the other endpoint")
	}

	lists, gets := api.calls()
	assert.Equal(t, 1, gets, "the mutating engine refetches the order")
	assert.Equal(t, 2, lists, "and raises orders-changed for a full reload")
	assert.Equal(t, 0, l.coord.Ledger().Len(), "the refetch confirmed the change")
}

func TestChannelSignalTriggersRefetchWhileRunning(t *testing.T) {
	hub := NewLocalHub(nil)
	mine, theirs := hub.Join(), hub.Join()
	defer mine.Close()
	defer theirs.Close()

	api := newFakeAPI(record("A", "new"))
	l := newLayer(api, Config{Channel: mine, PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok := l.coord.Collection().Get("A")
		return ok
	}, time.Second, 10*time.Millisecond)

	api.put(record("A", "cancelled"))
	require.NoError(t, theirs.Post(NewSignal("A", negotiation.ActionCancel, "tab-2", time.Now())))

	assert.Eventually(t, func() bool {
		o, _ := l.coord.Collection().Get("A")
		return o.Status == negotiation.StatusCancelled
	}, time.Second, 10*time.Millisecond)
}

func TestHeldReloadsRunOnceOnRelease(t *testing.T) {
	api := newFakeAPI(record("A", "new"))
	l := newLayer(api, Config{})

	l.HoldReloads()
	l.NotifyChanged(context.Background())
	l.NotifyChanged(context.Background())
	lists, _ := api.calls()
	assert.Equal(t, 0, lists)

	l.ReleaseReloads(context.Background())
	lists, _ = api.calls()
	assert.Equal(t, 1, lists)

	l.NotifyChanged(context.Background())
	lists, _ = api.calls()
	assert.Equal(t, 2, lists)
}

func TestRunPollsUntilCancelled(t *testing.T) {
	api := newFakeAPI(record("A", "new"))
	l := newLayer(api, Config{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		lists, _ := api.calls()
		return lists >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
