package syncer

import (
	"context"
	"sync"

	"github.com/kendall-kelly/marketplace-orders/mapper"
	"github.com/kendall-kelly/marketplace-orders/transport"
)

// fakeAPI is an in-memory OrdersAPI. listGate, when set, blocks GetAll until
// a value is received, after closing listEntered.
type fakeAPI struct {
	mu      sync.Mutex
	records map[string]mapper.Record
	order   []string
	listErr error
	getErr  error

	listEntered chan struct{}
	listGate    chan []mapper.Record

	listCalls int
	getCalls  int
	patches   []transport.Patch
}

func newFakeAPI(records ...mapper.Record) *fakeAPI {
	f := &fakeAPI{records: make(map[string]mapper.Record)}
	for _, r := range records {
		f.put(r)
	}
	return f
}

func (f *fakeAPI) put(r mapper.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r["id"].(string)
	if _, ok := f.records[id]; !ok {
		f.order = append(f.order, id)
	}
	f.records[id] = r
}

func (f *fakeAPI) GetAll(ctx context.Context, _ transport.Scope) ([]mapper.Record, error) {
	f.mu.Lock()
	f.listCalls++
	gate, entered, err := f.listGate, f.listEntered, f.listErr
	out := make([]mapper.Record, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.records[id])
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if gate != nil {
		close(entered)
		select {
		case list := <-gate:
			return list, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (f *fakeAPI) GetOrderByID(_ context.Context, id string) (mapper.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.records[id]
	if !ok {
		return nil, &transport.APIError{Status: 404, Code: "ORDER_NOT_FOUND"}
	}
	return r, nil
}

func (f *fakeAPI) UpdateOrder(_ context.Context, _ string, patch transport.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeAPI) calls() (list, get int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.getCalls
}

func record(id, status string) mapper.Record {
	return mapper.Record{
		"id":             id,
		"buyer_id":       "buyer-1",
		"seller_id":      "seller-1",
		"quantity":       "8",
		"price_per_unit": "100",
		"total_amount":   "800",
		"status":         status,
	}
}
