package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adityash8/proofport/internal/domain"
	"github.com/adityash8/proofport/internal/hold"
	"github.com/adityash8/proofport/internal/notify"
)

// fakeOrderRepo is an in-memory ledger satisfying both the order and
// sweep repository interfaces.
type fakeOrderRepo struct {
	mu           sync.Mutex
	orders       map[string]domain.Order
	createErr    error
	updateErr    error
	updateErrFor map[string]error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]domain.Order)}
}

func (r *fakeOrderRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *fakeOrderRepo) CreateOrder(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) GetOrder(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *fakeOrderRepo) GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *fakeOrderRepo) UpdateExtension(_ context.Context, id string, confirmations map[domain.ProductKind]string, expiresAt, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	order, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Confirmations = confirmations
	order.ExpiresAt = expiresAt
	order.WarnedAt = nil
	order.UpdatedAt = updatedAt
	r.orders[id] = order
	return nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, reason string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if err, ok := r.updateErrFor[id]; ok {
		return err
	}
	order, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	if reason != "" {
		order.CancelReason = reason
	}
	order.UpdatedAt = updatedAt
	r.orders[id] = order
	return nil
}

func (r *fakeOrderRepo) ListActive(_ context.Context) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.Status == domain.OrderStatusActive {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) ListPastExpiry(_ context.Context, asOf time.Time) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.Status == domain.OrderStatusActive && order.ExpiresAt.Before(asOf) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) ListExpiring(_ context.Context, now time.Time, within time.Duration) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.Status != domain.OrderStatusActive {
			continue
		}
		if order.ExpiresAt.Sub(now) <= within && !order.ExpiresAt.Before(now) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) MarkWarned(_ context.Context, id string, warnedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.WarnedAt = &warnedAt
	r.orders[id] = order
	return nil
}

func (r *fakeOrderRepo) get(id string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

func (r *fakeOrderRepo) put(order domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
}

func (r *fakeOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// fakeCoordinator hands out deterministic confirmations and records
// release calls.
type fakeCoordinator struct {
	mu          sync.Mutex
	failKinds   map[domain.ProductKind]bool
	seq         int
	released    []map[domain.ProductKind]string
	extendCalls int
}

func newFakeCoordinator(failKinds ...domain.ProductKind) *fakeCoordinator {
	fail := make(map[domain.ProductKind]bool, len(failKinds))
	for _, kind := range failKinds {
		fail[kind] = true
	}
	return &fakeCoordinator{failKinds: fail}
}

func (c *fakeCoordinator) Acquire(_ context.Context, bundle []domain.ProductKind, _ domain.TripDetails) hold.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := hold.Result{Confirmations: make(map[domain.ProductKind]string)}
	for _, kind := range bundle {
		if c.failKinds[kind] {
			res.Failed = append(res.Failed, kind)
			continue
		}
		c.seq++
		res.Confirmations[kind] = fmt.Sprintf("%s-conf-%d", kind, c.seq)
	}
	return res
}

func (c *fakeCoordinator) Release(_ context.Context, confirmations map[domain.ProductKind]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, confirmations)
}

func (c *fakeCoordinator) Extend(ctx context.Context, confirmations map[domain.ProductKind]string, trip domain.TripDetails) hold.Result {
	c.mu.Lock()
	c.extendCalls++
	c.mu.Unlock()

	kinds := make([]domain.ProductKind, 0, len(confirmations))
	for kind := range confirmations {
		kinds = append(kinds, kind)
	}
	res := c.Acquire(ctx, kinds, trip)
	for _, kind := range res.Failed {
		res.Confirmations[kind] = confirmations[kind]
	}
	return res
}

// recordingDispatcher captures dispatched events for assertions.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev notify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatcher) byType(t notify.EventType) []notify.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []notify.Event
	for _, ev := range d.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
