package memory

import (
	"context"
	"fmt"
	"sync"

	domain "orderflow/internal/domain/order"
)

// OrderRepository keeps orders in process memory. It is the fallback backend
// when no database is configured; the saga only ever sees domain.Repository.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	ids    []string
	seq    int
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

func (r *OrderRepository) NextID(ctx context.Context) (string, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	return fmt.Sprintf("ORD%05d", r.seq), nil
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrConflict
	}

	r.orders[order.ID] = order.Clone()
	r.ids = append(r.ids, order.ID)
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return order.Clone(), nil
}

func (r *OrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.orders[id].Clone())
	}
	return out, nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; !exists {
		return domain.ErrNotFound
	}

	r.orders[order.ID] = order.Clone()
	return nil
}

// Transition performs the compare-on-status update under the repository
// lock, so two concurrent cancellations of the same order cannot both win.
func (r *OrderRepository) Transition(ctx context.Context, id string, from domain.Status, apply func(*domain.Order) error) (*domain.Order, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if stored.Status != from {
		return nil, domain.ErrStale
	}

	next := stored.Clone()
	if err := apply(next); err != nil {
		return nil, err
	}

	r.orders[id] = next
	return next.Clone(), nil
}
