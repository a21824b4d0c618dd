package memory

import (
	"context"
	"sort"
	"sync"

	domain "orderflow/internal/domain/inventory"
)

type reservation struct {
	productID string
	quantity  int
}

// InventoryStore keeps the catalog in process memory. Reserve re-checks
// stock under the store lock, which closes the check-then-act race between
// CheckAvailability and Reserve. Outstanding reservations are kept by ref so
// a retried Release cannot double-credit stock.
type InventoryStore struct {
	mu           sync.RWMutex
	items        map[string]*domain.Item
	reservations map[string]reservation
}

func NewInventoryStore(seed []*domain.Item) *InventoryStore {
	s := &InventoryStore{
		items:        make(map[string]*domain.Item, len(seed)),
		reservations: make(map[string]reservation),
	}
	for _, item := range seed {
		if item == nil {
			continue
		}
		s.items[item.ProductID] = item.Clone()
	}
	return s
}

func (s *InventoryStore) Get(ctx context.Context, productID string) (*domain.Item, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item.Clone(), nil
}

func (s *InventoryStore) List(ctx context.Context) ([]*domain.Item, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *InventoryStore) CheckAvailability(ctx context.Context, productID string, quantity int) (*domain.Availability, error) {
	_ = ctx
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Availability{
		ProductID:    productID,
		Requested:    quantity,
		CurrentStock: item.Stock,
		Available:    item.Stock >= quantity,
	}, nil
}

func (s *InventoryStore) Reserve(ctx context.Context, productID string, quantity int, ref string) (int, error) {
	_ = ctx
	if quantity <= 0 {
		return 0, domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[productID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if _, held := s.reservations[ref]; held {
		// Same ref reserving twice is a replay; stock already moved.
		return item.Stock, nil
	}
	if err := item.Deduct(quantity); err != nil {
		return item.Stock, err
	}
	if ref != "" {
		s.reservations[ref] = reservation{productID: productID, quantity: quantity}
	}
	return item.Stock, nil
}

func (s *InventoryStore) Release(ctx context.Context, productID string, ref string) (int, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[productID]
	if !ok {
		return 0, domain.ErrNotFound
	}

	held, ok := s.reservations[ref]
	if !ok || held.productID != productID {
		// Unknown or already-released ref: idempotent no-op.
		return item.Stock, nil
	}

	if err := item.Restore(held.quantity); err != nil {
		return item.Stock, err
	}
	delete(s.reservations, ref)
	return item.Stock, nil
}

func (s *InventoryStore) SetStock(ctx context.Context, productID string, stock int) (*domain.Item, error) {
	_ = ctx
	if stock < 0 {
		return nil, domain.ErrInvalidStock
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := item.SetStock(stock); err != nil {
		return nil, err
	}
	return item.Clone(), nil
}
