package inventory

import (
	"context"
	"errors"

	domain "orderflow/internal/domain/inventory"
	"orderflow/internal/observability"
)

var ErrNotFound = domain.ErrNotFound

// Service exposes the catalog read and admin operations. The saga never goes
// through here; it drives the Store contract directly.
type Service struct {
	store domain.Store
	log   observability.Logger
}

func NewService(store domain.Store, tel observability.Telemetry) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		store: store,
		log:   tel.Logger().With(observability.F("component", "inventory_service")),
	}
}

func (s *Service) Get(ctx context.Context, productID string) (*domain.Item, error) {
	if productID == "" {
		return nil, errors.New("inventory: product id is required")
	}
	return s.store.Get(ctx, productID)
}

func (s *Service) List(ctx context.Context) ([]*domain.Item, error) {
	return s.store.List(ctx)
}

func (s *Service) CheckAvailability(ctx context.Context, productID string, quantity int) (*domain.Availability, error) {
	if productID == "" {
		return nil, errors.New("inventory: product id is required")
	}
	return s.store.CheckAvailability(ctx, productID, quantity)
}

// SetStock is the admin override of a product's stock level.
func (s *Service) SetStock(ctx context.Context, productID string, stock int) (*domain.Item, error) {
	if productID == "" {
		return nil, errors.New("inventory: product id is required")
	}
	item, err := s.store.SetStock(ctx, productID, stock)
	if err != nil {
		return nil, err
	}
	s.log.Info("stock_updated",
		observability.F("product_id", productID),
		observability.F("stock", stock),
	)
	return item, nil
}
