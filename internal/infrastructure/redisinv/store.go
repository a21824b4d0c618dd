package redisinv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	domain "orderflow/internal/domain/inventory"
)

const (
	itemKeyFmt        = "inventory:item:{%s}"
	reservationKeyFmt = "inventory:reservation:{%s}"
	catalogKey        = "inventory:products"
)

// reserveScript performs the atomic check-and-decrement. A ref that already
// holds a reservation is a replay and leaves stock untouched.
var reserveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {-1, 0}
end
local stock = tonumber(redis.call("HGET", KEYS[1], "stock"))
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {1, stock}
end
local qty = tonumber(ARGV[1])
if stock < qty then
  return {0, stock}
end
stock = stock - qty
redis.call("HSET", KEYS[1], "stock", stock)
redis.call("HSET", KEYS[2], "product", ARGV[2], "quantity", qty)
return {1, stock}
`)

// releaseScript credits stock back exactly once per reservation ref. A ref
// held for a different product is left alone so the credit cannot land on
// the wrong item.
var releaseScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {-1, 0}
end
local stock = tonumber(redis.call("HGET", KEYS[1], "stock"))
if redis.call("EXISTS", KEYS[2]) == 0 then
  return {0, stock}
end
if redis.call("HGET", KEYS[2], "product") ~= ARGV[1] then
  return {0, stock}
end
local qty = tonumber(redis.call("HGET", KEYS[2], "quantity"))
stock = stock + qty
redis.call("HSET", KEYS[1], "stock", stock)
redis.call("DEL", KEYS[2])
return {1, stock}
`)

// Store keeps the catalog in Redis. Per-product hashes hold the item fields;
// reservations live under their own ref-derived keys so Release is
// idempotent across retries.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Seed loads the catalog, overwriting existing items.
func (s *Store) Seed(ctx context.Context, items []*domain.Item) error {
	pipe := s.client.Pipeline()
	for _, item := range items {
		if item == nil {
			continue
		}
		key := fmt.Sprintf(itemKeyFmt, item.ProductID)
		pipe.HSet(ctx, key,
			"name", item.Name,
			"stock", item.Stock,
			"price", item.Price,
		)
		pipe.SAdd(ctx, catalogKey, item.ProductID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisinv: seed: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, productID string) (*domain.Item, error) {
	fields, err := s.client.HGetAll(ctx, fmt.Sprintf(itemKeyFmt, productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisinv: get: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return itemFromFields(productID, fields)
}

func (s *Store) List(ctx context.Context) ([]*domain.Item, error) {
	ids, err := s.client.SMembers(ctx, catalogKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redisinv: list: %w", err)
	}
	out := make([]*domain.Item, 0, len(ids))
	for _, id := range ids {
		item, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) CheckAvailability(ctx context.Context, productID string, quantity int) (*domain.Availability, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	item, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &domain.Availability{
		ProductID:    productID,
		Requested:    quantity,
		CurrentStock: item.Stock,
		Available:    item.Stock >= quantity,
	}, nil
}

func (s *Store) Reserve(ctx context.Context, productID string, quantity int, ref string) (int, error) {
	if quantity <= 0 {
		return 0, domain.ErrInvalidQuantity
	}
	keys := []string{
		fmt.Sprintf(itemKeyFmt, productID),
		fmt.Sprintf(reservationKeyFmt, ref),
	}
	code, stock, err := runStockScript(ctx, reserveScript, s.client, keys, quantity, productID)
	if err != nil {
		return 0, fmt.Errorf("redisinv: reserve: %w", err)
	}
	switch code {
	case 1:
		return stock, nil
	case 0:
		return stock, domain.ErrInsufficientStock
	default:
		return 0, domain.ErrNotFound
	}
}

func (s *Store) Release(ctx context.Context, productID string, ref string) (int, error) {
	keys := []string{
		fmt.Sprintf(itemKeyFmt, productID),
		fmt.Sprintf(reservationKeyFmt, ref),
	}
	code, stock, err := runStockScript(ctx, releaseScript, s.client, keys, productID)
	if err != nil {
		return 0, fmt.Errorf("redisinv: release: %w", err)
	}
	if code < 0 {
		return 0, domain.ErrNotFound
	}
	// code 0 means the ref held no reservation for this product:
	// idempotent no-op.
	return stock, nil
}

func (s *Store) SetStock(ctx context.Context, productID string, stock int) (*domain.Item, error) {
	if stock < 0 {
		return nil, domain.ErrInvalidStock
	}
	key := fmt.Sprintf(itemKeyFmt, productID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisinv: set stock: %w", err)
	}
	if exists == 0 {
		return nil, domain.ErrNotFound
	}
	if err := s.client.HSet(ctx, key, "stock", stock).Err(); err != nil {
		return nil, fmt.Errorf("redisinv: set stock: %w", err)
	}
	return s.Get(ctx, productID)
}

func runStockScript(ctx context.Context, script *redis.Script, client *redis.Client, keys []string, args ...any) (int64, int, error) {
	result, err := script.Run(ctx, client, keys, args...).Result()
	if err != nil {
		return 0, 0, err
	}
	values, ok := result.([]any)
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected script result %T", result)
	}
	code, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected script code %T", values[0])
	}
	stock, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected script stock %T", values[1])
	}
	return code, int(stock), nil
}

func itemFromFields(productID string, fields map[string]string) (*domain.Item, error) {
	stock, err := strconv.Atoi(fields["stock"])
	if err != nil {
		return nil, fmt.Errorf("redisinv: bad stock for %s: %w", productID, err)
	}
	price, err := strconv.ParseInt(fields["price"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redisinv: bad price for %s: %w", productID, err)
	}
	return &domain.Item{
		ProductID: productID,
		Name:      fields["name"],
		Stock:     stock,
		Price:     price,
		UpdatedAt: time.Now().UTC(),
	}, nil
}
