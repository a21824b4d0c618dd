package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInvalidStock      = errors.New("inventory: stock must be zero or greater")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Item is a catalog entry. Stock never goes negative; Price is integer cents.
type Item struct {
	ProductID string
	Name      string
	Stock     int
	Price     int64
	UpdatedAt time.Time
}

func NewItem(productID, name string, stock int, price int64) (*Item, error) {
	if stock < 0 {
		return nil, ErrInvalidStock
	}
	return &Item{
		ProductID: productID,
		Name:      name,
		Stock:     stock,
		Price:     price,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Deduct removes quantity from stock, refusing to oversell.
func (i *Item) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > i.Stock {
		return ErrInsufficientStock
	}
	i.Stock -= quantity
	i.touch()
	return nil
}

// Restore returns previously reserved quantity to stock.
func (i *Item) Restore(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	i.Stock += quantity
	i.touch()
	return nil
}

// SetStock overwrites the stock level (admin operation).
func (i *Item) SetStock(stock int) error {
	if stock < 0 {
		return ErrInvalidStock
	}
	i.Stock = stock
	i.touch()
	return nil
}

func (i *Item) touch() {
	i.UpdatedAt = time.Now().UTC()
}

func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}
