package gormstore

import (
	"time"

	"gorm.io/gorm"

	domain "orderflow/internal/domain/order"
)

// OrderModel is the orders table row. The domain entity stays free of gorm
// tags; mapping happens here.
type OrderModel struct {
	gorm.Model
	OrderID       string `gorm:"uniqueIndex;size:32"`
	CustomerName  string `gorm:"size:255"`
	ProductID     string `gorm:"size:64;index"`
	ProductName   string `gorm:"size:255"`
	Quantity      int
	UnitPrice     int64
	TotalPrice    int64
	PaymentMethod string `gorm:"size:32"`
	Status        string `gorm:"size:32;index"`
	PaymentID     string `gorm:"size:32"`
	TransactionID string `gorm:"size:64"`
	FailureReason string `gorm:"type:text"`
	PlacedAt      time.Time
	PaidAt        *time.Time
	CancelledAt   *time.Time
}

func (OrderModel) TableName() string { return "orders" }

// SequenceModel backs NextID: one named, locked counter row per sequence.
type SequenceModel struct {
	Name string `gorm:"primaryKey;size:32"`
	Next int64
}

func (SequenceModel) TableName() string { return "order_sequences" }

func toModel(o *domain.Order) *OrderModel {
	return &OrderModel{
		OrderID:       o.ID,
		CustomerName:  o.CustomerName,
		ProductID:     o.ProductID,
		ProductName:   o.ProductName,
		Quantity:      o.Quantity,
		UnitPrice:     o.UnitPrice,
		TotalPrice:    o.TotalPrice,
		PaymentMethod: o.PaymentMethod,
		Status:        string(o.Status),
		PaymentID:     o.PaymentID,
		TransactionID: o.TransactionID,
		FailureReason: o.FailureReason,
		PlacedAt:      o.CreatedAt,
		PaidAt:        o.PaidAt,
		CancelledAt:   o.CancelledAt,
	}
}

func toDomain(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:            m.OrderID,
		CustomerName:  m.CustomerName,
		ProductID:     m.ProductID,
		ProductName:   m.ProductName,
		Quantity:      m.Quantity,
		UnitPrice:     m.UnitPrice,
		TotalPrice:    m.TotalPrice,
		PaymentMethod: m.PaymentMethod,
		Status:        domain.Status(m.Status),
		PaymentID:     m.PaymentID,
		TransactionID: m.TransactionID,
		FailureReason: m.FailureReason,
		CreatedAt:     m.PlacedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.PaidAt != nil {
		t := *m.PaidAt
		o.PaidAt = &t
	}
	if m.CancelledAt != nil {
		t := *m.CancelledAt
		o.CancelledAt = &t
	}
	return o
}

// apply copies the mutable fields of the domain entity onto an existing row.
func (m *OrderModel) apply(o *domain.Order) {
	m.Status = string(o.Status)
	m.PaymentID = o.PaymentID
	m.TransactionID = o.TransactionID
	m.FailureReason = o.FailureReason
	m.PaidAt = o.PaidAt
	m.CancelledAt = o.CancelledAt
}
