package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	domain "orderflow/internal/domain/order"
)

const orderSequence = "orders"

// Open connects to MySQL and migrates the order tables.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}
	if err := db.AutoMigrate(&OrderModel{}, &SequenceModel{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return db, nil
}

// OrderRepository is the durable order store. Transition takes a row lock so
// the compare-on-status update is atomic against concurrent cancellations.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) NextID(ctx context.Context) (string, error) {
	var id string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq SequenceModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", orderSequence).
			First(&seq).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			seq = SequenceModel{Name: orderSequence}
			if err := tx.Create(&seq).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		seq.Next++
		if err := tx.Save(&seq).Error; err != nil {
			return err
		}
		id = fmt.Sprintf("ORD%05d", seq.Next)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("gormstore: next id: %w", err)
	}
	return id, nil
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("gormstore: order id is required")
	}
	err := r.db.WithContext(ctx).Create(toModel(o)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	var m OrderModel
	err := r.db.WithContext(ctx).Where("order_id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomain(&m), nil
}

func (r *OrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	var models []OrderModel
	if err := r.db.WithContext(ctx).Order("id asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, toDomain(&models[i]))
	}
	return out, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("gormstore: order id is required")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m OrderModel
		err := tx.Where("order_id = ?", o.ID).First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		m.apply(o)
		return tx.Save(&m).Error
	})
}

func (r *OrderRepository) Transition(ctx context.Context, id string, from domain.Status, apply func(*domain.Order) error) (*domain.Order, error) {
	var result *domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m OrderModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", id).
			First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if domain.Status(m.Status) != from {
			return domain.ErrStale
		}

		o := toDomain(&m)
		if err := apply(o); err != nil {
			return err
		}

		m.apply(o)
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
