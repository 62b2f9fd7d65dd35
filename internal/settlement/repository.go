package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Settlement, error)
	LockByOrderID(ctx context.Context, orderID uuid.UUID) (*Settlement, error)
	ListRefunds(ctx context.Context, orderID uuid.UUID) ([]Refund, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Settlement, error) {
	var s Settlement
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) LockByOrderID(ctx context.Context, orderID uuid.UUID) (*Settlement, error) {
	var s Settlement
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListRefunds(ctx context.Context, orderID uuid.UUID) ([]Refund, error) {
	var refunds []Refund
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at asc").Find(&refunds).Error
	return refunds, err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
