package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository reads and writes orders and their payments. Build one over a
// *gorm.DB transaction to take part in an outer unit of work.
type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	CreatePayment(ctx context.Context, p *OrderPayment) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetPaymentByReference(ctx context.Context, ref string) (*OrderPayment, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]OrderPayment, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	LockPaymentNoWait(ctx context.Context, ref string) (*OrderPayment, error)
	SaveOrder(ctx context.Context, o *Order) error
	SavePayment(ctx context.Context, p *OrderPayment) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrder(ctx context.Context, o *Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *repository) CreatePayment(ctx context.Context, p *OrderPayment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var o Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	return &o, nil
}

func (r *repository) GetPaymentByReference(ctx context.Context, ref string) (*OrderPayment, error) {
	var p OrderPayment
	if err := r.db.WithContext(ctx).Where("payment_reference = ?", ref).First(&p).Error; err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	return &p, nil
}

func (r *repository) ListPayments(ctx context.Context, orderID uuid.UUID) ([]OrderPayment, error) {
	var payments []OrderPayment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at asc").Find(&payments).Error
	return payments, err
}

func (r *repository) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var o Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&o).Error; err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	return &o, nil
}

// LockPaymentNoWait fails immediately with the driver's lock_not_available
// error when another transaction already holds the payment row.
func (r *repository) LockPaymentNoWait(ctx context.Context, ref string) (*OrderPayment, error) {
	var p OrderPayment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		Where("payment_reference = ?", ref).
		First(&p).Error; err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	return &p, nil
}

func (r *repository) SaveOrder(ctx context.Context, o *Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(o).Error
}

func (r *repository) SavePayment(ctx context.Context, p *OrderPayment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
