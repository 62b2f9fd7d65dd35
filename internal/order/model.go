package order

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentSuccess           PaymentStatus = "success"
	PaymentFailed            PaymentStatus = "failed"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentRefunded          PaymentStatus = "refunded"
)

// StatusChange is one entry in an order's append-only status history.
type StatusChange struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Amounts are kobo.
type Order struct {
	ID                   uuid.UUID                         `gorm:"type:uuid;primaryKey" json:"id"`
	BusinessID           uuid.UUID                         `gorm:"type:uuid;not null;index" json:"business_id"`
	CustomerID           *uuid.UUID                        `gorm:"type:uuid;index" json:"customer_id,omitempty"`
	Subtotal             int64                             `gorm:"not null" json:"subtotal"`
	ShippingFee          int64                             `gorm:"not null;default:0" json:"shipping_fee"`
	Tax                  int64                             `gorm:"not null;default:0" json:"tax"`
	Discount             int64                             `gorm:"not null;default:0" json:"discount"`
	Total                int64                             `gorm:"not null" json:"total"`
	Currency             string                            `gorm:"not null;default:NGN" json:"currency"`
	Status               Status                            `gorm:"not null;default:PENDING" json:"status"`
	PaymentStatus        PaymentStatus                     `gorm:"not null;default:pending" json:"payment_status"`
	OrderReference       string                            `gorm:"uniqueIndex;not null" json:"order_reference"`
	TransactionReference string                            `gorm:"index" json:"transaction_reference,omitempty"`
	StatusHistory        datatypes.JSONSlice[StatusChange] `json:"status_history"`
	Payments             []OrderPayment                    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
	CreatedAt            time.Time                         `json:"created_at"`
	UpdatedAt            time.Time                         `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	return o.CheckAmounts()
}

// CheckAmounts enforces non-negative parts and total = subtotal + shipping + tax - discount.
func (o *Order) CheckAmounts() error {
	if o.Subtotal < 0 || o.ShippingFee < 0 || o.Tax < 0 || o.Discount < 0 || o.Total < 0 {
		return ErrInvalidAmounts
	}
	if o.Total != o.Subtotal+o.ShippingFee+o.Tax-o.Discount {
		return ErrInvalidAmounts
	}
	return nil
}

// OrderPayment is one payment attempt. PaymentReference is the reference the
// provider echoes back in its webhooks.
type OrderPayment struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID          uuid.UUID     `gorm:"type:uuid;not null;index" json:"order_id"`
	PaymentReference string        `gorm:"uniqueIndex;not null" json:"payment_reference"`
	Amount           int64         `gorm:"not null" json:"amount"`
	NetAmount        int64         `gorm:"not null;default:0" json:"net_amount"`
	Provider         string        `gorm:"not null" json:"provider"`
	PaymentMethod    string        `json:"payment_method"`
	Status           PaymentStatus `gorm:"not null;default:pending" json:"status"`
	ProviderStatus   string        `json:"provider_status,omitempty"`
	Currency         string        `gorm:"not null;default:NGN" json:"currency"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (p *OrderPayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PaymentPending
	}
	return nil
}
