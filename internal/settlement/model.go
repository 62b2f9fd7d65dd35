package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Settlement records how a paid order's funds reached the merchant.
// Amounts are kobo; Amount is what the merchant received (wallet or subaccount).
type Settlement struct {
	ID                  uuid.UUID             `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID             uuid.UUID             `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`
	PaymentID           uuid.UUID             `gorm:"type:uuid;not null" json:"payment_id"`
	MerchantUserID      uuid.UUID             `gorm:"type:uuid;not null;index" json:"merchant_user_id"`
	SettlementReference string                `gorm:"uniqueIndex;not null" json:"settlement_reference"`
	Mode                config.SettlementMode `gorm:"not null" json:"mode"`
	Status              Status                `gorm:"not null" json:"status"`
	GrossAmount         int64                 `gorm:"not null" json:"gross_amount"`
	PlatformFee         int64                 `gorm:"not null;default:0" json:"platform_fee"`
	HeldAmount          int64                 `gorm:"not null;default:0" json:"held_amount"`
	Amount              int64                 `gorm:"not null" json:"amount"`
	RefundedAmount      int64                 `gorm:"not null;default:0" json:"refunded_amount"`
	Currency            string                `gorm:"not null;default:NGN" json:"currency"`
	SubaccountCode      string                `json:"subaccount_code,omitempty"`
	FailureReason       string                `json:"failure_reason,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

func (s *Settlement) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *Settlement) Refundable() int64 {
	return s.Amount - s.RefundedAmount
}

type RefundType string

const (
	RefundFull    RefundType = "FULL"
	RefundPartial RefundType = "PARTIAL"
)

type RefundMethod string

const (
	MethodWallet RefundMethod = "WALLET"
	MethodBank   RefundMethod = "BANK"
)

type RefundStatus string

const (
	RefundCompleted     RefundStatus = "COMPLETED"
	RefundPendingPayout RefundStatus = "PENDING_PAYOUT"
	RefundFailed        RefundStatus = "FAILED"
)

type Refund struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID       uuid.UUID    `gorm:"type:uuid;not null;index" json:"order_id"`
	SettlementID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"settlement_id"`
	Reference     string       `gorm:"uniqueIndex;not null" json:"reference"`
	Amount        int64        `gorm:"not null" json:"amount"`
	Reason        string       `json:"reason"`
	Type          RefundType   `gorm:"not null" json:"refund_type"`
	Method        RefundMethod `gorm:"not null" json:"refund_method"`
	Status        RefundStatus `gorm:"not null" json:"status"`
	TransactionID *uuid.UUID   `gorm:"type:uuid" json:"transaction_id,omitempty"`
	RequestedBy   string       `json:"requested_by"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
