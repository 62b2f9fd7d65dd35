package wallet

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WalletStatus string

const (
	WalletActive WalletStatus = "ACTIVE"
	WalletFrozen WalletStatus = "FROZEN"
)

// Balances are kobo. AvailableBalance <= LedgerBalance; the difference is PendingBalance.
type Wallet struct {
	ID               uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID    `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	WalletNumber     string       `gorm:"uniqueIndex;not null" json:"wallet_number"`
	AvailableBalance int64        `gorm:"not null;default:0" json:"available_balance"`
	LedgerBalance    int64        `gorm:"not null;default:0" json:"ledger_balance"`
	PendingBalance   int64        `gorm:"not null;default:0" json:"pending_balance"`
	Currency         string       `gorm:"not null;default:NGN" json:"currency"`
	Status           WalletStatus `gorm:"not null;default:ACTIVE" json:"status"`
	PinHash          string       `gorm:"not null;default:''" json:"-"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Status == "" {
		w.Status = WalletActive
	}
	return nil
}

type TransactionType string

const (
	TransactionCredit   TransactionType = "credit"
	TransactionDebit    TransactionType = "debit"
	TransactionReversal TransactionType = "reversal"
)

// metadata keys
const (
	MetaIsSplit             = "isSplit"
	MetaHeldAmount          = "held_amount"
	MetaKind                = "kind"
	MetaOrderID             = "order_id"
	MetaSettlementReference = "settlement_reference"
	MetaSubaccountCode      = "subaccount_code"
	MetaRefundReason        = "reason"
)

// Transaction is an append-only ledger entry. BalanceBefore/BalanceAfter track AvailableBalance.
type Transaction struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	WalletID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"wallet_id"`
	UserID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	Reference     string            `gorm:"uniqueIndex;not null" json:"reference"`
	Type          TransactionType   `gorm:"not null" json:"type"`
	Amount        int64             `gorm:"not null" json:"amount"`
	BalanceBefore int64             `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64             `gorm:"not null" json:"balance_after"`
	Currency      string            `gorm:"not null;default:NGN" json:"currency"`
	Description   string            `json:"description"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableTransaction
}

func (t *Transaction) IsSplit() bool {
	v, ok := t.Metadata[MetaIsSplit].(bool)
	return ok && v
}
