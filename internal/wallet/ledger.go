package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreditInput struct {
	UserID      uuid.UUID
	Amount      int64
	Hold        int64 // portion parked in PendingBalance instead of AvailableBalance
	Reference   string
	Description string
	Metadata    map[string]interface{}
}

type DebitInput struct {
	UserID      uuid.UUID
	Amount      int64
	Type        TransactionType // debit or reversal
	Reference   string
	Description string
	Metadata    map[string]interface{}
}

type SplitInput struct {
	UserID      uuid.UUID
	Amount      int64
	Reference   string
	Description string
	Metadata    map[string]interface{}
}

// Ledger is the only writer of wallet balances. Every call locks the wallet row,
// writes the new balances and one Transaction in the same database transaction,
// and returns the prior Transaction when the reference was already applied.
type Ledger interface {
	Credit(ctx context.Context, in CreditInput) (*Transaction, error)
	Debit(ctx context.Context, in DebitInput) (*Transaction, error)
	RecordSplit(ctx context.Context, in SplitInput) (*Transaction, error)
	Release(ctx context.Context, userID uuid.UUID, amount int64, reference string) (*Transaction, error)
}

type ledger struct {
	db *gorm.DB
}

// NewLedger binds the ledger to db; pass a *gorm.DB transaction to join an outer unit of work.
func NewLedger(db *gorm.DB) Ledger {
	return &ledger{db: db}
}

func (l *ledger) Credit(ctx context.Context, in CreditInput) (*Transaction, error) {
	if in.Amount < 0 || in.Hold < 0 || in.Amount+in.Hold == 0 {
		return nil, ErrInvalidAmount
	}

	meta := copyMeta(in.Metadata)
	if in.Hold > 0 {
		meta[MetaHeldAmount] = in.Hold
	}

	return l.apply(ctx, in.UserID, in.Reference, TransactionCredit, in.Amount, func(w *Wallet) error {
		w.AvailableBalance += in.Amount
		w.PendingBalance += in.Hold
		w.LedgerBalance += in.Amount + in.Hold
		return nil
	}, in.Description, meta)
}

func (l *ledger) Debit(ctx context.Context, in DebitInput) (*Transaction, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	txType := in.Type
	if txType == "" {
		txType = TransactionDebit
	}
	if txType != TransactionDebit && txType != TransactionReversal {
		return nil, fmt.Errorf("debit with type %q: %w", txType, ErrInvalidAmount)
	}

	return l.apply(ctx, in.UserID, in.Reference, txType, in.Amount, func(w *Wallet) error {
		if w.AvailableBalance < in.Amount {
			return ErrInsufficientFunds
		}
		w.AvailableBalance -= in.Amount
		w.LedgerBalance -= in.Amount
		return nil
	}, in.Description, copyMeta(in.Metadata))
}

// RecordSplit writes an audit entry for funds the provider already routed to the
// merchant's subaccount. Balances are not touched, so BalanceBefore == BalanceAfter.
func (l *ledger) RecordSplit(ctx context.Context, in SplitInput) (*Transaction, error) {
	if in.Amount < 0 {
		return nil, ErrInvalidAmount
	}

	meta := copyMeta(in.Metadata)
	meta[MetaIsSplit] = true

	return l.apply(ctx, in.UserID, in.Reference, TransactionCredit, in.Amount, nil, in.Description, meta)
}

// Release moves held funds from PendingBalance into AvailableBalance.
func (l *ledger) Release(ctx context.Context, userID uuid.UUID, amount int64, reference string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	meta := map[string]interface{}{MetaKind: "release"}
	return l.apply(ctx, userID, reference, TransactionCredit, amount, func(w *Wallet) error {
		if w.PendingBalance < amount {
			return ErrInsufficientFunds
		}
		w.PendingBalance -= amount
		w.AvailableBalance += amount
		return nil
	}, "Release of held settlement funds", meta)
}

func (l *ledger) apply(
	ctx context.Context,
	userID uuid.UUID,
	reference string,
	txType TransactionType,
	amount int64,
	mutate func(w *Wallet) error,
	description string,
	meta map[string]interface{},
) (*Transaction, error) {
	if reference == "" {
		return nil, errors.New("ledger reference is required")
	}

	var result *Transaction
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&w).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return err
		}

		var prior []Transaction
		if err := tx.Where("reference = ?", reference).Limit(1).Find(&prior).Error; err != nil {
			return err
		}
		if len(prior) > 0 {
			p := prior[0]
			if p.WalletID != w.ID || p.Type != txType || p.Amount != amount {
				return ErrReferenceConflict
			}
			result = &p
			return nil
		}

		if w.Status != WalletActive {
			return ErrWalletInactive
		}

		before := w.AvailableBalance
		if mutate != nil {
			if err := mutate(&w); err != nil {
				return err
			}
			if w.AvailableBalance < 0 || w.PendingBalance < 0 || w.AvailableBalance > w.LedgerBalance {
				return ErrLedgerInvariant
			}

			if err := tx.Model(&Wallet{}).Where("id = ?", w.ID).Updates(map[string]interface{}{
				"available_balance": w.AvailableBalance,
				"ledger_balance":    w.LedgerBalance,
				"pending_balance":   w.PendingBalance,
			}).Error; err != nil {
				return err
			}
		}

		entry := &Transaction{
			WalletID:      w.ID,
			UserID:        w.UserID,
			Reference:     reference,
			Type:          txType,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  w.AvailableBalance,
			Currency:      w.Currency,
			Description:   description,
			Metadata:      meta,
		}
		if err := tx.Create(entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrReferenceConflict
			}
			return err
		}

		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func copyMeta(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
