package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/go-paystack-settlement/internal/notify"
	"github.com/zjoart/go-paystack-settlement/internal/order"
	"github.com/zjoart/go-paystack-settlement/internal/payout"
	"github.com/zjoart/go-paystack-settlement/internal/wallet"
	"github.com/zjoart/go-paystack-settlement/pkg/id"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"gorm.io/gorm"
)

type BankAccount struct {
	BankCode      string
	AccountNumber string
	AccountName   string
}

type RefundRequest struct {
	OrderID     uuid.UUID
	Amount      int64 // 0 with RefundFull means whatever is left to refund
	Reason      string
	Type        RefundType
	Method      RefundMethod
	RequestedBy string
	Bank        *BankAccount
}

type RefundResult struct {
	Refund      *Refund             `json:"refund"`
	Transaction *wallet.Transaction `json:"transaction,omitempty"`
	Receipt     *payout.Receipt     `json:"receipt,omitempty"`
	OrderStatus order.Status        `json:"order_status"`
}

// RefundService reverses settled funds. Wallet refunds debit the merchant's
// wallet with a reversal entry inside one transaction. Bank refunds reserve the
// amount and commit a PENDING_PAYOUT row before the transfer collaborator is
// called with the refund reference; a rejected transfer releases the reservation.
type RefundService struct {
	DB         *gorm.DB
	Instructor payout.Instructor
	Dispatcher *notify.Dispatcher
	Now        func() time.Time
}

func NewRefundService(db *gorm.DB, instructor payout.Instructor, dispatcher *notify.Dispatcher) *RefundService {
	return &RefundService{DB: db, Instructor: instructor, Dispatcher: dispatcher, Now: time.Now}
}

func (s *RefundService) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := req.check(); err != nil {
		return nil, err
	}
	if req.Method == MethodBank && s.Instructor == nil {
		return nil, fmt.Errorf("bank refunds are not configured: %w", ErrInvalidRefund)
	}

	reference := id.Reference("RFD")
	fields := logger.Fields{logger.OrderIDKey: req.OrderID.String(), logger.ReferenceKey: reference}

	res, st, err := s.reserve(ctx, req, reference, fields)
	if err != nil {
		logger.Warn("Refund rejected", logger.Merge(logger.WithError(err), fields))
		if st != nil && errors.Is(err, wallet.ErrInsufficientFunds) {
			amount := req.Amount
			if res != nil {
				amount = res.Refund.Amount
			}
			s.recordFailure(ctx, req, reference, amount, st, err)
		}
		return nil, err
	}

	if req.Method == MethodBank {
		if err := s.payOut(ctx, req, res, st, fields); err != nil {
			return nil, err
		}
	}

	logger.Info("Refund applied", logger.Merge(fields, logger.Fields{"amount": res.Refund.Amount, "method": string(req.Method)}))

	evtType := notify.RefundCompleted
	if res.Refund.Status == RefundPendingPayout {
		evtType = notify.RefundPendingPayout
	}
	s.Dispatcher.Dispatch(notify.Event{
		Type:           evtType,
		OrderID:        req.OrderID,
		MerchantUserID: st.MerchantUserID,
		Reference:      reference,
		Amount:         res.Refund.Amount,
		Currency:       st.Currency,
		Detail:         req.Reason,
	})

	return res, nil
}

// reserve writes the Refund row and counts its amount against the settlement.
// Wallet refunds are completed here; bank refunds stay PENDING_PAYOUT.
func (s *RefundService) reserve(ctx context.Context, req RefundRequest, reference string, fields logger.Fields) (*RefundResult, *Settlement, error) {
	var (
		res *RefundResult
		st  *Settlement
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := order.NewRepository(tx)

		ord, err := orders.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if ord.PaymentStatus != order.PaymentSuccess && ord.PaymentStatus != order.PaymentPartiallyRefunded {
			return fmt.Errorf("order %s payment is %s: %w", ord.OrderReference, ord.PaymentStatus, ErrOrderNotPaid)
		}

		st, err = NewRepository(tx).LockByOrderID(ctx, ord.ID)
		if err != nil {
			if isNotFound(err) {
				return ErrOrderNotPaid
			}
			return err
		}
		if st.Status == StatusFailed || st.Status == StatusPending {
			return fmt.Errorf("settlement %s is %s: %w", st.SettlementReference, st.Status, ErrSettlementNotRefundable)
		}

		amount, err := req.resolveAmount(st.Refundable())
		if err != nil {
			return err
		}

		rf := &Refund{
			OrderID:      ord.ID,
			SettlementID: st.ID,
			Reference:    reference,
			Amount:       amount,
			Reason:       req.Reason,
			Type:         req.Type,
			Method:       req.Method,
			Status:       RefundPendingPayout,
			RequestedBy:  req.RequestedBy,
		}
		res = &RefundResult{Refund: rf, OrderStatus: ord.Status}

		if req.Method == MethodWallet {
			entry, err := wallet.NewLedger(tx).Debit(ctx, wallet.DebitInput{
				UserID:      st.MerchantUserID,
				Amount:      amount,
				Type:        wallet.TransactionReversal,
				Reference:   reference,
				Description: "Refund for order " + ord.OrderReference,
				Metadata: map[string]interface{}{
					wallet.MetaOrderID:             ord.ID.String(),
					wallet.MetaSettlementReference: st.SettlementReference,
					wallet.MetaRefundReason:        req.Reason,
				},
			})
			if err != nil {
				return err
			}
			rf.Status = RefundCompleted
			rf.TransactionID = &entry.ID
			res.Transaction = entry
		}

		if err := tx.Create(rf).Error; err != nil {
			return err
		}

		st.RefundedAmount += amount
		if err := tx.Model(&Settlement{}).Where("id = ?", st.ID).
			Update("refunded_amount", st.RefundedAmount).Error; err != nil {
			return err
		}

		if req.Method == MethodBank {
			return nil
		}
		if err := s.applyToOrder(ord, st, req, fields); err != nil {
			return err
		}
		if err := orders.SaveOrder(ctx, ord); err != nil {
			return err
		}
		res.OrderStatus = ord.Status
		return nil
	})
	return res, st, err
}

// payOut instructs the bank transfer for a committed PENDING_PAYOUT refund.
func (s *RefundService) payOut(ctx context.Context, req RefundRequest, res *RefundResult, st *Settlement, fields logger.Fields) error {
	rf := res.Refund
	receipt, err := s.Instructor.Instruct(ctx, payout.Instruction{
		Reference:     rf.Reference,
		Amount:        rf.Amount,
		Currency:      st.Currency,
		BankCode:      req.Bank.BankCode,
		AccountNumber: req.Bank.AccountNumber,
		AccountName:   req.Bank.AccountName,
		Reason:        req.Reason,
	})
	switch {
	case errors.Is(err, payout.ErrTransferRejected):
		logger.Warn("Refund transfer rejected, releasing reservation", logger.Merge(logger.WithError(err), fields))
		s.release(ctx, rf, err)
		return fmt.Errorf("%w: %v", payout.ErrTransferFailed, err)
	case err != nil:
		logger.Error("Refund transfer outcome unknown, left pending for reconciliation", logger.Merge(logger.WithError(err), fields))
	default:
		res.Receipt = receipt
	}

	// the transfer may have left, so the order reflects the refund from here on
	ctx = context.WithoutCancel(ctx)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := order.NewRepository(tx)
		ord, err := orders.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		current, err := NewRepository(tx).LockByOrderID(ctx, ord.ID)
		if err != nil {
			return err
		}
		if err := s.applyToOrder(ord, current, req, fields); err != nil {
			return err
		}
		if err := orders.SaveOrder(ctx, ord); err != nil {
			return err
		}
		res.OrderStatus = ord.Status
		return nil
	})
	if err != nil {
		logger.Error("Refund recorded but order status not updated", logger.Merge(logger.WithError(err), fields))
	}
	return nil
}

// release undoes the reservation of a refund whose transfer was rejected.
func (s *RefundService) release(ctx context.Context, rf *Refund, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := NewRepository(tx).LockByOrderID(ctx, rf.OrderID)
		if err != nil {
			return err
		}
		refunded := st.RefundedAmount - rf.Amount
		if refunded < 0 {
			refunded = 0
		}
		if err := tx.Model(&Settlement{}).Where("id = ?", st.ID).
			Update("refunded_amount", refunded).Error; err != nil {
			return err
		}
		return tx.Model(&Refund{}).Where("id = ? AND status = ?", rf.ID, RefundPendingPayout).
			Updates(map[string]interface{}{"status": RefundFailed, "failure_reason": cause.Error()}).Error
	})
	if err != nil {
		logger.Error("CRITICAL: Refund transfer rejected but reservation not released", logger.Merge(logger.WithError(err), logger.Fields{
			logger.ReferenceKey: rf.Reference,
			logger.OrderIDKey:   rf.OrderID.String(),
		}))
		return
	}
	rf.Status = RefundFailed
	rf.FailureReason = cause.Error()
}

func (s *RefundService) applyToOrder(ord *order.Order, st *Settlement, req RefundRequest, fields logger.Fields) error {
	if st.Refundable() > 0 {
		ord.PaymentStatus = order.PaymentPartiallyRefunded
		return nil
	}
	ord.PaymentStatus = order.PaymentRefunded
	if !order.CanTransition(ord.Status, order.StatusRefunded) {
		logger.Info("Order fully refunded but status kept", logger.Merge(fields, logger.Fields{"status": string(ord.Status)}))
		return nil
	}
	return ord.Transition(order.StatusRefunded, req.RequestedBy, req.Reason, s.Now())
}

// recordFailure keeps an audit row for a refund that was attempted but not applied.
func (s *RefundService) recordFailure(ctx context.Context, req RefundRequest, reference string, amount int64, st *Settlement, cause error) {
	rf := &Refund{
		OrderID:       req.OrderID,
		SettlementID:  st.ID,
		Reference:     reference,
		Amount:        amount,
		Reason:        req.Reason,
		Type:          req.Type,
		Method:        req.Method,
		Status:        RefundFailed,
		RequestedBy:   req.RequestedBy,
		FailureReason: cause.Error(),
	}
	if err := s.DB.WithContext(context.WithoutCancel(ctx)).Create(rf).Error; err != nil {
		logger.Error("Failed to record failed refund", logger.Merge(logger.WithError(err), logger.Fields{logger.ReferenceKey: reference}))
	}
}

func (r RefundRequest) check() error {
	switch r.Type {
	case RefundFull, RefundPartial:
	default:
		return fmt.Errorf("refund type %q: %w", r.Type, ErrInvalidRefund)
	}
	switch r.Method {
	case MethodWallet:
	case MethodBank:
		if r.Bank == nil || r.Bank.AccountNumber == "" || r.Bank.BankCode == "" {
			return fmt.Errorf("bank refund without account: %w", ErrInvalidRefund)
		}
	default:
		return fmt.Errorf("refund method %q: %w", r.Method, ErrInvalidRefund)
	}
	if r.Amount < 0 || (r.Type == RefundPartial && r.Amount == 0) {
		return fmt.Errorf("amount %d: %w", r.Amount, ErrInvalidRefund)
	}
	return nil
}

func (r RefundRequest) resolveAmount(remaining int64) (int64, error) {
	if remaining <= 0 {
		return 0, ErrRefundExceedsSettled
	}

	amount := r.Amount
	if r.Type == RefundFull && amount == 0 {
		amount = remaining
	}
	if amount > remaining {
		return 0, fmt.Errorf("requested %d, refundable %d: %w", amount, remaining, ErrRefundExceedsSettled)
	}
	if r.Type == RefundFull && amount != remaining {
		return 0, fmt.Errorf("full refund of %d leaves %d: %w", amount, remaining-amount, ErrInvalidRefund)
	}
	return amount, nil
}
