package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/go-paystack-settlement/internal/business"
	"github.com/zjoart/go-paystack-settlement/internal/notify"
	"github.com/zjoart/go-paystack-settlement/internal/order"
	"github.com/zjoart/go-paystack-settlement/internal/payment"
	"github.com/zjoart/go-paystack-settlement/internal/wallet"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/database"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"gorm.io/gorm"
)

type Result struct {
	OrderID        uuid.UUID           `json:"order_id"`
	PaymentStatus  payment.Status      `json:"payment_status"`
	OrderStatus    order.Status        `json:"order_status"`
	Settlement     *Settlement         `json:"settlement,omitempty"`
	Transaction    *wallet.Transaction `json:"transaction,omitempty"`
	AlreadySettled bool                `json:"already_settled"`
}

type Orchestrator struct {
	DB         *gorm.DB
	Config     config.Settlement
	Dispatcher *notify.Dispatcher
	Now        func() time.Time
}

func NewOrchestrator(db *gorm.DB, cfg config.Settlement, dispatcher *notify.Dispatcher) *Orchestrator {
	return &Orchestrator{DB: db, Config: cfg, Dispatcher: dispatcher, Now: time.Now}
}

// Settle applies a verified payment outcome to orderID. The payment row is
// locked with NOWAIT, so a concurrent attempt on the same payment returns
// ErrConcurrentSettlement instead of queueing behind it.
func (o *Orchestrator) Settle(ctx context.Context, orderID uuid.UUID, outcome payment.Outcome) (*Result, error) {
	return o.settle(ctx, &orderID, outcome)
}

// SettleByReference resolves the order from the outcome's payment reference.
func (o *Orchestrator) SettleByReference(ctx context.Context, outcome payment.Outcome) (*Result, error) {
	return o.settle(ctx, nil, outcome)
}

func (o *Orchestrator) settle(ctx context.Context, orderID *uuid.UUID, outcome payment.Outcome) (*Result, error) {
	if outcome.Reference == "" {
		return nil, fmt.Errorf("empty payment reference: %w", ErrOrderNotFound)
	}

	var (
		res *Result
		evt *notify.Event
	)
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := order.NewRepository(tx)

		pay, err := orders.LockPaymentNoWait(ctx, outcome.Reference)
		if err != nil {
			if errors.Is(err, order.ErrPaymentNotFound) {
				return fmt.Errorf("%s: %w", outcome.Reference, ErrOrderNotFound)
			}
			return err
		}
		if orderID != nil && pay.OrderID != *orderID {
			return fmt.Errorf("payment %s belongs to another order: %w", pay.PaymentReference, ErrPaymentMismatch)
		}

		ord, err := orders.LockOrder(ctx, pay.OrderID)
		if err != nil {
			if errors.Is(err, order.ErrOrderNotFound) {
				return fmt.Errorf("%s: %w", pay.OrderID, ErrOrderNotFound)
			}
			return err
		}

		res = &Result{OrderID: ord.ID, PaymentStatus: outcome.Status, OrderStatus: ord.Status}

		if pay.Status == order.PaymentSuccess {
			res.AlreadySettled = true
			existing, err := NewRepository(tx).GetByOrderID(ctx, ord.ID)
			if err != nil && !isNotFound(err) {
				return err
			}
			res.Settlement = existing
			return nil
		}

		switch outcome.Status {
		case payment.StatusSuccess:
			evt, err = o.applySuccess(ctx, tx, ord, pay, outcome, res)
			return err
		case payment.StatusFailed:
			evt, err = o.applyFailure(ctx, tx, ord, pay, outcome, res)
			return err
		default:
			pay.ProviderStatus = outcome.ProviderStatus
			return orders.SavePayment(ctx, pay)
		}
	})
	if err != nil {
		if database.IsLockNotAvailable(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%s: %w", outcome.Reference, ErrConcurrentSettlement)
		}
		return nil, err
	}

	if evt != nil {
		o.Dispatcher.Dispatch(*evt)
	}
	return res, nil
}

func (o *Orchestrator) applySuccess(
	ctx context.Context,
	tx *gorm.DB,
	ord *order.Order,
	pay *order.OrderPayment,
	outcome payment.Outcome,
	res *Result,
) (*notify.Event, error) {
	if ord.Status != order.StatusPending || ord.PaymentStatus == order.PaymentSuccess {
		return nil, fmt.Errorf("order %s is %s: %w", ord.OrderReference, ord.Status, ErrOrderNotPayable)
	}
	if outcome.AmountPaid < pay.Amount {
		return nil, fmt.Errorf("paid %d, expected %d: %w", outcome.AmountPaid, pay.Amount, ErrPaymentMismatch)
	}
	if outcome.Currency != "" && !strings.EqualFold(outcome.Currency, pay.Currency) {
		return nil, fmt.Errorf("paid in %s, expected %s: %w", outcome.Currency, pay.Currency, ErrPaymentMismatch)
	}

	biz, err := business.NewRepository(tx).GetByID(ctx, ord.BusinessID)
	if err != nil {
		if errors.Is(err, business.ErrBusinessNotFound) {
			return nil, fmt.Errorf("business %s: %w", ord.BusinessID, ErrMerchantNotFound)
		}
		return nil, err
	}

	now := o.Now()
	fields := logger.Fields{
		logger.OrderIDKey:   ord.ID.String(),
		logger.ReferenceKey: pay.PaymentReference,
		logger.ProviderKey:  string(outcome.Provider),
	}

	pay.Status = order.PaymentSuccess
	pay.ProviderStatus = outcome.ProviderStatus
	pay.NetAmount = outcome.AmountPaid - outcome.Fees
	pay.PaidAt = &now
	if pay.PaymentMethod == "" {
		pay.PaymentMethod = outcome.Channel
	}

	mode := o.Config.Mode
	if outcome.Split != nil {
		mode = config.ModeSubaccount
	}

	st := &Settlement{
		OrderID:             ord.ID,
		PaymentID:           pay.ID,
		MerchantUserID:      biz.OwnerUserID,
		SettlementReference: "STL-" + pay.PaymentReference,
		Mode:                mode,
		GrossAmount:         outcome.AmountPaid,
		Currency:            pay.Currency,
	}
	meta := map[string]interface{}{
		wallet.MetaOrderID:             ord.ID.String(),
		wallet.MetaSettlementReference: st.SettlementReference,
	}

	ledger := wallet.NewLedger(tx)
	var entry *wallet.Transaction

	if mode == config.ModeSubaccount {
		st.Status = StatusSkipped
		st.SubaccountCode = biz.SubaccountCode
		if outcome.Split != nil {
			st.SubaccountCode = outcome.Split.SubaccountCode
			st.PlatformFee = min(outcome.Split.Share, outcome.AmountPaid)
		}
		st.Amount = outcome.AmountPaid - st.PlatformFee
		meta[wallet.MetaSubaccountCode] = st.SubaccountCode

		entry, err = ledger.RecordSplit(ctx, wallet.SplitInput{
			UserID:      biz.OwnerUserID,
			Amount:      st.Amount,
			Reference:   st.SettlementReference,
			Description: "Split payment routed to subaccount for order " + ord.OrderReference,
			Metadata:    meta,
		})
		if errors.Is(err, wallet.ErrWalletNotFound) || errors.Is(err, wallet.ErrWalletInactive) {
			logger.Warn("Split settlement recorded without wallet audit entry", logger.Merge(logger.WithError(err), fields))
			entry, err = nil, nil
		}
	} else {
		b := ComputeBreakdown(outcome.AmountPaid, o.Config)
		st.Status = StatusCompleted
		st.PlatformFee, st.HeldAmount, st.Amount = b.Fee, b.Held, b.Net

		if b.Net+b.Held > 0 {
			entry, err = ledger.Credit(ctx, wallet.CreditInput{
				UserID:      biz.OwnerUserID,
				Amount:      b.Net,
				Hold:        b.Held,
				Reference:   st.SettlementReference,
				Description: "Settlement for order " + ord.OrderReference,
				Metadata:    meta,
			})
		}
		if errors.Is(err, wallet.ErrWalletNotFound) || errors.Is(err, wallet.ErrWalletInactive) {
			logger.Error("Settlement failed, merchant wallet unavailable", logger.Merge(logger.WithError(err), fields))
			st.Status = StatusFailed
			st.FailureReason = err.Error()
			entry, err = nil, nil
		}
	}
	if err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Create(st).Error; err != nil {
		return nil, err
	}

	ord.PaymentStatus = order.PaymentSuccess
	ord.TransactionReference = outcome.Reference
	if err := ord.Transition(order.StatusConfirmed, actor(outcome), "payment confirmed", now); err != nil {
		return nil, err
	}

	orders := order.NewRepository(tx)
	if err := orders.SavePayment(ctx, pay); err != nil {
		return nil, err
	}
	if err := orders.SaveOrder(ctx, ord); err != nil {
		return nil, err
	}

	res.OrderStatus = ord.Status
	res.Settlement = st
	res.Transaction = entry

	logger.Info("Order settled", logger.Merge(fields, logger.Fields{
		"mode":   string(st.Mode),
		"status": string(st.Status),
		"amount": st.Amount,
	}))

	evtType := notify.SettlementCompleted
	switch st.Status {
	case StatusSkipped:
		evtType = notify.SettlementSplit
	case StatusFailed:
		evtType = notify.SettlementFailed
	}
	return &notify.Event{
		Type:           evtType,
		OrderID:        ord.ID,
		MerchantUserID: st.MerchantUserID,
		Reference:      st.SettlementReference,
		Amount:         st.Amount,
		Currency:       st.Currency,
		Mode:           string(st.Mode),
		Detail:         st.FailureReason,
	}, nil
}

func (o *Orchestrator) applyFailure(
	ctx context.Context,
	tx *gorm.DB,
	ord *order.Order,
	pay *order.OrderPayment,
	outcome payment.Outcome,
	res *Result,
) (*notify.Event, error) {
	orders := order.NewRepository(tx)

	pay.Status = order.PaymentFailed
	pay.ProviderStatus = outcome.ProviderStatus
	if err := orders.SavePayment(ctx, pay); err != nil {
		return nil, err
	}

	// another attempt may already have paid for the order
	if ord.Status != order.StatusPending || ord.PaymentStatus == order.PaymentSuccess {
		return nil, nil
	}

	ord.PaymentStatus = order.PaymentFailed
	if o.Config.CancelOnFailure {
		if err := ord.Transition(order.StatusCancelled, actor(outcome), "payment failed", o.Now()); err != nil {
			logger.Warn("Skipping order cancellation", logger.Merge(logger.WithError(err), logger.Fields{logger.OrderIDKey: ord.ID.String()}))
		}
	}
	if err := orders.SaveOrder(ctx, ord); err != nil {
		return nil, err
	}
	res.OrderStatus = ord.Status

	return &notify.Event{
		Type:      notify.PaymentFailed,
		OrderID:   ord.ID,
		Reference: pay.PaymentReference,
		Amount:    pay.Amount,
		Currency:  pay.Currency,
		Detail:    outcome.ProviderStatus,
	}, nil
}

func actor(outcome payment.Outcome) string {
	return "webhook:" + string(outcome.Provider)
}
