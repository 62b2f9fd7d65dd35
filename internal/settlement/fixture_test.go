package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-paystack-settlement/internal/business"
	"github.com/zjoart/go-paystack-settlement/internal/order"
	"github.com/zjoart/go-paystack-settlement/internal/payment"
	"github.com/zjoart/go-paystack-settlement/internal/testutil"
	"github.com/zjoart/go-paystack-settlement/internal/wallet"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	db       *gorm.DB
	merchant uuid.UUID
	biz      *business.Business
	order    *order.Order
	payment  *order.OrderPayment
}

func newEnv(t *testing.T, walletBalance int64, withWallet bool) *env {
	t.Helper()
	db := testutil.NewDB(t,
		&business.Business{}, &order.Order{}, &order.OrderPayment{},
		&Settlement{}, &Refund{}, &wallet.Wallet{}, &wallet.Transaction{},
	)
	ctx := context.Background()

	merchant := uuid.New()
	biz := &business.Business{OwnerUserID: merchant, Name: "Qwik Kicks", SubaccountCode: "ACCT_default"}
	require.NoError(t, business.NewRepository(db).Create(ctx, biz))

	if withWallet {
		require.NoError(t, wallet.NewRepository(db).CreateWallet(ctx, &wallet.Wallet{
			UserID:           merchant,
			WalletNumber:     "1000000001",
			AvailableBalance: walletBalance,
			LedgerBalance:    walletBalance,
		}))
	}

	orders := order.NewRepository(db)
	ord := &order.Order{BusinessID: biz.ID, Subtotal: 4500, ShippingFee: 500, Total: 5000, OrderReference: "ORD-1"}
	require.NoError(t, orders.CreateOrder(ctx, ord))

	pay := &order.OrderPayment{OrderID: ord.ID, PaymentReference: "QKY-ORD-1-ABCD", Amount: 5000, Provider: string(payment.Paystack)}
	require.NoError(t, orders.CreatePayment(ctx, pay))

	return &env{db: db, merchant: merchant, biz: biz, order: ord, payment: pay}
}

func (e *env) orchestrator(feePct string, mode config.SettlementMode) *Orchestrator {
	cfg := settlementConfig(feePct, 0, "100")
	cfg.Mode = mode
	o := NewOrchestrator(e.db, cfg, nil)
	o.Now = func() time.Time { return fixedNow }
	return o
}

func (e *env) wallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewRepository(e.db).GetWalletByUserID(context.Background(), e.merchant)
	require.NoError(t, err)
	return w
}

func (e *env) reloadOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.NewRepository(e.db).GetOrder(context.Background(), e.order.ID)
	require.NoError(t, err)
	return o
}

func (e *env) reloadPayment(t *testing.T) *order.OrderPayment {
	t.Helper()
	p, err := order.NewRepository(e.db).GetPaymentByReference(context.Background(), e.payment.PaymentReference)
	require.NoError(t, err)
	return p
}

func (e *env) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func successOutcome(amount int64) payment.Outcome {
	return payment.Outcome{
		Provider:       payment.Paystack,
		Reference:      "QKY-ORD-1-ABCD",
		AmountPaid:     amount,
		Currency:       "NGN",
		ProviderStatus: "success",
		Status:         payment.StatusSuccess,
	}
}
