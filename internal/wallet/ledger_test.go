package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-paystack-settlement/internal/testutil"
	"gorm.io/gorm"
)

func newLedgerDB(t *testing.T) *gorm.DB {
	return testutil.NewDB(t, &Wallet{}, &Transaction{})
}

func seedWallet(t *testing.T, db *gorm.DB, available int64) *Wallet {
	t.Helper()
	w := &Wallet{
		UserID:           uuid.New(),
		WalletNumber:     uuid.New().String()[:10],
		AvailableBalance: available,
		LedgerBalance:    available,
		Currency:         "NGN",
	}
	require.NoError(t, db.Create(w).Error)
	return w
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) Wallet {
	t.Helper()
	var w Wallet
	require.NoError(t, db.First(&w, "id = ?", id).Error)
	return w
}

func TestLedgerReplayMatchesSum(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 1000)
	ctx := context.Background()

	ops := []struct {
		credit bool
		amount int64
	}{
		{true, 500}, {false, 200}, {true, 50}, {false, 1350}, {true, 7},
	}

	expected := int64(1000)
	for i, op := range ops {
		ref := fmt.Sprintf("REF-%d", i)
		var entry *Transaction
		var err error
		if op.credit {
			entry, err = l.Credit(ctx, CreditInput{UserID: w.UserID, Amount: op.amount, Reference: ref})
			expected += op.amount
			require.NoError(t, err)
			assert.Equal(t, entry.BalanceBefore+op.amount, entry.BalanceAfter)
		} else {
			entry, err = l.Debit(ctx, DebitInput{UserID: w.UserID, Amount: op.amount, Reference: ref})
			expected -= op.amount
			require.NoError(t, err)
			assert.Equal(t, entry.BalanceBefore-op.amount, entry.BalanceAfter)
		}
		assert.Equal(t, expected, entry.BalanceAfter)
	}

	got := reload(t, db, w.ID)
	assert.Equal(t, expected, got.AvailableBalance)
	assert.Equal(t, expected, got.LedgerBalance)

	var count int64
	db.Model(&Transaction{}).Where("wallet_id = ?", w.ID).Count(&count)
	assert.Equal(t, int64(len(ops)), count)
}

func TestDebitInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 100)

	_, err := l.Debit(context.Background(), DebitInput{UserID: w.UserID, Amount: 101, Reference: "DBT-1"})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	got := reload(t, db, w.ID)
	assert.Equal(t, int64(100), got.AvailableBalance)
	assert.Equal(t, int64(100), got.LedgerBalance)

	var count int64
	db.Model(&Transaction{}).Count(&count)
	assert.Zero(t, count)
}

func TestReversalDebits(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 100)
	ctx := context.Background()

	entry, err := l.Debit(ctx, DebitInput{UserID: w.UserID, Amount: 50, Type: TransactionReversal, Reference: "RFD-1"})
	require.NoError(t, err)
	assert.Equal(t, TransactionReversal, entry.Type)
	assert.Equal(t, int64(50), entry.BalanceAfter)

	_, err = l.Debit(ctx, DebitInput{UserID: w.UserID, Amount: 200, Type: TransactionReversal, Reference: "RFD-2"})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(50), reload(t, db, w.ID).AvailableBalance)
}

func TestCreditIsIdempotentByReference(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 0)
	ctx := context.Background()

	first, err := l.Credit(ctx, CreditInput{UserID: w.UserID, Amount: 4900, Reference: "STL-1"})
	require.NoError(t, err)

	second, err := l.Credit(ctx, CreditInput{UserID: w.UserID, Amount: 4900, Reference: "STL-1"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(4900), reload(t, db, w.ID).AvailableBalance)
}

func TestReferenceReuseWithDifferentShapeConflicts(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	a := seedWallet(t, db, 0)
	b := seedWallet(t, db, 0)
	ctx := context.Background()

	_, err := l.Credit(ctx, CreditInput{UserID: a.UserID, Amount: 10, Reference: "STL-2"})
	require.NoError(t, err)

	_, err = l.Credit(ctx, CreditInput{UserID: a.UserID, Amount: 11, Reference: "STL-2"})
	assert.ErrorIs(t, err, ErrReferenceConflict)

	_, err = l.Credit(ctx, CreditInput{UserID: b.UserID, Amount: 10, Reference: "STL-2"})
	assert.ErrorIs(t, err, ErrReferenceConflict)
	assert.Zero(t, reload(t, db, b.ID).AvailableBalance)
}

func TestRecordSplitKeepsBalance(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 300)

	entry, err := l.RecordSplit(context.Background(), SplitInput{UserID: w.UserID, Amount: 4900, Reference: "SPL-1"})
	require.NoError(t, err)

	assert.Equal(t, entry.BalanceBefore, entry.BalanceAfter)
	assert.Equal(t, int64(300), entry.BalanceAfter)
	assert.True(t, entry.IsSplit())

	stored, err := NewRepository(db).GetTransactionByReference(context.Background(), "SPL-1")
	require.NoError(t, err)
	assert.True(t, stored.IsSplit())
	assert.Equal(t, int64(300), reload(t, db, w.ID).AvailableBalance)
}

func TestCreditWithHoldThenRelease(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 0)
	ctx := context.Background()

	entry, err := l.Credit(ctx, CreditInput{UserID: w.UserID, Amount: 900, Hold: 100, Reference: "STL-H"})
	require.NoError(t, err)
	assert.Equal(t, int64(900), entry.BalanceAfter)

	got := reload(t, db, w.ID)
	assert.Equal(t, int64(900), got.AvailableBalance)
	assert.Equal(t, int64(100), got.PendingBalance)
	assert.Equal(t, int64(1000), got.LedgerBalance)

	_, err = l.Release(ctx, w.UserID, 150, "REL-X")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	rel, err := l.Release(ctx, w.UserID, 100, "REL-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rel.BalanceAfter)

	got = reload(t, db, w.ID)
	assert.Equal(t, int64(1000), got.AvailableBalance)
	assert.Zero(t, got.PendingBalance)
	assert.Equal(t, got.LedgerBalance, got.AvailableBalance)
}

func TestLedgerRejectsInvalidInput(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 10)
	ctx := context.Background()

	_, err := l.Credit(ctx, CreditInput{UserID: w.UserID, Amount: 0, Reference: "Z"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.Debit(ctx, DebitInput{UserID: w.UserID, Amount: -1, Reference: "Z"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.Credit(ctx, CreditInput{UserID: uuid.New(), Amount: 5, Reference: "Z"})
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestFrozenWalletRejectsMutation(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 10)
	require.NoError(t, db.Model(&Wallet{}).Where("id = ?", w.ID).Update("status", WalletFrozen).Error)

	_, err := l.Credit(context.Background(), CreditInput{UserID: w.UserID, Amount: 5, Reference: "F-1"})
	assert.ErrorIs(t, err, ErrWalletInactive)
}

func TestConcurrentCreditsSerialise(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 0)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Credit(context.Background(), CreditInput{UserID: w.UserID, Amount: 100, Reference: fmt.Sprintf("C-%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(workers*100), reload(t, db, w.ID).AvailableBalance)
}

func TestTransactionsAreImmutable(t *testing.T) {
	db := newLedgerDB(t)
	l := NewLedger(db)
	w := seedWallet(t, db, 0)

	entry, err := l.Credit(context.Background(), CreditInput{UserID: w.UserID, Amount: 10, Reference: "IMM-1"})
	require.NoError(t, err)

	entry.Amount = 99
	assert.ErrorIs(t, db.Save(entry).Error, ErrImmutableTransaction)
}
