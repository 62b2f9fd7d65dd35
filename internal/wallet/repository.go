package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateWallet(ctx context.Context, wallet *Wallet) error
	GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	GetTransactionByReference(ctx context.Context, ref string) (*Transaction, error)
	GetTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]Transaction, error)
	CountTransactions(ctx context.Context, walletID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateWallet(ctx context.Context, wallet *Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, notFound(err, ErrWalletNotFound)
	}
	return &wallet, nil
}

func (r *repository) GetTransactionByReference(ctx context.Context, ref string) (*Transaction, error) {
	var tx Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", ref).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *repository) GetTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	return txs, err
}

func (r *repository) CountTransactions(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Transaction{}).Where("wallet_id = ?", walletID).Count(&count).Error
	return count, err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
