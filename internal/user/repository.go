package user

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	IsKYCVerified(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateUser(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) FindByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	return &user, err
}

func (r *repository) IsKYCVerified(ctx context.Context, id uuid.UUID) (bool, error) {
	var statuses []string
	err := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Pluck("kyc_status", &statuses).Error
	if err != nil {
		return false, err
	}
	if len(statuses) == 0 {
		return false, gorm.ErrRecordNotFound
	}
	return KYCStatus(statuses[0]) == KYCVerified, nil
}
