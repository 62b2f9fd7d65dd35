package key

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	idutil "github.com/zjoart/go-paystack-settlement/pkg/id"
	"gorm.io/gorm"
)

var ErrKeyNotFound = errors.New("api key not found")

type Repository interface {
	CountActiveKeys(ctx context.Context, userID uuid.UUID) (int64, error)
	CreateKey(ctx context.Context, key *APIKey) error
	GetKey(ctx context.Context, keyID string, userID uuid.UUID) (*APIKey, error)
	GetKeyByValue(ctx context.Context, keyValue string, userID uuid.UUID) (*APIKey, error)
	FindByKey(ctx context.Context, keyValue string) (*APIKey, error)
	GetKeysByUserID(ctx context.Context, userID uuid.UUID) ([]APIKey, error)
	RevokeKey(ctx context.Context, keyID string, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CountActiveKeys(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&APIKey{}).
		Where("user_id = ? AND is_revoked = ? AND expires_at > ?", userID, false, time.Now()).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateKey(ctx context.Context, key *APIKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *repository) GetKey(ctx context.Context, keyID string, userID uuid.UUID) (*APIKey, error) {
	id, err := idutil.IsValidUUID(keyID)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	var key APIKey
	err = r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&key).Error
	return keyOrNotFound(&key, err)
}

func (r *repository) GetKeyByValue(ctx context.Context, keyValue string, userID uuid.UUID) (*APIKey, error) {
	var key APIKey
	err := r.db.WithContext(ctx).Where("key = ? AND user_id = ?", HashKey(keyValue), userID).First(&key).Error
	return keyOrNotFound(&key, err)
}

func (r *repository) FindByKey(ctx context.Context, keyValue string) (*APIKey, error) {
	var key APIKey
	err := r.db.WithContext(ctx).Where("key = ?", HashKey(keyValue)).First(&key).Error
	return keyOrNotFound(&key, err)
}

func (r *repository) GetKeysByUserID(ctx context.Context, userID uuid.UUID) ([]APIKey, error) {
	var keys []APIKey
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&keys).Error
	return keys, err
}

func (r *repository) RevokeKey(ctx context.Context, keyID string, userID uuid.UUID) error {
	id, err := idutil.IsValidUUID(keyID)
	if err != nil {
		return ErrKeyNotFound
	}
	res := r.db.WithContext(ctx).Model(&APIKey{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func keyOrNotFound(key *APIKey, err error) (*APIKey, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// HashKey is the stored form of a plain API key.
func HashKey(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}
