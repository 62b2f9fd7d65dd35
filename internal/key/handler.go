package key

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"github.com/zjoart/go-paystack-settlement/pkg/utils"
)

type Handler struct {
	Config config.Config
	Repo   Repository
	Now    func() time.Time
}

func NewHandler(cfg config.Config, repo Repository) *Handler {
	return &Handler{Config: cfg, Repo: repo, Now: time.Now}
}

type CreateKeyRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Permissions []string `json:"permissions" validate:"required,min=1,dive,required"`
	Expiry      string   `json:"expiry" validate:"required"`
}

type RolloverKeyRequest struct {
	ExpiredKeyID string `json:"expired_key_id" validate:"required"`
	Expiry       string `json:"expiry" validate:"required"`
}

type RevokeKeyRequest struct {
	KeyID string `json:"key_id" validate:"required"`
}

func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req CreateKeyRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request body", map[string]string{"error": err.Error()})
		return
	}

	validPerms, err := validatePermissions(req.Permissions)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	expiresAt, err := parseExpiry(h.Now(), req.Expiry)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid expiry format. Use 1H, 1D, 1M, 1Y", nil)
		return
	}

	if !h.underKeyLimit(w, r, usr) {
		return
	}

	plain, err := h.issue(r, usr, req.Name, validPerms, expiresAt)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to create API key", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "API Key created, This key will only be shown once. Please save it securely.", plain)
}

func (h *Handler) RolloverAPIKey(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req RolloverKeyRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request body", map[string]string{"error": err.Error()})
		return
	}

	// the caller may identify the old key by its plain value or by its id
	oldKey, err := h.Repo.GetKeyByValue(r.Context(), req.ExpiredKeyID, usr.ID)
	if errors.Is(err, ErrKeyNotFound) {
		oldKey, err = h.Repo.GetKey(r.Context(), req.ExpiredKeyID, usr.ID)
	}
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			utils.BuildErrorResponse(w, http.StatusNotFound, "Expired key not found", nil)
			return
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to load key", nil)
		return
	}

	if oldKey.IsRevoked {
		utils.BuildErrorResponse(w, http.StatusForbidden, "Key has been revoked", nil)
		return
	}

	if h.Now().Before(oldKey.ExpiresAt) {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Key is not expired yet", nil)
		return
	}

	expiresAt, err := parseExpiry(h.Now(), req.Expiry)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid expiry format", nil)
		return
	}

	if !h.underKeyLimit(w, r, usr) {
		return
	}

	plain, err := h.issue(r, usr, oldKey.Name, oldKey.Permissions, expiresAt)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to create new key", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "API Key rolled over, This key will only be shown once. Please save it securely.", plain)
}

func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req RevokeKeyRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request body", map[string]string{"error": err.Error()})
		return
	}

	if err := h.Repo.RevokeKey(r.Context(), req.KeyID, usr.ID); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			utils.BuildErrorResponse(w, http.StatusNotFound, "Key not found", nil)
		} else {
			utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to revoke key", nil)
		}
		return
	}

	logger.Info("API key revoked", logger.Fields{logger.UserIdKey: usr.ID.String(), "key_id": req.KeyID})
	utils.BuildSuccessResponse(w, http.StatusOK, "API Key revoked successfully", nil)
}

type SafeKeyResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MaskedKey   string    `json:"masked_key"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsRevoked   bool      `json:"is_revoked"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	keys, err := h.Repo.GetKeysByUserID(r.Context(), usr.ID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch keys", nil)
		return
	}

	safeKeys := make([]SafeKeyResponse, 0, len(keys))
	for _, k := range keys {
		safeKeys = append(safeKeys, SafeKeyResponse{
			ID:          k.ID.String(),
			Name:        k.Name,
			MaskedKey:   k.MaskedKey,
			Permissions: k.Permissions,
			ExpiresAt:   k.ExpiresAt,
			IsRevoked:   k.IsRevoked,
			CreatedAt:   k.CreatedAt,
		})
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "API Keys retrieved", safeKeys)
}

func (h *Handler) underKeyLimit(w http.ResponseWriter, r *http.Request, usr user.User) bool {
	count, err := h.Repo.CountActiveKeys(r.Context(), usr.ID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to count keys", nil)
		return false
	}
	if count >= int64(h.Config.MaxActiveKeys) {
		utils.BuildErrorResponse(w, http.StatusForbidden, fmt.Sprintf("Maximum of %d active keys allowed", h.Config.MaxActiveKeys), nil)
		return false
	}
	return true
}

func (h *Handler) issue(r *http.Request, usr user.User, name string, perms []string, expiresAt time.Time) (map[string]interface{}, error) {
	keyString, err := generateSecureKey()
	if err != nil {
		return nil, err
	}

	apiKey := APIKey{
		UserID:      usr.ID,
		Name:        name,
		Key:         HashKey(keyString),
		MaskedKey:   maskKey(keyString),
		Permissions: pq.StringArray(perms),
		ExpiresAt:   expiresAt,
	}
	if err := h.Repo.CreateKey(r.Context(), &apiKey); err != nil {
		logger.Error("Failed to create API key", logger.Merge(logger.WithError(err), logger.Fields{logger.UserIdKey: usr.ID.String()}))
		return nil, err
	}

	return map[string]interface{}{
		"id":          apiKey.ID,
		"api_key":     keyString,
		"masked_key":  apiKey.MaskedKey,
		"permissions": apiKey.Permissions,
		"expires_at":  apiKey.ExpiresAt,
	}, nil
}

func parseExpiry(now time.Time, expiry string) (time.Time, error) {
	switch strings.ToUpper(expiry) {
	case "1H":
		return now.Add(time.Hour), nil
	case "1D":
		return now.Add(24 * time.Hour), nil
	case "1M":
		return now.Add(30 * 24 * time.Hour), nil
	case "1Y":
		return now.Add(365 * 24 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("invalid format")
	}
}

func generateSecureKey() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "sk_live_" + hex.EncodeToString(bytes), nil
}

func validatePermissions(requested []string) ([]string, error) {
	var normalized []string
	for _, p := range requested {
		upperP := Permission(strings.ToUpper(p))
		isValid := false
		for _, allowed := range AllowedPermissions {
			if upperP == allowed {
				isValid = true
				break
			}
		}
		if !isValid {
			return nil, fmt.Errorf("invalid permission: %s", p)
		}
		normalized = append(normalized, string(upperP))
	}
	return normalized, nil
}

func maskKey(key string) string {
	if len(key) <= 12 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
