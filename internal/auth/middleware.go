package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zjoart/go-paystack-settlement/internal/key"
	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"github.com/zjoart/go-paystack-settlement/pkg/utils"
)

const APIKeyHeader = "x-api-key"

// JWTMiddleware authenticates session tokens issued elsewhere. JWT users hold
// every permission.
func JWTMiddleware(cfg config.Config, userRepo user.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Authorization required", nil)
				return
			}
			authenticateJWT(cfg, userRepo, strings.TrimPrefix(authHeader, "Bearer "), w, r, next)
		})
	}
}

// UnifiedAuthMiddleware accepts either a bearer token or an API key.
func UnifiedAuthMiddleware(cfg config.Config, userRepo user.Repository, keyRepo key.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				authenticateJWT(cfg, userRepo, strings.TrimPrefix(authHeader, "Bearer "), w, r, next)
				return
			}
			if apiKey := r.Header.Get(APIKeyHeader); apiKey != "" {
				authenticateAPIKey(keyRepo, userRepo, apiKey, w, r, next)
				return
			}
			utils.BuildErrorResponse(w, http.StatusUnauthorized, "Authorization required", nil)
		})
	}
}

func authenticateJWT(cfg config.Config, userRepo user.Repository, tokenString string, w http.ResponseWriter, r *http.Request, next http.Handler) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid token", nil)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid token claims", nil)
		return
	}

	userIDStr, ok := claims[utils.UserIDKey].(string)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid user ID in token", nil)
		return
	}

	usr, err := userRepo.FindByID(r.Context(), userIDStr)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "User not found", nil)
		return
	}

	ctx := context.WithValue(r.Context(), utils.UserKey, *usr)
	ctx = context.WithValue(ctx, utils.PermissionsKey, []string{"*"})
	next.ServeHTTP(w, r.WithContext(ctx))
}

func authenticateAPIKey(keyRepo key.Repository, userRepo user.Repository, value string, w http.ResponseWriter, r *http.Request, next http.Handler) {
	apiKey, err := keyRepo.FindByKey(r.Context(), value)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid API Key", nil)
		return
	}

	if apiKey.IsRevoked {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "API Key revoked", nil)
		return
	}

	if time.Now().After(apiKey.ExpiresAt) {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "API key has expired", nil)
		return
	}

	usr, err := userRepo.FindByID(r.Context(), apiKey.UserID.String())
	if err != nil {
		logger.Warn("API key owner not found", logger.Fields{logger.UserIdKey: apiKey.UserID.String()})
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Associated user not found", nil)
		return
	}

	ctx := context.WithValue(r.Context(), utils.UserKey, *usr)
	ctx = context.WithValue(ctx, utils.PermissionsKey, []string(apiKey.Permissions))
	next.ServeHTTP(w, r.WithContext(ctx))
}

func RequirePermission(perm key.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			perms, ok := r.Context().Value(utils.PermissionsKey).([]string)
			if !ok {
				utils.BuildErrorResponse(w, http.StatusForbidden, "Permissions not found", nil)
				return
			}

			hasPerm := false
			for _, p := range perms {
				if p == "*" || p == string(perm) {
					hasPerm = true
					break
				}
			}

			if !hasPerm {
				utils.BuildErrorResponse(w, http.StatusForbidden, "Insufficient permissions", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
