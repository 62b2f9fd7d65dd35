package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"github.com/zjoart/go-paystack-settlement/pkg/utils"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
	// in-flight reservations expire on their own if the process dies mid-request
	reservationTTL = time.Minute
)

// Middleware replays the stored response for a repeated Idempotency-Key from
// the same user on the same path. Requests without the header pass through.
// When the cache cannot be read the request is refused rather than run twice.
func Middleware(store Store, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idemKey := r.Header.Get(HeaderKey)
			if idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(idemKey) > maxKeyLength {
				utils.BuildErrorResponse(w, http.StatusBadRequest, "Idempotency-Key is too long", nil)
				return
			}

			usr, ok := r.Context().Value(utils.UserKey).(user.User)
			if !ok {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				utils.BuildErrorResponse(w, http.StatusBadRequest, "Failed to read body", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := cacheKey(usr.ID.String(), r.Method, r.URL.Path, idemKey)
			fingerprint := fingerprint(body)
			fields := logger.Fields{logger.UserIdKey: usr.ID.String(), "idempotency_key": idemKey, "path": r.URL.Path}

			entry, err := store.Get(r.Context(), key)
			if err != nil {
				logger.Error("Idempotency cache lookup failed", logger.Merge(fields, logger.WithError(err)))
				utils.BuildErrorResponse(w, http.StatusServiceUnavailable, "Unable to guarantee idempotency, retry later", nil)
				return
			}
			if entry != nil {
				replay(w, entry, fingerprint)
				return
			}

			reserved, err := store.Reserve(r.Context(), key, reservationTTL)
			if err != nil {
				logger.Error("Idempotency reservation failed", logger.Merge(fields, logger.WithError(err)))
				utils.BuildErrorResponse(w, http.StatusServiceUnavailable, "Unable to guarantee idempotency, retry later", nil)
				return
			}
			if !reserved {
				utils.BuildErrorResponse(w, http.StatusConflict, "A request with this Idempotency-Key is already in progress", nil)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			ctx := context.WithoutCancel(r.Context())
			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					logger.Warn("Failed to release idempotency key", logger.Merge(fields, logger.WithError(err)))
				}
				return
			}

			if err := store.Save(ctx, key, &Entry{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				Fingerprint: fingerprint,
				CreatedAt:   time.Now().UTC(),
			}, ttl); err != nil {
				logger.Error("Failed to store idempotent response", logger.Merge(fields, logger.WithError(err)))
			}
		})
	}
}

func replay(w http.ResponseWriter, entry *Entry, fingerprint string) {
	if entry.Fingerprint != fingerprint {
		utils.BuildErrorResponse(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used with a different request body", nil)
		return
	}
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(entry.Status)
	w.Write(entry.Body)
}

func cacheKey(userID, method, path, idemKey string) string {
	return userID + ":" + method + ":" + path + ":" + idemKey
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
