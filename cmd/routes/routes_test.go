package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/zjoart/go-paystack-settlement/internal/business"
	"github.com/zjoart/go-paystack-settlement/internal/key"
	"github.com/zjoart/go-paystack-settlement/internal/order"
	"github.com/zjoart/go-paystack-settlement/internal/payment"
	"github.com/zjoart/go-paystack-settlement/internal/settlement"
	"github.com/zjoart/go-paystack-settlement/internal/testutil"
	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/internal/wallet"
	"github.com/zjoart/go-paystack-settlement/internal/webhook"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/events"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db := testutil.NewDB(t,
		&user.User{}, &key.APIKey{}, &business.Business{}, &order.Order{}, &order.OrderPayment{},
		&settlement.Settlement{}, &settlement.Refund{}, &wallet.Wallet{}, &wallet.Transaction{}, &webhook.Event{},
	)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	cfg := config.Config{
		PaystackSecret:       "sk_test_routes",
		JWTSecret:            "jwt",
		Env:                  "production",
		AllowedOrigins:       []string{"*"},
		MinTransactionAmount: 10000,
		MaxActiveKeys:        5,
		IdempotencyTTL:       time.Hour,
		Settlement: config.Settlement{
			Mode:                 config.ModeMainBalance,
			SettlementPercentage: decimal.NewFromInt(100),
		},
		Webhook: config.Webhook{MaxAttempts: 3, RetryBaseDelay: time.Second, ProcessTimeout: time.Second},
		Notify:  config.Notify{Backend: "none"},
	}

	app := NewApp(context.Background(), cfg, db, &events.RedisClient{Client: client})
	return RegisterRoutes(mux.NewRouter(), app)
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t)
	body := []byte(`{"event":"charge.success","data":{"id":1,"reference":"QKY-UNKNOWN","status":"success","amount":5000}}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
		header map[string]string
		want   int
	}{
		{"webhook without signature", "POST", "/api/webhooks/paystack", body, nil, http.StatusUnauthorized},
		{"webhook for unknown order is acknowledged", "POST", "/api/webhooks/paystack", body,
			map[string]string{"x-paystack-signature": payment.Sign("sk_test_routes", body)}, http.StatusOK},
		{"webhook for unconfigured provider", "POST", "/api/webhooks/monnify", body, nil, http.StatusNotFound},
		{"wallet requires auth", "GET", "/api/wallet", nil, nil, http.StatusUnauthorized},
		{"payout requires auth", "POST", "/api/wallet/payout", nil, nil, http.StatusUnauthorized},
		{"refund requires auth", "POST", "/api/orders/abc/refunds", nil, nil, http.StatusUnauthorized},
		{"keys require jwt", "POST", "/api/keys/create", nil, map[string]string{"x-api-key": "sk_live_x"}, http.StatusUnauthorized},
		{"swagger disabled in production", "GET", "/swagger.yaml", nil, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader(tt.body))
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.path != "/swagger.yaml" {
				assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			}
		})
	}
}
