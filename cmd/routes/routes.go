package routes

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/zjoart/go-paystack-settlement/internal/auth"
	"github.com/zjoart/go-paystack-settlement/internal/business"
	"github.com/zjoart/go-paystack-settlement/internal/idempotency"
	"github.com/zjoart/go-paystack-settlement/internal/key"
	"github.com/zjoart/go-paystack-settlement/internal/middleware"
	"github.com/zjoart/go-paystack-settlement/internal/notify"
	"github.com/zjoart/go-paystack-settlement/internal/order"
	"github.com/zjoart/go-paystack-settlement/internal/payment"
	"github.com/zjoart/go-paystack-settlement/internal/payout"
	"github.com/zjoart/go-paystack-settlement/internal/settlement"
	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/internal/wallet"
	"github.com/zjoart/go-paystack-settlement/internal/webhook"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/events"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// App holds the long-lived services the HTTP layer and the workers share.
type App struct {
	Config      config.Config
	DB          *gorm.DB
	Redis       *events.RedisClient
	Dispatcher  *notify.Dispatcher
	Processor   *webhook.Processor
	RetryWorker *webhook.RetryWorker
	Refunds     *settlement.RefundService
	Payouts     *payout.Service
}

func NewApp(ctx context.Context, cfg config.Config, db *gorm.DB, redisClient *events.RedisClient) *App {
	notifier, err := notify.New(ctx, cfg, redisClient)
	if err != nil {
		logger.Error("Failed to initialise notifier, notifications disabled", logger.Merge(logger.WithError(err), logger.Fields{"backend": cfg.Notify.Backend}))
		notifier = notify.Noop()
	}
	dispatcher := notify.NewDispatcher(notifier, 5*time.Second)

	transfers := payout.NewPaystackTransfers(cfg.PaystackSecret)
	orchestrator := settlement.NewOrchestrator(db, cfg.Settlement, dispatcher)

	store := webhook.NewStore(db)
	processor := webhook.NewProcessor(
		payment.NewVerifier(payment.RegistryFromConfig(cfg)),
		store,
		orchestrator,
		redisClient,
		webhook.RetryPolicy{MaxAttempts: cfg.Webhook.MaxAttempts, BaseDelay: cfg.Webhook.RetryBaseDelay},
		cfg.Webhook.ProcessTimeout,
	)

	return &App{
		Config:      cfg,
		DB:          db,
		Redis:       redisClient,
		Dispatcher:  dispatcher,
		Processor:   processor,
		RetryWorker: webhook.NewRetryWorker(processor, store, cfg.Webhook.RetryBaseDelay),
		Refunds:     settlement.NewRefundService(db, transfers, dispatcher),
		Payouts: &payout.Service{
			Users:      user.NewRepository(db),
			Wallets:    wallet.NewRepository(db),
			Ledger:     wallet.NewLedger(db),
			Instructor: transfers,
			Dispatcher: dispatcher,
			MinAmount:  cfg.MinTransactionAmount,
		},
	}
}

func RegisterRoutes(r *mux.Router, app *App) http.Handler {
	cfg := app.Config
	userRepo := user.NewRepository(app.DB)
	keyRepo := key.NewRepository(app.DB)
	walletRepo := wallet.NewRepository(app.DB)

	keyHandler := key.NewHandler(cfg, keyRepo)
	walletHandler := wallet.NewHandler(cfg, walletRepo)
	payoutHandler := payout.NewHandler(app.Payouts)
	refundHandler := settlement.NewHandler(app.Refunds, order.NewRepository(app.DB), business.NewRepository(app.DB), settlement.NewRepository(app.DB))
	webhookHandler := webhook.NewHandler(app.Processor)

	idem := idempotency.Middleware(idempotency.NewRedisStore(app.Redis.Client), cfg.IdempotencyTTL)
	guard := func(perm key.Permission, h http.HandlerFunc, extra ...func(http.Handler) http.Handler) http.Handler {
		var wrapped http.Handler = h
		for i := len(extra) - 1; i >= 0; i-- {
			wrapped = extra[i](wrapped)
		}
		return auth.RequirePermission(perm)(wrapped)
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.LoggingMiddleware)

	webhookLimiter := middleware.NewRateLimiter(rate.Limit(50), 100)
	hooksR := r.PathPrefix("/api/webhooks").Subrouter()
	hooksR.Use(webhookLimiter.Limit)
	hooksR.HandleFunc("/{provider}", webhookHandler.Receive).Methods("POST")

	apiLimiter := middleware.NewRateLimiter(rate.Limit(10), 20)

	keysR := r.PathPrefix("/api/keys").Subrouter()
	keysR.Use(apiLimiter.Limit)
	keysR.Use(auth.JWTMiddleware(cfg, userRepo))
	keysR.HandleFunc("", keyHandler.ListAPIKeys).Methods("GET")
	keysR.HandleFunc("/create", keyHandler.CreateAPIKey).Methods("POST")
	keysR.HandleFunc("/rollover", keyHandler.RolloverAPIKey).Methods("POST")
	keysR.HandleFunc("/revoke", keyHandler.RevokeAPIKey).Methods("POST")

	walletR := r.PathPrefix("/api/wallet").Subrouter()
	walletR.Use(apiLimiter.Limit)

	createR := walletR.PathPrefix("/create").Subrouter()
	createR.Use(auth.JWTMiddleware(cfg, userRepo))
	createR.HandleFunc("", walletHandler.CreateWallet).Methods("POST")

	opsR := walletR.PathPrefix("").Subrouter()
	opsR.Use(auth.UnifiedAuthMiddleware(cfg, userRepo, keyRepo))
	opsR.Handle("", guard(key.PermissionRead, walletHandler.GetWallet)).Methods("GET")
	opsR.Handle("/balance", guard(key.PermissionRead, walletHandler.GetWalletBalance)).Methods("GET")
	opsR.Handle("/transactions", guard(key.PermissionRead, walletHandler.GetTransactions)).Methods("GET")
	opsR.Handle("/payout", guard(key.PermissionPayout, payoutHandler.Payout, idem)).Methods("POST")

	ordersR := r.PathPrefix("/api/orders").Subrouter()
	ordersR.Use(apiLimiter.Limit)
	ordersR.Use(auth.UnifiedAuthMiddleware(cfg, userRepo, keyRepo))
	ordersR.Handle("/{id}/refunds", guard(key.PermissionRefund, refundHandler.CreateRefund, idem)).Methods("POST")
	ordersR.Handle("/{id}/refunds", guard(key.PermissionRead, refundHandler.ListRefunds)).Methods("GET")

	if cfg.Env != "production" {

		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.Fields{"error": err.Error()})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			modifiedContent := strings.ReplaceAll(string(content), "{{BASE_URL}}", "/")
			modifiedContent = strings.ReplaceAll(modifiedContent, "{{MIN_TRANSACTION_AMOUNT}}", fmt.Sprintf("%d", cfg.MinTransactionAmount))

			w.Header().Set("Content-Type", "application/yaml")
			w.Write([]byte(modifiedContent))
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", auth.APIKeyHeader, idempotency.HeaderKey, middleware.RequestIDHeader}),
	)

	return corsObj(r)
}
