package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type SettlementMode string

const (
	ModeMainBalance SettlementMode = "MAIN_BALANCE"
	ModeSubaccount  SettlementMode = "SUBACCOUNT"
)

type Settlement struct {
	Mode                  SettlementMode
	PlatformFeePercentage decimal.Decimal
	PlatformFeeMax        int64 // kobo, 0 means uncapped
	SettlementPercentage  decimal.Decimal
	CancelOnFailure       bool
}

type Webhook struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration
	ProcessTimeout time.Duration
}

type Notify struct {
	Backend      string
	SNSTopicArn  string
	KafkaBrokers []string
	KafkaTopic   string
	AWSRegion    string
}

type Config struct {
	DBUrl                string
	RedisURL             string
	RedisPassword        string
	JWTSecret            string
	PaystackSecret       string
	MonnifyClientSecret  string
	MinTransactionAmount int64
	MaxActiveKeys        int
	IdempotencyTTL       time.Duration
	Port                 string
	Host                 string
	Env                  string
	AllowedOrigins       []string

	Settlement Settlement
	Webhook    Webhook
	Notify     Notify
}

func LoadConfig() Config {
	godotenv.Load()

	minAmount, err := strconv.ParseInt(getEnv("MIN_TRANSACTION_AMOUNT"), 10, 64)
	if err != nil {
		panic("MIN_TRANSACTION_AMOUNT must be a valid integer")
	}

	maxKeys, err := strconv.Atoi(getEnvDefault("MAX_ACTIVE_KEYS", "5"))
	if err != nil {
		panic("MAX_ACTIVE_KEYS must be a valid integer")
	}

	return Config{
		DBUrl:                getEnv("DATABASE_URL"),
		RedisURL:             getEnv("REDIS_URL"),
		RedisPassword:        getEnvDefault("REDIS_PASSWORD", ""),
		JWTSecret:            getEnv("JWT_SECRET"),
		PaystackSecret:       getEnv("PAYSTACK_SECRET"),
		MonnifyClientSecret:  getEnvDefault("MONNIFY_CLIENT_SECRET", ""),
		MinTransactionAmount: minAmount,
		MaxActiveKeys:        maxKeys,
		IdempotencyTTL:       parseDuration("IDEMPOTENCY_TTL", "24h"),
		Port:                 getEnv("PORT"),
		Host:                 getEnv("HOST"),
		Env:                  getEnv("ENV"),
		AllowedOrigins:       strings.Split(getEnv("ALLOWED_ORIGINS"), ","),
		Settlement:           loadSettlement(),
		Webhook: Webhook{
			MaxAttempts:    parseInt("WEBHOOK_MAX_ATTEMPTS", "5"),
			RetryBaseDelay: parseDuration("WEBHOOK_RETRY_BASE_DELAY", "30s"),
			ProcessTimeout: parseDuration("WEBHOOK_PROCESS_TIMEOUT", "10s"),
		},
		Notify: Notify{
			Backend:      strings.ToLower(getEnvDefault("NOTIFY_BACKEND", "redis")),
			SNSTopicArn:  getEnvDefault("SNS_TOPIC_ARN", ""),
			KafkaBrokers: splitNonEmpty(getEnvDefault("KAFKA_BROKERS", "")),
			KafkaTopic:   getEnvDefault("KAFKA_TOPIC", "settlement-events"),
			AWSRegion:    getEnvDefault("AWS_REGION", "eu-west-1"),
		},
	}
}

// DatabaseURL loads only DATABASE_URL, for tools that need no other settings.
func DatabaseURL() string {
	godotenv.Load()
	return getEnv("DATABASE_URL")
}

func loadSettlement() Settlement {
	mode := SettlementMode(strings.ToUpper(getEnvDefault("SETTLEMENT_MODE", string(ModeMainBalance))))
	if mode != ModeMainBalance && mode != ModeSubaccount {
		panic(fmt.Sprintf("SETTLEMENT_MODE must be %s or %s", ModeMainBalance, ModeSubaccount))
	}

	feeMax, err := strconv.ParseInt(getEnvDefault("PLATFORM_FEE_MAX", "0"), 10, 64)
	if err != nil || feeMax < 0 {
		panic("PLATFORM_FEE_MAX must be a non-negative integer")
	}

	cancel, err := strconv.ParseBool(getEnvDefault("CANCEL_ON_PAYMENT_FAILURE", "true"))
	if err != nil {
		panic("CANCEL_ON_PAYMENT_FAILURE must be a boolean")
	}

	return Settlement{
		Mode:                  mode,
		PlatformFeePercentage: parsePercentage("PLATFORM_FEE_PERCENTAGE", "0"),
		PlatformFeeMax:        feeMax,
		SettlementPercentage:  parsePercentage("SETTLEMENT_PERCENTAGE", "100"),
		CancelOnFailure:       cancel,
	}
}

func parsePercentage(key, fallback string) decimal.Decimal {
	pct, err := decimal.NewFromString(getEnvDefault(key, fallback))
	if err != nil || pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		panic(fmt.Sprintf("%s must be a number between 0 and 100", key))
	}
	return pct
}

func parseDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnvDefault(key, fallback))
	if err != nil || d <= 0 {
		panic(fmt.Sprintf("%s must be a positive duration", key))
	}
	return d
}

func parseInt(key, fallback string) int {
	n, err := strconv.Atoi(getEnvDefault(key, fallback))
	if err != nil || n <= 0 {
		panic(fmt.Sprintf("%s must be a positive integer", key))
	}
	return n
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
