package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
)

const (
	RetryQueue        = "webhook_retry_events"
	FailedQueue       = "failed_webhook_events"
	SettlementChannel = "settlement_events"
)

type RedisClient struct {
	Client *redis.Client
}

// RetryJob points the retry worker at a stored webhook event.
type RetryJob struct {
	EventID   uuid.UUID `json:"event_id"`
	Provider  string    `json:"provider"`
	Reference string    `json:"reference"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRedisClient(cfg config.Config) *RedisClient {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to parse Redis url", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})
		opt = &redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		}
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})
	} else {
		logger.Info("Connected to Redis", logger.Fields{"url": cfg.RedisURL})
	}

	return &RedisClient{Client: rdb}
}

// ScheduleRetry adds job to the retry set, scored by the time it becomes due.
func (r *RedisClient) ScheduleRetry(ctx context.Context, job RetryJob, at time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal retry job: %w", err)
	}

	if err := r.Client.ZAdd(ctx, RetryQueue, redis.Z{Score: float64(at.Unix()), Member: data}).Err(); err != nil {
		return fmt.Errorf("failed to schedule retry job in redis: %w", err)
	}

	return nil
}

// ClaimDueRetries returns up to limit jobs due at now. A job is returned to
// exactly one caller: the one whose ZREM removed it.
func (r *RedisClient) ClaimDueRetries(ctx context.Context, now time.Time, limit int64) ([]RetryJob, error) {
	members, err := r.Client.ZRangeByScore(ctx, RetryQueue, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}

	var jobs []RetryJob
	for _, m := range members {
		removed, err := r.Client.ZRem(ctx, RetryQueue, m).Result()
		if err != nil {
			return jobs, err
		}
		if removed == 0 {
			continue
		}

		var job RetryJob
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			r.parkUnreadable(ctx, m, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *RedisClient) parkUnreadable(ctx context.Context, member string, cause error) {
	fields := logger.Fields{"data": member}
	logger.Error("Dropping unreadable retry job", logger.Merge(fields, logger.WithError(cause)))
	if err := r.PushToDLQ(ctx, []byte(member)); err != nil {
		logger.Error("Failed to push unreadable retry job to DLQ", logger.Merge(fields, logger.WithError(err)))
	}
}

func (r *RedisClient) PushToDLQ(ctx context.Context, data []byte) error {
	if err := r.Client.RPush(ctx, FailedQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to DLQ: %w", err)
	}
	return nil
}

func (r *RedisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.Client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}
