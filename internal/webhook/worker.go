package webhook

import (
	"context"
	"time"

	"github.com/zjoart/go-paystack-settlement/pkg/logger"
)

// RetryWorker re-runs failed webhook events. Jobs claimed from the Redis
// schedule are handled first; the database sweep then catches anything Redis
// lost and any event whose processing died before it could be marked.
type RetryWorker struct {
	Processor *Processor
	Store     Store
	Interval  time.Duration
	StaleAge  time.Duration
	BatchSize int
}

func NewRetryWorker(p *Processor, store Store, interval time.Duration) *RetryWorker {
	return &RetryWorker{
		Processor: p,
		Store:     store,
		Interval:  interval,
		StaleAge:  5 * time.Minute,
		BatchSize: 50,
	}
}

func (w *RetryWorker) Start(ctx context.Context) {
	logger.Info("Starting webhook retry worker...", logger.Fields{"interval": w.Interval.String()})
	go w.run(ctx)
}

func (w *RetryWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Webhook retry worker stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one claim-and-sweep round and reports how many events were retried.
func (w *RetryWorker) Tick(ctx context.Context) int {
	now := w.Processor.Now().UTC()
	seen := make(map[string]bool)
	retried := 0

	if w.Processor.Queue != nil {
		jobs, err := w.Processor.Queue.ClaimDueRetries(ctx, now, int64(w.BatchSize))
		if err != nil {
			logger.Warn("RetryWorker: Failed to claim retries from redis", logger.WithError(err))
		}
		for _, job := range jobs {
			seen[job.EventID.String()] = true
			w.retry(ctx, job.EventID.String(), func() (*Ack, error) {
				return w.Processor.Reprocess(ctx, job.EventID)
			})
			retried++
		}
	}

	due, err := w.Store.ListDueForRetry(ctx, now, now.Add(-w.StaleAge), w.BatchSize)
	if err != nil {
		logger.Error("RetryWorker: Failed to list due events", logger.WithError(err))
		return retried
	}
	for _, evt := range due {
		if seen[evt.ID.String()] {
			continue
		}
		id := evt.ID
		w.retry(ctx, id.String(), func() (*Ack, error) {
			return w.Processor.Reprocess(ctx, id)
		})
		retried++
	}

	return retried
}

func (w *RetryWorker) retry(ctx context.Context, id string, run func() (*Ack, error)) {
	if ctx.Err() != nil {
		return
	}
	ack, err := run()
	if err != nil {
		logger.Error("RetryWorker: Reprocess failed", logger.Merge(logger.WithError(err), logger.Fields{"webhook_event_id": id}))
		return
	}
	logger.Info("RetryWorker: Event retried", logger.Fields{
		"webhook_event_id": id,
		"status":           ack.Status,
		"message":          ack.Message,
	})
}
