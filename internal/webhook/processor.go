package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/go-paystack-settlement/internal/payment"
	"github.com/zjoart/go-paystack-settlement/internal/settlement"
	"github.com/zjoart/go-paystack-settlement/pkg/events"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
)

type Settler interface {
	SettleByReference(ctx context.Context, outcome payment.Outcome) (*settlement.Result, error)
}

// RetryQueue is the Redis side of retries: a due-time schedule and a dead letter list.
type RetryQueue interface {
	ScheduleRetry(ctx context.Context, job events.RetryJob, at time.Time) error
	ClaimDueRetries(ctx context.Context, now time.Time, limit int64) ([]events.RetryJob, error)
	PushToDLQ(ctx context.Context, data []byte) error
}

// Ack is what the provider gets back.
type Ack struct {
	Status    int
	Message   string
	EventID   uuid.UUID
	Duplicate bool
}

type Processor struct {
	Verifier *payment.Verifier
	Store    Store
	Settler  Settler
	Queue    RetryQueue
	Policy   RetryPolicy
	Timeout  time.Duration
	Now      func() time.Time
}

func NewProcessor(verifier *payment.Verifier, store Store, settler Settler, queue RetryQueue, policy RetryPolicy, timeout time.Duration) *Processor {
	return &Processor{
		Verifier: verifier,
		Store:    store,
		Settler:  settler,
		Queue:    queue,
		Policy:   policy,
		Timeout:  timeout,
		Now:      time.Now,
	}
}

// Receive runs one delivery through signature check, dedupe and settlement.
// Only a storage failure or a transient settlement failure asks the provider
// to redeliver.
func (p *Processor) Receive(ctx context.Context, provider payment.ProviderName, body []byte, signature string) *Ack {
	fields := logger.Fields{logger.ProviderKey: string(provider)}

	env, err := p.Verifier.Verify(provider, body, signature)
	switch {
	case errors.Is(err, payment.ErrUnknownProvider):
		return &Ack{Status: http.StatusNotFound, Message: "Unknown provider"}
	case errors.Is(err, payment.ErrInvalidSignature):
		logger.Warn("Webhook: Signature mismatch", logger.Merge(fields, logger.WithError(err)))
		return &Ack{Status: http.StatusUnauthorized, Message: "Invalid signature"}
	case errors.Is(err, payment.ErrMalformedPayload):
		return p.recordMalformed(ctx, provider, body, err)
	case err != nil:
		logger.Error("Webhook: Verification failed", logger.Merge(fields, logger.WithError(err)))
		return &Ack{Status: http.StatusInternalServerError, Message: "Verification failed"}
	}

	fields[logger.EventIDKey] = env.EventID
	fields[logger.ReferenceKey] = env.Reference

	rec, err := p.Store.RecordIfNew(ctx, Receipt{
		Provider:  string(provider),
		EventID:   env.EventID,
		EventType: env.EventType,
		Reference: env.Reference,
		Payload:   body,
	})
	if err != nil {
		logger.Error("Webhook: Failed to record event", logger.Merge(fields, logger.WithError(err)))
		return &Ack{Status: http.StatusInternalServerError, Message: "Failed to record event"}
	}

	if !rec.IsNew {
		if rec.Event.Processed || rec.Event.DeadLettered {
			logger.Info("Webhook: Duplicate delivery ignored", fields)
			return &Ack{Status: http.StatusOK, Message: "Already processed", EventID: rec.Event.ID, Duplicate: true}
		}
		logger.Info("Webhook: Redelivery of unfinished event, reprocessing", fields)
	} else {
		logger.Info("Webhook received", fields)
	}

	ack := p.process(ctx, rec.Event, env, fields)
	ack.Duplicate = !rec.IsNew
	return ack
}

// Reprocess re-runs a stored event from its raw payload. The signature was
// checked when the event was first received.
func (p *Processor) Reprocess(ctx context.Context, id uuid.UUID) (*Ack, error) {
	evt, err := p.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if evt.Processed || evt.DeadLettered {
		return &Ack{Status: http.StatusOK, Message: "Already processed", EventID: evt.ID, Duplicate: true}, nil
	}

	prov, err := p.Verifier.Registry.Get(payment.ProviderName(evt.Provider))
	if err != nil {
		return nil, err
	}
	env, err := prov.Parse(evt.RawPayload)
	if err != nil {
		if cerr := p.Store.MarkProcessed(ctx, evt.ID, false, err.Error()); cerr != nil {
			return nil, cerr
		}
		return &Ack{Status: http.StatusOK, Message: "Unreadable payload", EventID: evt.ID}, nil
	}

	fields := logger.Fields{
		logger.ProviderKey:  evt.Provider,
		logger.EventIDKey:   evt.EventID,
		logger.ReferenceKey: evt.Reference,
		"attempt":           evt.AttemptCount + 1,
	}
	return p.process(ctx, evt, env, fields), nil
}

func (p *Processor) process(ctx context.Context, evt *Event, env *payment.Envelope, fields logger.Fields) *Ack {
	if env.Outcome == nil {
		detail := fmt.Sprintf("event type %s carries no payment outcome", env.EventType)
		if err := p.Store.MarkProcessed(ctx, evt.ID, true, detail); err != nil {
			logger.Error("Webhook: Failed to close event", logger.Merge(fields, logger.WithError(err)))
		}
		return &Ack{Status: http.StatusOK, Message: "Event ignored", EventID: evt.ID}
	}

	settleCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		settleCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	res, err := p.Settler.SettleByReference(settleCtx, *env.Outcome)
	if err == nil {
		detail := ""
		if env.Outcome.UnknownStatus {
			detail = fmt.Sprintf("unknown provider status %q recorded as pending", env.Outcome.ProviderStatus)
			logger.Warn("Webhook: Unknown payment status, needs review", fields)
		}
		if err := p.Store.MarkProcessed(ctx, evt.ID, true, detail); err != nil {
			logger.Error("Webhook: Settled but failed to close event", logger.Merge(fields, logger.WithError(err)))
		}
		logger.Info("Webhook: Successfully processed event", logger.Merge(fields, logger.Fields{
			"payment_status":  string(res.PaymentStatus),
			"order_status":    string(res.OrderStatus),
			"already_settled": res.AlreadySettled,
		}))
		return &Ack{Status: http.StatusOK, Message: "Processed", EventID: evt.ID}
	}

	if settlement.IsPermanent(err) {
		logger.Warn("Webhook: Event cannot be applied, closing for review", logger.Merge(fields, logger.WithError(err)))
		if cerr := p.Store.MarkProcessed(ctx, evt.ID, false, err.Error()); cerr != nil {
			logger.Error("Webhook: Failed to close event", logger.Merge(fields, logger.WithError(cerr)))
		}
		return &Ack{Status: http.StatusOK, Message: "Recorded for review", EventID: evt.ID}
	}

	return p.retryLater(ctx, evt, err, fields)
}

func (p *Processor) retryLater(ctx context.Context, evt *Event, cause error, fields logger.Fields) *Ack {
	// the request context may already be done when settlement timed out
	ctx = context.WithoutCancel(ctx)

	updated, err := p.Store.MarkFailed(ctx, evt.ID, cause.Error(), p.Policy)
	if err != nil {
		logger.Error("Webhook: Failed to record failed attempt", logger.Merge(fields, logger.WithError(err)))
		return &Ack{Status: http.StatusInternalServerError, Message: "Processing failed", EventID: evt.ID}
	}

	job := events.RetryJob{
		EventID:   updated.ID,
		Provider:  updated.Provider,
		Reference: updated.Reference,
		Attempt:   updated.AttemptCount,
		Timestamp: p.Now().UTC(),
	}

	if updated.DeadLettered {
		logger.Error("Webhook: Max retries exhausted, moving to DLQ", logger.Merge(fields, logger.WithError(cause)))
		if p.Queue != nil {
			data, _ := json.Marshal(job)
			if err := p.Queue.PushToDLQ(ctx, data); err != nil {
				logger.Error("Webhook: Failed to push to DLQ", logger.Merge(fields, logger.WithError(err)))
			}
		}
		return &Ack{Status: http.StatusOK, Message: "Parked for manual review", EventID: evt.ID}
	}

	logger.Warn("Webhook: Failed to process event, retry scheduled", logger.Merge(fields, logger.WithError(cause), logger.Fields{
		"attempt":       updated.AttemptCount,
		"next_retry_at": updated.NextRetryAt,
	}))
	if p.Queue != nil && updated.NextRetryAt != nil {
		if err := p.Queue.ScheduleRetry(ctx, job, *updated.NextRetryAt); err != nil {
			logger.Warn("Webhook: Failed to schedule retry in redis, sweep will pick it up", logger.Merge(fields, logger.WithError(err)))
		}
	}
	return &Ack{Status: http.StatusInternalServerError, Message: "Processing failed, will retry", EventID: evt.ID}
}

// recordMalformed keeps a closed audit row for a correctly signed body that
// cannot be decoded, keyed by the body digest.
func (p *Processor) recordMalformed(ctx context.Context, provider payment.ProviderName, body []byte, cause error) *Ack {
	rec, err := p.Store.RecordIfNew(ctx, Receipt{
		Provider:  string(provider),
		EventID:   payment.Digest(body),
		EventType: "malformed",
		Payload:   body,
	})
	if err != nil {
		logger.Error("Webhook: Failed to record malformed event", logger.Fields{logger.ProviderKey: string(provider), logger.ErrorKey: err.Error()})
		return &Ack{Status: http.StatusInternalServerError, Message: "Failed to record event"}
	}
	if rec.IsNew {
		if err := p.Store.MarkProcessed(ctx, rec.Event.ID, false, cause.Error()); err != nil {
			logger.Error("Webhook: Failed to close event", logger.Fields{logger.ErrorKey: err.Error()})
		}
	}

	logger.Warn("Webhook: Malformed payload", logger.Fields{logger.ProviderKey: string(provider), logger.ErrorKey: cause.Error()})
	return &Ack{Status: http.StatusBadRequest, Message: "Malformed payload", EventID: rec.Event.ID, Duplicate: !rec.IsNew}
}
