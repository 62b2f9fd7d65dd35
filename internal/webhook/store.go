package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEventNotFound = errors.New("webhook event not found")

type Receipt struct {
	Provider  string
	EventID   string
	EventType string
	Reference string
	Payload   []byte
}

type RecordResult struct {
	IsNew bool
	Event *Event
}

// RetryPolicy spaces retries exponentially from BaseDelay and gives up after
// MaxAttempts failed attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

const maxBackoffShift = 10

// Next returns when attempt number attempts+1 is due, or false once attempts
// has reached MaxAttempts.
func (p RetryPolicy) Next(attempts int, now time.Time) (time.Time, bool) {
	if attempts >= p.MaxAttempts {
		return time.Time{}, false
	}
	shift := attempts - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return now.Add(p.BaseDelay << shift), true
}

type Store interface {
	RecordIfNew(ctx context.Context, r Receipt) (*RecordResult, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, success bool, detail string) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string, policy RetryPolicy) (*Event, error)
	Get(ctx context.Context, id uuid.UUID) (*Event, error)
	ListDueForRetry(ctx context.Context, now, staleBefore time.Time, limit int) ([]Event, error)
}

type store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) Store {
	return &store{db: db, now: time.Now}
}

// RecordIfNew inserts the receipt unless (provider, event id) already exists.
// A duplicate is reported through IsNew=false, never as an error.
func (s *store) RecordIfNew(ctx context.Context, r Receipt) (*RecordResult, error) {
	evt := &Event{
		Provider:   r.Provider,
		EventID:    r.EventID,
		EventType:  r.EventType,
		Reference:  r.Reference,
		RawPayload: r.Payload,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(evt)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return &RecordResult{IsNew: true, Event: evt}, nil
	}

	var existing Event
	if err := s.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", r.Provider, r.EventID).
		First(&existing).Error; err != nil {
		return nil, err
	}
	return &RecordResult{IsNew: false, Event: &existing}, nil
}

// MarkProcessed closes the event. A failed close keeps detail for manual review.
func (s *store) MarkProcessed(ctx context.Context, id uuid.UUID, success bool, detail string) error {
	if !success && detail == "" {
		detail = "processing failed"
	}
	now := s.now().UTC()
	return s.db.WithContext(ctx).Model(&Event{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed":     true,
		"processed_at":  now,
		"error_detail":  detail,
		"next_retry_at": nil,
	}).Error
}

func (s *store) MarkFailed(ctx context.Context, id uuid.UUID, cause string, policy RetryPolicy) (*Event, error) {
	var evt Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&evt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		evt.AttemptCount++
		evt.ErrorDetail = cause
		evt.NextRetryAt = nil
		if next, ok := policy.Next(evt.AttemptCount, s.now().UTC()); ok {
			evt.NextRetryAt = &next
		} else {
			evt.DeadLettered = true
		}

		return tx.Model(&Event{}).Where("id = ?", id).Updates(map[string]interface{}{
			"attempt_count": evt.AttemptCount,
			"error_detail":  evt.ErrorDetail,
			"next_retry_at": evt.NextRetryAt,
			"dead_lettered": evt.DeadLettered,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &evt, nil
}

func (s *store) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	var evt Event
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&evt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &evt, nil
}

// ListDueForRetry returns open events whose retry time has passed, plus events
// that never reached MarkProcessed/MarkFailed and have not moved since staleBefore.
func (s *store) ListDueForRetry(ctx context.Context, now, staleBefore time.Time, limit int) ([]Event, error) {
	var evts []Event
	err := s.db.WithContext(ctx).
		Where("processed = ? AND dead_lettered = ?", false, false).
		Where(s.db.Where("next_retry_at <= ?", now).
			Or("next_retry_at IS NULL AND updated_at < ?", staleBefore)).
		Order("created_at asc").
		Limit(limit).
		Find(&evts).Error
	return evts, err
}
