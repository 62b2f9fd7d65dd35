package webhook

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is the permanent record of one provider delivery. (Provider, EventID)
// is unique; rows are never deleted. RawPayload holds the exact signed bytes.
type Event struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Provider     string         `gorm:"not null;uniqueIndex:idx_webhook_events_provider_event" json:"provider"`
	EventID      string         `gorm:"not null;uniqueIndex:idx_webhook_events_provider_event" json:"event_id"`
	EventType    string         `gorm:"not null" json:"event_type"`
	Reference    string         `gorm:"index" json:"reference"`
	RawPayload   []byte         `gorm:"type:bytea" json:"-"`
	Processed    bool           `gorm:"not null;default:false" json:"processed"`
	ErrorDetail  string         `json:"error_detail,omitempty"`
	AttemptCount int            `gorm:"not null;default:0" json:"attempt_count"`
	NextRetryAt  *time.Time     `gorm:"index" json:"next_retry_at,omitempty"`
	DeadLettered bool           `gorm:"not null;default:false" json:"dead_lettered"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Event) TableName() string {
	return "webhook_events"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
