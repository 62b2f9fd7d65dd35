package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
)

type EventType string

const (
	SettlementCompleted EventType = "settlement.completed"
	SettlementSplit     EventType = "settlement.split_recorded"
	SettlementFailed    EventType = "settlement.failed"
	PaymentFailed       EventType = "payment.failed"
	RefundCompleted     EventType = "refund.completed"
	RefundPendingPayout EventType = "refund.pending_payout"
	PayoutInitiated     EventType = "payout.initiated"
	PayoutReversed      EventType = "payout.reversed"
	PayoutUnconfirmed   EventType = "payout.unconfirmed"
)

type Event struct {
	Type           EventType `json:"event_type"`
	OrderID        uuid.UUID `json:"order_id,omitempty"`
	MerchantUserID uuid.UUID `json:"merchant_user_id,omitempty"`
	Reference      string    `json:"reference"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency,omitempty"`
	Mode           string    `json:"mode,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	At             time.Time `json:"at"`
}

// Key partitions events so one order's events stay ordered.
func (e Event) Key() string {
	if e.OrderID != uuid.Nil {
		return e.OrderID.String()
	}
	return e.Reference
}

func (e Event) marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	return data, nil
}

type Notifier interface {
	Notify(ctx context.Context, evt Event) error
	Close() error
}

type noop struct{}

func Noop() Notifier { return noop{} }

func (noop) Notify(context.Context, Event) error { return nil }
func (noop) Close() error                        { return nil }

// Dispatcher delivers events in the background once the caller's transaction
// has committed. Delivery failures are logged and dropped.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	if n == nil {
		n = Noop()
	}
	return &Dispatcher{notifier: n, timeout: timeout}
}

func (d *Dispatcher) Dispatch(evt Event) {
	if d == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, evt); err != nil {
			logger.Warn("Failed to deliver notification", logger.Merge(logger.WithError(err), logger.Fields{
				"event_type":        evt.Type,
				logger.ReferenceKey: evt.Reference,
			}))
		}
	}()
}

// Close waits for in-flight deliveries and closes the backend.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	return d.notifier.Close()
}
