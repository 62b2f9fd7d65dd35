package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/events"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (r *recordingNotifier) Notify(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recordingNotifier) Close() error {
	r.closed = true
	return nil
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, time.Second)

	d.Dispatch(Event{Type: SettlementCompleted, Reference: "STL-1"})
	d.Dispatch(Event{Type: RefundCompleted, Reference: "RFD-1"})
	require.NoError(t, d.Close())

	assert.Len(t, rec.events, 2)
	assert.True(t, rec.closed)
	for _, e := range rec.events {
		assert.False(t, e.At.IsZero())
	}
}

func TestDispatcherSwallowsBackendErrors(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("broker down")}
	d := NewDispatcher(rec, time.Second)

	assert.NotPanics(t, func() { d.Dispatch(Event{Type: SettlementFailed}) })
	require.NoError(t, d.Close())
	assert.Len(t, rec.events, 1)
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() { d.Dispatch(Event{Type: SettlementCompleted}) })
}

type fakePublisher struct {
	channel string
	payload []byte
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	f.channel, f.payload = channel, payload
	return nil
}

func TestRedisNotifierPublishesToSettlementChannel(t *testing.T) {
	pub := &fakePublisher{}
	n := &redisNotifier{client: pub}

	orderID := uuid.New()
	require.NoError(t, n.Notify(context.Background(), Event{Type: SettlementCompleted, OrderID: orderID, Amount: 4900}))

	assert.Equal(t, events.SettlementChannel, pub.channel)
	var got Event
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, orderID, got.OrderID)
	assert.Equal(t, int64(4900), got.Amount)
}

type fakeSNS struct {
	input *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	return &sns.PublishOutput{}, nil
}

func TestSNSNotifierSetsEventTypeAttribute(t *testing.T) {
	client := &fakeSNS{}
	n := &snsNotifier{client: client, topicARN: "arn:aws:sns:eu-west-1:123:settlements"}

	require.NoError(t, n.Notify(context.Background(), Event{Type: PaymentFailed, Reference: "QKY-1"}))

	require.NotNil(t, client.input)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:settlements", *client.input.TopicArn)
	assert.Equal(t, string(PaymentFailed), *client.input.MessageAttributes["event_type"].StringValue)
	assert.Contains(t, *client.input.Message, `"reference":"QKY-1"`)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierKeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	n := &kafkaNotifier{writer: w}
	orderID := uuid.New()

	require.NoError(t, n.Notify(context.Background(), Event{Type: SettlementCompleted, OrderID: orderID}))
	require.NoError(t, n.Notify(context.Background(), Event{Type: PayoutInitiated, Reference: "PYT-1"}))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, orderID.String(), string(w.msgs[0].Key))
	assert.Equal(t, "PYT-1", string(w.msgs[1].Key))
}

func TestNewSelectsBackend(t *testing.T) {
	n, err := New(context.Background(), config.Config{Notify: config.Notify{Backend: "none"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, Noop(), n)

	_, err = New(context.Background(), config.Config{Notify: config.Notify{Backend: "redis"}}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), config.Config{Notify: config.Notify{Backend: "kafka"}}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), config.Config{Notify: config.Notify{Backend: "pigeon"}}, nil)
	assert.Error(t, err)
}
