package webhook

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWorkerTickRetriesDueEvents(t *testing.T) {
	h := newHarness(t, 5)
	h.settler.err = errors.New("timeout")

	ack := h.deliver(chargeBody(201, "success"))
	require.Equal(t, http.StatusInternalServerError, ack.Status)
	require.Len(t, h.queue.scheduled, 1)

	h.settler.err = nil
	w := NewRetryWorker(h.proc, h.store, time.Second)

	// nothing is due yet
	assert.Zero(t, w.Tick(context.Background()))

	h.proc.Now = func() time.Time { return storeNow.Add(time.Minute) }
	assert.Equal(t, 1, w.Tick(context.Background()))
	assert.Empty(t, h.queue.scheduled)

	evt, err := h.store.Get(context.Background(), ack.EventID)
	require.NoError(t, err)
	assert.True(t, evt.Processed)
	assert.Equal(t, 2, h.settler.callCount())

	assert.Zero(t, w.Tick(context.Background()))
}

func TestRetryWorkerSweepsWhenRedisLostTheJob(t *testing.T) {
	h := newHarness(t, 5)
	h.settler.err = errors.New("timeout")

	ack := h.deliver(chargeBody(202, "success"))
	require.Equal(t, http.StatusInternalServerError, ack.Status)
	h.queue.scheduled = nil

	h.settler.err = nil
	h.proc.Now = func() time.Time { return storeNow.Add(time.Minute) }
	w := NewRetryWorker(h.proc, h.store, time.Second)

	assert.Equal(t, 1, w.Tick(context.Background()))
	evt, err := h.store.Get(context.Background(), ack.EventID)
	require.NoError(t, err)
	assert.True(t, evt.Processed)
}

func TestRetryWorkerStopsOnCancel(t *testing.T) {
	h := newHarness(t, 5)
	w := NewRetryWorker(h.proc, h.store, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
