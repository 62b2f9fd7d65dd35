package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/pkg/utils"
)

type memoryStore struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	locks    map[string]bool
	failGet  bool
	released int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: map[string]*Entry{}, locks: map[string]bool{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("redis: connection refused")
	}
	return m.entries[key], nil
}

func (m *memoryStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memoryStore) Save(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	delete(m.locks, key)
	return nil
}

func (m *memoryStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	m.released++
	return nil
}

var testUser = user.User{ID: uuid.MustParse("0d6b2b1e-4a7c-4c1f-9f62-3c1c5c0b7a10")}

func request(body, idemKey string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/orders/1/refunds", strings.NewReader(body))
	if idemKey != "" {
		req.Header.Set(HeaderKey, idemKey)
	}
	return req.WithContext(context.WithValue(req.Context(), utils.UserKey, testUser))
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		utils.BuildSuccessResponse(w, status, "Refund processed", map[string]int{"call": *calls})
	})
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Middleware(store, time.Hour)(countingHandler(&calls, http.StatusCreated))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, request(`{"amount":100}`, "key-1"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, request(`{"amount":100}`, "key-1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestMiddlewareWithoutHeaderPassesThrough(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Middleware(store, time.Hour)(countingHandler(&calls, http.StatusOK))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request(`{}`, ""))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestMiddlewareRejectsDifferentBody(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Middleware(store, time.Hour)(countingHandler(&calls, http.StatusCreated))

	h.ServeHTTP(httptest.NewRecorder(), request(`{"amount":100}`, "key-2"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(`{"amount":999}`, "key-2"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddlewareInFlightDuplicateConflicts(t *testing.T) {
	store := newMemoryStore()
	store.locks[cacheKey(testUser.ID.String(), http.MethodPost, "/api/orders/1/refunds", "key-3")] = true
	calls := 0
	h := Middleware(store, time.Hour)(countingHandler(&calls, http.StatusCreated))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(`{}`, "key-3"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, calls)
}

func TestMiddlewareServerErrorIsNotCached(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Middleware(store, time.Hour)(countingHandler(&calls, http.StatusInternalServerError))

	h.ServeHTTP(httptest.NewRecorder(), request(`{}`, "key-4"))
	h.ServeHTTP(httptest.NewRecorder(), request(`{}`, "key-4"))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, store.released)
	assert.Empty(t, store.entries)
}

func TestMiddlewareClientErrorIsCached(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Middleware(store, time.Hour)(countingHandler(&calls, http.StatusUnprocessableEntity))

	h.ServeHTTP(httptest.NewRecorder(), request(`{}`, "key-5"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(`{}`, "key-5"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMiddlewareKeysAreScopedPerUser(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Middleware(store, time.Hour)(countingHandler(&calls, http.StatusCreated))

	h.ServeHTTP(httptest.NewRecorder(), request(`{}`, "shared"))

	other := user.User{ID: uuid.New()}
	req := request(`{}`, "shared")
	req = req.WithContext(context.WithValue(req.Context(), utils.UserKey, other))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 2, calls)
}

func TestMiddlewareFailsClosed(t *testing.T) {
	store := newMemoryStore()
	store.failGet = true
	calls := 0
	h := Middleware(store, time.Hour)(countingHandler(&calls, http.StatusCreated))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(`{}`, "key-6"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, calls)
}

func TestMiddlewareFailsClosedWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	calls := 0
	h := Middleware(NewRedisStore(client), time.Hour)(countingHandler(&calls, http.StatusCreated))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(`{}`, "key-7"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, calls)
}

func TestMiddlewareRequiresUser(t *testing.T) {
	calls := 0
	h := Middleware(newMemoryStore(), time.Hour)(countingHandler(&calls, http.StatusCreated))

	req := httptest.NewRequest(http.MethodPost, "/api/orders/1/refunds", strings.NewReader(`{}`))
	req.Header.Set(HeaderKey, "key-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
