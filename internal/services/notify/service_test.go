package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *tickClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestNotifier(t *testing.T, handler http.HandlerFunc) (*Service, *memKV, *tickClock, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	kv := newMemKV()
	clock := &tickClock{now: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)}
	svc := NewService(
		&common.WebhookConfig{Timeout: 5 * time.Second, AuthCooldown: 30 * time.Minute},
		kv, clock, arbor.NewLogger(),
	)
	return svc, kv, clock, server
}

func TestNotifyPostsPayload(t *testing.T) {
	var mu sync.Mutex
	var received map[string]interface{}
	svc, _, _, server := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	require.NoError(t, svc.SetWebhookURL(ctx, server.URL))

	svc.Notify(ctx, models.EventRunCompleted, models.NotificationPayload{
		"source":   "Acme",
		"profiles": 42,
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "run_completed", received["type"])
	assert.Equal(t, "venator", received["source"])
	data, _ := received["data"].(map[string]interface{})
	require.NotNil(t, data, "missing data payload: %v", received)
	assert.NotEmpty(t, data["message"])
}

func TestNotifyWithoutWebhookIsNoop(t *testing.T) {
	called := false
	svc, _, _, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	// No webhook configured: nothing should be sent, nothing should fail.
	svc.Notify(context.Background(), models.EventRunStarted, nil)
	assert.False(t, called, "notification sent without a configured webhook")
}

func TestAuthNotificationCooldown(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	svc, _, clock, server := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	require.NoError(t, svc.SetWebhookURL(ctx, server.URL))

	svc.Notify(ctx, models.EventAuthExpired, nil)
	svc.Notify(ctx, models.EventAuthExpired, nil) // inside cooldown, suppressed
	clock.Advance(31 * time.Minute)
	svc.Notify(ctx, models.EventAuthExpired, nil) // cooldown elapsed

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls, "auth notifications sent")
}

func TestNonAuthEventsIgnoreCooldown(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	svc, _, _, server := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	require.NoError(t, svc.SetWebhookURL(ctx, server.URL))

	svc.Notify(ctx, models.EventRunStarted, nil)
	svc.Notify(ctx, models.EventRunStarted, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestTestRequiresConfiguredWebhook(t *testing.T) {
	svc, _, _, server := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	assert.Error(t, svc.Test(ctx), "Test without webhook must fail")

	require.NoError(t, svc.SetWebhookURL(ctx, server.URL))
	assert.NoError(t, svc.Test(ctx))
}
