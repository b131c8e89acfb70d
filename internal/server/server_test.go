package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lone-cloud/washbell/internal/config"
	"github.com/lone-cloud/washbell/internal/delivery"
	"github.com/lone-cloud/washbell/internal/notification"
	"github.com/lone-cloud/washbell/internal/pushtest"
	"github.com/lone-cloud/washbell/internal/subscription"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyStore struct {
	subscription.Store
	lists atomic.Int32
	err   error
}

func (s *spyStore) Upsert(ctx context.Context, sub subscription.Subscription) error {
	if s.err != nil {
		return s.err
	}
	return s.Store.Upsert(ctx, sub)
}

func (s *spyStore) List(ctx context.Context) ([]subscription.Subscription, error) {
	s.lists.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.List(ctx)
}

func (s *spyStore) Count(ctx context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.Store.Count(ctx)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return &config.Config{
		Port:                8080,
		RateLimit:           1000,
		CORSOrigins:         []string{"*"},
		VAPIDPublicKey:      pub,
		VAPIDPrivateKey:     priv,
		VAPIDSubject:        "mailto:ops@example.com",
		PushTTL:             60,
		DeliveryTimeout:     2 * time.Second,
		DeliveryConcurrency: 4,
		PrunePolicy:         config.PrunePolicyAny,
		IconPath:            "/icons/icon-192x192.jpg",
	}
}

type harness struct {
	srv   *Server
	store *spyStore
	push  *pushtest.Service
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &spyStore{Store: subscription.NewMemoryStore()}
	transport := delivery.NewWebPushTransport(cfg, logger)
	composer := notification.NewComposer(notification.DefaultCatalog(), cfg.IconPath)
	return &harness{
		srv:   newServer(cfg, logger, "test", store, transport, composer),
		store: store,
		push:  pushtest.NewService(t),
	}
}

func (h *harness) do(t *testing.T, method, path string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (h *harness) subscribe(t *testing.T, name string) string {
	t.Helper()
	p256dh, auth := pushtest.Keys(t)
	endpoint := h.push.Endpoint(name)
	rec, _ := h.do(t, http.MethodPost, "/subscribe", map[string]any{
		"endpoint": endpoint,
		"keys":     map[string]string{"p256dh": p256dh, "auth": auth},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	return endpoint
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	n, err := h.store.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t, testConfig(t))

	p256dh, auth := pushtest.Keys(t)
	body := map[string]any{
		"endpoint": "https://fcm.googleapis.com/fcm/send/abc",
		"keys":     map[string]string{"p256dh": p256dh, "auth": auth},
	}

	rec, out := h.do(t, http.MethodPost, "/subscribe", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])

	rec, _ = h.do(t, http.MethodPost, "/subscribe", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.count(t))

	rec, out = h.do(t, http.MethodGet, "/subscribe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, out["count"])
}

func TestSubscribe_BadRequest(t *testing.T) {
	h := newHarness(t, testConfig(t))
	p256dh, auth := pushtest.Keys(t)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", `{"endpoint":`},
		{"missing endpoint", map[string]any{"keys": map[string]string{"p256dh": p256dh, "auth": auth}}},
		{"missing keys", map[string]any{"endpoint": "https://push.example/1"}},
		{"bad p256dh", map[string]any{"endpoint": "https://push.example/1", "keys": map[string]string{"p256dh": "AAAA", "auth": auth}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec, out := h.do(t, http.MethodPost, "/subscribe", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, out["error"])
		})
	}
	assert.Equal(t, 0, h.count(t))
}

func TestSubscribe_StorageFailure(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.store.err = errors.New("disk full")

	p256dh, auth := pushtest.Keys(t)
	rec, out := h.do(t, http.MethodPost, "/subscribe", map[string]any{
		"endpoint": "https://push.example/1",
		"keys":     map[string]string{"p256dh": p256dh, "auth": auth},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to save subscription", out["error"])

	rec, _ = h.do(t, http.MethodGet, "/subscribe", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t, testConfig(t))
	endpoint := h.subscribe(t, "a")

	for i := 0; i < 2; i++ {
		rec, out := h.do(t, http.MethodDelete, "/subscribe", map[string]string{"endpoint": endpoint})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, out["success"])
	}
	assert.Equal(t, 0, h.count(t))

	rec, _ := h.do(t, http.MethodDelete, "/subscribe", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotify_Drying(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.subscribe(t, "a")
	gone := h.subscribe(t, "b")
	h.subscribe(t, "c")
	h.push.Respond("b", http.StatusGone)

	rec, out := h.do(t, http.MethodPost, "/notify", map[string]string{"type": "drying"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["success"])
	assert.EqualValues(t, 2, out["sent"])
	assert.EqualValues(t, 1, out["failed"])
	assert.Equal(t, "Notification sent to 2 device(s)", out["message"])

	subs, err := h.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	for _, sub := range subs {
		assert.NotEqual(t, gone, sub.Endpoint)
	}

	for _, req := range h.push.Requests() {
		assert.Equal(t, "laundry-drying", req.Header.Get("Topic"))
	}
}

func TestNotify_CallerDisconnectKeepsSubscribers(t *testing.T) {
	h := newHarness(t, testConfig(t))
	for _, name := range []string{"a", "b", "c"} {
		h.subscribe(t, name)
	}
	h.push.Delay(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(`{"type":"washing"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, h.count(t))
	assert.Len(t, h.push.Requests(), 3)
}

func TestNotify_InvalidTypeBeforeStoreRead(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.subscribe(t, "a")

	for _, body := range []any{
		map[string]string{"type": "ironing"},
		map[string]string{},
		`not json`,
	} {
		rec, out := h.do(t, http.MethodPost, "/notify", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, out["error"])
	}
	assert.Zero(t, h.store.lists.Load())
	assert.Empty(t, h.push.Requests())
}

func TestNotify_NoSubscriptions(t *testing.T) {
	h := newHarness(t, testConfig(t))

	rec, out := h.do(t, http.MethodPost, "/notify", map[string]string{"type": "washing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No subscriptions found", out["error"])
	assert.Empty(t, h.push.Requests())
}

func TestNotify_VAPIDNotConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.VAPIDPrivateKey = ""
	h := newHarness(t, cfg)
	h.subscribe(t, "a")

	rec, out := h.do(t, http.MethodPost, "/notify", map[string]string{"type": "washing"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "VAPID keys not configured", out["error"])
	assert.Zero(t, h.store.lists.Load())

	rec, _ = h.do(t, http.MethodGet, "/vapid-public-key", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNotify_StorageFailure(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.store.err = errors.New("connection reset")

	rec, out := h.do(t, http.MethodPost, "/notify", map[string]string{"type": "washing"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to send notification", out["error"])
}

func TestNotify_APIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIKey = "s3cret"
	h := newHarness(t, cfg)
	h.subscribe(t, "a")

	rec, out := h.do(t, http.MethodPost, "/notify", map[string]string{"type": "washing"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", out["error"])

	rec, _ = h.do(t, http.MethodPost, "/notify", map[string]string{"type": "washing"}, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	// registration stays open to browsers
	h.subscribe(t, "b")
}

func TestHealthAndPublicKey(t *testing.T) {
	cfg := testConfig(t)
	h := newHarness(t, cfg)
	h.subscribe(t, "a")

	rec, out := h.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", out["version"])
	assert.EqualValues(t, 1, out["subscriptions"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec, out = h.do(t, http.MethodGet, "/vapid-public-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cfg.VAPIDPublicKey, out["publicKey"])
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, testConfig(t))

	req := httptest.NewRequest(http.MethodOptions, "/subscribe", nil)
	req.Header.Set("Origin", "https://laundry.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = 2
	h := newHarness(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		// forwarded headers must not exempt or re-key the caller
		rec, _ := h.do(t, http.MethodGet, "/subscribe", nil, "X-Real-IP", "127.0.0.1", "X-Forwarded-For", "10.0.0.1")
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
