// Package pushtest provides browser-side key material and a fake push service
// for tests that exercise real Web Push encryption end to end.
package pushtest

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// Keys returns a fresh browser keypair encoded the way PushSubscription.toJSON
// does: raw base64url p256dh (uncompressed point) and 16-byte auth secret.
func Keys(t testing.TB) (p256dh, auth string) {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate p256dh: %v", err)
	}

	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate auth: %v", err)
	}

	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

// Service is an httptest push service. Every path is a distinct endpoint;
// paths registered with Respond answer with that status, others with 201.
type Service struct {
	*httptest.Server

	mu       sync.Mutex
	statuses map[string]int
	delay    time.Duration
	requests []*http.Request
}

func NewService(t testing.TB) *Service {
	t.Helper()

	s := &Service{statuses: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *Service) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	status, ok := s.statuses[r.URL.Path]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if !ok {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
}

// Endpoint returns the full URL for a named endpoint on this service.
func (s *Service) Endpoint(name string) string {
	return s.URL + "/push/" + strings.TrimPrefix(name, "/")
}

// Respond makes the named endpoint answer with status.
func (s *Service) Respond(name string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses["/push/"+strings.TrimPrefix(name, "/")] = status
}

// Delay makes every endpoint answer only after d.
func (s *Service) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Service) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}
