package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lone-cloud/washbell/internal/util"

	"github.com/oklog/ulid/v2"
)

var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrMissingEndpoint     = errors.New("endpoint is required")
)

// Request is the PushSubscription JSON a browser produces via toJSON().
type Request struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

// Service is the registration front of a Store: it validates and normalizes
// browser subscriptions before they are persisted.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) Subscribe(ctx context.Context, req Request) (Subscription, error) {
	sub, err := s.build(req)
	if err != nil {
		return Subscription{}, err
	}

	if err := s.store.Upsert(ctx, sub); err != nil {
		return Subscription{}, fmt.Errorf("failed to save subscription: %w", err)
	}

	// A known endpoint keeps its original row.
	stored, err := s.store.Get(ctx, sub.Endpoint)
	if err != nil {
		return Subscription{}, fmt.Errorf("failed to read subscription: %w", err)
	}

	if stored.ID != sub.ID {
		s.logger.Debug("Push subscription already registered", "id", stored.ID, "endpoint", util.ShortEndpoint(stored.Endpoint))
		return stored, nil
	}

	s.logger.Info("Registered push subscription", "id", stored.ID, "endpoint", util.ShortEndpoint(stored.Endpoint))
	return stored, nil
}

func (s *Service) build(req Request) (Subscription, error) {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" || strings.TrimSpace(req.Keys.P256dh) == "" || strings.TrimSpace(req.Keys.Auth) == "" {
		return Subscription{}, fmt.Errorf("%w: endpoint, keys.p256dh and keys.auth are required", ErrInvalidSubscription)
	}

	if err := validateEndpoint(endpoint); err != nil {
		return Subscription{}, fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}

	p256dh, err := normalizeP256DH(req.Keys.P256dh)
	if err != nil {
		return Subscription{}, fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}

	auth, err := normalizeAuthSecret(req.Keys.Auth)
	if err != nil {
		return Subscription{}, fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}

	now := s.now().UTC()
	return Subscription{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Endpoint:  endpoint,
		Keys:      Keys{P256dh: p256dh, Auth: auth},
		CreatedAt: now,
	}, nil
}

func (s *Service) Unsubscribe(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ErrMissingEndpoint
	}

	if err := s.store.Remove(ctx, endpoint); err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}

	s.logger.Info("Removed push subscription", "endpoint", util.ShortEndpoint(endpoint))
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}
