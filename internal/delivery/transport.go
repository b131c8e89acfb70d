package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lone-cloud/washbell/internal/config"
	"github.com/lone-cloud/washbell/internal/subscription"
	"github.com/lone-cloud/washbell/internal/util"

	webpush "github.com/SherClockHolmes/webpush-go"
)

type Message struct {
	Payload []byte
	// Topic lets the push service replace an undelivered message with the same topic.
	Topic string
}

type Transport interface {
	// Ready reports whether the transport can send at all.
	Ready() error
	Send(ctx context.Context, sub subscription.Subscription, msg Message) error
}

type WebPushTransport struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
	timeout    time.Duration
	client     webpush.HTTPClient
	logger     *slog.Logger
}

func NewWebPushTransport(cfg *config.Config, logger *slog.Logger) *WebPushTransport {
	return &WebPushTransport{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		// webpush-go adds the mailto: scheme itself unless the subject is an https URL
		subscriber: strings.TrimPrefix(cfg.VAPIDSubject, "mailto:"),
		ttl:        cfg.PushTTL,
		timeout:    cfg.DeliveryTimeout,
		client:     &http.Client{},
		logger:     logger,
	}
}

func (t *WebPushTransport) Ready() error {
	if t.publicKey == "" || t.privateKey == "" {
		return ErrVAPIDNotConfigured
	}
	return nil
}

func (t *WebPushTransport) Send(ctx context.Context, sub subscription.Subscription, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, msg.Payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      t.client,
		Subscriber:      t.subscriber,
		VAPIDPublicKey:  t.publicKey,
		VAPIDPrivateKey: t.privateKey,
		TTL:             t.ttl,
		Urgency:         webpush.UrgencyHigh,
		Topic:           msg.Topic,
	})
	if err != nil {
		return fmt.Errorf("failed to send webpush: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10)) //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return NewPermanentError(fmt.Errorf("push endpoint gone: status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("webpush returned status %d", resp.StatusCode)
	}

	t.logger.Debug("Sent webpush notification", "id", sub.ID, "endpoint", util.ShortEndpoint(sub.Endpoint), "status", resp.StatusCode)
	return nil
}
