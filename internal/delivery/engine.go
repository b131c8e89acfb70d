package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lone-cloud/washbell/internal/config"
	"github.com/lone-cloud/washbell/internal/notification"
	"github.com/lone-cloud/washbell/internal/subscription"
	"github.com/lone-cloud/washbell/internal/util"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// Result counts one broadcast. Sent+Failed == 0 means nobody was subscribed.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Pruned int `json:"pruned"`
}

func (r Result) Empty() bool {
	return r.Sent == 0 && r.Failed == 0
}

type outcome struct {
	sub subscription.Subscription
	err error
}

// Engine broadcasts a payload to every stored subscription and drops the ones
// that failed.
type Engine struct {
	store       subscription.Store
	transport   Transport
	logger      *slog.Logger
	prunePolicy string
	concurrency int
}

func NewEngine(store subscription.Store, transport Transport, cfg *config.Config, logger *slog.Logger) *Engine {
	concurrency := cfg.DeliveryConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		store:       store,
		transport:   transport,
		logger:      logger,
		prunePolicy: cfg.PrunePolicy,
		concurrency: concurrency,
	}
}

func (e *Engine) Deliver(ctx context.Context, payload notification.Payload) (Result, error) {
	if err := e.transport.Ready(); err != nil {
		return Result{}, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal notification: %w", err)
	}
	msg := Message{Payload: data, Topic: payload.Tag}

	subs, err := e.store.List(ctx)
	if err != nil {
		return Result{}, util.LogError(e.logger, "Failed to list subscriptions", err)
	}

	if len(subs) == 0 {
		e.logger.Info("No subscriptions, dropping notification", "tag", payload.Tag)
		return Result{}, nil
	}

	// Attempts and pruning outlive the caller; DELIVERY_TIMEOUT bounds each attempt.
	sendCtx := context.WithoutCancel(ctx)

	p := pool.NewWithResults[outcome]().WithMaxGoroutines(e.concurrency)
	for _, sub := range subs {
		sub := sub
		p.Go(func() outcome {
			return e.attempt(sendCtx, sub, msg)
		})
	}
	outcomes := p.Wait()

	var res Result
	var prune []subscription.Subscription
	for _, o := range outcomes {
		if o.err == nil {
			res.Sent++
			continue
		}

		res.Failed++
		permanent := IsPermanent(o.err)
		e.logger.Warn("Push delivery failed",
			"id", o.sub.ID,
			"endpoint", util.ShortEndpoint(o.sub.Endpoint),
			"permanent", permanent,
			"error", o.err)

		if e.shouldPrune(o.err) {
			prune = append(prune, o.sub)
		}
	}

	res.Pruned = e.prune(sendCtx, prune)

	e.logger.Info("Delivered notification", "tag", payload.Tag, "sent", res.Sent, "failed", res.Failed, "pruned", res.Pruned)
	return res, nil
}

func (e *Engine) attempt(ctx context.Context, sub subscription.Subscription, msg Message) outcome {
	var err error
	if recovered := panics.Try(func() {
		err = e.transport.Send(ctx, sub, msg)
	}); recovered != nil {
		err = recovered.AsError()
	}
	return outcome{sub: sub, err: err}
}

func (e *Engine) shouldPrune(err error) bool {
	if e.prunePolicy == config.PrunePolicyGone {
		return IsPermanent(err)
	}
	return true
}

// prune removes by endpoint, never by position in the attempt list.
func (e *Engine) prune(ctx context.Context, subs []subscription.Subscription) int {
	removed := 0
	for _, sub := range subs {
		if err := e.store.Remove(ctx, sub.Endpoint); err != nil {
			e.logger.Error("Failed to remove failed subscription", "id", sub.ID, "endpoint", util.ShortEndpoint(sub.Endpoint), "error", err)
			continue
		}
		removed++
	}
	return removed
}
