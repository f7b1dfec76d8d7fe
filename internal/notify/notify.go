// Package notify fans pipeline events out to operators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vmunix/grabarr/internal/config"
	"github.com/vmunix/grabarr/internal/events"
)

// watchedEvents are the event types operators care about.
var watchedEvents = []string{
	events.EventMatchCommitted,
	events.EventMatchAmbiguous,
	events.EventMatchFailed,
	events.EventOrganizeFailed,
	events.EventTaskFailed,
}

// Notifier logs notable pipeline events and optionally posts them to
// a webhook. Delivery is fire and forget.
type Notifier struct {
	cfg    config.NotifyConfig
	bus    *events.Bus
	client *http.Client
	log    *slog.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(cfg config.NotifyConfig, bus *events.Bus, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		cfg:    cfg,
		bus:    bus,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With("component", "notify"),
	}
}

// Run consumes watched events until the context ends.
func (n *Notifier) Run(ctx context.Context) error {
	channels := make([]<-chan events.Event, 0, len(watchedEvents))
	for _, t := range watchedEvents {
		channels = append(channels, n.bus.Subscribe(t, 16))
	}
	defer func() {
		for _, ch := range channels {
			n.bus.Unsubscribe(ch)
		}
	}()

	merged := make(chan events.Event, 16)
	for _, ch := range channels {
		go func(ch <-chan events.Event) {
			for e := range ch {
				select {
				case merged <- e:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-merged:
			n.notify(ctx, e)
		}
	}
}

func (n *Notifier) notify(ctx context.Context, e events.Event) {
	n.log.Info("pipeline event",
		"type", e.EventType(),
		"entity_type", e.EntityType(),
		"entity_id", e.EntityID())

	if n.cfg.WebhookURL == "" {
		return
	}

	body, err := json.Marshal(map[string]any{
		"type":        e.EventType(),
		"entity_type": e.EntityType(),
		"entity_id":   e.EntityID(),
		"occurred_at": e.OccurredAt(),
		"event":       e,
	})
	if err != nil {
		n.log.Error("marshal webhook payload failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		n.log.Error("build webhook request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("webhook delivery failed", "type", e.EventType(), "error", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Warn("webhook rejected", "type", e.EventType(), "status", resp.StatusCode)
	}
}
