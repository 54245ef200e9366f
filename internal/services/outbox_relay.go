package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/repos"
)

// Subscriber consumes committed outbox events. Handle may be called more than
// once for the same event and must tolerate that.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, ev repos.OutboxEvent) error
}

// OutboxRelay delivers outbox events to every subscriber independently.
// A subscriber that fails is retried on the next pass; the others are not
// called again for that event.
type OutboxRelay struct {
	Outbox      *repos.OutboxRepo
	Subscribers []Subscriber
	Interval    time.Duration
	Batch       int
}

func NewOutboxRelay(outbox *repos.OutboxRepo, interval time.Duration, batch int, subs ...Subscriber) *OutboxRelay {
	return &OutboxRelay{Outbox: outbox, Subscribers: subs, Interval: interval, Batch: batch}
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			applog.Error(nil, "outbox.poll.fail", err, nil)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// RunOnce makes one pass over pending events and reports how many were fully published.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.Outbox.Pending(ctx, r.Batch)
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}
	published := 0
	for _, ev := range events {
		done, err := r.deliver(ctx, ev)
		if err != nil {
			return published, err
		}
		if done {
			if err := r.Outbox.MarkPublished(ctx, ev.ID); err != nil {
				return published, err
			}
			published++
		}
	}
	return published, nil
}

func (r *OutboxRelay) deliver(ctx context.Context, ev repos.OutboxEvent) (bool, error) {
	seen, err := r.Outbox.Delivered(ctx, ev.ID)
	if err != nil {
		return false, err
	}
	done := true
	for _, sub := range r.Subscribers {
		if seen[sub.Name()] {
			continue
		}
		if herr := sub.Handle(ctx, ev); herr != nil {
			done = false
			applog.Error(nil, "outbox.deliver.fail", herr, map[string]any{
				"event": ev.ID, "type": ev.Type, "subscriber": sub.Name(), "attempts": ev.Attempts + 1,
			})
			if err := r.Outbox.MarkFailed(ctx, ev.ID, fmt.Errorf("%s: %w", sub.Name(), herr)); err != nil {
				return false, err
			}
			continue
		}
		if err := r.Outbox.MarkDelivered(ctx, ev.ID, sub.Name()); err != nil {
			return false, err
		}
	}
	return done, nil
}

func decodeOrderCreated(ev repos.OutboxEvent) (domain.OrderCreated, bool, error) {
	if ev.Type != repos.EventOrderCreated {
		return domain.OrderCreated{}, false, nil
	}
	var oc domain.OrderCreated
	if err := json.Unmarshal([]byte(ev.Payload), &oc); err != nil {
		return domain.OrderCreated{}, false, fmt.Errorf("decode %s: %w", ev.ID, err)
	}
	return oc, true, nil
}

// NotificationSubscriber records the order confirmation that goes to the shopper.
type NotificationSubscriber struct{}

func (NotificationSubscriber) Name() string { return "notification" }

func (NotificationSubscriber) Handle(_ context.Context, ev repos.OutboxEvent) error {
	oc, ok, err := decodeOrderCreated(ev)
	if !ok || err != nil {
		return err
	}
	applog.Info(nil, "notify.order_confirmation", map[string]any{
		"order": oc.Number, "email": oc.Email, "total": oc.Total,
	})
	return nil
}

// FulfillmentSubscriber hands new orders to the warehouse queue.
type FulfillmentSubscriber struct{}

func (FulfillmentSubscriber) Name() string { return "fulfillment" }

func (FulfillmentSubscriber) Handle(_ context.Context, ev repos.OutboxEvent) error {
	oc, ok, err := decodeOrderCreated(ev)
	if !ok || err != nil {
		return err
	}
	units := 0
	for _, ln := range oc.Items {
		units += ln.Quantity
	}
	applog.Info(nil, "fulfillment.enqueue", map[string]any{
		"order": oc.Number, "lines": len(oc.Items), "units": units,
	})
	return nil
}
