package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"dealflow/internal/platform/models"
)

// SubscriptionLister returns a user's active subscriptions.
type SubscriptionLister interface {
	ListActiveByUser(ctx context.Context, userID string) ([]*models.Webhook, error)
}

// Dispatcher fans CRM events out to matching subscriptions. Trigger never blocks the caller
// and never surfaces an error to it.
type Dispatcher struct {
	subs   SubscriptionLister
	pool   Submitter
	worker *Worker
	clock  clockwork.Clock
	log    zerolog.Logger

	lookupTimeout time.Duration
}

func NewDispatcher(subs SubscriptionLister, pool Submitter, worker *Worker, clock clockwork.Clock, log zerolog.Logger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		subs:          subs,
		pool:          pool,
		worker:        worker,
		clock:         clock,
		log:           log.With().Str("component", "webhook_dispatcher").Logger(),
		lookupTimeout: 5 * time.Second,
	}
}

// Trigger notifies userID's subscribers of event. data is serialized as-is.
func (d *Dispatcher) Trigger(userID, event, entity, entityID, action string, data any) {
	env := Envelope{
		Event:     event,
		Entity:    entity,
		EntityID:  entityID,
		Action:    action,
		Data:      data,
		Timestamp: FormatTimestamp(d.clock.Now()),
	}

	err := d.pool.Submit("webhook dispatch", func(ctx context.Context) {
		d.dispatch(ctx, userID, env)
	})
	if err != nil {
		d.log.Error().Err(err).Str("event", env.Event).Str("user_id", userID).Msg("failed to queue webhook dispatch")
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, userID string, env Envelope) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	subs, err := d.subs.ListActiveByUser(lookupCtx, userID)
	cancel()
	if err != nil {
		d.log.Error().Err(err).Str("event", env.Event).Str("user_id", userID).Msg("failed to load webhook subscriptions")
		return
	}

	var matched []*models.Webhook
	for _, sub := range subs {
		if sub.Active && sub.Subscribes(env.Event) {
			matched = append(matched, sub)
		}
	}
	if len(matched) == 0 {
		return
	}

	payload, err := json.Marshal(env)
	if err != nil {
		d.log.Error().Err(err).Str("event", env.Event).Msg("failed to encode webhook payload")
		return
	}

	for _, sub := range matched {
		id := d.worker.Start(sub, env.Event, payload)
		d.log.Debug().
			Str("delivery_id", id).
			Str("webhook_id", sub.ID).
			Str("event", env.Event).
			Msg("webhook delivery queued")
	}
}
