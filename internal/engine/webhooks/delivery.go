package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"dealflow/internal/platform/metrics"
	"dealflow/internal/platform/models"
	"dealflow/internal/workers"
)

type State string

const (
	StatePending   State = "pending"
	StateDelivered State = "delivered"
	StateExhausted State = "exhausted"
	// StateDropped marks a delivery whose retry was discarded on shutdown.
	StateDropped State = "dropped"
)

const UserAgent = "dealflow-webhooks/1.0"

// DefaultRetrySchedule holds the waits before retries 1..5. Six attempts in total.
var DefaultRetrySchedule = []time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	6 * time.Hour,
}

// Delivery is one event bound for one subscription.
type Delivery struct {
	ID      string
	Webhook *models.Webhook
	Event   string
	Payload []byte

	// Attempt counts attempts already made.
	Attempt int
}

// Result is reported once per delivery when it leaves the pending state.
type Result struct {
	DeliveryID string
	WebhookID  string
	Event      string
	State      State
	Attempts   int
	StatusCode int
	Err        error
}

// Submitter runs background work. *workers.Pool satisfies it.
type Submitter interface {
	Submit(name string, fn workers.Task) error
	SubmitWithDrop(name string, fn workers.Task, dropped func(error)) error
}

type WorkerOptions struct {
	Schedule   []time.Duration
	Timeout    time.Duration
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics
	OnComplete func(Result)
}

// Worker drives each delivery through pending -> delivered | exhausted.
// Retries live only in process memory: a delivery still pending when the worker
// or its pool stops ends as dropped.
type Worker struct {
	pool       Submitter
	sender     Sender
	clock      clockwork.Clock
	schedule   []time.Duration
	timeout    time.Duration
	metrics    *metrics.Metrics
	onComplete func(Result)
	log        zerolog.Logger

	mu      sync.Mutex
	timers  map[string]pendingRetry
	stopped bool
}

type pendingRetry struct {
	timer    clockwork.Timer
	delivery *Delivery
}

func NewWorker(pool Submitter, sender Sender, log zerolog.Logger, opts WorkerOptions) *Worker {
	if opts.Schedule == nil {
		opts.Schedule = DefaultRetrySchedule
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	return &Worker{
		pool:       pool,
		sender:     sender,
		clock:      opts.Clock,
		schedule:   opts.Schedule,
		timeout:    opts.Timeout,
		metrics:    opts.Metrics,
		onComplete: opts.OnComplete,
		log:        log.With().Str("component", "webhook_worker").Logger(),
		timers:     make(map[string]pendingRetry),
	}
}

// Start queues the first attempt for webhook without blocking.
func (w *Worker) Start(webhook *models.Webhook, event string, payload []byte) string {
	d := &Delivery{
		ID:      "dlv_" + uuid.NewString(),
		Webhook: webhook,
		Event:   event,
		Payload: payload,
	}
	w.enqueue(d)
	return d.ID
}

func (w *Worker) enqueue(d *Delivery) {
	err := w.pool.SubmitWithDrop("webhook delivery", func(ctx context.Context) {
		if ctx.Err() != nil {
			w.drop(d, workers.ErrPoolClosed)
			return
		}
		w.attempt(ctx, d)
	}, func(err error) {
		w.drop(d, err)
	})
	if err != nil {
		w.drop(d, err)
	}
}

func (w *Worker) drop(d *Delivery, err error) {
	w.log.Error().Err(err).
		Str("delivery_id", d.ID).
		Str("webhook_id", d.Webhook.ID).
		Int("attempts", d.Attempt).
		Msg("webhook delivery dropped")
	w.finish(d, StateDropped, 0, err)
}

func (w *Worker) attempt(ctx context.Context, d *Delivery) {
	d.Attempt++

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("User-Agent", UserAgent)
	header.Set("X-Webhook-Event", d.Event)
	header.Set("X-Webhook-Delivery", d.ID)
	header.Set("X-Webhook-Signature", Sign(d.Webhook.Secret, d.Payload))

	attemptCtx, cancel := context.WithTimeout(ctx, w.timeout)
	status, err := w.sender.Send(attemptCtx, d.Webhook.URL, header, d.Payload)
	cancel()

	if err == nil && isSuccess(status) {
		w.metrics.WebhookAttempts.WithLabelValues("success").Inc()
		w.log.Info().
			Str("delivery_id", d.ID).
			Str("webhook_id", d.Webhook.ID).
			Str("event", d.Event).
			Int("status", status).
			Int("attempt", d.Attempt).
			Msg("webhook delivered")
		w.finish(d, StateDelivered, status, nil)
		return
	}

	if err == nil {
		w.metrics.WebhookAttempts.WithLabelValues("http_error").Inc()
		err = fmt.Errorf("unexpected status %d", status)
	} else {
		w.metrics.WebhookAttempts.WithLabelValues("transport_error").Inc()
	}

	if d.Attempt > len(w.schedule) {
		w.log.Error().Err(err).
			Str("delivery_id", d.ID).
			Str("webhook_id", d.Webhook.ID).
			Str("event", d.Event).
			Int("attempts", d.Attempt).
			Msg("webhook retries exhausted")
		w.finish(d, StateExhausted, status, err)
		return
	}

	delay := w.schedule[d.Attempt-1]
	w.log.Warn().Err(err).
		Str("delivery_id", d.ID).
		Str("webhook_id", d.Webhook.ID).
		Int("attempt", d.Attempt).
		Dur("retry_in", delay).
		Msg("webhook attempt failed, retry scheduled")
	w.scheduleRetry(d, delay)
}

func (w *Worker) scheduleRetry(d *Delivery, delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		w.log.Warn().Str("delivery_id", d.ID).Msg("worker stopped, retry not scheduled")
		go w.finish(d, StateDropped, 0, workers.ErrPoolClosed)
		return
	}

	w.metrics.WebhookRetries.Inc()
	timer := w.clock.AfterFunc(delay, func() {
		w.mu.Lock()
		_, live := w.timers[d.ID]
		delete(w.timers, d.ID)
		w.mu.Unlock()
		if !live {
			return
		}
		w.metrics.WebhookRetries.Dec()
		w.enqueue(d)
	})
	w.timers[d.ID] = pendingRetry{timer: timer, delivery: d}
}

func (w *Worker) finish(d *Delivery, state State, status int, err error) {
	w.metrics.WebhookDeliveries.WithLabelValues(string(state)).Inc()
	if w.onComplete == nil {
		return
	}
	w.onComplete(Result{
		DeliveryID: d.ID,
		WebhookID:  d.Webhook.ID,
		Event:      d.Event,
		State:      state,
		Attempts:   d.Attempt,
		StatusCode: status,
		Err:        err,
	})
}

// Pending returns the number of retries waiting on a timer.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// Stop cancels every scheduled retry, reports each cancelled delivery as dropped
// and returns how many there were.
func (w *Worker) Stop() int {
	w.mu.Lock()
	w.stopped = true
	cancelled := make([]*Delivery, 0, len(w.timers))
	for id, p := range w.timers {
		p.timer.Stop()
		delete(w.timers, id)
		cancelled = append(cancelled, p.delivery)
	}
	w.mu.Unlock()

	w.metrics.WebhookRetries.Sub(float64(len(cancelled)))
	if len(cancelled) > 0 {
		w.log.Warn().Int("dropped", len(cancelled)).Msg("discarding scheduled webhook retries on shutdown")
	}
	for _, d := range cancelled {
		w.finish(d, StateDropped, 0, workers.ErrPoolClosed)
	}
	return len(cancelled)
}
