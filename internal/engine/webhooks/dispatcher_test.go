package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealflow/internal/platform/models"
)

type staticLister struct {
	subs []*models.Webhook
	err  error
}

func (s *staticLister) ListActiveByUser(ctx context.Context, userID string) ([]*models.Webhook, error) {
	return s.subs, s.err
}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 250*int(time.Millisecond), time.UTC)

func newTestDispatcher(t *testing.T, subs *staticLister, sender Sender) (*Dispatcher, func()) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(fixedNow)
	pool := newTestPool(t)
	worker := NewWorker(pool, sender, zerolog.Nop(), WorkerOptions{Clock: fc})
	return NewDispatcher(subs, pool, worker, fc, zerolog.Nop()), pool.Wait
}

func TestDispatcher_NoMatchingSubscription(t *testing.T) {
	sender := &fakeSender{clock: clockwork.NewFakeClock(), statuses: []int{200}}
	inactive := testWebhook("wh_2", "deal.created")
	inactive.Active = false

	d, wait := newTestDispatcher(t, &staticLister{subs: []*models.Webhook{
		testWebhook("wh_1", "deal.updated", "person.created"),
		inactive,
	}}, sender)

	d.Trigger("usr_1", "deal.created", EntityDeal, "deal_1", ActionCreated, map[string]string{"title": "Big"})
	wait()

	assert.Equal(t, 0, sender.count())
}

func TestDispatcher_OnlyMatchingSubscriptionReceives(t *testing.T) {
	sender := &fakeSender{clock: clockwork.NewFakeClock(), statuses: []int{200, 200}}
	d, wait := newTestDispatcher(t, &staticLister{subs: []*models.Webhook{
		testWebhook("wh_1", "deal.updated"),
		testWebhook("wh_2", "deal.created", "deal.deleted"),
	}}, sender)

	d.Trigger("usr_1", "deal.created", EntityDeal, "deal_1", ActionCreated, map[string]any{"title": "Big", "value": 1000})
	wait()

	reqs := sender.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://hooks.example.com/wh_2", reqs[0].url)

	var env map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].body, &env))
	assert.Equal(t, "deal.created", env["event"])
	assert.Equal(t, "deal", env["entity"])
	assert.Equal(t, "deal_1", env["entityId"])
	assert.Equal(t, "created", env["action"])
	assert.Equal(t, "2024-05-01T09:30:00.250Z", env["timestamp"])
	assert.Equal(t, map[string]any{"title": "Big", "value": float64(1000)}, env["data"])
}

func TestDispatcher_LookupFailureIsSwallowed(t *testing.T) {
	sender := &fakeSender{clock: clockwork.NewFakeClock()}
	d, wait := newTestDispatcher(t, &staticLister{err: errors.New("database is locked")}, sender)

	assert.NotPanics(t, func() {
		d.Trigger("usr_1", "deal.deleted", EntityDeal, "deal_1", ActionDeleted, nil)
	})
	wait()

	assert.Equal(t, 0, sender.count())
}

func TestDispatcher_EndToEndOverTLS(t *testing.T) {
	var (
		mu       sync.Mutex
		received []*http.Request
		bodies   [][]byte
	)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r)
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := testWebhook("wh_tls", "person.updated")
	hook.URL = srv.URL + "/crm-events"

	fc := clockwork.NewFakeClockAt(fixedNow)
	pool := newTestPool(t)
	worker := NewWorker(pool, NewHTTPSenderWithClient(srv.Client()), zerolog.Nop(), WorkerOptions{Clock: fc})
	d := NewDispatcher(&staticLister{subs: []*models.Webhook{hook}}, pool, worker, fc, zerolog.Nop())

	d.Trigger("usr_1", "person.updated", EntityPerson, "per_9", ActionUpdated, map[string]string{"name": "Grace"})
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)

	r := received[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/crm-events", r.URL.Path)
	assert.Equal(t, "person.updated", r.Header.Get("X-Webhook-Event"))
	assert.True(t, Verify(hook.Secret, bodies[0], r.Header.Get("X-Webhook-Signature")))

	var env Envelope
	require.NoError(t, json.Unmarshal(bodies[0], &env))
	assert.Equal(t, "per_9", env.EntityID)
}
