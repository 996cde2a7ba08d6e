package webhooks

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dealflow/internal/platform/models"
	"dealflow/internal/workers"
)

type sentRequest struct {
	at     time.Time
	url    string
	header http.Header
	body   []byte
}

// fakeSender answers with statuses in order; 0 simulates a transport failure.
// Once statuses run out it answers 500.
type fakeSender struct {
	clock    clockwork.Clock
	statuses []int

	mu    sync.Mutex
	calls []sentRequest
}

func (f *fakeSender) Send(ctx context.Context, url string, header http.Header, body []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := len(f.calls)
	f.calls = append(f.calls, sentRequest{at: f.clock.Now(), url: url, header: header.Clone(), body: body})

	status := http.StatusInternalServerError
	if idx < len(f.statuses) {
		status = f.statuses[idx]
	}
	if status == 0 {
		return 0, errors.New("connection refused")
	}
	return status, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSender) requests() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRequest(nil), f.calls...)
}

func newTestPool(t *testing.T) *workers.Pool {
	t.Helper()
	pool := workers.NewPool(4, zerolog.Nop())
	t.Cleanup(func() { pool.Shutdown(time.Second) })
	return pool
}

func testWebhook(id string, events ...string) *models.Webhook {
	return &models.Webhook{
		ID:     id,
		UserID: "usr_1",
		URL:    "https://hooks.example.com/" + id,
		Events: events,
		Secret: "whsec_test",
		Active: true,
	}
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for delivery result")
		return Result{}
	}
}
