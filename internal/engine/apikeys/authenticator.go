package apikeys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"dealflow/internal/platform/metrics"
	"dealflow/internal/platform/models"
	"dealflow/internal/workers"
)

// ErrUnauthorized covers malformed, unknown and deleted keys alike.
var ErrUnauthorized = errors.New("invalid api key")

type Identity struct {
	UserID string
	KeyID  string
}

type KeyLookup interface {
	GetActiveByHash(ctx context.Context, hash string) (*models.APIKey, error)
	UpdateLastUsed(ctx context.Context, id string, timestamp int64) error
}

type Submitter interface {
	Submit(name string, fn workers.Task) error
}

type Authenticator struct {
	store   KeyLookup
	prefix  string
	pool    Submitter
	clock   clockwork.Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewAuthenticator(store KeyLookup, prefix string, pool Submitter, clock clockwork.Clock, m *metrics.Metrics, log zerolog.Logger) *Authenticator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Authenticator{
		store:   store,
		prefix:  prefix,
		pool:    pool,
		clock:   clock,
		metrics: m,
		log:     log.With().Str("component", "apikey_auth").Logger(),
	}
}

// Authenticate resolves token to its owner. Store failures are returned as-is, not as ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if !strings.HasPrefix(token, a.prefix) {
		a.metrics.AuthFailures.Inc()
		return nil, ErrUnauthorized
	}

	key, err := a.store.GetActiveByHash(ctx, HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if key == nil {
		a.metrics.AuthFailures.Inc()
		return nil, ErrUnauthorized
	}

	a.touch(key.ID)

	return &Identity{UserID: key.UserID, KeyID: key.ID}, nil
}

// touch records last use off the request path. Concurrent updates race; last write wins.
func (a *Authenticator) touch(keyID string) {
	usedAt := a.clock.Now().Unix()
	err := a.pool.Submit("api key last used", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.store.UpdateLastUsed(ctx, keyID, usedAt); err != nil {
			a.log.Warn().Err(err).Str("key_id", keyID).Msg("failed to record api key usage")
		}
	})
	if err != nil {
		a.log.Debug().Err(err).Str("key_id", keyID).Msg("skipped api key usage update")
	}
}
