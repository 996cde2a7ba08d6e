package apikeys

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealflow/internal/platform/config"
	"dealflow/internal/platform/database"
	"dealflow/internal/platform/models"
	"dealflow/internal/platform/repositories"
	"dealflow/internal/workers"
)

type fixture struct {
	svc    *Service
	auth   *Authenticator
	pool   *workers.Pool
	userID string
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, zerolog.Nop()))

	user := &models.User{Email: "keys@example.com", PasswordHash: "x"}
	require.NoError(t, repositories.NewUserRepository(db).Create(context.Background(), user))

	repo := repositories.NewAPIKeyRepository(db)
	pool := workers.NewPool(2, zerolog.Nop())
	t.Cleanup(func() { pool.Shutdown(time.Second) })

	return &fixture{
		svc:    NewService(repo, DefaultPrefix),
		auth:   NewAuthenticator(repo, DefaultPrefix, pool, nil, nil, zerolog.Nop()),
		pool:   pool,
		userID: user.ID,
	}
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	issued, err := f.svc.Create(ctx, f.userID, "  zapier  ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issued.Token, DefaultPrefix))
	assert.Equal(t, "zapier", issued.Key.Name)
	assert.Equal(t, issued.Token[:12], issued.Key.KeyPrefix)
	assert.Equal(t, HashToken(issued.Token), issued.Key.KeyHash)

	_, err = f.svc.Create(ctx, f.userID, "zapier")
	assert.ErrorIs(t, err, ErrNameTaken)

	_, err = f.svc.Create(ctx, f.userID, "   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	id, err := f.auth.Authenticate(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, f.userID, id.UserID)
	assert.Equal(t, issued.Key.ID, id.KeyID)
	f.pool.Wait()
}

// staleNameCheck answers NameInUse as if a concurrent Create had not committed yet.
type staleNameCheck struct {
	*repositories.APIKeyRepository
}

func (staleNameCheck) NameInUse(context.Context, string, string) (bool, error) {
	return false, nil
}

func TestService_CreateConcurrentDuplicateName(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, zerolog.Nop()))

	ctx := context.Background()
	user := &models.User{Email: "race@example.com", PasswordHash: "x"}
	require.NoError(t, repositories.NewUserRepository(db).Create(ctx, user))

	svc := NewService(staleNameCheck{repositories.NewAPIKeyRepository(db)}, DefaultPrefix)

	_, err = svc.Create(ctx, user.ID, "deploy")
	require.NoError(t, err)

	_, err = svc.Create(ctx, user.ID, "deploy")
	assert.ErrorIs(t, err, ErrNameTaken)

	keys, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestService_RegenerateInvalidatesOldToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	original, err := f.svc.Create(ctx, f.userID, "reporting")
	require.NoError(t, err)

	rotated, err := f.svc.Regenerate(ctx, f.userID, original.Key.ID)
	require.NoError(t, err)
	assert.NotEqual(t, original.Token, rotated.Token)
	assert.NotEqual(t, original.Key.ID, rotated.Key.ID)
	assert.Equal(t, "reporting", rotated.Key.Name)

	_, err = f.auth.Authenticate(ctx, original.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	id, err := f.auth.Authenticate(ctx, rotated.Token)
	require.NoError(t, err)
	assert.Equal(t, rotated.Key.ID, id.KeyID)
	f.pool.Wait()

	keys, err := f.svc.List(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, rotated.Key.ID, keys[0].ID)

	_, err = f.svc.Regenerate(ctx, f.userID, original.Key.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Delete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	issued, err := f.svc.Create(ctx, f.userID, "ci")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, "usr_other", issued.Key.ID), ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, f.userID, issued.Key.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, f.userID, issued.Key.ID), ErrNotFound)

	_, err = f.auth.Authenticate(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// A deleted key's name can be reused.
	_, err = f.svc.Create(ctx, f.userID, "ci")
	assert.NoError(t, err)
}
