package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/aiqualifier/aiq-api/internal/domain/auth"
	"github.com/aiqualifier/aiq-api/internal/testutil"
)

// learnerSession builds a session for a regular learner, valid for ttl.
func learnerSession(id string, ttl time.Duration) domainauth.Session {
	return domainauth.Session{
		ID:        id,
		UserID:    "learner-42",
		Email:     "learner@aiqualifier.test",
		Role:      domainauth.RoleUser,
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestSessionStore_RoundTrip(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client)
	ctx := context.Background()

	saved := domainauth.Session{
		ID:        "sess-roundtrip",
		UserID:    "instructor-7",
		Email:     "instructor@aiqualifier.test",
		Role:      domainauth.RoleInstructor,
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, store.Save(ctx, saved))

	got, err := store.Get(ctx, "sess-roundtrip")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, saved.UserID, got.UserID)
	assert.Equal(t, saved.Email, got.Email)
	assert.Equal(t, domainauth.RoleInstructor, got.Role)
	assert.WithinDuration(t, saved.ExpiresAt, got.ExpiresAt, time.Second)

	// The default prefix namespaces qualifier sessions in shared Redis.
	assert.Equal(t, int64(1), client.Exists(ctx, "aiq:session:sess-roundtrip").Val())
}

func TestSessionStore_GetUnknownSession(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client)

	_, err := store.Get(context.Background(), "sess-unknown")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, learnerSession("sess-delete", 30*time.Minute)))
	_, err := store.Get(ctx, "sess-delete")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "sess-delete"))
	_, err = store.Get(ctx, "sess-delete")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting a session that never existed is a no-op.
	require.NoError(t, store.Delete(ctx, "sess-delete"))
	require.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_RedisTTLTracksExpiry(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, learnerSession("sess-ttl", 100*time.Millisecond)))

	time.Sleep(200 * time.Millisecond)

	_, err := store.Get(ctx, "sess-ttl")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_StaleExpiresAtIsEvicted(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client)
	ctx := context.Background()

	// Simulate a writer whose clock ran ahead: the key is still live in
	// Redis but the stored ExpiresAt is already in the past.
	stale := learnerSession("sess-stale", time.Minute)
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, client.Set(ctx, "aiq:session:sess-stale", raw, time.Minute).Err())

	_, err = store.Get(ctx, "sess-stale")
	require.ErrorIs(t, err, ErrNotFound)

	// The stale key was cleaned up, not just hidden.
	assert.Equal(t, int64(0), client.Exists(ctx, "aiq:session:sess-stale").Val())
}

func TestSessionStore_CustomPrefix(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	store := NewSessionStoreWithPrefix(client, "uat:session:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, learnerSession("sess-prefixed", 30*time.Minute)))
	assert.Equal(t, int64(1), client.Exists(ctx, "uat:session:sess-prefixed").Val())

	got, err := store.Get(ctx, "sess-prefixed")
	require.NoError(t, err)
	assert.Equal(t, "sess-prefixed", got.ID)
}

func TestSessionStore_SaveRejectsBadSessions(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client)
	ctx := context.Background()

	err := store.Save(ctx, learnerSession("", 30*time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session ID cannot be empty")

	err = store.Save(ctx, learnerSession("sess-expired", -time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session is expired")
}
