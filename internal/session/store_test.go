package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrastar/authrim-sub002/internal/model"
	"github.com/sgrastar/authrim-sub002/internal/sharding"
	"github.com/sgrastar/authrim-sub002/internal/testutil"
)

func newTestStore() (*Store, *testutil.MemoryWarmStore[model.Session]) {
	warm := testutil.NewMemoryWarmStore[model.Session]()
	return NewStore(8, warm, nil, testutil.MakeNoopLogger()), warm
}

func TestStore_CreateAndValidate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	id, err := s.Create(ctx, model.Session{
		UserID: "user-1",
		Data:   map[string]any{"amr": []string{"pwd"}, "acr": "urn:mace:incommon:iap:silver"},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^\d+_session_[0-9a-f-]{36}$`, id)

	sess, err := s.Validate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, id, sess.ID)
	assert.True(t, sess.ExpiresAt.After(sess.CreatedAt))
}

func TestStore_Create_IDEncodesOwningShard(t *testing.T) {
	ctx := context.Background()
	s, warm := newTestStore()

	id, err := s.Create(ctx, model.Session{UserID: "user-1"})
	require.NoError(t, err)

	shard, err := sharding.ParseSessionID(id)
	require.NoError(t, err)
	assert.True(t, warm.Contains(shard, id))
}

func TestStore_Create_RejectsInvertedLifetime(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	now := time.Now()
	_, err := s.Create(ctx, model.Session{
		UserID:    "user-1",
		CreatedAt: now,
		ExpiresAt: now.Add(-time.Minute),
	})
	require.Error(t, err)
}

func TestStore_Validate_Expired(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	now := time.Now()
	id, err := s.Create(ctx, model.Session{
		UserID:    "user-1",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	_, err = s.Validate(ctx, id)
	require.ErrorIs(t, err, model.ErrSessionExpired)
	// Expired reads as not-found to callers that only check usability.
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_Validate_ExactExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	expiry := time.Now().Add(time.Hour)
	id, err := s.Create(ctx, model.Session{
		UserID:    "user-1",
		CreatedAt: expiry.Add(-time.Hour),
		ExpiresAt: expiry,
	})
	require.NoError(t, err)

	s.now = func() time.Time { return expiry }
	_, err = s.Validate(ctx, id)
	require.ErrorIs(t, err, model.ErrSessionExpired)

	s.now = func() time.Time { return expiry.Add(-time.Nanosecond) }
	_, err = s.Validate(ctx, id)
	require.NoError(t, err)
}

func TestStore_Validate_UnknownAndMalformed(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	_, err := s.Validate(ctx, "3_session_00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.Validate(ctx, "not-a-session-id")
	require.ErrorIs(t, err, model.ErrNotFound)

	// Shard index beyond the configured count cannot belong to this store.
	_, err = s.Validate(ctx, "99_session_00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_Renew_ExtendsOnly(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	id, err := s.Create(ctx, model.Session{UserID: "user-1"})
	require.NoError(t, err)
	sess, err := s.Validate(ctx, id)
	require.NoError(t, err)

	extended := sess.ExpiresAt.Add(time.Hour)
	require.NoError(t, s.Renew(ctx, id, extended))

	renewed, err := s.Validate(ctx, id)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.Equal(extended))

	// Shortening is rejected and leaves the session untouched.
	require.Error(t, s.Renew(ctx, id, extended.Add(-time.Minute)))
	after, err := s.Validate(ctx, id)
	require.NoError(t, err)
	assert.True(t, after.ExpiresAt.Equal(extended))
}

func TestStore_Renew_NeverCreates(t *testing.T) {
	ctx := context.Background()
	s, warm := newTestStore()

	err := s.Renew(ctx, "2_session_00000000-0000-0000-0000-000000000000", time.Now().Add(time.Hour))
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, warm.Contains(2, "2_session_00000000-0000-0000-0000-000000000000"))
}

func TestStore_Revoke(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	id, err := s.Create(ctx, model.Session{UserID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, id))
	_, err = s.Validate(ctx, id)
	require.ErrorIs(t, err, model.ErrNotFound)

	// Revoking again is harmless.
	require.NoError(t, s.Revoke(ctx, id))
}

func TestStore_SweepExpired(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	now := time.Now()
	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx, model.Session{
			UserID:    "user-1",
			CreatedAt: now.Add(-2 * time.Hour),
			ExpiresAt: now.Add(-time.Hour),
		})
		require.NoError(t, err)
	}
	liveID, err := s.Create(ctx, model.Session{UserID: "user-2"})
	require.NoError(t, err)

	assert.Equal(t, 5, s.SweepExpired(ctx, now))

	_, err = s.Validate(ctx, liveID)
	require.NoError(t, err)
}
