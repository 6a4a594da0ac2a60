//go:build integration

package postgres_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sgrastar/authrim-sub002/internal/model"
	repo "github.com/sgrastar/authrim-sub002/internal/repository/postgres"
	"github.com/sgrastar/authrim-sub002/internal/sharding"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "authrim_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/authrim_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestRepositories_CRUD(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConection(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	t.Run("session_repository", func(t *testing.T) {
		sr := repo.NewSessionRepository(conn)
		now := time.Now().UTC().Truncate(time.Millisecond)

		suffix := uuid.NewString()
		shard := sharding.SessionShard(suffix, 32)
		sess := model.Session{
			ID:        sharding.FormatSessionID(shard, suffix),
			UserID:    "user-1",
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
			Data:      map[string]any{"amr": []any{"pwd"}, "ip": "203.0.113.7"},
		}
		require.NoError(t, sr.Put(ctx, shard, sess))

		got, err := sr.Get(ctx, shard, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.UserID, got.UserID)
		assert.Equal(t, sess.Data, got.Data)
		assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt))

		// Upsert path used by renewal.
		sess.ExpiresAt = now.Add(2 * time.Hour)
		require.NoError(t, sr.Put(ctx, shard, sess))
		got, err = sr.Get(ctx, shard, sess.ID)
		require.NoError(t, err)
		assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt))

		// Wrong shard does not see the row.
		_, err = sr.Get(ctx, shard+1, sess.ID)
		require.ErrorIs(t, err, model.ErrNotFound)

		keys, err := sr.SweepExpired(ctx, shard, now.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Contains(t, keys, sess.ID)
		_, err = sr.Get(ctx, shard, sess.ID)
		require.ErrorIs(t, err, model.ErrNotFound)

		require.NoError(t, sr.Delete(ctx, shard, sess.ID))
	})

	t.Run("token_family_repository", func(t *testing.T) {
		fr := repo.NewTokenFamilyRepository(conn)
		now := time.Now().UTC().Truncate(time.Millisecond)
		shard := sharding.TokenShard("user-1", "client-1", 8)

		fam := model.TokenFamily{
			UserID:       "user-1",
			ClientID:     "client-1",
			Version:      1,
			LastJTI:      sharding.NewJTI(1, shard),
			CreatedAt:    now,
			LastUsedAt:   now,
			ExpiresAt:    now.Add(24 * time.Hour),
			AllowedScope: "openid profile",
		}
		require.NoError(t, fr.Put(ctx, shard, fam))

		got, err := fr.Get(ctx, shard, fam.RecordKey())
		require.NoError(t, err)
		assert.Equal(t, fam.Version, got.Version)
		assert.Equal(t, fam.LastJTI, got.LastJTI)
		assert.Nil(t, got.InvalidatedAt)

		// Rotation persists through the upsert path.
		fam.Version = 2
		fam.LastJTI = sharding.NewJTI(2, shard)
		fam.LastUsedAt = now.Add(time.Minute)
		require.NoError(t, fr.Put(ctx, shard, fam))
		got, err = fr.Get(ctx, shard, fam.RecordKey())
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)

		// Invalidation round-trips.
		invAt := now.Add(2 * time.Minute)
		fam.InvalidatedAt = &invAt
		fam.InvalidatedReason = model.InvalidatedReasonTheft
		require.NoError(t, fr.Put(ctx, shard, fam))
		got, err = fr.Get(ctx, shard, fam.RecordKey())
		require.NoError(t, err)
		require.NotNil(t, got.InvalidatedAt)
		assert.Equal(t, model.InvalidatedReasonTheft, got.InvalidatedReason)

		// Sweep honors the grace window.
		keys, err := fr.SweepExpired(ctx, shard, now.Add(25*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, keys)
		keys, err = fr.SweepExpired(ctx, shard, now.Add(24*time.Hour).Add(model.FamilyDeleteGrace).Add(time.Minute))
		require.NoError(t, err)
		assert.Contains(t, keys, fam.RecordKey())
	})

	t.Run("signing_key_repository", func(t *testing.T) {
		kr := repo.NewSigningKeyRepository(conn)
		now := time.Now().UTC().Truncate(time.Millisecond)

		newKey := func(createdAt time.Time) model.SigningKey {
			priv, err := rsa.GenerateKey(rand.Reader, 2048)
			require.NoError(t, err)
			return model.SigningKey{
				KID:        sharding.NewKeyID(createdAt.UnixMilli()),
				PrivateKey: priv,
				CreatedAt:  createdAt,
			}
		}

		first := newKey(now)
		second := newKey(now.Add(time.Hour))
		require.NoError(t, kr.Save(ctx, first))
		require.NoError(t, kr.MarkActive(ctx, first.KID, now))
		require.NoError(t, kr.Save(ctx, second))
		require.NoError(t, kr.MarkActive(ctx, second.KID, now.Add(time.Hour)))

		keys, err := kr.List(ctx)
		require.NoError(t, err)
		require.Len(t, keys, 2)

		var activeCount int
		for _, k := range keys {
			require.NotNil(t, k.PrivateKey)
			if k.IsActive {
				activeCount++
				assert.Equal(t, second.KID, k.KID)
			} else {
				require.NotNil(t, k.DemotedAt)
			}
		}
		assert.Equal(t, 1, activeCount)

		require.NoError(t, kr.Delete(ctx, first.KID))
		keys, err = kr.List(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})
}
