package repo

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govlink/govlink/internal/db"
	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/partition"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)

	r := NewGormRepo(gdb)
	require.NoError(t, r.Migrate(context.Background(), partition.Defaults()))
	return r
}

func newMongoStore(t *testing.T) Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI is required for mongo store tests")
	}

	ctx := context.Background()
	dbName := "govlink_test_" + uuid.NewString()[:8]
	r, err := NewMongoRepo(ctx, uri, dbName)
	require.NoError(t, err)
	require.NoError(t, r.Migrate(ctx, partition.Defaults()))

	t.Cleanup(func() {
		_ = r.db.Drop(context.Background())
		_ = r.Close(context.Background())
	})
	return r
}

func TestGormRepo(t *testing.T)  { runStoreSuite(t, newSQLiteStore) }
func TestMongoRepo(t *testing.T) { runStoreSuite(t, newMongoStore) }

func seed(t *testing.T, s Store, p partition.Config, email string, status models.Status) *models.Principal {
	t.Helper()
	pr := &models.Principal{
		ID:           uuid.NewString(),
		Email:        email,
		Role:         p.DefaultRole,
		PasswordHash: "hash",
		Status:       status,
		Profile:      map[string]any{"name": "Test"},
	}
	require.NoError(t, s.Create(context.Background(), p, pr))
	return pr
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	reg := partition.DefaultRegistry()
	users, _ := reg.Get(partition.User)
	agents, _ := reg.Get(partition.Agent)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("create and find is case insensitive", func(t *testing.T) {
		s := newStore(t)
		pr := seed(t, s, users, "  Alice@Example.COM ", models.StatusActive)
		assert.Equal(t, "alice@example.com", pr.Email)

		got, err := s.FindByEmail(ctx, users, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, pr.ID, got.ID)
		assert.Equal(t, partition.User, got.Partition)
		assert.Equal(t, "Test", got.Profile["name"])

		byID, err := s.FindByID(ctx, users, pr.ID)
		require.NoError(t, err)
		assert.Equal(t, got.Email, byID.Email)
	})

	t.Run("partitions are isolated", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, users, "same@example.com", models.StatusActive)

		_, err := s.FindByEmail(ctx, agents, "same@example.com")
		assert.ErrorIs(t, err, ErrNotFound)

		seed(t, s, agents, "same@example.com", models.StatusActive)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, users, "dup@example.com", models.StatusActive)

		err := s.Create(ctx, users, &models.Principal{
			ID: uuid.NewString(), Email: "DUP@example.com", Role: "user", PasswordHash: "h", Status: models.StatusActive,
		})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("missing principal", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByEmail(ctx, users, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindByID(ctx, users, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.RecordLogin(ctx, users, uuid.NewString(), now), ErrNotFound)
	})

	t.Run("failed logins lock then login clears", func(t *testing.T) {
		s := newStore(t)
		pr := seed(t, s, users, "lock@example.com", models.StatusActive)

		for i := 0; i < 2; i++ {
			until, err := s.RecordFailedLogin(ctx, users, pr.ID, 3, time.Minute, now)
			require.NoError(t, err)
			assert.Nil(t, until)
		}
		until, err := s.RecordFailedLogin(ctx, users, pr.ID, 3, time.Minute, now)
		require.NoError(t, err)
		require.NotNil(t, until)
		assert.True(t, until.Equal(now.Add(time.Minute)))

		got, err := s.FindByID(ctx, users, pr.ID)
		require.NoError(t, err)
		assert.True(t, got.LockedAt(now))
		assert.Equal(t, 0, got.FailedLogins)

		require.NoError(t, s.RecordLogin(ctx, users, pr.ID, now))
		got, err = s.FindByID(ctx, users, pr.ID)
		require.NoError(t, err)
		assert.False(t, got.LockedAt(now))
		require.NotNil(t, got.LastLoginAt)
		assert.True(t, got.LastLoginAt.Equal(now))
	})

	t.Run("reset token redeems once", func(t *testing.T) {
		s := newStore(t)
		pr := seed(t, s, users, "reset@example.com", models.StatusActive)
		require.NoError(t, s.SetResetToken(ctx, users, pr.ID, "h1", now.Add(time.Hour)))

		got, err := s.RedeemResetToken(ctx, users, "h1", "new-hash", now)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
		assert.Empty(t, got.ResetTokenHash)
		assert.Nil(t, got.ResetTokenExpiresAt)

		_, err = s.RedeemResetToken(ctx, users, "h1", "other", now)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.RedeemResetToken(ctx, users, "", "other", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("expired reset token", func(t *testing.T) {
		s := newStore(t)
		pr := seed(t, s, users, "late@example.com", models.StatusActive)
		require.NoError(t, s.SetResetToken(ctx, users, pr.ID, "h2", now.Add(time.Hour)))

		_, err := s.RedeemResetToken(ctx, users, "h2", "new", now.Add(2*time.Hour))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent reset redemption has one winner", func(t *testing.T) {
		s := newStore(t)
		pr := seed(t, s, users, "race@example.com", models.StatusActive)
		require.NoError(t, s.SetResetToken(ctx, users, pr.ID, "h3", now.Add(time.Hour)))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.RedeemResetToken(ctx, users, "h3", "x", now); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("verify token promotes pending", func(t *testing.T) {
		s := newStore(t)
		pr := seed(t, s, users, "pending@example.com", models.StatusPendingVerification)
		require.NoError(t, s.SetVerifyToken(ctx, users, pr.ID, "v1", now.Add(24*time.Hour)))

		got, err := s.RedeemVerifyToken(ctx, users, "v1", now)
		require.NoError(t, err)
		assert.True(t, got.EmailVerified)
		assert.Equal(t, models.StatusActive, got.Status)
		assert.Empty(t, got.VerifyTokenHash)

		_, err = s.RedeemVerifyToken(ctx, users, "v1", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("verify token keeps suspended status", func(t *testing.T) {
		s := newStore(t)
		pr := seed(t, s, users, "susp@example.com", models.StatusSuspended)
		require.NoError(t, s.SetVerifyToken(ctx, users, pr.ID, "v2", now.Add(24*time.Hour)))

		got, err := s.RedeemVerifyToken(ctx, users, "v2", now)
		require.NoError(t, err)
		assert.True(t, got.EmailVerified)
		assert.Equal(t, models.StatusSuspended, got.Status)
	})

	t.Run("update status", func(t *testing.T) {
		s := newStore(t)
		pr := seed(t, s, agents, "agent@example.com", models.StatusActive)

		got, err := s.UpdateStatus(ctx, agents, pr.ID, models.StatusUnderReview, now)
		require.NoError(t, err)
		assert.Equal(t, models.StatusUnderReview, got.Status)

		_, err = s.UpdateStatus(ctx, agents, uuid.NewString(), models.StatusActive, now)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
