package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quantdesk/quantdesk-api/internal/database"
	"github.com/quantdesk/quantdesk-api/internal/types"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestRegister(t *testing.T) {
	svc := NewService(setupDB(t), "test-secret", time.Hour)

	t.Run("creates a user with hashed password", func(t *testing.T) {
		user, err := svc.Register("Alice@Example.com", "hunter22hunter", "Alice")
		require.NoError(t, err)
		assert.NotEmpty(t, user.UserID)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, types.PlanFree, user.Plan)
		assert.NotEqual(t, "hunter22hunter", user.PasswordHash)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := svc.Register("alice@example.com", "anotherpassword", "Alice Again")
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := svc.Register("not-an-email", "hunter22hunter", "Bob")
		assert.Error(t, err)
	})

	t.Run("rejects short password", func(t *testing.T) {
		_, err := svc.Register("bob@example.com", "short", "Bob")
		assert.Error(t, err)
	})
}

func TestLoginAndValidate(t *testing.T) {
	svc := NewService(setupDB(t), "test-secret", time.Hour)
	user, err := svc.Register("carol@example.com", "correct-horse-battery", "Carol")
	require.NoError(t, err)

	t.Run("issues a verifiable token", func(t *testing.T) {
		resp, err := svc.Login("carol@example.com", "correct-horse-battery")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.WithinDuration(t, time.Now().Add(time.Hour), resp.Expiration, 5*time.Second)

		claims, err := svc.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, user.UserID, claims.UserID)
		assert.Equal(t, "carol@example.com", claims.Email)
		assert.Equal(t, types.PlanFree, claims.Plan)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login("carol@example.com", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login("nobody@example.com", "whatever-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("rejects token signed with a different secret", func(t *testing.T) {
		other := NewService(setupDB(t), "other-secret", time.Hour)
		resp, err := other.Login("dave@example.com", "irrelevant")
		assert.Error(t, err)
		assert.Nil(t, resp)

		// Sign a token with the other service's secret for an existing user.
		_, err = other.Register("dave@example.com", "davespassword", "Dave")
		require.NoError(t, err)
		foreign, err := other.Login("dave@example.com", "davespassword")
		require.NoError(t, err)

		_, err = svc.ValidateToken(foreign.Token)
		assert.Error(t, err)
	})

	t.Run("rejects garbage token", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.jwt")
		assert.Error(t, err)
	})
}
