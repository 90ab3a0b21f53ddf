package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/jasamarket/internal/database/testutil"
	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/pkg/crypto"
)

func TestAuthenticateSuccessResetsCounters(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Now().UTC()}
	local, err := NewLocalAuthenticator(db, LocalConfig{Clock: clock.Now})
	require.NoError(t, err)

	profile := createTestProfile(t, db, "ok")
	require.NoError(t, db.Model(profile).Update("failed_attempts", 2).Error)

	got, err := local.Authenticate(context.Background(), AuthenticateInput{
		Email:     " OK@example.com ",
		Password:  "password",
		IPAddress: "127.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, profile.ID, got.ID)

	var reloaded models.Profile
	require.NoError(t, db.Take(&reloaded, "id = ?", profile.ID).Error)
	require.Zero(t, reloaded.FailedAttempts)
	require.NotNil(t, reloaded.LastLoginAt)
	require.Equal(t, "127.0.0.1", reloaded.LastLoginIP)
}

func TestAuthenticateInvalidPasswordLocksAccount(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Now().UTC()}
	local, err := NewLocalAuthenticator(db, LocalConfig{LockoutThreshold: 2, LockoutDuration: time.Minute, Clock: clock.Now})
	require.NoError(t, err)
	createTestProfile(t, db, "locked")
	ctx := context.Background()

	_, err = local.Authenticate(ctx, AuthenticateInput{Email: "locked@example.com", Password: "nope"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = local.Authenticate(ctx, AuthenticateInput{Email: "locked@example.com", Password: "nope"})
	require.ErrorIs(t, err, ErrAccountLocked)

	_, err = local.Authenticate(ctx, AuthenticateInput{Email: "locked@example.com", Password: "password"})
	require.ErrorIs(t, err, ErrAccountLocked)

	clock.Advance(2 * time.Minute)
	_, err = local.Authenticate(ctx, AuthenticateInput{Email: "locked@example.com", Password: "password"})
	require.NoError(t, err)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	local, err := NewLocalAuthenticator(db, LocalConfig{})
	require.NoError(t, err)

	_, err = local.Authenticate(context.Background(), AuthenticateInput{Email: "ghost@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterHashesPasswordAndRejectsDuplicates(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	local, err := NewLocalAuthenticator(db, LocalConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	profile, err := local.Register(ctx, RegisterInput{Email: "New@Example.com", Password: "secret", Name: " Siti "})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", profile.Email)
	require.Equal(t, "Siti", profile.Name)
	require.Equal(t, models.RoleUser, profile.Role)
	require.False(t, profile.IsVerified)
	require.True(t, crypto.VerifyPassword(profile.Password, "secret"))

	_, err = local.Register(ctx, RegisterInput{Email: "new@example.com", Password: "other"})
	require.ErrorIs(t, err, ErrEmailTaken)
}
