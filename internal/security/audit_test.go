package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/jasamarket/internal/app"
	testutil "github.com/charlesng35/jasamarket/internal/database/testutil"
	"github.com/charlesng35/jasamarket/internal/models"
)

func findCheck(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %q not found", id)
	return Check{}
}

func TestCheckerRun(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	admin := &models.Profile{Email: "admin@example.com", Name: "Admin", Password: "hashed", Role: models.RoleAdmin}
	require.NoError(t, db.Create(admin).Error)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT:     app.JWTSettings{Secret: "0123456789abcdef0123456789abcdef0123456789abcdef"},
			Session: app.SessionSettings{RefreshTTL: 720 * time.Hour},
		},
		Verification: app.VerificationConfig{MaxUploadBytes: 5 << 20},
	}

	checker := NewChecker(db, cfg)
	fixed := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	checker.WithClock(func() time.Time { return fixed })

	result := checker.Run(context.Background())
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 4)
	require.Equal(t, 4, result.Summary[string(StatusPass)])
	require.False(t, result.Failed())
}

func TestCheckerDetectsWeakDeployment(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT:     app.JWTSettings{Secret: "short"},
			Session: app.SessionSettings{RefreshTTL: 90 * 24 * time.Hour},
		},
		Verification: app.VerificationConfig{MaxUploadBytes: 50 << 20},
	}

	result := NewChecker(db, cfg).Run(context.Background())
	require.True(t, result.Failed())
	require.Equal(t, StatusFail, findCheck(t, result, checkAdminPresent).Status)
	require.Equal(t, StatusFail, findCheck(t, result, checkJWTSecretStrength).Status)
	require.Equal(t, StatusWarn, findCheck(t, result, checkRefreshTTL).Status)
	require.Equal(t, StatusWarn, findCheck(t, result, checkUploadLimit).Status)
}

func TestCheckerWithoutDependencies(t *testing.T) {
	result := NewChecker(nil, nil).Run(context.Background())
	require.Equal(t, 4, result.Summary[string(StatusWarn)])
	require.False(t, result.Failed())
}
