package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/pkg/crypto"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenMemoryDatabasesAreIsolated(t *testing.T) {
	first := openTestDB(t)
	second := openTestDB(t)

	require.NoError(t, AutoMigrate(first))
	require.True(t, first.Migrator().HasTable(&models.Profile{}))
	require.False(t, second.Migrator().HasTable(&models.Profile{}))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestAutoMigrateAndSeedCreatesAdmin(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db, Seed{AdminEmail: " Admin@Example.com ", AdminPassword: "secret-pass"}))

	var admin models.Profile
	require.NoError(t, db.Take(&admin, "email = ?", "admin@example.com").Error)
	require.Equal(t, models.RoleAdmin, admin.Role)
	require.True(t, crypto.VerifyPassword(admin.Password, "secret-pass"))

	// Seeding twice is a no-op.
	require.NoError(t, SeedData(db, Seed{AdminEmail: "admin@example.com", AdminPassword: "other"}))
	var count int64
	require.NoError(t, db.Model(&models.Profile{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSeedPromotesExistingProfile(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, db.Create(&models.Profile{Email: "ops@example.com", Password: "x", Role: models.RoleUser}).Error)
	require.NoError(t, SeedData(db, Seed{AdminEmail: "ops@example.com", AdminPassword: "secret"}))

	var profile models.Profile
	require.NoError(t, db.Take(&profile, "email = ?", "ops@example.com").Error)
	require.Equal(t, models.RoleAdmin, profile.Role)
}

func TestSeedSkipsWithoutAdminEmail(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrateAndSeed(db, Seed{}))

	var count int64
	require.NoError(t, db.Model(&models.Profile{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPendingIndexAllowsOnePendingPerUser(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	profile := &models.Profile{Email: "p@example.com", Password: "x"}
	require.NoError(t, db.Create(profile).Error)

	newRequest := func(status models.VerificationStatus) *models.VerificationRequest {
		return &models.VerificationRequest{
			UserID:         profile.ID,
			FullName:       "Ahmad",
			WhatsAppNumber: "0812345678",
			IDCardURL:      "http://localhost/storage/id-cards/x.png",
			Status:         status,
		}
	}

	require.NoError(t, db.Create(newRequest(models.VerificationRejected)).Error)
	require.NoError(t, db.Create(newRequest(models.VerificationPending)).Error)
	require.Error(t, db.Create(newRequest(models.VerificationPending)).Error)
	require.NoError(t, db.Create(newRequest(models.VerificationRejected)).Error)
}

func TestResolveJWTSecret(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))
	ctx := context.Background()

	secret, err := ResolveJWTSecret(ctx, db, "configured", "candidate")
	require.NoError(t, err)
	require.Equal(t, "configured", secret)

	secret, err = ResolveJWTSecret(ctx, db, "", "first")
	require.NoError(t, err)
	require.Equal(t, "first", secret)

	secret, err = ResolveJWTSecret(ctx, db, "", "second")
	require.NoError(t, err)
	require.Equal(t, "first", secret)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = Close(db)
	})

	return db
}
