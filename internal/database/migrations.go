package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/pkg/crypto"
)

const pendingVerificationIndex = "idx_provider_verifications_one_pending"

// Seed describes the data inserted after migrations.
type Seed struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Profile{},
		&models.Session{},
		&models.VerificationRequest{},
		&models.AuditLog{},
		&models.Notification{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	); err != nil {
		return err
	}
	return ensurePendingIndex(db)
}

// ensurePendingIndex limits each user to one pending verification request on
// dialects that support partial indexes. MySQL relies on the service-level check.
func ensurePendingIndex(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite", "postgres":
	default:
		return nil
	}

	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON provider_verifications (user_id) WHERE status = 'pending'",
		pendingVerificationIndex,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create pending index: %w", err)
	}
	return nil
}

// SeedData bootstraps the administrator account when one is configured.
func SeedData(db *gorm.DB, seed Seed) error {
	email := strings.ToLower(strings.TrimSpace(seed.AdminEmail))
	if email == "" {
		return nil
	}
	if strings.TrimSpace(seed.AdminPassword) == "" {
		return errors.New("bootstrap admin requires a password")
	}

	var existing models.Profile
	err := db.Where("email = ?", email).Take(&existing).Error
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			return nil
		}
		return db.Model(&existing).Update("role", models.RoleAdmin).Error
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	hash, err := crypto.HashPassword(seed.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	name := strings.TrimSpace(seed.AdminName)
	if name == "" {
		name = "Administrator"
	}

	admin := &models.Profile{
		Email:    email,
		Name:     name,
		Password: hash,
		Role:     models.RoleAdmin,
	}
	return db.Create(admin).Error
}
