package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/pkg/crypto"
)

var (
	// ErrInvalidCredentials is returned when the supplied email/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the user has exceeded the permitted failed attempts.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrEmailTaken is returned by Register when the email already has a profile.
	ErrEmailTaken = errors.New("auth: email already registered")
)

// LocalConfig defines tunable behaviour for the local authenticator.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput contains the credentials of a sign-in attempt.
type AuthenticateInput struct {
	Email     string
	Password  string
	IPAddress string
}

// RegisterInput captures the details required to register a new profile.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

// LocalAuthenticator implements email/password authentication with account lockout controls.
type LocalAuthenticator struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewLocalAuthenticator builds an authenticator with sane defaults.
func NewLocalAuthenticator(db *gorm.DB, cfg LocalConfig) (*LocalAuthenticator, error) {
	if db == nil {
		return nil, errors.New("local auth: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalAuthenticator{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the profile when successful.
func (p *LocalAuthenticator) Authenticate(ctx context.Context, input AuthenticateInput) (*models.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	db := p.db.WithContext(ctx)

	var profile models.Profile
	err := db.Where("email = ?", email).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local auth: query profile: %w", err)
	}

	now := p.clock()

	if profile.LockedUntil != nil && profile.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	if !crypto.VerifyPassword(profile.Password, input.Password) {
		return nil, p.handleFailedAttempt(ctx, &profile, now)
	}

	profile.FailedAttempts = 0
	profile.LockedUntil = nil
	profile.LastLoginAt = &now
	profile.LastLoginIP = strings.TrimSpace(input.IPAddress)

	if err := db.Model(&profile).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   profile.LastLoginIP,
	}).Error; err != nil {
		return nil, fmt.Errorf("local auth: update profile: %w", err)
	}

	return &profile, nil
}

func (p *LocalAuthenticator) handleFailedAttempt(ctx context.Context, profile *models.Profile, now time.Time) error {
	// An expired lock starts a fresh count.
	if profile.LockedUntil != nil {
		profile.FailedAttempts = 0
		profile.LockedUntil = nil
	}
	profile.FailedAttempts++

	updates := map[string]any{
		"failed_attempts": profile.FailedAttempts,
		"locked_until":    nil,
	}

	if profile.FailedAttempts >= p.threshold {
		lockUntil := now.Add(p.duration)
		profile.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := p.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		return fmt.Errorf("local auth: update failed attempts: %w", err)
	}

	if profile.LockedUntil != nil {
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// Register creates a new user profile with a hashed password.
func (p *LocalAuthenticator) Register(ctx context.Context, input RegisterInput) (*models.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, errors.New("local auth: email and password are required")
	}

	db := p.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.Profile{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("local auth: check email: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("local auth: hash password: %w", err)
	}

	profile := &models.Profile{
		Email:    email,
		Name:     strings.TrimSpace(input.Name),
		Phone:    strings.TrimSpace(input.Phone),
		Password: hashed,
		Role:     models.RoleUser,
	}

	if err := db.Create(profile).Error; err != nil {
		return nil, fmt.Errorf("local auth: create profile: %w", err)
	}

	return profile, nil
}
