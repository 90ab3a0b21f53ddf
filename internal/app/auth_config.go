package app

import (
	"strings"
	"time"

	"github.com/charlesng35/jasamarket/internal/auth"
	"github.com/charlesng35/jasamarket/internal/database"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultRefreshLength    = 48
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = defaultRefreshLength
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// LocalAuthConfig converts AuthConfig into LocalAuthenticator parameters.
func (c AuthConfig) LocalAuthConfig() auth.LocalConfig {
	duration := c.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return auth.LocalConfig{
		LockoutThreshold: threshold,
		LockoutDuration:  duration,
	}
}

// SeedConfig returns the bootstrap administrator inserted after migrations.
func (c AuthConfig) SeedConfig() database.Seed {
	return database.Seed{
		AdminEmail:    strings.TrimSpace(c.BootstrapAdmin.Email),
		AdminPassword: c.BootstrapAdmin.Password,
		AdminName:     strings.TrimSpace(c.BootstrapAdmin.Name),
	}
}
