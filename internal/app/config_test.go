package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/jasamarket/internal/auth"
	"github.com/charlesng35/jasamarket/internal/cache"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"https://jasamarket.test", "https://admin.jasamarket.test"}, cfg.Server.CORSOrigins)
	require.True(t, cfg.Server.HSTS)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 2*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "ktp", cfg.Storage.Bucket)
	require.True(t, cfg.Storage.CreateBucket)
	require.Equal(t, "https://cdn.jasamarket.test", cfg.StorageBaseURL())

	require.True(t, cfg.Events.AMQP.Enabled)
	require.Equal(t, "marketplace.events", cfg.Events.AMQP.Exchange)

	require.Equal(t, int64(2<<20), cfg.Verification.MaxUploadBytes)
	require.Equal(t, 20, cfg.Verification.PageSize)
	require.Equal(t, time.Minute, cfg.Verification.PendingCacheTTL)
	require.Equal(t, 3, cfg.Verification.SubmitRateLimit.Requests)
	require.Equal(t, 30*time.Minute, cfg.Verification.SubmitRateLimit.Window)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "0 3 * * *", cfg.Maintenance.OrphanSchedule)
	require.Equal(t, "@every 1h", cfg.Maintenance.SessionSchedule)
	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)
	require.Equal(t, 2*time.Hour, cfg.Maintenance.OrphanGrace)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "jasamarket", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 1440*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 64, cfg.Auth.Session.RefreshLength)
	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)
	require.Equal(t, "root@jasamarket.test", cfg.Auth.BootstrapAdmin.Email)
	require.Equal(t, "Administrator", cfg.Auth.BootstrapAdmin.Name)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("JASAMARKET_SERVER_PORT", "7070")
	t.Setenv("JASAMARKET_STORAGE_BUCKET", "from-env")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Storage.Bucket)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "http://localhost:8000", cfg.StorageBaseURL())
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			JWT: JWTSettings{
				Secret: "secret",
				Issuer: "issuer",
				TTL:    30 * time.Minute,
			},
			Session: SessionSettings{
				RefreshTTL:    10 * time.Hour,
				RefreshLength: 32,
			},
			Local: LocalAuthSettings{
				LockoutThreshold: 4,
				LockoutDuration:  10 * time.Minute,
			},
			BootstrapAdmin: BootstrapAdmin{
				Email:    " admin@jasamarket.test ",
				Password: "pw",
			},
		},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.Auth.JWTServiceConfig())

	require.Equal(t, auth.SessionConfig{
		RefreshTokenTTL: 10 * time.Hour,
		RefreshLength:   32,
	}, cfg.Auth.SessionServiceConfig())

	require.Equal(t, auth.LocalConfig{
		LockoutThreshold: 4,
		LockoutDuration:  10 * time.Minute,
	}, cfg.Auth.LocalAuthConfig())

	seed := cfg.Auth.SeedConfig()
	require.Equal(t, "admin@jasamarket.test", seed.AdminEmail)
	require.Equal(t, "pw", seed.AdminPassword)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)

	sessionCfg := cfg.SessionServiceConfig()
	require.Equal(t, auth.DefaultRefreshTokenTTL, sessionCfg.RefreshTokenTTL)
	require.Equal(t, defaultRefreshLength, sessionCfg.RefreshLength)

	localCfg := cfg.LocalAuthConfig()
	require.Equal(t, defaultLockoutThreshold, localCfg.LockoutThreshold)
	require.Equal(t, defaultLockoutDuration, localCfg.LockoutDuration)
}

func TestDatabaseConnectionConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "PostgreSQL",
		Postgres: DBAuthConfig{
			Host:     " db.local ",
			Port:     5433,
			Database: "jasamarket",
			Username: "app",
			Password: "pw",
		},
	}

	conn := cfg.ConnectionConfig()
	require.Equal(t, "postgres", conn.Driver)
	require.Equal(t, "db.local", conn.Host)
	require.Equal(t, 5433, conn.Port)
	require.Equal(t, "jasamarket", conn.Name)

	require.Equal(t, "sqlite", DatabaseConfig{}.ConnectionConfig().Driver)
}

func TestVerificationServiceConfig(t *testing.T) {
	cfg := Config{
		Storage:      StorageConfig{Bucket: " ktp "},
		Verification: VerificationConfig{MaxUploadBytes: 1024, PageSize: 5, PendingCacheTTL: time.Second},
	}

	svcCfg := cfg.VerificationServiceConfig()
	require.Equal(t, "ktp", svcCfg.Bucket)
	require.Equal(t, int64(1024), svcCfg.MaxUploadBytes)
	require.Equal(t, 5, svcCfg.PageSize)
	require.Equal(t, time.Second, svcCfg.PendingCacheTTL)
}

func TestRedisClientConfig(t *testing.T) {
	cfg := CacheConfig{Redis: RedisCacheConfig{
		Enabled:  true,
		Address:  " redis:6379 ",
		Username: " cache ",
		Password: "pw",
		DB:       2,
		Timeout:  3 * time.Second,
		Prefix:   " jm: ",
	}}

	require.Equal(t, cache.RedisConfig{
		Address:  "redis:6379",
		Username: "cache",
		Password: "pw",
		DB:       2,
		Timeout:  3 * time.Second,
		Prefix:   "jm",
	}, cfg.RedisClientConfig())
}
