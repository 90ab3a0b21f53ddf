package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/api"
	"github.com/charlesng35/jasamarket/internal/app"
	"github.com/charlesng35/jasamarket/internal/app/maintenance"
	iauth "github.com/charlesng35/jasamarket/internal/auth"
	"github.com/charlesng35/jasamarket/internal/cache"
	"github.com/charlesng35/jasamarket/internal/database"
	"github.com/charlesng35/jasamarket/internal/events"
	"github.com/charlesng35/jasamarket/internal/middleware"
	"github.com/charlesng35/jasamarket/internal/realtime"
	"github.com/charlesng35/jasamarket/internal/security"
	"github.com/charlesng35/jasamarket/internal/services"
	"github.com/charlesng35/jasamarket/internal/storage"
	"github.com/charlesng35/jasamarket/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Redis         *cache.RedisStore
	Cache         cache.Store
	Publisher     events.Publisher
	Hub           *realtime.Hub
	Sessions      *iauth.SessionManager
	Verifications *services.VerificationService
	Cleaner       *maintenance.Cleaner
	Router        *gin.Engine

	stopForwarding func()
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
// generated lists the config keys ApplyRuntimeDefaults filled in.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := resolveJWTSecret(ctx, stack.DB, cfg, generated); err != nil {
		return nil, err
	}

	reportSecurityPosture(ctx, stack.DB, cfg, log)

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Cache = dbStore
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
		} else {
			stack.Cache = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewStoreSessionCache(stack.Cache)
	sessionSvc, err := iauth.NewSessionService(stack.DB, jwtSvc, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	local, err := iauth.NewLocalAuthenticator(stack.DB, cfg.Auth.LocalAuthConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise local authenticator: %w", err)
	}

	stack.Sessions, err = iauth.NewSessionManager(stack.DB, jwtSvc, sessionSvc, local)
	if err != nil {
		return nil, fmt.Errorf("initialise session manager: %w", err)
	}

	stack.Hub = realtime.NewHub(cfg.Server.CORSOrigins...)
	stack.stopForwarding = stack.Hub.ForwardSessionEvents(stack.Sessions)

	objects, err := initialiseStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	stack.Publisher = initialisePublisher(cfg, log)

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	notificationSvc, err := services.NewNotificationService(stack.DB, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	stack.Verifications, err = services.NewVerificationService(services.VerificationDeps{
		DB:            stack.DB,
		Store:         objects,
		Audit:         auditSvc,
		Notifications: notificationSvc,
		Publisher:     stack.Publisher,
		Hub:           stack.Hub,
		Sessions:      stack.Sessions,
		Cache:         stack.Cache,
	}, cfg.VerificationServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise verification service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(sessionSvc, auditSvc,
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
			maintenance.WithVerificationService(stack.Verifications),
			maintenance.WithOrphanGrace(cfg.Maintenance.OrphanGrace),
			maintenance.WithCacheStore(dbStore),
			maintenance.WithSchedules(maintenance.Schedules{
				Session: cfg.Maintenance.SessionSchedule,
				Audit:   cfg.Maintenance.AuditSchedule,
				Orphan:  cfg.Maintenance.OrphanSchedule,
				Cache:   cfg.Maintenance.CacheSchedule,
				Gauge:   cfg.Maintenance.GaugeSchedule,
			}),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:            stack.DB,
		Config:        cfg,
		Sessions:      stack.Sessions,
		Verifications: stack.Verifications,
		Notifications: notificationSvc,
		Audit:         auditSvc,
		Store:         objects,
		Hub:           stack.Hub,
		RateStore:     middleware.NewCacheRateStore(stack.Cache),
		Cache:         stack.Cache,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	if s.stopForwarding != nil {
		s.stopForwarding()
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Warn("event publisher shutdown", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, cfg.Auth.SeedConfig()); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

// resolveJWTSecret keeps tokens valid across restarts when no secret is configured by
// persisting the generated candidate on first boot.
func resolveJWTSecret(ctx context.Context, db *gorm.DB, cfg *app.Config, generated map[string]bool) error {
	configured, candidate := cfg.Auth.JWT.Secret, ""
	if generated["auth.jwt.secret"] {
		configured, candidate = "", cfg.Auth.JWT.Secret
	}

	secret, err := database.ResolveJWTSecret(ctx, db, configured, candidate)
	if err != nil {
		return fmt.Errorf("resolve jwt secret: %w", err)
	}
	cfg.Auth.JWT.Secret = secret
	return nil
}

func reportSecurityPosture(ctx context.Context, db *gorm.DB, cfg *app.Config, log *zap.Logger) {
	result := security.NewChecker(db, cfg).Run(ctx)
	for _, check := range result.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case security.StatusFail:
			log.Error(check.Message, fields...)
		case security.StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
}

func initialiseStorage(ctx context.Context, cfg *app.Config, log *zap.Logger) (storage.ObjectStore, error) {
	root := strings.TrimSpace(cfg.Storage.Root)
	store, err := storage.NewOSStore(root, cfg.StorageBaseURL())
	if err != nil {
		return nil, fmt.Errorf("initialise object store: %w", err)
	}

	bucket := cfg.VerificationServiceConfig().Bucket
	exists, err := store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("inspect storage bucket: %w", err)
	}
	switch {
	case exists:
	case cfg.Storage.CreateBucket:
		if err := store.CreateBucket(ctx, bucket); err != nil {
			return nil, fmt.Errorf("create storage bucket: %w", err)
		}
		log.Info("storage bucket created", zap.String("bucket", bucket))
	default:
		log.Warn("storage bucket missing; submissions will fail until it exists", zap.String("bucket", bucket))
	}

	return store, nil
}

func initialisePublisher(cfg *app.Config, log *zap.Logger) events.Publisher {
	if !cfg.Events.AMQP.Enabled {
		return events.LogPublisher{}
	}

	producer, err := events.NewAMQPProducer(cfg.Events.AMQP.URL, cfg.Events.AMQP.Exchange)
	if err != nil {
		log.Warn("amqp unavailable; verification events are only logged", zap.Error(err))
		return events.LogPublisher{}
	}
	log.Info("amqp publisher connected", zap.String("exchange", cfg.Events.AMQP.Exchange))
	return producer
}
