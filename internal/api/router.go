package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/app"
	iauth "github.com/charlesng35/jasamarket/internal/auth"
	"github.com/charlesng35/jasamarket/internal/cache"
	"github.com/charlesng35/jasamarket/internal/handlers"
	"github.com/charlesng35/jasamarket/internal/middleware"
	"github.com/charlesng35/jasamarket/internal/realtime"
	"github.com/charlesng35/jasamarket/internal/services"
	"github.com/charlesng35/jasamarket/internal/storage"
)

// Dependencies bundles everything the HTTP layer needs.
type Dependencies struct {
	DB            *gorm.DB
	Config        *app.Config
	Sessions      *iauth.SessionManager
	Verifications *services.VerificationService
	Notifications *services.NotificationService
	Audit         *services.AuditService
	Store         storage.ObjectStore
	Hub           *realtime.Hub
	RateStore     middleware.RateStore
	Cache         cache.Store
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("api: database handle must be provided")
	case d.Config == nil:
		return errors.New("api: config must be provided")
	case d.Sessions == nil:
		return errors.New("api: session manager must be provided")
	case d.Verifications == nil:
		return errors.New("api: verification service must be provided")
	case d.Notifications == nil:
		return errors.New("api: notification service must be provided")
	case d.Store == nil:
		return errors.New("api: object store must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	metricsPath := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(metricsPath))
	r.Use(middleware.SecurityHeaders(cfg.Server.HSTS))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	registerHealthRoutes(r, cfg, healthChecks(deps))
	registerStorageRoutes(r, handlers.NewStorageHandler(deps.Store, deps.Verifications.Bucket()))

	requireAuth := middleware.Auth(deps.Sessions)

	registerAuthRoutes(r, requireAuth, handlers.NewAuthHandler(deps.Sessions, deps.Audit))

	api := r.Group("/api")
	api.Use(requireAuth)

	registerVerificationRoutes(api, verificationRouteDeps{
		Handler:   handlers.NewVerificationHandler(deps.Verifications, deps.Hub, cfg.Verification.MaxUploadBytes),
		RateStore: deps.RateStore,
		Limit:     cfg.Verification.SubmitRateLimit,
	})
	registerAdminRoutes(api, handlers.NewAdminVerificationHandler(deps.Verifications, deps.Audit))
	registerNotificationRoutes(api, handlers.NewNotificationHandler(deps.Notifications))
	registerRealtimeRoutes(api, handlers.NewRealtimeHandler(deps.Hub))

	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	r.HandleMethodNotAllowed = true
	r.NoMethod(middleware.MethodNotAllowedHandler)
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func healthChecks(deps Dependencies) []handlers.HealthCheck {
	checks := []handlers.HealthCheck{handlers.DatabaseCheck(deps.DB)}
	if redisStore, ok := deps.Cache.(*cache.RedisStore); ok && redisStore != nil {
		checks = append(checks, handlers.HealthCheck{Name: "redis", Probe: redisStore.Ping})
	}
	return checks
}
