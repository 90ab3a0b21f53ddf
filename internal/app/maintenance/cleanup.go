package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/jasamarket/internal/auth"
	"github.com/charlesng35/jasamarket/internal/cache"
	"github.com/charlesng35/jasamarket/internal/services"
	"github.com/charlesng35/jasamarket/pkg/logger"
	"github.com/charlesng35/jasamarket/pkg/metrics"
)

const (
	defaultAuditRetentionDays = 90
	defaultOrphanGrace        = time.Hour
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultOrphanSpec         = "@daily"
	defaultCacheSpec          = "@every 10m"
	defaultGaugeSpec          = "@every 1m"
	jobTimeout                = 5 * time.Minute
)

// Cleaner coordinates background maintenance tasks: purging expired sessions, pruning
// stale audit logs, sweeping orphaned identity cards, purging expired cache rows and
// refreshing the pending verification gauge.
type Cleaner struct {
	sessions      *iauth.SessionService
	audit         *services.AuditService
	verifications *services.VerificationService
	cacheStore    *cache.DatabaseStore
	cron          *cron.Cron
	log           *zap.Logger
	retention     int
	orphanGrace   time.Duration

	sessionSchedule string
	auditSchedule   string
	orphanSchedule  string
	cacheSchedule   string
	gaugeSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithVerificationService enables the orphan sweep and the pending gauge refresh.
func WithVerificationService(svc *services.VerificationService) Option {
	return func(cleaner *Cleaner) {
		cleaner.verifications = svc
	}
}

// WithOrphanGrace sets how old an unreferenced identity card must be before it is removed.
func WithOrphanGrace(grace time.Duration) Option {
	return func(cleaner *Cleaner) {
		if grace > 0 {
			cleaner.orphanGrace = grace
		}
	}
}

// WithCacheStore enables purging of expired rows from the database-backed cache.
func WithCacheStore(store *cache.DatabaseStore) Option {
	return func(cleaner *Cleaner) {
		cleaner.cacheStore = store
	}
}

// Schedules holds cron specifications; empty fields keep their defaults.
type Schedules struct {
	Session string
	Audit   string
	Orphan  string
	Cache   string
	Gauge   string
}

// WithSchedules overrides the cron specifications of the individual jobs.
func WithSchedules(s Schedules) Option {
	return func(cleaner *Cleaner) {
		cleaner.sessionSchedule = orDefault(s.Session, cleaner.sessionSchedule)
		cleaner.auditSchedule = orDefault(s.Audit, cleaner.auditSchedule)
		cleaner.orphanSchedule = orDefault(s.Orphan, cleaner.orphanSchedule)
		cleaner.cacheSchedule = orDefault(s.Cache, cleaner.cacheSchedule)
		cleaner.gaugeSchedule = orDefault(s.Gauge, cleaner.gaugeSchedule)
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(sessions *iauth.SessionService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		audit:           audit,
		retention:       defaultAuditRetentionDays,
		orphanGrace:     defaultOrphanGrace,
		sessionSchedule: defaultSessionSpec,
		auditSchedule:   defaultAuditSpec,
		orphanSchedule:  defaultOrphanSpec,
		cacheSchedule:   defaultCacheSpec,
		gaugeSchedule:   defaultGaugeSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

func (c *Cleaner) jobs() []job {
	var jobs []job

	if c.sessions != nil {
		jobs = append(jobs, job{name: "sessions", schedule: c.sessionSchedule, run: c.cleanupSessions})
	}
	if c.audit != nil && c.retention > 0 {
		jobs = append(jobs, job{name: "audit", schedule: c.auditSchedule, run: c.pruneAudit})
	}
	if c.verifications != nil {
		jobs = append(jobs,
			job{name: "orphans", schedule: c.orphanSchedule, run: c.sweepOrphans},
			job{name: "pending_gauge", schedule: c.gaugeSchedule, run: c.refreshPendingGauge},
		)
	}
	if c.cacheStore != nil {
		jobs = append(jobs, job{name: "cache", schedule: c.cacheSchedule, run: c.purgeCache})
	}

	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	// Seed the pending gauge so the service's Inc/Dec start from the real queue size
	// instead of zero.
	if c.verifications != nil {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		if err := c.refreshPendingGauge(ctx); err != nil {
			c.log.Warn("initial pending gauge refresh failed", zap.Error(err))
		}
		cancel()
	}

	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := j.run(ctx); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s job: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		if err := j.run(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", j.name, err))
		}
	}
	return errs
}

func (c *Cleaner) cleanupSessions(ctx context.Context) error {
	removed, err := c.sessions.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("expired sessions removed", zap.Int64("count", removed))
	}
	return nil
}

func (c *Cleaner) pruneAudit(ctx context.Context) error {
	removed, err := c.audit.CleanupOlderThan(ctx, c.retention)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("audit logs pruned", zap.Int64("count", removed), zap.Int("retention_days", c.retention))
	}
	return nil
}

func (c *Cleaner) sweepOrphans(ctx context.Context) error {
	removed, err := c.verifications.ReconcileOrphans(ctx, c.orphanGrace)
	if removed > 0 {
		c.log.Info("orphaned identity cards removed", zap.Int("count", removed))
	}
	return err
}

func (c *Cleaner) refreshPendingGauge(ctx context.Context) error {
	count, err := c.verifications.PendingCount(ctx)
	if err != nil {
		return err
	}
	metrics.PendingVerifications.Set(float64(count))
	return nil
}

func (c *Cleaner) purgeCache(ctx context.Context) error {
	removed, err := c.cacheStore.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Debug("expired cache entries purged", zap.Int64("count", removed))
	}
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
