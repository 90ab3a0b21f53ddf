package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/app"
	"github.com/charlesng35/jasamarket/internal/models"
)

// CheckStatus captures the outcome of a posture check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	minSecretLength        = 32
	recommendedSecretLen   = 48
	maxRecommendedRefresh  = 30 * 24 * time.Hour
	maxRecommendedUpload   = 10 << 20
	checkAdminPresent      = "admin_account_present"
	checkJWTSecretStrength = "jwt_secret_strength"
	checkRefreshTTL        = "session_refresh_ttl"
	checkUploadLimit       = "id_card_upload_limit"
)

// Check contains the result of a single posture verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a per-status count.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed outright.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

// Checker evaluates the deployment's security-relevant configuration. Missing inputs
// degrade individual checks to warnings.
type Checker struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewChecker constructs a Checker.
func NewChecker(db *gorm.DB, cfg *app.Config) *Checker {
	return &Checker{db: db, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock stamped on results.
func (s *Checker) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all checks and returns their outcome.
func (s *Checker) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkAdminAccount(ctx),
		s.checkJWTSecret(),
		s.checkRefreshTTL(),
		s.checkUploadLimit(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

// Verification requests can only be moderated by an administrator, so a deployment
// without one accumulates pending requests forever.
func (s *Checker) checkAdminAccount(ctx context.Context) Check {
	if s.db == nil {
		return Check{
			ID:          checkAdminPresent,
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to confirm an administrator exists.",
			Remediation: "Ensure database connectivity before running the check.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("role = ?", models.RoleAdmin).
		Count(&count).Error; err != nil {
		return Check{
			ID:          checkAdminPresent,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          checkAdminPresent,
			Status:      StatusFail,
			Message:     "No administrator account found; verification requests cannot be reviewed.",
			Remediation: "Set JASAMARKET_AUTH_BOOTSTRAP_ADMIN_EMAIL and _PASSWORD and restart.",
		}
	}

	return Check{
		ID:      checkAdminPresent,
		Status:  StatusPass,
		Message: "Administrator account present.",
		Details: map[string]any{"count": count},
	}
}

func (s *Checker) checkJWTSecret() Check {
	if s.cfg == nil {
		return missingConfig(checkJWTSecretStrength)
	}

	length := len(strings.TrimSpace(s.cfg.Auth.JWT.Secret))
	switch {
	case length == 0:
		return Check{
			ID:          checkJWTSecretStrength,
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: fmt.Sprintf("Provide a random signing secret of at least %d bytes.", minSecretLength),
		}
	case length < minSecretLength:
		return Check{
			ID:          checkJWTSecretStrength,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: fmt.Sprintf("Use a randomly generated secret of at least %d bytes.", minSecretLength),
			Details:     map[string]any{"length": length},
		}
	case length < recommendedSecretLen:
		return Check{
			ID:          checkJWTSecretStrength,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider %d+ bytes.", length, recommendedSecretLen),
			Remediation: "Increase the length of JASAMARKET_AUTH_JWT_SECRET.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      checkJWTSecretStrength,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *Checker) checkRefreshTTL() Check {
	if s.cfg == nil {
		return missingConfig(checkRefreshTTL)
	}

	ttl := s.cfg.Auth.Session.RefreshTTL
	switch {
	case ttl <= 0:
		return Check{
			ID:          checkRefreshTTL,
			Status:      StatusWarn,
			Message:     "Refresh token TTL is not configured; using default duration.",
			Remediation: "Set JASAMARKET_AUTH_SESSION_REFRESH_TOKEN_TTL to control session lifetime.",
		}
	case ttl > maxRecommendedRefresh:
		return Check{
			ID:          checkRefreshTTL,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Refresh token TTL (%s) exceeds recommended maximum (%s).", ttl, maxRecommendedRefresh),
			Remediation: "Reduce refresh token TTL to 30 days or lower.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      checkRefreshTTL,
		Status:  StatusPass,
		Message: fmt.Sprintf("Refresh token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *Checker) checkUploadLimit() Check {
	if s.cfg == nil {
		return missingConfig(checkUploadLimit)
	}

	limit := s.cfg.Verification.MaxUploadBytes
	switch {
	case limit <= 0:
		return Check{
			ID:          checkUploadLimit,
			Status:      StatusWarn,
			Message:     "Identity card upload limit is not configured; the service default applies.",
			Remediation: "Set JASAMARKET_VERIFICATION_MAX_UPLOAD_BYTES.",
		}
	case limit > maxRecommendedUpload:
		return Check{
			ID:          checkUploadLimit,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Identity card upload limit (%d bytes) is unusually large.", limit),
			Remediation: "Keep the limit at 10 MiB or below to bound request memory.",
			Details:     map[string]any{"bytes": limit},
		}
	}

	return Check{
		ID:      checkUploadLimit,
		Status:  StatusPass,
		Message: fmt.Sprintf("Identity card upload limit is %d bytes.", limit),
		Details: map[string]any{"bytes": limit},
	}
}

func missingConfig(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded.",
		Remediation: "Load configuration before running the check.",
	}
}
