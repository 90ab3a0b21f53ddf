package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck probes a single dependency.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// DatabaseCheck pings the underlying sql.DB.
func DatabaseCheck(db *gorm.DB) HealthCheck {
	return HealthCheck{
		Name: "database",
		Probe: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

// HealthHandler reports liveness and readiness.
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler constructs a HealthHandler evaluating checks on readiness requests.
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type checkResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Live answers as long as the process serves HTTP.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"status":     "up",
		"checked_at": time.Now().UTC(),
	})
}

// Ready runs every registered check and answers 503 when one fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(requestContext(c), healthCheckTimeout)
	defer cancel()

	healthy := true
	results := make(map[string]checkResult, len(h.checks))
	for _, check := range h.checks {
		started := time.Now()
		err := check.Probe(ctx)
		result := checkResult{Status: "up", Duration: time.Since(started).String()}
		if err != nil {
			healthy = false
			result.Status = "down"
			result.Error = err.Error()
		}
		results[check.Name] = result
	}

	status := http.StatusOK
	overall := "up"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "down"
	}
	c.JSON(status, gin.H{
		"success":    healthy,
		"status":     overall,
		"checks":     results,
		"checked_at": time.Now().UTC(),
	})
}
