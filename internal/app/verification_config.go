package app

import (
	"strings"

	"github.com/charlesng35/jasamarket/internal/services"
)

// VerificationServiceConfig converts the verification settings into services.VerificationConfig.
// The bucket comes from the storage section.
func (c Config) VerificationServiceConfig() services.VerificationConfig {
	return services.VerificationConfig{
		Bucket:          strings.TrimSpace(c.Storage.Bucket),
		MaxUploadBytes:  c.Verification.MaxUploadBytes,
		PageSize:        c.Verification.PageSize,
		PendingCacheTTL: c.Verification.PendingCacheTTL,
	}
}

// StorageBaseURL is the prefix of identity card URLs; it falls back to the server's public URL.
func (c Config) StorageBaseURL() string {
	base := strings.TrimSpace(c.Storage.PublicBaseURL)
	if base == "" {
		base = strings.TrimSpace(c.Server.PublicBaseURL)
	}
	return strings.TrimSuffix(base, "/")
}
