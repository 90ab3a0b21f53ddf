package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/jasamarket/pkg/errors"
)

// Verification workflow errors. Codes name the failing step so clients can tell them apart.
var (
	ErrVerificationInvalid        = apperrors.New("VERIFICATION_INVALID", "Verification request is incomplete", http.StatusBadRequest)
	ErrVerificationPendingExists  = apperrors.New("VERIFICATION_PENDING_EXISTS", "A verification request is already awaiting review", http.StatusConflict)
	ErrUnsupportedImage           = apperrors.New("VERIFICATION_UNSUPPORTED_IMAGE", "Identity card must be a JPEG, PNG or WebP image", http.StatusUnsupportedMediaType)
	ErrImageTooLarge              = apperrors.New("VERIFICATION_IMAGE_TOO_LARGE", "Identity card image is too large", http.StatusRequestEntityTooLarge)
	ErrBucketMissing              = apperrors.New("VERIFICATION_BUCKET_MISSING", "Identity card storage is not configured", http.StatusInternalServerError)
	ErrUploadFailed               = apperrors.New("VERIFICATION_UPLOAD_FAILED", "Failed to upload identity card", http.StatusBadGateway)
	ErrInsertFailed               = apperrors.New("VERIFICATION_INSERT_FAILED", "Failed to save verification request", http.StatusInternalServerError)
	ErrVerificationNotFound       = apperrors.New("VERIFICATION_NOT_FOUND", "Verification request not found", http.StatusNotFound)
	ErrVerificationAlreadyDecided = apperrors.New("VERIFICATION_ALREADY_DECIDED", "Verification request has already been reviewed", http.StatusConflict)
	ErrInvalidTransition          = apperrors.New("VERIFICATION_INVALID_TRANSITION", "Verification requests can only be approved or rejected", http.StatusBadRequest)
	ErrRejectionNotesRequired     = apperrors.New("VERIFICATION_NOTES_REQUIRED", "A reason is required when rejecting a request", http.StatusBadRequest)
	ErrProfileNotFound            = apperrors.New("PROFILE_NOT_FOUND", "User profile not found", http.StatusNotFound)
)

const sqliteUniqueViolation = "UNIQUE constraint failed"

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	// sqlite surfaces constraint failures only through the message text.
	return strings.Contains(err.Error(), sqliteUniqueViolation)
}
