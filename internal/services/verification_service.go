package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/cache"
	"github.com/charlesng35/jasamarket/internal/events"
	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/internal/realtime"
	"github.com/charlesng35/jasamarket/internal/storage"
	apperrors "github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/logger"
	"github.com/charlesng35/jasamarket/pkg/metrics"
	"github.com/charlesng35/jasamarket/pkg/validator"
)

const (
	// DefaultVerificationBucket stores identity card images.
	DefaultVerificationBucket = "id-cards"
	// DefaultMaxIDCardBytes bounds a single identity card upload.
	DefaultMaxIDCardBytes int64 = 5 << 20
	// DefaultVerificationPageSize is the fixed admin table page size.
	DefaultVerificationPageSize = 10
	// MaxVerificationPageSize bounds a caller supplied page size.
	MaxVerificationPageSize = 200

	defaultPendingCacheTTL = 30 * time.Second
	sniffLength            = 3072
)

// StatusFilterAll disables status filtering in List.
const StatusFilterAll = "all"

var (
	allowedImageTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	}
	allowedImageExtensions = map[string]struct{}{
		".jpg":  {},
		".jpeg": {},
		".png":  {},
		".webp": {},
	}
	errFileTooLarge = errors.New("identity card exceeds the size limit")
)

// ProfileChangeNotifier is told when moderation rewrote a profile. auth.SessionManager satisfies it.
type ProfileChangeNotifier interface {
	NotifyProfileChanged(userID string)
}

// VerificationConfig tunes the verification workflow.
type VerificationConfig struct {
	Bucket          string
	MaxUploadBytes  int64
	PageSize        int
	PendingCacheTTL time.Duration
	Now             func() time.Time
}

// VerificationDeps lists the collaborators of VerificationService. Only DB and Store are required.
type VerificationDeps struct {
	DB            *gorm.DB
	Store         storage.ObjectStore
	Audit         *AuditService
	Notifications *NotificationService
	Publisher     events.Publisher
	Hub           *realtime.Hub
	Sessions      ProfileChangeNotifier
	Cache         cache.Store
}

// IDCardFile is the uploaded identity card image.
type IDCardFile struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// SubmitVerificationInput carries a provider application.
type SubmitVerificationInput struct {
	UserID         string `json:"user_id" validate:"required,notblank"`
	FullName       string `json:"full_name" validate:"required,notblank,max=255"`
	WhatsAppNumber string `json:"whatsapp_number" validate:"required,notblank,max=32"`
	Address        models.Address
	File           IDCardFile
	Progress       storage.ProgressFunc

	IPAddress string
	UserAgent string
}

// TransitionInput describes a moderation decision.
type TransitionInput struct {
	RequestID string
	Target    models.VerificationStatus
	Notes     string

	ActorID   string
	Actor     string
	IPAddress string
	UserAgent string
}

// TransitionResult is the state after a successful decision.
type TransitionResult struct {
	Request *models.VerificationRequest `json:"request"`
	Profile *models.Profile             `json:"profile"`
}

// ListVerificationsOptions filters the moderation queue.
type ListVerificationsOptions struct {
	Status   string
	Search   string
	Page     int
	PageSize int
}

// Page is one slice of a filtered result set.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Paginate slices items into pages of size pageSize. Pages past the end are empty.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultVerificationPageSize
	}
	if page < 1 {
		page = 1
	}

	total := len(items)
	result := Page[T]{
		Items:    []T{},
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}
	if total == 0 {
		return result
	}

	// Derived from total-1 so neither expression can overflow on huge inputs.
	lastPage := (total - 1) / pageSize
	result.TotalPages = lastPage + 1
	if page-1 > lastPage {
		return result
	}

	start := (page - 1) * pageSize
	end := start + min(pageSize, total-start)
	result.Items = items[start:end]
	return result
}

// CanTransition reports whether a request in state from may move to state to.
func CanTransition(from, to models.VerificationStatus) bool {
	return from == models.VerificationPending &&
		(to == models.VerificationApproved || to == models.VerificationRejected)
}

// VerificationService implements provider verification submission and moderation.
type VerificationService struct {
	db            *gorm.DB
	store         storage.ObjectStore
	audit         *AuditService
	notifications *NotificationService
	publisher     events.Publisher
	hub           *realtime.Hub
	sessions      ProfileChangeNotifier
	cache         cache.Store
	cfg           VerificationConfig
	log           *zap.Logger
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(deps VerificationDeps, cfg VerificationConfig) (*VerificationService, error) {
	if deps.DB == nil {
		return nil, errors.New("verification service: db is required")
	}
	if deps.Store == nil {
		return nil, errors.New("verification service: object store is required")
	}

	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultVerificationBucket
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxIDCardBytes
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultVerificationPageSize
	}
	if cfg.PendingCacheTTL <= 0 {
		cfg.PendingCacheTTL = defaultPendingCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.LogPublisher{}
	}

	return &VerificationService{
		db:            deps.DB,
		store:         deps.Store,
		audit:         deps.Audit,
		notifications: deps.Notifications,
		publisher:     publisher,
		hub:           deps.Hub,
		sessions:      deps.Sessions,
		cache:         deps.Cache,
		cfg:           cfg,
		log:           logger.WithModule("verification"),
	}, nil
}

// Bucket returns the bucket identity cards are stored in.
func (s *VerificationService) Bucket() string {
	return s.cfg.Bucket
}

// Submit uploads the identity card and records a pending verification request.
// The row is only inserted after the upload succeeded.
func (s *VerificationService) Submit(ctx context.Context, input SubmitVerificationInput) (*models.VerificationRequest, error) {
	ctx = ensureContext(ctx)

	request, err := s.submit(ctx, input)
	metrics.VerificationSubmissions.WithLabelValues(submissionResult(err)).Inc()
	if err != nil {
		recordAudit(s.audit, ctx, AuditEntry{
			UserID:    &input.UserID,
			Action:    "verification.submit",
			Resource:  "verification",
			Result:    AuditResultFailure,
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
			Metadata:  map[string]any{"error": apperrors.FromError(err).Code},
		})
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:     &request.UserID,
		Action:     "verification.submit",
		Resource:   "verification",
		ResourceID: request.ID,
		Result:     AuditResultSuccess,
		IPAddress:  input.IPAddress,
		UserAgent:  input.UserAgent,
		Metadata:   map[string]any{"id_card_key": request.IDCardKey},
	})

	s.markPending(ctx, request.UserID)
	metrics.PendingVerifications.Inc()
	s.publish(ctx, events.VerificationSubmitted, request, "", "")

	if s.hub != nil {
		s.hub.BroadcastToUser(realtime.StreamVerification, request.UserID, realtime.Message{
			Event: events.VerificationSubmitted,
			Data:  request,
		})
		s.hub.BroadcastStream(realtime.StreamAdminVerifications, realtime.Message{
			Event: events.VerificationSubmitted,
			Data:  request,
		})
	}

	s.log.Info("verification submitted",
		zap.String("request_id", request.ID),
		zap.String("user_id", request.UserID),
	)
	return request, nil
}

func (s *VerificationService) submit(ctx context.Context, input SubmitVerificationInput) (*models.VerificationRequest, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.FullName = strings.TrimSpace(input.FullName)
	input.WhatsAppNumber = strings.TrimSpace(input.WhatsAppNumber)

	if err := validator.ValidateStruct(input); err != nil {
		return nil, ErrVerificationInvalid.WithMessage(err.Error())
	}
	address, err := normalizeAddress(input.Address)
	if err != nil {
		return nil, err
	}
	body, ext, contentType, err := s.inspectImage(input.File)
	if err != nil {
		return nil, err
	}

	pending, err := s.countPending(ctx, input.UserID)
	if err != nil {
		return nil, ErrInsertFailed.WithInternal(err)
	}
	if pending > 0 {
		return nil, ErrVerificationPendingExists
	}

	exists, err := s.store.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return nil, ErrUploadFailed.WithInternal(err)
	}
	if !exists {
		return nil, ErrBucketMissing.WithMessage(fmt.Sprintf("Storage bucket %q does not exist", s.cfg.Bucket))
	}

	key := input.UserID + "/" + uuid.NewString() + ext
	info, err := s.store.Upload(ctx, s.cfg.Bucket, key, body, storage.UploadOptions{
		ContentType: contentType,
		Size:        input.File.Size,
		Progress:    input.Progress,
	})
	if err != nil {
		if errors.Is(err, errFileTooLarge) {
			return nil, ErrImageTooLarge
		}
		return nil, ErrUploadFailed.WithInternal(err)
	}
	metrics.UploadBytes.Observe(float64(info.Size))

	request := models.VerificationRequest{
		UserID:         input.UserID,
		FullName:       input.FullName,
		WhatsAppNumber: input.WhatsAppNumber,
		Address:        address,
		IDCardURL:      s.store.PublicURL(s.cfg.Bucket, key),
		IDCardKey:      key,
		Status:         models.VerificationPending,
	}
	if err := s.db.WithContext(ctx).Create(&request).Error; err != nil {
		s.discardUpload(key, err)
		if isUniqueConstraintError(err) {
			return nil, ErrVerificationPendingExists
		}
		return nil, ErrInsertFailed.WithInternal(err)
	}

	return &request, nil
}

// discardUpload removes an object whose row could not be written. The orphan
// sweep catches anything left behind when this fails too.
func (s *VerificationService) discardUpload(key string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.Delete(ctx, s.cfg.Bucket, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.log.Warn("failed to discard orphaned upload",
			zap.String("key", key),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

func (s *VerificationService) inspectImage(file IDCardFile) (io.Reader, string, string, error) {
	if file.Reader == nil {
		return nil, "", "", ErrVerificationInvalid.WithMessage("Identity card image is required")
	}
	if file.Size > s.cfg.MaxUploadBytes {
		return nil, "", "", ErrImageTooLarge
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(file.Reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", "", ErrVerificationInvalid.WithMessage("Identity card image could not be read").WithInternal(err)
	}
	head = head[:n]
	if n == 0 {
		return nil, "", "", ErrVerificationInvalid.WithMessage("Identity card image is empty")
	}

	detected := mimetype.Detect(head)
	contentType := ""
	for candidate := range allowedImageTypes {
		if detected.Is(candidate) {
			contentType = candidate
			break
		}
	}
	if contentType == "" {
		return nil, "", "", ErrUnsupportedImage
	}

	ext := strings.ToLower(path.Ext(file.Name))
	if _, ok := allowedImageExtensions[ext]; !ok {
		ext = allowedImageTypes[contentType]
	}

	body := &limitedReader{
		r:         io.MultiReader(bytes.NewReader(head), file.Reader),
		remaining: s.cfg.MaxUploadBytes,
	}
	return body, ext, contentType, nil
}

func normalizeAddress(address models.Address) (models.Address, error) {
	address.Province = defaultIfEmpty(strings.TrimSpace(address.Province), models.AddressPlaceholder)
	address.City = defaultIfEmpty(strings.TrimSpace(address.City), models.AddressPlaceholder)
	address.District = defaultIfEmpty(strings.TrimSpace(address.District), models.AddressPlaceholder)
	address.Village = defaultIfEmpty(strings.TrimSpace(address.Village), models.AddressPlaceholder)
	address.FullAddress = strings.TrimSpace(address.FullAddress)
	if address.FullAddress == "" {
		return address, ErrVerificationInvalid.WithMessage("Full address is required")
	}
	return address, nil
}

// Transition applies a moderation decision to a pending request and cascades it onto the
// owner's profile. Both writes share one transaction; a request that is no longer pending
// yields ErrVerificationAlreadyDecided.
func (s *VerificationService) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	ctx = ensureContext(ctx)

	result, err := s.transition(ctx, input)
	metrics.VerificationTransitions.WithLabelValues(string(input.Target), transitionResult(err)).Inc()
	if err != nil {
		if !errors.Is(err, ErrVerificationNotFound) && !errors.Is(err, ErrInvalidTransition) {
			recordAudit(s.audit, ctx, AuditEntry{
				UserID:     stringPtr(input.ActorID),
				Actor:      input.Actor,
				Action:     transitionAction(input.Target),
				Resource:   "verification",
				ResourceID: input.RequestID,
				Result:     AuditResultFailure,
				IPAddress:  input.IPAddress,
				UserAgent:  input.UserAgent,
				Metadata:   map[string]any{"error": apperrors.FromError(err).Code},
			})
		}
		return nil, err
	}

	s.afterTransition(ctx, input, result)
	return result, nil
}

func (s *VerificationService) transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	target := models.VerificationStatus(strings.ToLower(strings.TrimSpace(string(input.Target))))
	if !CanTransition(models.VerificationPending, target) {
		return nil, ErrInvalidTransition
	}
	notes := strings.TrimSpace(input.Notes)
	if target == models.VerificationRejected && notes == "" {
		return nil, ErrRejectionNotesRequired
	}
	if !isUUID(input.RequestID) {
		return nil, ErrVerificationNotFound
	}

	now := s.cfg.Now().UTC()
	var result TransitionResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&models.VerificationRequest{}).
			Where("id = ? AND status = ?", input.RequestID, models.VerificationPending).
			Updates(map[string]any{
				"status":      target,
				"admin_notes": stringPtr(notes),
				"reviewed_by": stringPtr(input.ActorID),
				"reviewed_at": now,
			})
		if update.Error != nil {
			return fmt.Errorf("verification service: update request: %w", update.Error)
		}

		var request models.VerificationRequest
		if err := tx.First(&request, "id = ?", input.RequestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVerificationNotFound
			}
			return fmt.Errorf("verification service: load request: %w", err)
		}
		if update.RowsAffected == 0 {
			return ErrVerificationAlreadyDecided.WithMessage(
				fmt.Sprintf("Verification request was already %s", request.Status),
			)
		}

		var profile models.Profile
		if err := tx.First(&profile, "id = ?", request.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return fmt.Errorf("verification service: load profile: %w", err)
		}

		changes := map[string]any{"is_verified": target == models.VerificationApproved}
		if target == models.VerificationApproved && !profile.IsAdmin() {
			changes["role"] = models.RoleProvider
		}
		if err := tx.Model(&profile).Updates(changes).Error; err != nil {
			return fmt.Errorf("verification service: update profile: %w", err)
		}

		profile.IsVerified = target == models.VerificationApproved
		if role, ok := changes["role"].(string); ok {
			profile.Role = role
		}
		request.Profile = &profile
		result = TransitionResult{Request: &request, Profile: &profile}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	return &result, nil
}

func (s *VerificationService) afterTransition(ctx context.Context, input TransitionInput, result *TransitionResult) {
	request := result.Request
	notes := derefString(request.AdminNotes)

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:     stringPtr(input.ActorID),
		Actor:      input.Actor,
		Action:     transitionAction(request.Status),
		Resource:   "verification",
		ResourceID: request.ID,
		Result:     AuditResultSuccess,
		IPAddress:  input.IPAddress,
		UserAgent:  input.UserAgent,
		Metadata: map[string]any{
			"user_id": request.UserID,
			"notes":   notes,
			"role":    result.Profile.Role,
		},
	})

	s.invalidatePending(ctx, request.UserID)
	metrics.PendingVerifications.Dec()

	routingKey := events.VerificationApproved
	if request.Status == models.VerificationRejected {
		routingKey = events.VerificationRejected
	}
	s.publish(ctx, routingKey, request, input.ActorID, notes)

	if s.notifications != nil {
		if _, err := s.notifications.Create(ctx, decisionNotification(request)); err != nil {
			s.log.Warn("failed to create decision notification",
				zap.String("request_id", request.ID),
				zap.Error(err),
			)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastToUser(realtime.StreamVerification, request.UserID, realtime.Message{
			Event: routingKey,
			Data:  result,
		})
		s.hub.BroadcastStream(realtime.StreamAdminVerifications, realtime.Message{
			Event: routingKey,
			Data:  request,
		})
	}

	if s.sessions != nil {
		s.sessions.NotifyProfileChanged(request.UserID)
	}

	s.log.Info("verification decided",
		zap.String("request_id", request.ID),
		zap.String("status", string(request.Status)),
		zap.String("reviewer", input.ActorID),
	)
}

func decisionNotification(request *models.VerificationRequest) CreateNotificationInput {
	input := CreateNotificationInput{
		UserID:    request.UserID,
		Type:      "verification." + string(request.Status),
		ActionURL: "/provider/verification",
		Metadata:  map[string]any{"request_id": request.ID},
	}
	if request.Status == models.VerificationApproved {
		input.Title = "Verification approved"
		input.Message = "Your identity has been verified. You can now offer services as a provider."
		input.Severity = models.SeveritySuccess
		return input
	}
	input.Title = "Verification rejected"
	input.Message = defaultIfEmpty(derefString(request.AdminNotes), "Your verification request was rejected.")
	input.Severity = models.SeverityWarning
	return input
}

// List returns the moderation queue filtered by status and search term, newest first.
// The search term is matched after retrieval against the full name and WhatsApp number.
func (s *VerificationService) List(ctx context.Context, opts ListVerificationsOptions) (Page[models.VerificationRequest], error) {
	ctx = ensureContext(ctx)

	status := strings.ToLower(strings.TrimSpace(opts.Status))
	if status == "" {
		status = StatusFilterAll
	}
	if status != StatusFilterAll && !models.VerificationStatus(status).Valid() {
		return Page[models.VerificationRequest]{}, ErrVerificationInvalid.WithMessage(
			fmt.Sprintf("Unknown status filter %q", opts.Status),
		)
	}

	query := s.db.WithContext(ctx).Preload("Profile").Order("created_at DESC")
	if status != StatusFilterAll {
		query = query.Where("status = ?", status)
	}

	var rows []models.VerificationRequest
	if err := query.Find(&rows).Error; err != nil {
		return Page[models.VerificationRequest]{}, fmt.Errorf("verification service: list requests: %w", err)
	}

	filtered := filterBySearch(rows, opts.Search)

	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > MaxVerificationPageSize {
		pageSize = s.cfg.PageSize
	}
	return Paginate(filtered, opts.Page, pageSize), nil
}

func filterBySearch(rows []models.VerificationRequest, search string) []models.VerificationRequest {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return rows
	}
	filtered := make([]models.VerificationRequest, 0, len(rows))
	for _, row := range rows {
		if containsFold(row.FullName, needle) || containsFold(row.WhatsAppNumber, needle) {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// Get returns a single request with its owner's profile.
func (s *VerificationService) Get(ctx context.Context, id string) (*models.VerificationRequest, error) {
	ctx = ensureContext(ctx)
	if !isUUID(id) {
		return nil, ErrVerificationNotFound
	}

	var request models.VerificationRequest
	if err := s.db.WithContext(ctx).Preload("Profile").First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVerificationNotFound
		}
		return nil, fmt.Errorf("verification service: get request: %w", err)
	}
	return &request, nil
}

// Status returns the user's most recent request, or nil when they never applied.
func (s *VerificationService) Status(ctx context.Context, userID string) (*models.VerificationRequest, error) {
	ctx = ensureContext(ctx)

	var request models.VerificationRequest
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(1).
		Take(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("verification service: load status: %w", err)
	}
	return &request, nil
}

// HasPending reports whether the user has a request awaiting review. On a backend
// failure it returns false together with the error.
func (s *VerificationService) HasPending(ctx context.Context, userID string) (bool, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}

	if s.cache != nil {
		if value, ok, err := s.cache.Get(ctx, pendingCacheKey(userID)); err == nil && ok {
			return string(value) == "1", nil
		} else if err != nil {
			s.log.Debug("pending cache lookup failed", zap.Error(err))
		}
	}

	// The read path never writes the key: Submit sets it and Transition clears it, so a
	// count taken before either of them cannot overwrite their newer value.
	count, err := s.countPending(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("verification service: check pending: %w", err)
	}
	return count > 0, nil
}

// PendingCount returns the size of the moderation queue.
func (s *VerificationService) PendingCount(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.VerificationRequest{}).
		Where("status = ?", models.VerificationPending).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("verification service: count pending: %w", err)
	}
	return count, nil
}

// ReconcileOrphans deletes stored identity cards that no request references. Objects
// younger than grace are skipped so in-flight submissions are left alone.
func (s *VerificationService) ReconcileOrphans(ctx context.Context, grace time.Duration) (int, error) {
	ctx = ensureContext(ctx)

	objects, err := s.store.List(ctx, s.cfg.Bucket)
	if err != nil {
		if errors.Is(err, storage.ErrBucketNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("verification service: list objects: %w", err)
	}

	cutoff := s.cfg.Now().Add(-grace)
	candidates := make([]string, 0, len(objects))
	for _, object := range objects {
		if object.ModifiedAt.Before(cutoff) {
			candidates = append(candidates, object.Key)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	referenced := make(map[string]struct{}, len(candidates))
	const batch = 500
	for start := 0; start < len(candidates); start += batch {
		end := min(start+batch, len(candidates))
		var keys []string
		if err := s.db.WithContext(ctx).
			Model(&models.VerificationRequest{}).
			Where("id_card_key IN ?", candidates[start:end]).
			Pluck("id_card_key", &keys).Error; err != nil {
			return 0, fmt.Errorf("verification service: load referenced keys: %w", err)
		}
		for _, key := range keys {
			referenced[key] = struct{}{}
		}
	}

	var (
		removed int
		errs    error
	)
	for _, key := range candidates {
		if _, ok := referenced[key]; ok {
			continue
		}
		if err := s.store.Delete(ctx, s.cfg.Bucket, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			errs = multierr.Append(errs, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		removed++
	}
	return removed, errs
}

func (s *VerificationService) countPending(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.VerificationRequest{}).
		Where("user_id = ? AND status = ?", userID, models.VerificationPending).
		Count(&count).Error
	return count, err
}

func (s *VerificationService) markPending(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, pendingCacheKey(userID), []byte("1"), s.cfg.PendingCacheTTL); err != nil {
		s.log.Debug("pending cache write failed", zap.Error(err))
	}
}

func (s *VerificationService) invalidatePending(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, pendingCacheKey(userID)); err != nil {
		s.log.Debug("pending cache invalidation failed", zap.Error(err))
	}
}

func (s *VerificationService) publish(ctx context.Context, routingKey string, request *models.VerificationRequest, actorID, notes string) {
	envelope := events.NewEnvelope(routingKey, events.VerificationPayload{
		RequestID:  request.ID,
		UserID:     request.UserID,
		Status:     string(request.Status),
		ActorID:    actorID,
		AdminNotes: notes,
	})
	if err := s.publisher.Publish(ctx, routingKey, envelope); err != nil {
		s.log.Warn("failed to publish verification event",
			zap.String("routing_key", routingKey),
			zap.String("request_id", request.ID),
			zap.Error(err),
		)
	}
}

func pendingCacheKey(userID string) string {
	return "verification:pending:" + userID
}

func transitionAction(target models.VerificationStatus) string {
	switch target {
	case models.VerificationApproved:
		return "verification.approve"
	case models.VerificationRejected:
		return "verification.reject"
	default:
		return "verification.transition"
	}
}

func submissionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrVerificationPendingExists):
		return "pending_exists"
	case errors.Is(err, ErrBucketMissing):
		return "bucket_missing"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, ErrInsertFailed):
		return "insert_failed"
	default:
		return "invalid"
	}
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrVerificationAlreadyDecided):
		return "conflict"
	case errors.Is(err, ErrVerificationNotFound), errors.Is(err, ErrProfileNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrRejectionNotesRequired):
		return "invalid"
	default:
		return "error"
	}
}

// limitedReader fails once more than remaining bytes were read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errFileTooLarge
	}
	return n, err
}
