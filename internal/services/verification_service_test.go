package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/cache"
	"github.com/charlesng35/jasamarket/internal/database/testutil"
	"github.com/charlesng35/jasamarket/internal/events"
	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/internal/realtime"
	"github.com/charlesng35/jasamarket/internal/storage"
	apperrors "github.com/charlesng35/jasamarket/pkg/errors"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type verificationEnv struct {
	db        *gorm.DB
	store     *flakyStore
	recorder  *events.Recorder
	notifier  *profileNotifier
	svc       *VerificationService
	audit     *AuditService
	notifySvc *NotificationService
	cache     *cache.DatabaseStore
}

type profileNotifier struct {
	mu    sync.Mutex
	users []string
}

func (p *profileNotifier) NotifyProfileChanged(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
}

func (p *profileNotifier) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.users...)
}

// flakyStore wraps the afero store and fails selected operations.
type flakyStore struct {
	*storage.FSStore
	bucketErr error
	uploadErr error
	deleted   []string
}

func (f *flakyStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if f.bucketErr != nil {
		return false, f.bucketErr
	}
	return f.FSStore.BucketExists(ctx, bucket)
}

func (f *flakyStore) Upload(ctx context.Context, bucket, key string, r io.Reader, opts storage.UploadOptions) (storage.ObjectInfo, error) {
	if f.uploadErr != nil {
		return storage.ObjectInfo{}, f.uploadErr
	}
	return f.FSStore.Upload(ctx, bucket, key, r, opts)
}

func (f *flakyStore) Delete(ctx context.Context, bucket, key string) error {
	f.deleted = append(f.deleted, key)
	return f.FSStore.Delete(ctx, bucket, key)
}

func newVerificationEnv(t *testing.T, createBucket bool) *verificationEnv {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	fsStore, err := storage.NewFSStore(afero.NewMemMapFs(), "/data", "http://localhost:8000")
	require.NoError(t, err)
	if createBucket {
		require.NoError(t, fsStore.CreateBucket(context.Background(), DefaultVerificationBucket))
	}
	store := &flakyStore{FSStore: fsStore}

	audit, err := NewAuditService(db)
	require.NoError(t, err)
	notifications, err := NewNotificationService(db, realtime.NewHub())
	require.NoError(t, err)

	env := &verificationEnv{
		db:        db,
		store:     store,
		recorder:  &events.Recorder{},
		notifier:  &profileNotifier{},
		audit:     audit,
		notifySvc: notifications,
		cache:     cache.NewDatabaseStore(db),
	}
	env.svc, err = NewVerificationService(VerificationDeps{
		DB:            db,
		Store:         store,
		Audit:         audit,
		Notifications: notifications,
		Publisher:     env.recorder,
		Hub:           realtime.NewHub(),
		Sessions:      env.notifier,
		Cache:         env.cache,
	}, VerificationConfig{MaxUploadBytes: 1024})
	require.NoError(t, err)
	return env
}

func createProfile(t *testing.T, db *gorm.DB, email, role string) *models.Profile {
	t.Helper()
	profile := &models.Profile{
		Email:    email,
		Name:     strings.Split(email, "@")[0],
		Password: "hash",
		Role:     role,
	}
	require.NoError(t, db.Create(profile).Error)
	return profile
}

func seedRequest(t *testing.T, db *gorm.DB, userID, fullName, whatsapp string, status models.VerificationStatus, createdAt time.Time) *models.VerificationRequest {
	t.Helper()
	request := &models.VerificationRequest{
		BaseModel:      models.BaseModel{CreatedAt: createdAt},
		UserID:         userID,
		FullName:       fullName,
		WhatsAppNumber: whatsapp,
		Address:        models.Address{Province: "Jawa Barat", City: "Bandung", District: "Coblong", Village: "Dago", FullAddress: "Jl. Dago 1"},
		IDCardURL:      "http://localhost:8000/storage/id-cards/" + userID + "/card.png",
		IDCardKey:      userID + "/card.png",
		Status:         status,
	}
	require.NoError(t, db.Create(request).Error)
	return request
}

func submitInput(userID string, image []byte) SubmitVerificationInput {
	return SubmitVerificationInput{
		UserID:         userID,
		FullName:       "Ahmad Fauzi",
		WhatsAppNumber: "+62 812-3456-7890",
		Address: models.Address{
			Province:    "Jawa Barat",
			City:        "Bandung",
			District:    "",
			Village:     "",
			FullAddress: "Jl. Merdeka No. 10",
		},
		File: IDCardFile{
			Name:   "KTP.PNG",
			Size:   int64(len(image)),
			Reader: bytes.NewReader(image),
		},
	}
}

func TestVerificationAddressSurvivesReload(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()

	full := createProfile(t, env.db, "senayan@example.com", models.RoleUser)
	input := submitInput(full.ID, pngHeader)
	input.Address = models.Address{
		Province:    "Jakarta",
		City:        "Jakarta Selatan",
		District:    "Kebayoran",
		Village:     "Senayan",
		FullAddress: "Jl. X No. 1",
	}
	request, err := env.svc.Submit(ctx, input)
	require.NoError(t, err)

	reloaded, err := env.svc.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, input.Address, reloaded.Address)

	sparse := createProfile(t, env.db, "sparse@example.com", models.RoleUser)
	request, err = env.svc.Submit(ctx, submitInput(sparse.ID, pngHeader))
	require.NoError(t, err)

	reloaded, err = env.svc.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, models.Address{
		Province:    "Jawa Barat",
		City:        "Bandung",
		District:    models.AddressPlaceholder,
		Village:     models.AddressPlaceholder,
		FullAddress: "Jl. Merdeka No. 10",
	}, reloaded.Address)
}

func TestVerificationSubmitCreatesPendingRequest(t *testing.T) {
	env := newVerificationEnv(t, true)
	user := createProfile(t, env.db, "ahmad@example.com", models.RoleUser)
	ctx := context.Background()

	var progress []int
	input := submitInput(user.ID, pngHeader)
	input.Progress = func(p int) { progress = append(progress, p) }

	request, err := env.svc.Submit(ctx, input)
	require.NoError(t, err)
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.VerificationPending, request.Status)
	require.Equal(t, models.AddressPlaceholder, request.Address.District)
	require.Equal(t, models.AddressPlaceholder, request.Address.Village)
	require.True(t, strings.HasPrefix(request.IDCardKey, user.ID+"/"))
	require.True(t, strings.HasSuffix(request.IDCardKey, ".png"))
	require.Equal(t, env.store.PublicURL(DefaultVerificationBucket, request.IDCardKey), request.IDCardURL)
	require.Equal(t, 0, progress[0])
	require.Equal(t, 100, progress[len(progress)-1])

	reader, _, err := env.store.Open(ctx, DefaultVerificationBucket, request.IDCardKey)
	require.NoError(t, err)
	stored, err := io.ReadAll(reader)
	require.NoError(t, reader.Close())
	require.NoError(t, err)
	require.Equal(t, pngHeader, stored)

	require.Equal(t, []string{events.VerificationSubmitted}, env.recorder.Keys())

	pending, err := env.svc.HasPending(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, pending)

	logs, _, err := env.audit.List(ctx, AuditListOptions{Filters: AuditFilters{Action: "verification.submit"}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, request.ID, logs[0].ResourceID)
}

func TestVerificationSubmitRejectsSecondPendingRequest(t *testing.T) {
	env := newVerificationEnv(t, true)
	user := createProfile(t, env.db, "dup@example.com", models.RoleUser)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, submitInput(user.ID, pngHeader))
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, submitInput(user.ID, pngHeader))
	require.ErrorIs(t, err, ErrVerificationPendingExists)

	objects, err := env.store.List(ctx, DefaultVerificationBucket)
	require.NoError(t, err)
	require.Len(t, objects, 1)
}

func TestVerificationSubmitValidation(t *testing.T) {
	env := newVerificationEnv(t, true)
	user := createProfile(t, env.db, "invalid@example.com", models.RoleUser)
	ctx := context.Background()

	missingName := submitInput(user.ID, pngHeader)
	missingName.FullName = "   "
	_, err := env.svc.Submit(ctx, missingName)
	require.ErrorIs(t, err, ErrVerificationInvalid)

	missingAddress := submitInput(user.ID, pngHeader)
	missingAddress.Address.FullAddress = ""
	_, err = env.svc.Submit(ctx, missingAddress)
	require.ErrorIs(t, err, ErrVerificationInvalid)

	noFile := submitInput(user.ID, pngHeader)
	noFile.File.Reader = nil
	_, err = env.svc.Submit(ctx, noFile)
	require.ErrorIs(t, err, ErrVerificationInvalid)

	_, err = env.svc.Submit(ctx, submitInput(user.ID, []byte("%PDF-1.7 not an image")))
	require.ErrorIs(t, err, ErrUnsupportedImage)

	declaredLarge := submitInput(user.ID, pngHeader)
	declaredLarge.File.Size = 4096
	_, err = env.svc.Submit(ctx, declaredLarge)
	require.ErrorIs(t, err, ErrImageTooLarge)

	oversized := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 2048)...)
	unknownSize := submitInput(user.ID, oversized)
	unknownSize.File.Size = 0
	_, err = env.svc.Submit(ctx, unknownSize)
	require.ErrorIs(t, err, ErrImageTooLarge)

	objects, err := env.store.List(ctx, DefaultVerificationBucket)
	require.NoError(t, err)
	require.Empty(t, objects)
	require.Empty(t, env.recorder.Keys())
}

func TestVerificationSubmitBackendFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("bucket missing", func(t *testing.T) {
		env := newVerificationEnv(t, false)
		user := createProfile(t, env.db, "nobucket@example.com", models.RoleUser)

		_, err := env.svc.Submit(ctx, submitInput(user.ID, pngHeader))
		require.ErrorIs(t, err, ErrBucketMissing)
		require.True(t, apperrors.HasCode(err, "VERIFICATION_BUCKET_MISSING"))
	})

	t.Run("upload failed", func(t *testing.T) {
		env := newVerificationEnv(t, true)
		env.store.uploadErr = errors.New("network down")
		user := createProfile(t, env.db, "upload@example.com", models.RoleUser)

		_, err := env.svc.Submit(ctx, submitInput(user.ID, pngHeader))
		require.ErrorIs(t, err, ErrUploadFailed)

		var count int64
		require.NoError(t, env.db.Model(&models.VerificationRequest{}).Count(&count).Error)
		require.Zero(t, count)
	})

	t.Run("insert failed removes upload", func(t *testing.T) {
		env := newVerificationEnv(t, true)

		// No profile row exists, so the foreign key rejects the insert.
		_, err := env.svc.Submit(ctx, submitInput("6f1c2d3e-0000-4000-8000-000000000001", pngHeader))
		require.ErrorIs(t, err, ErrInsertFailed)
		require.Len(t, env.store.deleted, 1)

		objects, err := env.store.List(ctx, DefaultVerificationBucket)
		require.NoError(t, err)
		require.Empty(t, objects)
	})
}

func TestVerificationApproveCascadesToProfile(t *testing.T) {
	env := newVerificationEnv(t, true)
	user := createProfile(t, env.db, "provider@example.com", models.RoleUser)
	admin := createProfile(t, env.db, "admin@example.com", models.RoleAdmin)
	ctx := context.Background()

	request, err := env.svc.Submit(ctx, submitInput(user.ID, pngHeader))
	require.NoError(t, err)

	result, err := env.svc.Transition(ctx, TransitionInput{
		RequestID: request.ID,
		Target:    models.VerificationApproved,
		Notes:     "documents match",
		ActorID:   admin.ID,
		Actor:     admin.Email,
	})
	require.NoError(t, err)
	require.Equal(t, models.VerificationApproved, result.Request.Status)
	require.True(t, result.Profile.IsVerified)
	require.Equal(t, models.RoleProvider, result.Profile.Role)

	var stored models.Profile
	require.NoError(t, env.db.First(&stored, "id = ?", user.ID).Error)
	require.True(t, stored.IsVerified)
	require.Equal(t, models.RoleProvider, stored.Role)

	reloaded, err := env.svc.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, models.VerificationApproved, reloaded.Status)
	require.NotNil(t, reloaded.AdminNotes)
	require.Equal(t, "documents match", *reloaded.AdminNotes)
	require.NotNil(t, reloaded.ReviewedBy)
	require.Equal(t, admin.ID, *reloaded.ReviewedBy)
	require.NotNil(t, reloaded.ReviewedAt)
	require.NotNil(t, reloaded.Profile)

	pending, err := env.svc.HasPending(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, pending)

	require.Equal(t, []string{events.VerificationSubmitted, events.VerificationApproved}, env.recorder.Keys())
	require.Equal(t, []string{user.ID}, env.notifier.calls())

	items, err := env.notifySvc.ListForUser(ctx, ListNotificationsInput{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "verification.approved", items[0].Type)
}

func TestVerificationRejectKeepsRole(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()

	user := createProfile(t, env.db, "reject@example.com", models.RoleUser)
	request := seedRequest(t, env.db, user.ID, "Siti", "0812000111", models.VerificationPending, time.Now())

	_, err := env.svc.Transition(ctx, TransitionInput{RequestID: request.ID, Target: models.VerificationRejected})
	require.ErrorIs(t, err, ErrRejectionNotesRequired)

	result, err := env.svc.Transition(ctx, TransitionInput{
		RequestID: request.ID,
		Target:    models.VerificationRejected,
		Notes:     "photo is blurry",
	})
	require.NoError(t, err)
	require.Equal(t, models.VerificationRejected, result.Request.Status)
	require.False(t, result.Profile.IsVerified)
	require.Equal(t, models.RoleUser, result.Profile.Role)

	var stored models.Profile
	require.NoError(t, env.db.First(&stored, "id = ?", user.ID).Error)
	require.Equal(t, models.RoleUser, stored.Role)
	require.False(t, stored.IsVerified)

	items, err := env.notifySvc.ListForUser(ctx, ListNotificationsInput{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "photo is blurry", items[0].Message)
}

func TestVerificationApproveKeepsAdminRole(t *testing.T) {
	env := newVerificationEnv(t, true)
	admin := createProfile(t, env.db, "boss@example.com", models.RoleAdmin)
	request := seedRequest(t, env.db, admin.ID, "Boss", "0812999", models.VerificationPending, time.Now())

	result, err := env.svc.Transition(context.Background(), TransitionInput{RequestID: request.ID, Target: models.VerificationApproved})
	require.NoError(t, err)
	require.True(t, result.Profile.IsVerified)
	require.Equal(t, models.RoleAdmin, result.Profile.Role)
}

func TestVerificationTransitionRefusesTerminalAndUnknown(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()
	user := createProfile(t, env.db, "terminal@example.com", models.RoleUser)
	request := seedRequest(t, env.db, user.ID, "Rina", "0812", models.VerificationPending, time.Now())

	_, err := env.svc.Transition(ctx, TransitionInput{RequestID: request.ID, Target: models.VerificationPending})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.svc.Transition(ctx, TransitionInput{RequestID: "nope", Target: models.VerificationApproved})
	require.ErrorIs(t, err, ErrVerificationNotFound)

	_, err = env.svc.Transition(ctx, TransitionInput{RequestID: "6f1c2d3e-0000-4000-8000-00000000abcd", Target: models.VerificationApproved})
	require.ErrorIs(t, err, ErrVerificationNotFound)

	_, err = env.svc.Transition(ctx, TransitionInput{RequestID: request.ID, Target: models.VerificationApproved})
	require.NoError(t, err)

	_, err = env.svc.Transition(ctx, TransitionInput{RequestID: request.ID, Target: models.VerificationRejected, Notes: "changed my mind"})
	require.ErrorIs(t, err, ErrVerificationAlreadyDecided)

	var stored models.Profile
	require.NoError(t, env.db.First(&stored, "id = ?", user.ID).Error)
	require.True(t, stored.IsVerified)
	require.Equal(t, models.RoleProvider, stored.Role)
}

func TestVerificationConcurrentDecisionsFirstWins(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()
	user := createProfile(t, env.db, "race@example.com", models.RoleUser)
	request := seedRequest(t, env.db, user.ID, "Race", "0812", models.VerificationPending, time.Now())

	targets := []models.VerificationStatus{models.VerificationApproved, models.VerificationRejected}
	errs := make([]error, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target models.VerificationStatus) {
			defer wg.Done()
			_, errs[i] = env.svc.Transition(ctx, TransitionInput{RequestID: request.ID, Target: target, Notes: "decision"})
		}(i, target)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrVerificationAlreadyDecided)
	}
	require.Equal(t, 1, succeeded)

	var reloaded models.VerificationRequest
	require.NoError(t, env.db.First(&reloaded, "id = ?", request.ID).Error)
	var stored models.Profile
	require.NoError(t, env.db.First(&stored, "id = ?", user.ID).Error)
	require.Equal(t, reloaded.Status == models.VerificationApproved, stored.IsVerified)
}

func TestVerificationTransitionRollsBackWithoutProfile(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()
	user := createProfile(t, env.db, "ghost@example.com", models.RoleUser)
	request := seedRequest(t, env.db, user.ID, "Ghost", "0812", models.VerificationPending, time.Now())

	require.NoError(t, env.db.Exec("PRAGMA foreign_keys = OFF").Error)
	require.NoError(t, env.db.Delete(&models.Profile{}, "id = ?", user.ID).Error)

	_, err := env.svc.Transition(ctx, TransitionInput{RequestID: request.ID, Target: models.VerificationApproved})
	require.ErrorIs(t, err, ErrProfileNotFound)

	var reloaded models.VerificationRequest
	require.NoError(t, env.db.First(&reloaded, "id = ?", request.ID).Error)
	require.Equal(t, models.VerificationPending, reloaded.Status)
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(models.VerificationPending, models.VerificationApproved))
	require.True(t, CanTransition(models.VerificationPending, models.VerificationRejected))
	require.False(t, CanTransition(models.VerificationPending, models.VerificationPending))
	require.False(t, CanTransition(models.VerificationApproved, models.VerificationRejected))
	require.False(t, CanTransition(models.VerificationRejected, models.VerificationApproved))
}

func TestVerificationListFiltersAndSearches(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	rows := []struct {
		name     string
		whatsapp string
		status   models.VerificationStatus
	}{
		{"Ahmad Fauzi", "081200000001", models.VerificationPending},
		{"Budi Santoso", "081200000002", models.VerificationPending},
		{"Citra", "0812-AHMAD-3", models.VerificationApproved},
		{"Dewi", "081200000004", models.VerificationRejected},
		{"MUHAMMAD AHMADI", "081200000005", models.VerificationRejected},
	}
	for i, row := range rows {
		user := createProfile(t, env.db, fmt.Sprintf("user%d@example.com", i), models.RoleUser)
		seedRequest(t, env.db, user.ID, row.name, row.whatsapp, row.status, base.Add(time.Duration(i)*time.Minute))
	}

	pending, err := env.svc.List(ctx, ListVerificationsOptions{Status: "pending"})
	require.NoError(t, err)
	require.Equal(t, 2, pending.Total)
	require.Equal(t, "Budi Santoso", pending.Items[0].FullName)
	require.Equal(t, "Ahmad Fauzi", pending.Items[1].FullName)
	require.NotNil(t, pending.Items[0].Profile)
	for _, item := range pending.Items {
		require.Equal(t, models.VerificationPending, item.Status)
	}

	matches, err := env.svc.List(ctx, ListVerificationsOptions{Status: StatusFilterAll, Search: "ahmad"})
	require.NoError(t, err)
	require.Equal(t, 3, matches.Total)
	names := []string{matches.Items[0].FullName, matches.Items[1].FullName, matches.Items[2].FullName}
	require.Equal(t, []string{"MUHAMMAD AHMADI", "Citra", "Ahmad Fauzi"}, names)

	byPhone, err := env.svc.List(ctx, ListVerificationsOptions{Search: "000004"})
	require.NoError(t, err)
	require.Equal(t, 1, byPhone.Total)
	require.Equal(t, "Dewi", byPhone.Items[0].FullName)

	_, err = env.svc.List(ctx, ListVerificationsOptions{Status: "archived"})
	require.ErrorIs(t, err, ErrVerificationInvalid)
}

func TestVerificationListPaginates(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 25; i++ {
		user := createProfile(t, env.db, fmt.Sprintf("page%d@example.com", i), models.RoleUser)
		seedRequest(t, env.db, user.ID, fmt.Sprintf("Provider %02d", i), "0812", models.VerificationPending, base.Add(time.Duration(i)*time.Minute))
	}

	first, err := env.svc.List(ctx, ListVerificationsOptions{Status: "pending", Page: 1})
	require.NoError(t, err)
	require.Len(t, first.Items, 10)
	require.Equal(t, 3, first.TotalPages)
	require.Equal(t, 25, first.Total)
	require.Equal(t, "Provider 24", first.Items[0].FullName)

	last, err := env.svc.List(ctx, ListVerificationsOptions{Status: "pending", Page: 3})
	require.NoError(t, err)
	require.Len(t, last.Items, 5)
	require.Equal(t, "Provider 00", last.Items[4].FullName)

	beyond, err := env.svc.List(ctx, ListVerificationsOptions{Status: "pending", Page: 4})
	require.NoError(t, err)
	require.Empty(t, beyond.Items)
	require.Equal(t, 3, beyond.TotalPages)
}

func TestPaginate(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	page := Paginate(items, 1, 10)
	require.Len(t, page.Items, 10)
	require.Equal(t, 3, page.TotalPages)

	page = Paginate(items, 3, 10)
	require.Equal(t, []int{20, 21, 22, 23, 24}, page.Items)

	page = Paginate(items, 0, 0)
	require.Equal(t, 1, page.Page)
	require.Equal(t, DefaultVerificationPageSize, page.PageSize)

	empty := Paginate([]int{}, 1, 10)
	require.Empty(t, empty.Items)
	require.Zero(t, empty.TotalPages)

	beyond := Paginate(items, math.MaxInt, 10)
	require.Empty(t, beyond.Items)
	require.Equal(t, 3, beyond.TotalPages)

	huge := Paginate(items, 1, math.MaxInt)
	require.Len(t, huge.Items, 25)
	require.Equal(t, 1, huge.TotalPages)

	require.Empty(t, Paginate(items, 2, math.MaxInt).Items)
}

func TestVerificationHasPendingLeavesCacheToWriters(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()
	admin := createProfile(t, env.db, "admin@example.com", models.RoleAdmin)

	seeded := createProfile(t, env.db, "seeded@example.com", models.RoleUser)
	request := seedRequest(t, env.db, seeded.ID, "Seeded", "0812", models.VerificationPending, time.Now())

	pending, err := env.svc.HasPending(ctx, seeded.ID)
	require.NoError(t, err)
	require.True(t, pending)
	_, ok, err := env.cache.Get(ctx, pendingCacheKey(seeded.ID))
	require.NoError(t, err)
	require.False(t, ok, "a read must not populate the pending flag")

	// A decision landing after the read is reflected immediately.
	require.NoError(t, env.db.Model(request).Update("status", models.VerificationRejected).Error)
	pending, err = env.svc.HasPending(ctx, seeded.ID)
	require.NoError(t, err)
	require.False(t, pending)

	submitter := createProfile(t, env.db, "submitter@example.com", models.RoleUser)
	submitted, err := env.svc.Submit(ctx, submitInput(submitter.ID, pngHeader))
	require.NoError(t, err)
	value, ok, err := env.cache.Get(ctx, pendingCacheKey(submitter.ID))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), value)

	_, err = env.svc.Transition(ctx, TransitionInput{
		RequestID: submitted.ID,
		Target:    models.VerificationApproved,
		ActorID:   admin.ID,
		Actor:     admin.Email,
	})
	require.NoError(t, err)
	_, ok, err = env.cache.Get(ctx, pendingCacheKey(submitter.ID))
	require.NoError(t, err)
	require.False(t, ok)

	pending, err = env.svc.HasPending(ctx, submitter.ID)
	require.NoError(t, err)
	require.False(t, pending)
}

func TestVerificationHasPendingAndStatus(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()

	fresh := createProfile(t, env.db, "fresh@example.com", models.RoleUser)
	pending, err := env.svc.HasPending(ctx, fresh.ID)
	require.NoError(t, err)
	require.False(t, pending)

	latest, err := env.svc.Status(ctx, fresh.ID)
	require.NoError(t, err)
	require.Nil(t, latest)

	decided := createProfile(t, env.db, "decided@example.com", models.RoleUser)
	seedRequest(t, env.db, decided.ID, "Old", "0812", models.VerificationRejected, time.Now().Add(-2*time.Hour))
	seedRequest(t, env.db, decided.ID, "Newer", "0812", models.VerificationApproved, time.Now().Add(-time.Hour))

	pending, err = env.svc.HasPending(ctx, decided.ID)
	require.NoError(t, err)
	require.False(t, pending)

	latest, err = env.svc.Status(ctx, decided.ID)
	require.NoError(t, err)
	require.Equal(t, "Newer", latest.FullName)

	count, err := env.svc.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestVerificationHasPendingReportsBackendFailure(t *testing.T) {
	env := newVerificationEnv(t, true)
	svc, err := NewVerificationService(VerificationDeps{DB: env.db, Store: env.store}, VerificationConfig{})
	require.NoError(t, err)

	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	pending, err := svc.HasPending(context.Background(), "6f1c2d3e-0000-4000-8000-000000000002")
	require.Error(t, err)
	require.False(t, pending)
}

func TestVerificationReconcileOrphans(t *testing.T) {
	env := newVerificationEnv(t, true)
	ctx := context.Background()
	user := createProfile(t, env.db, "orphan@example.com", models.RoleUser)

	request, err := env.svc.Submit(ctx, submitInput(user.ID, pngHeader))
	require.NoError(t, err)

	_, err = env.store.Upload(ctx, DefaultVerificationBucket, user.ID+"/stray.png", bytes.NewReader(pngHeader), storage.UploadOptions{})
	require.NoError(t, err)

	removed, err := env.svc.ReconcileOrphans(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, removed)

	removed, err = env.svc.ReconcileOrphans(ctx, -time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	objects, err := env.store.List(ctx, DefaultVerificationBucket)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, request.IDCardKey, objects[0].Key)
}
