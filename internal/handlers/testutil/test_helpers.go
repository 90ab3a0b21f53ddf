package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/api"
	"github.com/charlesng35/jasamarket/internal/app"
	iauth "github.com/charlesng35/jasamarket/internal/auth"
	"github.com/charlesng35/jasamarket/internal/cache"
	sharedtestutil "github.com/charlesng35/jasamarket/internal/database/testutil"
	"github.com/charlesng35/jasamarket/internal/events"
	"github.com/charlesng35/jasamarket/internal/middleware"
	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/internal/realtime"
	"github.com/charlesng35/jasamarket/internal/services"
	"github.com/charlesng35/jasamarket/internal/storage"
	"github.com/charlesng35/jasamarket/pkg/crypto"
	"github.com/charlesng35/jasamarket/pkg/response"
)

// Fixtures seeded into every environment.
const (
	AdminEmail    = sharedtestutil.SeedAdminEmail
	AdminPassword = sharedtestutil.SeedAdminPassword
	PublicBaseURL = "http://localhost:8000"
)

// PNG is a minimal image accepted by the identity card sniffing.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	Config        *app.Config
	Store         *storage.FSStore
	Events        *events.Recorder
	Hub           *realtime.Hub
	Sessions      *iauth.SessionManager
	Verifications *services.VerificationService
	Notifications *services.NotificationService
	Audit         *services.AuditService
}

// Option adjusts the configuration before the router is built.
type Option func(cfg *app.Config)

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Server: app.ServerConfig{PublicBaseURL: PublicBaseURL},
		Verification: app.VerificationConfig{
			MaxUploadBytes: 64 << 10,
			PageSize:       10,
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	store := cache.NewDatabaseStore(db)
	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewStoreSessionCache(store)
	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, sessionCfg)
	require.NoError(t, err)

	local, err := iauth.NewLocalAuthenticator(db, cfg.Auth.LocalAuthConfig())
	require.NoError(t, err)

	manager, err := iauth.NewSessionManager(db, jwtSvc, sessionSvc, local)
	require.NoError(t, err)

	objects, err := storage.NewFSStore(afero.NewMemMapFs(), "/data", PublicBaseURL)
	require.NoError(t, err)
	require.NoError(t, objects.CreateBucket(context.Background(), services.DefaultVerificationBucket))

	hub := realtime.NewHub()
	recorder := &events.Recorder{}

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	notifications, err := services.NewNotificationService(db, hub)
	require.NoError(t, err)

	verifications, err := services.NewVerificationService(services.VerificationDeps{
		DB:            db,
		Store:         objects,
		Audit:         audit,
		Notifications: notifications,
		Publisher:     recorder,
		Hub:           hub,
		Sessions:      manager,
		Cache:         store,
	}, cfg.VerificationServiceConfig())
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:            db,
		Config:        cfg,
		Sessions:      manager,
		Verifications: verifications,
		Notifications: notifications,
		Audit:         audit,
		Store:         objects,
		Hub:           hub,
		RateStore:     middleware.NewCacheRateStore(store),
		Cache:         store,
	})
	require.NoError(t, err)

	return &Env{
		T:             t,
		DB:            db,
		Router:        router,
		Config:        cfg,
		Store:         objects,
		Events:        recorder,
		Hub:           hub,
		Sessions:      manager,
		Verifications: verifications,
		Notifications: notifications,
		Audit:         audit,
	}
}

// CreateProfile inserts a profile with the given role and returns the record.
func (e *Env) CreateProfile(email, password, role string) *models.Profile {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	profile := &models.Profile{
		Email:    email,
		Name:     "Test " + role,
		Password: hashed,
		Role:     role,
	}
	require.NoError(e.T, e.DB.Create(profile).Error)
	return profile
}

// TokenPair mirrors iauth.TokenPair as rendered by the API.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ProfilePayload captures the subset of profile fields returned from auth endpoints.
type ProfilePayload struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Tokens TokenPair      `json:"tokens"`
	User   ProfilePayload `json:"user"`
}

// Login authenticates with email and password and returns the issued token pair.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	require.Equal(e.T, email, result.User.Email)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

// FilePart is a file attached to a multipart request.
type FilePart struct {
	Field       string
	Name        string
	ContentType string
	Content     []byte
}

// RequestMultipart sends fields and an optional file as multipart/form-data.
func (e *Env) RequestMultipart(method, path string, fields map[string]string, file *FilePart, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(e.T, writer.WriteField(key, value))
	}
	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+file.Field+`"; filename="`+file.Name+`"`)
		if file.ContentType != "" {
			header.Set("Content-Type", file.ContentType)
		}
		part, err := writer.CreatePart(header)
		require.NoError(e.T, err)
		_, err = part.Write(file.Content)
		require.NoError(e.T, err)
	}
	require.NoError(e.T, writer.Close())

	req, err := http.NewRequest(method, path, &body)
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return e.serve(req, token)
}

func (e *Env) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// SubmissionFields returns a complete verification form.
func SubmissionFields(fullName string) map[string]string {
	return map[string]string{
		"full_name":       fullName,
		"whatsapp_number": "+62 812-3456-7890",
		"province":        "Jawa Barat",
		"city":            "Bandung",
		"district":        "Coblong",
		"village":         "Dago",
		"full_address":    "Jl. Ir. H. Juanda No. 10",
	}
}

// IDCard returns a PNG identity card attachment.
func IDCard() *FilePart {
	return &FilePart{Field: "id_card", Name: "ktp.png", ContentType: "image/png", Content: PNG}
}
