package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/pkg/logger"
	"github.com/charlesng35/jasamarket/pkg/metrics"
)

// SessionEventKind names the session lifecycle change being announced.
type SessionEventKind string

const (
	SessionSignedIn       SessionEventKind = "signed_in"
	SessionRefreshed      SessionEventKind = "refreshed"
	SessionSignedOut      SessionEventKind = "signed_out"
	SessionProfileChanged SessionEventKind = "profile_changed"
)

// SessionEvent is delivered to every subscriber.
type SessionEvent struct {
	Kind      SessionEventKind `json:"kind"`
	UserID    string           `json:"user_id"`
	SessionID string           `json:"session_id,omitempty"`
	At        time.Time        `json:"at"`
}

// SessionListener receives session events. Listeners run synchronously and must not block.
type SessionListener func(SessionEvent)

// ErrUnauthenticated is returned by CurrentUser for any token that does not map to a live session.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// SessionManager is the single entry point for sign-in state. It resolves the current user
// from an access token and lets other components observe session changes.
type SessionManager struct {
	db       *gorm.DB
	jwt      *JWTService
	sessions *SessionService
	local    *LocalAuthenticator
	now      func() time.Time

	mu        sync.RWMutex
	listeners map[uint64]SessionListener
	nextID    uint64
}

// NewSessionManager wires the manager to its collaborators.
func NewSessionManager(db *gorm.DB, jwtService *JWTService, sessions *SessionService, local *LocalAuthenticator) (*SessionManager, error) {
	if db == nil {
		return nil, errors.New("session manager: db is required")
	}
	if jwtService == nil || sessions == nil || local == nil {
		return nil, errors.New("session manager: jwt, session and local auth services are required")
	}
	return &SessionManager{
		db:        db,
		jwt:       jwtService,
		sessions:  sessions,
		local:     local,
		now:       time.Now,
		listeners: make(map[uint64]SessionListener),
	}, nil
}

// Subscribe registers fn and returns a function that removes it again.
func (m *SessionManager) Subscribe(fn SessionListener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Register creates a profile and signs it in.
func (m *SessionManager) Register(ctx context.Context, input RegisterInput, meta SessionMetadata) (*models.Profile, TokenPair, error) {
	profile, err := m.local.Register(ctx, input)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return m.startSession(ctx, profile, meta)
}

// SignIn authenticates email and password and opens a session.
func (m *SessionManager) SignIn(ctx context.Context, input AuthenticateInput, meta SessionMetadata) (*models.Profile, TokenPair, error) {
	if input.IPAddress == "" {
		input.IPAddress = meta.IPAddress
	}
	profile, err := m.local.Authenticate(ctx, input)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, TokenPair{}, err
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return m.startSession(ctx, profile, meta)
}

func (m *SessionManager) startSession(ctx context.Context, profile *models.Profile, meta SessionMetadata) (*models.Profile, TokenPair, error) {
	pair, session, err := m.sessions.CreateSession(ctx, profile, meta)
	if err != nil {
		return nil, TokenPair{}, err
	}
	m.emit(SessionEvent{Kind: SessionSignedIn, UserID: profile.ID, SessionID: session.ID})
	return profile, pair, nil
}

// Refresh rotates the refresh token.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	pair, session, err := m.sessions.RefreshSession(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	m.emit(SessionEvent{Kind: SessionRefreshed, UserID: session.UserID, SessionID: session.ID})
	return pair, nil
}

// SignOut revokes the session.
func (m *SessionManager) SignOut(ctx context.Context, userID, sessionID string) error {
	if err := m.sessions.RevokeSession(ctx, sessionID); err != nil {
		return err
	}
	m.emit(SessionEvent{Kind: SessionSignedOut, UserID: userID, SessionID: sessionID})
	return nil
}

// CurrentUser resolves the profile behind an access token. The profile is always read
// fresh so moderation decisions are visible without re-authenticating.
func (m *SessionManager) CurrentUser(ctx context.Context, accessToken string) (*models.Profile, *Claims, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, nil, ErrUnauthenticated
	}

	claims, err := m.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if claims.SessionID != "" {
		if err := m.sessions.Validate(ctx, claims.SessionID); err != nil {
			if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionRevoked) || errors.Is(err, ErrSessionExpired) {
				return nil, nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
			}
			return nil, nil, err
		}
	}

	var profile models.Profile
	err = m.db.WithContext(ctx).Take(&profile, "id = ?", claims.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, nil, fmt.Errorf("session manager: load profile: %w", err)
	}

	return &profile, claims, nil
}

// NotifyProfileChanged tells subscribers that the user's profile was modified elsewhere.
func (m *SessionManager) NotifyProfileChanged(userID string) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	m.emit(SessionEvent{Kind: SessionProfileChanged, UserID: userID})
}

func (m *SessionManager) emit(event SessionEvent) {
	if event.At.IsZero() {
		event.At = m.now()
	}

	m.mu.RLock()
	listeners := make([]SessionListener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		m.safeCall(fn, event)
	}
}

func (m *SessionManager) safeCall(fn SessionListener, event SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithModule("auth").Error("session listener panicked",
				zap.String("kind", string(event.Kind)),
				zap.Any("panic", r),
			)
		}
	}()
	fn(event)
}
