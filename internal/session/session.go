/**
 * @description
 * Package session owns the explicit user session. A session is created once
 * from a verified Firebase ID token, addressed afterwards by its opaque id in
 * the X-Session-ID header, and destroyed on sign-out. Handlers read the
 * session from the request context instead of a process-wide current user.
 */
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 12 * time.Hour

var (
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrNoSession       = errors.New("no session in context")
)

// Session is an authenticated user session.
type Session struct {
	ID          string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Store persists sessions.
type Store interface {
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// UserInitializer creates the user's document on first sign-in.
type UserInitializer interface {
	EnsureUser(ctx context.Context, userID, email, displayName string) error
}

// Manager creates and resolves sessions.
type Manager struct {
	store    Store
	verifier TokenVerifier
	users    UserInitializer
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a session manager. users may be nil.
func NewManager(store Store, verifier TokenVerifier, users UserInitializer, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		verifier: verifier,
		users:    users,
		ttl:      ttl,
		logger:   logger.With("component", "session"),
		now:      time.Now,
	}
}

// Create verifies the ID token and opens a new session.
func (m *Manager) Create(ctx context.Context, idToken string) (*Session, error) {
	identity, err := m.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s := &Session{
		ID:          uuid.NewString(),
		UserID:      identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return nil, err
	}

	if m.users != nil {
		if err := m.users.EnsureUser(ctx, s.UserID, s.Email, s.DisplayName); err != nil {
			m.logger.Warn("failed to initialise user document", "user_id", s.UserID, "error", err)
		}
	}
	m.logger.Info("session created", "user_id", s.UserID, "session_id", s.ID)
	return s, nil
}

// Resolve returns a live session.
func (m *Manager) Resolve(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.ExpiresAt.IsZero() && m.now().After(s.ExpiresAt) {
		_ = m.store.Delete(ctx, id)
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Invalidate ends a session. Ending an unknown session is not an error.
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

type contextKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session placed by the session middleware.
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	if !ok || s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}
