// Package auth provides optional Google sign-in. When enabled, every
// workspace belongs to the signed-in user that created it.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// ProviderGoogle is the name of the Google OAuth provider
	ProviderGoogle = "google"

	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	stateTTL          = 10 * time.Minute
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrInvalidState    = errors.New("invalid oauth state")
)

// UserSession represents a user session
type UserSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Provider  string    `json:"provider"`
	Expiry    time.Time `json:"expiry"`
	CreatedAt time.Time `json:"createdAt"`
}

// User represents an authenticated user
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	Provider  string `json:"provider"`
}

// Config holds the OAuth client settings
type Config struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	SessionExpiry time.Duration

	// overridable for tests
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// Manager keeps users, sessions and pending login states in memory
type Manager struct {
	oauth       *oauth2.Config
	userInfoURL string
	expiry      time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	users    map[string]*User
	sessions map[string]*UserSession
	states   map[string]time.Time
}

// NewManager creates an authentication manager for Google sign-in
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionExpiry <= 0 {
		cfg.SessionExpiry = 24 * time.Hour
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}

	return &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     cfg.Endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		expiry:      cfg.SessionExpiry,
		logger:      logger.Named("auth"),
		now:         time.Now,
		users:       make(map[string]*User),
		sessions:    make(map[string]*UserSession),
		states:      make(map[string]time.Time),
	}
}

// LoginURL returns the provider consent URL and remembers its state
func (m *Manager) LoginURL() (string, error) {
	state, err := randomToken()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.states[state] = m.now().Add(stateTTL)
	m.mu.Unlock()

	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Callback completes a login: it checks state, exchanges code and opens a
// session for the user
func (m *Manager) Callback(ctx context.Context, code, state string) (*UserSession, error) {
	m.mu.Lock()
	deadline, ok := m.states[state]
	delete(m.states, state)
	m.mu.Unlock()
	if !ok || m.now().After(deadline) {
		return nil, ErrInvalidState
	}
	if code == "" {
		return nil, errors.New("code not found in callback")
	}

	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	user, err := m.fetchUser(ctx, token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.users[user.ID] = user
	m.mu.Unlock()

	session, err := m.createSession(user.ID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("user signed in", zap.String("user", user.ID))
	return session, nil
}

func (m *Manager) fetchUser(ctx context.Context, token *oauth2.Token) (*User, error) {
	client := m.oauth.Client(ctx, token)
	resp, err := client.Get(m.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info request failed: %s", resp.Status)
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if !info.EmailVerified {
		return nil, errors.New("email not verified")
	}

	return &User{
		ID:        info.Sub,
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.Picture,
		Provider:  ProviderGoogle,
	}, nil
}

func (m *Manager) createSession(userID string) (*UserSession, error) {
	id, err := randomToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	session := &UserSession{
		ID:        id,
		UserID:    userID,
		Provider:  ProviderGoogle,
		Expiry:    now.Add(m.expiry),
		CreatedAt: now,
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()
	return session, nil
}

// Logout invalidates a session
func (m *Manager) Logout(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// UserBySession returns the user of a live session
func (m *Manager) UserBySession(sessionID string) (*User, *UserSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	if session.Expiry.Before(m.now()) {
		return nil, nil, ErrSessionExpired
	}
	user, ok := m.users[session.UserID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	return user, session, nil
}

// Sweep drops expired sessions and login states
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if s.Expiry.Before(now) {
			delete(m.sessions, id)
			n++
		}
	}
	for state, deadline := range m.states {
		if deadline.Before(now) {
			delete(m.states, state)
		}
	}
	return n
}

// Run sweeps hourly until ctx is cancelled
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("expired sessions removed", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
