package authclient

import (
	"sync"
	"time"
)

// TokenExpirySkew is subtracted from the token lifetime when deciding
// "expired": a token within 10s of its expiry is treated as already expired
// to cover clock drift and in-flight latency.
const TokenExpirySkew = 10 * time.Second

// Session is the single mutable shared resource of the SDK: the current user
// identity, access token, and token expiry. Every mutation happens under the
// mutex as one assignment, so concurrent callers never observe a torn
// tri-state. Validity predicates are computed from the live fields at call
// time, never cached.
type Session struct {
	mu             sync.RWMutex
	user           *User
	accessToken    string
	tokenExpiresAt time.Time

	store  SnapshotStore
	logger Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSnapshotStore persists the session snapshot through the given store on
// every mutation and makes Restore available.
func WithSnapshotStore(store SnapshotStore) SessionOption {
	return func(s *Session) {
		s.store = store
	}
}

// WithSessionLogger overrides the default logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession returns an empty session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{logger: defLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// User returns a copy of the current user, or nil when unauthenticated.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// AccessToken returns the current bearer credential, empty when absent.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// TokenExpiresAt returns the current token expiry, zero when absent.
func (s *Session) TokenExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenExpiresAt
}

// IsAuthenticated reports whether both a user and an access token are
// present.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.accessToken != ""
}

// IsTokenExpired reports whether the expiry is present and at or before
// now + TokenExpirySkew. An absent expiry is not "expired"; it simply means
// there is nothing to refresh.
func (s *Session) IsTokenExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenExpiredLocked(time.Now())
}

func (s *Session) tokenExpiredLocked(now time.Time) bool {
	if s.tokenExpiresAt.IsZero() {
		return false
	}
	return !s.tokenExpiresAt.After(now.Add(TokenExpirySkew))
}

// IsTokenValid reports whether the session is authenticated and the token is
// not expired.
func (s *Session) IsTokenValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.accessToken != "" && !s.tokenExpiredLocked(time.Now())
}

// SetAuth replaces user and token wholesale, as a successful login or
// refresh does.
func (s *Session) SetAuth(user User, token AuthToken) {
	s.mu.Lock()
	s.user = &user
	s.accessToken = token.Token
	s.tokenExpiresAt = token.Expiry
	s.mu.Unlock()
	s.persist()
}

// SetAccessToken replaces only the credential, keeping the current user. Used
// after a bare token refresh.
func (s *Session) SetAccessToken(token AuthToken) {
	s.mu.Lock()
	s.accessToken = token.Token
	s.tokenExpiresAt = token.Expiry
	s.mu.Unlock()
	s.persist()
}

// ClearAuth resets the session to empty: logout, refresh failure, or
// authorization rejection.
func (s *Session) ClearAuth() {
	s.mu.Lock()
	s.user = nil
	s.accessToken = ""
	s.tokenExpiresAt = time.Time{}
	s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			s.logger.Warn("failed to clear session snapshot: %v", err)
		}
	}
}

// UserPatch carries the fields UpdateUser may merge. Nil fields are left
// untouched.
type UserPatch struct {
	FullName        *string    `json:"fullName,omitempty"`
	Username        *string    `json:"username,omitempty"`
	Email           *string    `json:"email,omitempty"`
	ProfileImageURL *string    `json:"profileImageUrl,omitempty"`
	Activated       *bool      `json:"activated,omitempty"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
}

// UpdateUser shallow-merges the patch into the current user. A no-op when no
// user is present; never errors.
func (s *Session) UpdateUser(patch UserPatch) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return
	}
	if patch.FullName != nil {
		s.user.FullName = *patch.FullName
	}
	if patch.Username != nil {
		s.user.Username = *patch.Username
	}
	if patch.Email != nil {
		s.user.Email = *patch.Email
	}
	if patch.ProfileImageURL != nil {
		s.user.ProfileImageURL = *patch.ProfileImageURL
	}
	if patch.Activated != nil {
		s.user.Activated = *patch.Activated
	}
	if patch.LastLoginAt != nil {
		t := *patch.LastLoginAt
		s.user.LastLoginAt = &t
	}
	s.mu.Unlock()
	s.persist()
}

// Restore rehydrates the session from the snapshot store, if one was
// configured and holds a snapshot. Restoring an expired snapshot is fine; the
// next request simply triggers a refresh.
func (s *Session) Restore() error {
	if s.store == nil {
		return nil
	}
	snap, err := s.store.Load()
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	s.mu.Lock()
	s.user = snap.User
	s.accessToken = snap.AccessToken
	s.tokenExpiresAt = snap.TokenExpiresAt
	s.mu.Unlock()
	return nil
}

// Snapshot returns the persisted subset of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		AccessToken:    s.accessToken,
		TokenExpiresAt: s.tokenExpiresAt,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *Session) persist() {
	if s.store == nil {
		return
	}
	snap := s.Snapshot()
	if err := s.store.Save(&snap); err != nil {
		s.logger.Warn("failed to persist session snapshot: %v", err)
	}
}
