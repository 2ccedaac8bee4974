package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/swyppy/internal/models"
)

// CredentialProvider creates and verifies email/password credentials.
type CredentialProvider interface {
	// CreateUser registers a new account and signs it in.
	CreateUser(ctx context.Context, email, password string) (models.Credential, error)
	// SignIn verifies an email/password pair.
	SignIn(ctx context.Context, email, password string) (models.Credential, error)
}

// UserRecords reads and writes Users/<uid> profiles.
type UserRecords interface {
	Get(ctx context.Context, root, key string) (json.RawMessage, error)
	Set(ctx context.Context, root, key string, v any) error
}

// SessionStore remembers a sign-in across restarts.
type SessionStore interface {
	Save(sess models.Session) error
	Clear() error
	IsLoggedIn() bool
	Role() string
}

// SignInResult is what a successful sign-in or sign-up yields.
type SignInResult struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AuthService signs users up, in and out.
//
// The live credential is the single source of truth for "is authenticated".
// The remembered session only chooses the startup route. A service built
// with NewServerAuthService keeps no live credential at all.
type AuthService struct {
	ids      CredentialProvider
	users    UserRecords
	sessions SessionStore
	log      *zap.Logger
	now      func() time.Time
	// stateless services answer each call on its own and never hold a
	// credential between calls.
	stateless bool

	mu   sync.RWMutex
	cred *models.Credential
	who  SignInResult
}

// NewAuthService constructs an AuthService. sessions may be nil, in which
// case nothing is remembered locally.
func NewAuthService(ids CredentialProvider, users UserRecords, sessions SessionStore, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{ids: ids, users: users, sessions: sessions, log: log, now: time.Now}
}

// NewServerAuthService constructs an AuthService for a process that serves
// many users at once. Each SignUp and SignIn only returns its result; no
// credential or session outlives the call, so IsLoggedIn stays false and
// Token stays empty. Record access must be authorized some other way.
func NewServerAuthService(ids CredentialProvider, users UserRecords, log *zap.Logger) *AuthService {
	s := NewAuthService(ids, users, nil, log)
	s.stateless = true
	return s
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// SignUp creates the credential, writes a Users/<uid> profile with the
// default role and remembers the session. The password is never stored in
// the profile.
func (s *AuthService) SignUp(ctx context.Context, username, email, password, confirm string) (SignInResult, error) {
	if blank(username) || blank(email) || blank(password) || blank(confirm) {
		return SignInResult{}, fmt.Errorf("%w: username, email and password cannot be blank", models.ErrValidation)
	}
	if password != confirm {
		return SignInResult{}, fmt.Errorf("%w: passwords do not match", models.ErrValidation)
	}

	cred, err := s.ids.CreateUser(ctx, email, password)
	if err != nil {
		return SignInResult{}, fmt.Errorf("%w: %w", models.ErrRegistrationFailed, err)
	}
	// the profile write is authorized by the new credential
	s.setCredential(&cred, SignInResult{})

	profile := models.User{Username: username, Email: email, UID: cred.UID, Role: models.RoleUser}
	if err := s.users.Set(ctx, UsersRoot, cred.UID, profile); err != nil {
		s.setCredential(nil, SignInResult{})
		return SignInResult{}, fmt.Errorf("%w: save profile: %w", models.ErrRegistrationFailed, err)
	}

	who := SignInResult{UID: cred.UID, Email: email, Username: username, Role: models.RoleUser}
	s.setCredential(&cred, who)
	s.remember(who)

	s.log.Info("user registered", zap.String("uid", cred.UID))
	return who, nil
}

// SignIn verifies the credentials and reads the profile for role and
// username. A missing profile yields the defaults. The session is only
// remembered when remember is set. Exactly one of result or error is
// returned; on error the caller is signed out.
func (s *AuthService) SignIn(ctx context.Context, email, password string, remember bool) (SignInResult, error) {
	if blank(email) || blank(password) {
		return SignInResult{}, fmt.Errorf("%w: please enter email and password", models.ErrValidation)
	}

	cred, err := s.ids.SignIn(ctx, email, password)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrCredentialsRejected):
		return SignInResult{}, err
	case errors.Is(err, models.ErrNetwork):
		// an unreachable provider says nothing about the credentials
		return SignInResult{}, fmt.Errorf("sign in: %w", err)
	default:
		return SignInResult{}, fmt.Errorf("%w: %w", models.ErrCredentialsRejected, err)
	}
	s.setCredential(&cred, SignInResult{})

	who, err := s.profile(ctx, cred.UID, email)
	if err != nil {
		s.setCredential(nil, SignInResult{})
		s.log.Warn("profile fetch failed", zap.String("uid", cred.UID), zap.Error(err))
		return SignInResult{}, fmt.Errorf("%w: %w", models.ErrProfileFetch, err)
	}
	s.setCredential(&cred, who)

	if remember {
		s.remember(who)
	}
	return who, nil
}

func (s *AuthService) profile(ctx context.Context, uid, email string) (SignInResult, error) {
	who := SignInResult{UID: uid, Email: email, Username: models.DefaultUsername, Role: models.RoleUser}

	raw, err := s.users.Get(ctx, UsersRoot, uid)
	if errors.Is(err, models.ErrNotFound) {
		return who, nil
	}
	if err != nil {
		return SignInResult{}, err
	}

	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return SignInResult{}, fmt.Errorf("decode profile: %w", err)
	}
	if v := textOf(rec["role"]); v != "" {
		who.Role = v
	}
	if v := textOf(rec["username"]); v != "" {
		who.Username = v
	}
	return who, nil
}

// textOf renders a profile value as text; nil becomes "".
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func (s *AuthService) remember(who SignInResult) {
	if s.sessions == nil {
		return
	}
	err := s.sessions.Save(models.Session{UserID: who.UID, Email: who.Email, Name: who.Username, Role: who.Role})
	if err != nil {
		s.log.Warn("failed to remember session", zap.String("uid", who.UID), zap.Error(err))
	}
}

// Logout forgets the session and the live credential. The returned route
// is where the front-end goes with its history discarded.
func (s *AuthService) Logout(_ context.Context) (models.Route, error) {
	s.setCredential(nil, SignInResult{})
	if s.sessions != nil {
		if err := s.sessions.Clear(); err != nil {
			return models.RouteLogin, fmt.Errorf("clear session: %w", err)
		}
	}
	return models.RouteLogin, nil
}

func (s *AuthService) setCredential(cred *models.Credential, who SignInResult) {
	if s.stateless {
		return
	}
	s.mu.Lock()
	s.cred = cred
	s.who = who
	s.mu.Unlock()
}

// IsLoggedIn reports whether a live, unexpired credential is held.
func (s *AuthService) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred != nil && s.who.UID != "" && !s.cred.Expired(s.now())
}

// Current returns the signed-in user, if any.
func (s *AuthService) Current() (SignInResult, bool) {
	if !s.IsLoggedIn() {
		return SignInResult{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.who, true
}

// Role returns the live user's role, or "" when signed out.
func (s *AuthService) Role() string {
	who, _ := s.Current()
	return who.Role
}

// Token returns the live ID token for authorizing record reads and writes.
// It is also returned while a sign-in is still loading the profile.
func (s *AuthService) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil || s.cred.Expired(s.now()) {
		return ""
	}
	return s.cred.IDToken
}

// HasValidSession reports the remembered flag.
func (s *AuthService) HasValidSession() bool {
	return s.sessions != nil && s.sessions.IsLoggedIn()
}

// SavedRole returns the remembered role, "user" by default.
func (s *AuthService) SavedRole() string {
	if s.sessions == nil {
		return models.RoleUser
	}
	return s.sessions.Role()
}

// StartupRoute picks the first screen from the remembered session.
func (s *AuthService) StartupRoute() models.Route {
	if s.HasValidSession() {
		return models.RouteMain
	}
	return models.RouteStart
}
