package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/swyppy/internal/models"
)

type mockIdentity struct {
	CreateUserFunc func(ctx context.Context, email, password string) (models.Credential, error)
	SignInFunc     func(ctx context.Context, email, password string) (models.Credential, error)
}

func (m *mockIdentity) CreateUser(ctx context.Context, email, password string) (models.Credential, error) {
	return m.CreateUserFunc(ctx, email, password)
}
func (m *mockIdentity) SignIn(ctx context.Context, email, password string) (models.Credential, error) {
	return m.SignInFunc(ctx, email, password)
}

type mockUsers struct {
	GetFunc func(ctx context.Context, root, key string) (json.RawMessage, error)
	SetFunc func(ctx context.Context, root, key string, v any) error
}

func (m *mockUsers) Get(ctx context.Context, root, key string) (json.RawMessage, error) {
	return m.GetFunc(ctx, root, key)
}
func (m *mockUsers) Set(ctx context.Context, root, key string, v any) error {
	return m.SetFunc(ctx, root, key, v)
}

type mockSessions struct {
	saved   *models.Session
	cleared bool
	saveErr error
}

func (m *mockSessions) Save(s models.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = &s
	m.cleared = false
	return nil
}
func (m *mockSessions) Clear() error {
	m.saved = nil
	m.cleared = true
	return nil
}
func (m *mockSessions) IsLoggedIn() bool { return m.saved != nil }
func (m *mockSessions) Role() string {
	if m.saved == nil || m.saved.Role == "" {
		return models.RoleUser
	}
	return m.saved.Role
}

func okIdentity(uid string) *mockIdentity {
	issue := func(_ context.Context, email, _ string) (models.Credential, error) {
		return models.Credential{UID: uid, Email: email, IDToken: "tok-" + uid}, nil
	}
	return &mockIdentity{CreateUserFunc: issue, SignInFunc: issue}
}

func failIfCalled(t *testing.T) *mockIdentity {
	fail := func(context.Context, string, string) (models.Credential, error) {
		t.Fatal("identity provider must not be called")
		return models.Credential{}, nil
	}
	return &mockIdentity{CreateUserFunc: fail, SignInFunc: fail}
}

func TestSignUp_Validation(t *testing.T) {
	svc := NewAuthService(failIfCalled(t), &mockUsers{}, &mockSessions{}, nil)

	cases := []struct {
		name                               string
		username, email, password, confirm string
	}{
		{"blank username", "", "a@b.c", "pw", "pw"},
		{"blank email", "ann", " ", "pw", "pw"},
		{"blank password", "ann", "a@b.c", "", ""},
		{"mismatch", "ann", "a@b.c", "pw", "pw2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SignUp(context.Background(), tc.username, tc.email, tc.password, tc.confirm)
			if !errors.Is(err, models.ErrValidation) {
				t.Fatalf("SignUp error = %v; want ErrValidation", err)
			}
		})
	}
}

func TestSignUp_WritesProfileAndSession(t *testing.T) {
	var written models.User
	var tokenDuringWrite string
	sessions := &mockSessions{}
	var svc *AuthService
	users := &mockUsers{
		SetFunc: func(_ context.Context, root, key string, v any) error {
			assert.Equal(t, UsersRoot, root)
			assert.Equal(t, "uid-1", key)
			written = v.(models.User)
			tokenDuringWrite = svc.Token()
			return nil
		},
	}
	svc = NewAuthService(okIdentity("uid-1"), users, sessions, nil)

	who, err := svc.SignUp(context.Background(), "Ann", "a@b.c", "secret", "secret")
	require.NoError(t, err)

	assert.Equal(t, SignInResult{UID: "uid-1", Email: "a@b.c", Username: "Ann", Role: models.RoleUser}, who)
	assert.Equal(t, models.User{Username: "Ann", Email: "a@b.c", UID: "uid-1", Role: models.RoleUser}, written)
	assert.Empty(t, written.Password)
	assert.Equal(t, "tok-uid-1", tokenDuringWrite)

	require.NotNil(t, sessions.saved)
	assert.Equal(t, models.Session{UserID: "uid-1", Email: "a@b.c", Name: "Ann", Role: models.RoleUser}, *sessions.saved)
	assert.True(t, svc.IsLoggedIn())
}

func TestSignUp_ProviderFailure(t *testing.T) {
	ids := &mockIdentity{CreateUserFunc: func(context.Context, string, string) (models.Credential, error) {
		return models.Credential{}, errors.New("EMAIL_EXISTS")
	}}
	sessions := &mockSessions{}
	svc := NewAuthService(ids, &mockUsers{}, sessions, nil)

	_, err := svc.SignUp(context.Background(), "Ann", "a@b.c", "pw", "pw")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRegistrationFailed))
	assert.Nil(t, sessions.saved)
	assert.False(t, svc.IsLoggedIn())
}

func TestSignUp_ProfileWriteFailureSurfacesCause(t *testing.T) {
	users := &mockUsers{SetFunc: func(context.Context, string, string, any) error {
		return errors.New("permission denied")
	}}
	sessions := &mockSessions{}
	svc := NewAuthService(okIdentity("uid-1"), users, sessions, nil)

	_, err := svc.SignUp(context.Background(), "Ann", "a@b.c", "pw", "pw")
	require.Error(t, err)
	assert.Contains(t, models.Message(err), "permission denied")
	assert.Nil(t, sessions.saved)
	assert.False(t, svc.IsLoggedIn())
	assert.Empty(t, svc.Token())
}

func TestSignIn_ReadsProfile(t *testing.T) {
	users := &mockUsers{GetFunc: func(_ context.Context, root, key string) (json.RawMessage, error) {
		assert.Equal(t, UsersRoot, root)
		return json.RawMessage(`{"username":"Boss","role":"admin","uid":"uid-9"}`), nil
	}}
	sessions := &mockSessions{}
	svc := NewAuthService(okIdentity("uid-9"), users, sessions, nil)

	who, err := svc.SignIn(context.Background(), "boss@b.c", "pw", true)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, who.Role)
	assert.Equal(t, "Boss", who.Username)
	assert.Equal(t, models.RouteAddProperty, models.RouteForRole(who.Role))

	assert.True(t, svc.IsLoggedIn())
	assert.Equal(t, models.RoleAdmin, svc.Role())
	assert.True(t, svc.HasValidSession())
	assert.Equal(t, models.RoleAdmin, svc.SavedRole())
	assert.Equal(t, models.RouteMain, svc.StartupRoute())
}

func TestSignIn_MissingProfileUsesDefaults(t *testing.T) {
	users := &mockUsers{GetFunc: func(context.Context, string, string) (json.RawMessage, error) {
		return nil, models.ErrNotFound
	}}
	svc := NewAuthService(okIdentity("uid-2"), users, nil, nil)

	who, err := svc.SignIn(context.Background(), "a@b.c", "pw", true)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, who.Role)
	assert.Equal(t, models.DefaultUsername, who.Username)
}

func TestSignIn_WithoutRememberLeavesSessionUntouched(t *testing.T) {
	users := &mockUsers{GetFunc: func(context.Context, string, string) (json.RawMessage, error) {
		return json.RawMessage(`{"role":"user"}`), nil
	}}
	sessions := &mockSessions{}
	svc := NewAuthService(okIdentity("uid-3"), users, sessions, nil)

	who, err := svc.SignIn(context.Background(), "a@b.c", "pw", false)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, who.Role)

	assert.True(t, svc.IsLoggedIn())
	assert.False(t, svc.HasValidSession())
	assert.Nil(t, sessions.saved)
	assert.Equal(t, models.RouteStart, svc.StartupRoute())
}

func TestSignIn_Failures(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		svc := NewAuthService(failIfCalled(t), &mockUsers{}, nil, nil)
		_, err := svc.SignIn(context.Background(), "", "pw", true)
		assert.True(t, errors.Is(err, models.ErrValidation))
	})

	t.Run("rejected", func(t *testing.T) {
		ids := &mockIdentity{SignInFunc: func(context.Context, string, string) (models.Credential, error) {
			return models.Credential{}, errors.New("INVALID_PASSWORD")
		}}
		svc := NewAuthService(ids, &mockUsers{}, nil, nil)
		_, err := svc.SignIn(context.Background(), "a@b.c", "bad", true)
		assert.True(t, errors.Is(err, models.ErrCredentialsRejected))
		assert.False(t, errors.Is(err, models.ErrProfileFetch))
		assert.False(t, svc.IsLoggedIn())
	})

	t.Run("profile fetch", func(t *testing.T) {
		users := &mockUsers{GetFunc: func(context.Context, string, string) (json.RawMessage, error) {
			return nil, models.ErrNetwork
		}}
		sessions := &mockSessions{}
		svc := NewAuthService(okIdentity("uid-4"), users, sessions, nil)
		_, err := svc.SignIn(context.Background(), "a@b.c", "pw", true)
		assert.True(t, errors.Is(err, models.ErrProfileFetch))
		assert.Equal(t, "Login success, but failed to fetch user role.", models.Message(err))
		assert.Nil(t, sessions.saved)
		assert.False(t, svc.IsLoggedIn())
	})
}

func TestLogout(t *testing.T) {
	users := &mockUsers{GetFunc: func(context.Context, string, string) (json.RawMessage, error) {
		return json.RawMessage(`{"role":"admin"}`), nil
	}}
	sessions := &mockSessions{}
	svc := NewAuthService(okIdentity("uid-5"), users, sessions, nil)
	_, err := svc.SignIn(context.Background(), "a@b.c", "pw", true)
	require.NoError(t, err)

	route, err := svc.Logout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RouteLogin, route)
	assert.True(t, sessions.cleared)
	assert.False(t, svc.IsLoggedIn())
	assert.False(t, svc.HasValidSession())
	assert.Equal(t, models.RoleUser, svc.SavedRole())
	assert.Empty(t, svc.Role())
	assert.Empty(t, svc.Token())
}

func TestIsLoggedIn_ExpiredCredential(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ids := &mockIdentity{SignInFunc: func(context.Context, string, string) (models.Credential, error) {
		return models.Credential{UID: "u", IDToken: "t", ExpiresAt: now.Add(time.Hour)}, nil
	}}
	users := &mockUsers{GetFunc: func(context.Context, string, string) (json.RawMessage, error) {
		return nil, models.ErrNotFound
	}}
	sessions := &mockSessions{}
	svc := NewAuthService(ids, users, sessions, nil)
	svc.now = func() time.Time { return now }

	_, err := svc.SignIn(context.Background(), "a@b.c", "pw", true)
	require.NoError(t, err)
	assert.True(t, svc.IsLoggedIn())

	// the remembered flag outlives the credential; the credential decides
	svc.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.False(t, svc.IsLoggedIn())
	assert.Empty(t, svc.Token())
	assert.True(t, svc.HasValidSession())
}

func TestSignIn_ProviderUnreachable(t *testing.T) {
	ids := &mockIdentity{SignInFunc: func(context.Context, string, string) (models.Credential, error) {
		return models.Credential{}, fmt.Errorf("%w: dial tcp: connection refused", models.ErrNetwork)
	}}
	svc := NewAuthService(ids, &mockUsers{}, nil, nil)

	_, err := svc.SignIn(context.Background(), "a@b.c", "pw", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNetwork))
	assert.False(t, errors.Is(err, models.ErrCredentialsRejected))
	assert.False(t, svc.IsLoggedIn())
}

func TestServerAuthService_KeepsNoCredential(t *testing.T) {
	ids := &mockIdentity{SignInFunc: func(_ context.Context, email, _ string) (models.Credential, error) {
		return models.Credential{UID: "uid-" + email, Email: email, IDToken: "tok-" + email}, nil
	}}
	var tokenDuringRead string
	var svc *AuthService
	users := &mockUsers{GetFunc: func(_ context.Context, _, key string) (json.RawMessage, error) {
		tokenDuringRead = svc.Token()
		if key == "uid-root@x.io" {
			return json.RawMessage(`{"username":"root","role":"admin"}`), nil
		}
		return nil, models.ErrNotFound
	}}
	svc = NewServerAuthService(ids, users, nil)

	admin, err := svc.SignIn(context.Background(), "root@x.io", "pw", true)
	require.NoError(t, err)
	user, err := svc.SignIn(context.Background(), "ann@x.io", "pw", true)
	require.NoError(t, err)

	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.Equal(t, "uid-root@x.io", admin.UID)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Empty(t, tokenDuringRead)
	assert.False(t, svc.IsLoggedIn())
	assert.Empty(t, svc.Token())
	_, ok := svc.Current()
	assert.False(t, ok)
	assert.False(t, svc.HasValidSession())
}
