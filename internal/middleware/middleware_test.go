package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var secret = []byte("test-secret")

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, GetUserIDFromContext(r.Context())+"|"+GetRoleFromContext(r.Context()))
	})
}

func TestTokenAuth(t *testing.T) {
	valid, err := IssueToken(secret, "uid-1", "admin", time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := IssueToken(secret, "uid-1", "admin", time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	foreign, err := IssueToken([]byte("other"), "uid-1", "admin", time.Hour, time.Now())
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "uid-1", "role": "admin", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "uid-1"}).SignedString(secret)
	require.NoError(t, err)

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, "uid-1|admin"},
		{"missing", "", http.StatusUnauthorized, "no bearer token\n"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "no bearer token\n"},
		{"garbage", "Bearer abc.def", http.StatusUnauthorized, "invalid token\n"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "invalid token\n"},
		{"wrong key", "Bearer " + foreign, http.StatusUnauthorized, "invalid token\n"},
		{"wrong alg", "Bearer " + hs512, http.StatusUnauthorized, "invalid token\n"},
		{"no expiry", "Bearer " + noExp, http.StatusUnauthorized, "invalid token\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			TokenAuth(secret)(echoIdentity()).ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("status = %d; want %d", w.Code, tc.wantStatus)
			}
			if w.Body.String() != tc.wantBody {
				t.Errorf("body = %q; want %q", w.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := TokenAuth(secret)(RequireRole("admin")(echoIdentity()))

	user, _ := IssueToken(secret, "uid-2", "user", time.Hour, time.Now())
	req := httptest.NewRequest(http.MethodDelete, "/api/listings/x", nil)
	req.Header.Set("Authorization", "Bearer "+user)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin, _ := IssueToken(secret, "uid-3", "admin", time.Hour, time.Now())
	req.Header.Set("Authorization", "Bearer "+admin)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "uid-3|admin", w.Body.String())
}

func TestGetFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetUserIDFromContext(req.Context()))
	assert.Empty(t, GetRoleFromContext(req.Context()))
}

func TestWithRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&buf),
		zapcore.InfoLevel,
	)
	h := WithRequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/listings/stats", nil))

	out := buf.String()
	assert.Equal(t, http.StatusTeapot, w.Code)
	for _, want := range []string{`"method":"GET"`, `"path":"/api/listings/stats"`, `"status":418`, `"bytes":15`} {
		assert.True(t, strings.Contains(out, want), "log %s missing %s", out, want)
	}
}
