// Package identity is a client for the Firebase Identity Toolkit REST API,
// which issues and verifies email/password credentials.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/swyppy/internal/models"
)

// Client calls accounts:signUp and accounts:signInWithPassword.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time
}

// New creates a Client for baseURL (https://identitytoolkit.googleapis.com/v1).
// A nil client gets a 30s timeout.
func New(baseURL, apiKey string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    client,
		now:     time.Now,
	}
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type tokenResponse struct {
	IDToken      string `json:"idToken"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateUser registers a new email/password account.
func (c *Client) CreateUser(ctx context.Context, email, password string) (models.Credential, error) {
	return c.call(ctx, "accounts:signUp", email, password)
}

// SignIn verifies an email/password pair.
func (c *Client) SignIn(ctx context.Context, email, password string) (models.Credential, error) {
	return c.call(ctx, "accounts:signInWithPassword", email, password)
}

func (c *Client) call(ctx context.Context, method, email, password string) (models.Credential, error) {
	body, err := json.Marshal(passwordRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return models.Credential{}, fmt.Errorf("encode request: %w", err)
	}

	target := c.baseURL + "/" + method + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return models.Credential{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %s: %w", models.ErrNetwork, method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: read body: %w", models.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
			return models.Credential{}, fmt.Errorf("%w: %s", models.ErrCredentialsRejected, e.Error.Message)
		}
		return models.Credential{}, fmt.Errorf("%w: %s status %d", models.ErrNetwork, method, resp.StatusCode)
	}

	var out tokenResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return models.Credential{}, fmt.Errorf("%w: decode %s: %w", models.ErrNetwork, method, err)
	}
	if out.LocalID == "" {
		return models.Credential{}, fmt.Errorf("%w: %s returned no uid", models.ErrNetwork, method)
	}

	cred := models.Credential{
		UID:          out.LocalID,
		Email:        out.Email,
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
	}
	if secs, err := strconv.Atoi(out.ExpiresIn); err == nil && secs > 0 {
		cred.ExpiresAt = c.now().Add(time.Duration(secs) * time.Second)
	}
	return cred, nil
}
