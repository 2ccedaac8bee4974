// Package repository provides record tree backends for listings and user
// profiles: the Firebase Realtime Database REST API and a PostgreSQL table.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/swyppy/internal/models"
)

// Node is a single child of a tree root.
type Node struct {
	Key   string
	Value json.RawMessage
}

// TokenSource supplies the credential sent as the auth query parameter.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed database secret or service token.
type StaticToken string

// Token returns the token itself.
func (t StaticToken) Token() string { return string(t) }

// FirebaseTree talks to a Firebase Realtime Database over its REST API.
type FirebaseTree struct {
	baseURL string
	client  *http.Client

	mu     sync.RWMutex
	tokens TokenSource

	keys *pushIDs
}

// NewFirebaseTree creates a tree rooted at baseURL, e.g.
// https://project-default-rtdb.firebaseio.com. A nil client gets a 30s timeout.
func NewFirebaseTree(baseURL string, client *http.Client) *FirebaseTree {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FirebaseTree{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		keys:    newPushIDs(),
	}
}

// SetTokenSource installs the credential used for every request.
// A nil source sends unauthenticated requests.
func (t *FirebaseTree) SetTokenSource(src TokenSource) {
	t.mu.Lock()
	t.tokens = src
	t.mu.Unlock()
}

// NewKey returns a chronologically ordered push ID. The database assigns
// nothing until Set is called with it.
func (t *FirebaseTree) NewKey(_ context.Context, _ string) (string, error) {
	return t.keys.next(time.Now()), nil
}

// Set writes v at root/key, replacing whatever was there.
func (t *FirebaseTree) Set(ctx context.Context, root, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", root, key, err)
	}
	_, err = t.do(ctx, http.MethodPut, t.nodeURL(root+"/"+key, nil), body)
	return err
}

// Get returns the raw value at root/key or models.ErrNotFound.
func (t *FirebaseTree) Get(ctx context.Context, root, key string) (json.RawMessage, error) {
	raw, err := t.do(ctx, http.MethodGet, t.nodeURL(root+"/"+key, nil), nil)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, fmt.Errorf("%s/%s: %w", root, key, models.ErrNotFound)
	}
	return raw, nil
}

// Children returns every child of root ordered by key.
func (t *FirebaseTree) Children(ctx context.Context, root string) ([]Node, error) {
	raw, err := t.do(ctx, http.MethodGet, t.nodeURL(root, nil), nil)
	if err != nil {
		return nil, err
	}
	return splitChildren(root, raw)
}

// ChildrenWhere returns the children of root whose field equals value,
// using the server-side orderBy/equalTo filter. The database needs an
// ".indexOn" rule for field.
func (t *FirebaseTree) ChildrenWhere(ctx context.Context, root, field, value string) ([]Node, error) {
	q := url.Values{}
	q.Set("orderBy", quote(field))
	q.Set("equalTo", quote(value))
	raw, err := t.do(ctx, http.MethodGet, t.nodeURL(root, q), nil)
	if err != nil {
		return nil, err
	}
	return splitChildren(root, raw)
}

// Remove deletes root/key. Removing a missing key succeeds.
func (t *FirebaseTree) Remove(ctx context.Context, root, key string) error {
	_, err := t.do(ctx, http.MethodDelete, t.nodeURL(root+"/"+key, nil), nil)
	return err
}

func (t *FirebaseTree) nodeURL(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	t.mu.RLock()
	if t.tokens != nil {
		if tok := t.tokens.Token(); tok != "" {
			q.Set("auth", tok)
		}
	}
	t.mu.RUnlock()

	u := t.baseURL + "/" + strings.Trim(path, "/") + ".json"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (t *FirebaseTree) do(ctx context.Context, method, target string, body []byte) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrNetwork, method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", models.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s status %d: %s", models.ErrNetwork, method, resp.StatusCode, remoteError(data))
	}
	return data, nil
}

// remoteError pulls the message out of {"error": "..."} replies.
func remoteError(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

func splitChildren(root string, raw json.RawMessage) ([]Node, error) {
	if isNull(raw) {
		return nil, nil
	}
	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, fmt.Errorf("%s is not an object: %w", root, err)
	}
	nodes := make([]Node, 0, len(children))
	for k, v := range children {
		nodes = append(nodes, Node{Key: k, Value: v})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	return nodes, nil
}

func isNull(raw []byte) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
