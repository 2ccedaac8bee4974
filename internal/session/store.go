// Package session persists the remembered sign-in of this installation:
// a logged-in flag plus the user's id, email, name and role.
package session

import (
	"fmt"
	"sync"

	"github.com/atinyakov/swyppy/internal/models"
)

// Namespace scopes every key the store writes.
const Namespace = "SwypyPrefs"

// Keys stored under Namespace.
const (
	KeyIsLoggedIn = "isLoggedIn"
	KeyUserID     = "userId"
	KeyUserEmail  = "userEmail"
	KeyUserName   = "userName"
	KeyUserRole   = "userRole"
)

// Backend is local durable key-value storage for one namespace.
// Commit replaces the whole namespace atomically.
type Backend interface {
	Load() (map[string]string, error)
	Commit(values map[string]string) error
}

// Store is the session record cached over a Backend.
// Sessions never expire; only Clear ends one.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	values  map[string]string
}

// NewStore loads the current record from backend.
func NewStore(backend Backend) (*Store, error) {
	values, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return &Store{backend: backend, values: values}, nil
}

// Save writes all five keys in one commit.
func (s *Store) Save(sess models.Session) error {
	next := map[string]string{
		KeyIsLoggedIn: "true",
		KeyUserID:     sess.UserID,
		KeyUserEmail:  sess.Email,
		KeyUserName:   sess.Name,
		KeyUserRole:   sess.Role,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Commit(next); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.values = next
	return nil
}

// Clear removes every key in the namespace.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Commit(map[string]string{}); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.values = map[string]string{}
	return nil
}

// IsLoggedIn reports the remembered flag; false when never saved.
func (s *Store) IsLoggedIn() bool {
	v, _ := s.get(KeyIsLoggedIn)
	return v == "true"
}

// Role returns the saved role or models.RoleUser.
func (s *Store) Role() string {
	if v, ok := s.get(KeyUserRole); ok && v != "" {
		return v
	}
	return models.RoleUser
}

func (s *Store) UserID() (string, bool) { return s.get(KeyUserID) }
func (s *Store) Email() (string, bool)  { return s.get(KeyUserEmail) }
func (s *Store) Name() (string, bool)   { return s.get(KeyUserName) }

// Session returns the whole record.
func (s *Store) Session() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Session{
		UserID: s.values[KeyUserID],
		Email:  s.values[KeyUserEmail],
		Name:   s.values[KeyUserName],
		Role:   s.values[KeyUserRole],
	}
}

func (s *Store) get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}
