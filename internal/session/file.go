package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend keeps namespaces in a single JSON file:
// {"SwypyPrefs": {"isLoggedIn": "true", ...}}.
type FileBackend struct {
	path      string
	namespace string
}

// NewFileBackend stores namespace inside the file at path.
func NewFileBackend(path, namespace string) *FileBackend {
	return &FileBackend{path: path, namespace: namespace}
}

// Load returns the namespace, or an empty map when the file is missing.
func (b *FileBackend) Load() (map[string]string, error) {
	all, err := b.readAll()
	if err != nil {
		return nil, err
	}
	values := all[b.namespace]
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

// Commit rewrites the file via a temp file and rename so a crash never
// leaves a half written record. Other namespaces in the file are kept.
func (b *FileBackend) Commit(values map[string]string) error {
	all, err := b.readAll()
	if err != nil {
		return err
	}
	if len(values) == 0 {
		delete(all, b.namespace)
	} else {
		all[b.namespace] = values
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close prefs: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

func (b *FileBackend) readAll() (map[string]map[string]string, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	all := map[string]map[string]string{}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse prefs: %w", err)
	}
	return all, nil
}
