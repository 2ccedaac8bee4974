package session

import (
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

const prefsSchema = `
CREATE TABLE IF NOT EXISTS prefs (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

// SQLiteBackend keeps namespaces in the prefs table of a SQLite file.
type SQLiteBackend struct {
	db        *sql.DB
	namespace string
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path, namespace string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	b := NewSQLiteBackend(db, namespace)
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewSQLiteBackend uses an already open database.
func NewSQLiteBackend(db *sql.DB, namespace string) *SQLiteBackend {
	return &SQLiteBackend{db: db, namespace: namespace}
}

func (b *SQLiteBackend) migrate() error {
	if _, err := b.db.Exec(prefsSchema); err != nil {
		return fmt.Errorf("create prefs schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Load returns every key of the namespace.
func (b *SQLiteBackend) Load() (map[string]string, error) {
	rows, err := b.db.Query(`SELECT key, value FROM prefs WHERE namespace = ?`, b.namespace)
	if err != nil {
		return nil, fmt.Errorf("load prefs: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

// Commit replaces the namespace inside one transaction.
func (b *SQLiteBackend) Commit(values map[string]string) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM prefs WHERE namespace = ?`, b.namespace); err != nil {
		return fmt.Errorf("clear prefs: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.Exec(
			`INSERT INTO prefs (namespace, key, value) VALUES (?, ?, ?)`,
			b.namespace, k, values[k],
		); err != nil {
			return fmt.Errorf("insert %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
