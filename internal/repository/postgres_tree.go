package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/swyppy/internal/models"
)

// PostgresTree stores tree nodes as JSONB rows of the nodes table.
type PostgresTree struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
	// now is swapped in tests.
	now func() time.Time
}

// NewPostgresTree creates a PostgresTree using the provided *sql.DB.
// db must be a valid connection to a PostgreSQL instance with the nodes schema.
func NewPostgresTree(db *sql.DB) *PostgresTree {
	return &PostgresTree{DB: db, now: time.Now}
}

// NewKey returns a UUIDv7, which sorts by creation time like a push ID.
func (s *PostgresTree) NewKey(_ context.Context, _ string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("NewKey: %w", err)
	}
	return id.String(), nil
}

// Set upserts the node at root/key and revives it if it was soft-deleted.
func (s *PostgresTree) Set(ctx context.Context, root, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", root, key, err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO nodes (root, key, value, updated_at, deleted)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (root, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at,
			deleted = false
	`, root, key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: Set %s/%s: %w", models.ErrNetwork, root, key, err)
	}
	return nil
}

// Get returns the value of a live node or models.ErrNotFound.
func (s *PostgresTree) Get(ctx context.Context, root, key string) (json.RawMessage, error) {
	var value []byte
	err := s.DB.QueryRowContext(ctx, `
		SELECT value FROM nodes WHERE root = $1 AND key = $2 AND deleted = false
	`, root, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", root, key, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: Get %s/%s: %w", models.ErrNetwork, root, key, err)
	}
	return value, nil
}

// Children returns every live node under root ordered by key.
func (s *PostgresTree) Children(ctx context.Context, root string) ([]Node, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT key, value FROM nodes WHERE root = $1 AND deleted = false ORDER BY key
	`, root)
	if err != nil {
		return nil, fmt.Errorf("%w: Children %s: %w", models.ErrNetwork, root, err)
	}
	return scanNodes(rows)
}

// ChildrenWhere returns live nodes under root whose top-level field equals value.
func (s *PostgresTree) ChildrenWhere(ctx context.Context, root, field, value string) ([]Node, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT key, value FROM nodes
		WHERE root = $1 AND deleted = false AND value->>$2 = $3
		ORDER BY key
	`, root, field, value)
	if err != nil {
		return nil, fmt.Errorf("%w: ChildrenWhere %s: %w", models.ErrNetwork, root, err)
	}
	return scanNodes(rows)
}

// Remove soft-deletes root/key; the cleaner purges it after the retention.
func (s *PostgresTree) Remove(ctx context.Context, root, key string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE nodes SET deleted = true, updated_at = $3 WHERE root = $1 AND key = $2
	`, root, key, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: Remove %s/%s: %w", models.ErrNetwork, root, key, err)
	}
	return nil
}

func scanNodes(rows *sql.Rows) ([]Node, error) {
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var (
			n     Node
			value []byte
		)
		if err := rows.Scan(&n.Key, &value); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		n.Value = value
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %w", models.ErrNetwork, err)
	}
	return nodes, nil
}
