package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/atinyakov/swyppy/internal/models"
)

var fixedNow = time.UnixMilli(1_720_000_000_000)

func setupMock(t *testing.T) (*PostgresTree, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	tree := NewPostgresTree(db)
	tree.now = func() time.Time { return fixedNow }
	cleanup := func() {
		db.Close()
	}
	return tree, mock, cleanup
}

func TestPostgresTree_NewKey(t *testing.T) {
	tree, _, cleanup := setupMock(t)
	defer cleanup()

	a, err := tree.NewKey(context.Background(), "Properties")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := tree.NewKey(context.Background(), "Properties")
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("key %q is not a uuid: %v", a, err)
	}
	if a == b {
		t.Errorf("keys repeat: %q", a)
	}
}

func TestPostgresTree_Set(t *testing.T) {
	tree, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO nodes (root, key, value, updated_at, deleted)`)).
		WithArgs("Properties", "k1", []byte(`{"name":"Lakeview"}`), fixedNow.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := tree.Set(context.Background(), "Properties", "k1", map[string]string{"name": "Lakeview"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresTree_SetError(t *testing.T) {
	tree, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO nodes`)).
		WillReturnError(errors.New("conn reset"))

	err := tree.Set(context.Background(), "Properties", "k1", map[string]string{})
	if !errors.Is(err, models.ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
}

func TestPostgresTree_Get(t *testing.T) {
	tree, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM nodes WHERE root = $1 AND key = $2 AND deleted = false`)).
		WithArgs("Users", "uid1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"role":"admin"}`)))

	raw, err := tree.Get(context.Background(), "Users", "uid1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"role":"admin"}` {
		t.Errorf("value = %s", raw)
	}
}

func TestPostgresTree_GetNotFound(t *testing.T) {
	tree, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM nodes`)).
		WithArgs("Users", "ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := tree.Get(context.Background(), "Users", "ghost")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresTree_Children(t *testing.T) {
	tree, mock, cleanup := setupMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"key", "value"}).
		AddRow("a", []byte(`{"name":"A"}`)).
		AddRow("b", []byte(`{"name":"B"}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM nodes WHERE root = $1 AND deleted = false ORDER BY key`)).
		WithArgs("Properties").
		WillReturnRows(rows)

	nodes, err := tree.Children(context.Background(), "Properties")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 2 || nodes[0].Key != "a" || nodes[1].Key != "b" {
		t.Errorf("unexpected nodes: %+v", nodes)
	}
	if string(nodes[1].Value) != `{"name":"B"}` {
		t.Errorf("value = %s", nodes[1].Value)
	}
}

func TestPostgresTree_ChildrenWhere(t *testing.T) {
	tree, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`value->>$2 = $3`)).
		WithArgs("Properties", "category", "BNB").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).AddRow("x", []byte(`{"category":"BNB"}`)))

	nodes, err := tree.ChildrenWhere(context.Background(), "Properties", "category", "BNB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Key != "x" {
		t.Errorf("unexpected nodes: %+v", nodes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresTree_ChildrenQueryError(t *testing.T) {
	tree, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM nodes`)).
		WillReturnError(errors.New("query fail"))

	_, err := tree.Children(context.Background(), "Properties")
	if !errors.Is(err, models.ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
}

func TestPostgresTree_Remove(t *testing.T) {
	tree, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE nodes SET deleted = true, updated_at = $3 WHERE root = $1 AND key = $2`)).
		WithArgs("Properties", "k1", fixedNow.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := tree.Remove(context.Background(), "Properties", "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
