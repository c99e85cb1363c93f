// Package dbtest opens throwaway SQLite stores for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/pictureteam/internal/db"
	"github.com/notes-bin/pictureteam/internal/model"
)

var paths sync.Map // *db.DB -> file path

// New returns a migrated SQLite store in t's temp directory, closed when
// the test ends.
func New(t testing.TB) *db.DB {
	t.Helper()
	return open(t, 5, 5*time.Second)
}

// Limited returns a store with a single connection slot, so a test can
// exhaust the pool by holding one db.DB.Conn.
func Limited(t testing.TB, acquireTimeout time.Duration) *db.DB {
	t.Helper()
	return open(t, 1, acquireTimeout)
}

func open(t testing.TB, maxConns int, acquireTimeout time.Duration) *db.DB {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(ctx, db.Options{
		Driver:         db.SQLite,
		URL:            path,
		MaxConns:       maxConns,
		AcquireTimeout: acquireTimeout,
	})
	require.NoError(t, err)
	paths.Store(d, path)
	t.Cleanup(func() {
		paths.Delete(d)
		d.Close()
	})
	require.NoError(t, d.Migrate(ctx))
	return d
}

// FailCategoryDeletes installs a trigger that aborts every delete of a
// category row, so a category delete fails after its associations have
// already been removed inside the same transaction.
func FailCategoryDeletes(t testing.TB, d *db.DB) {
	t.Helper()
	path, ok := paths.Load(d)
	require.True(t, ok, "store was not opened by dbtest.New")

	raw, err := sql.Open("sqlite", "file:"+path.(string)+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`CREATE TRIGGER fail_category_delete BEFORE DELETE ON categories
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END`)
	require.NoError(t, err)
}

// User inserts a user with an unusable password hash.
func User(t testing.TB, d *db.DB, email string) *model.User {
	t.Helper()
	u := &model.User{ID: uuid.New(), Created: time.Now().UTC(), Email: email, PasswordHash: "x"}
	require.NoError(t, d.CreateUser(context.Background(), u))
	return u
}

func Category(t testing.TB, d *db.DB, name string) *model.Category {
	t.Helper()
	c := &model.Category{ID: uuid.New(), Created: time.Now().UTC(), Name: name}
	require.NoError(t, d.CreateCategory(context.Background(), c))
	return c
}

func Image(t testing.TB, d *db.DB, ownerID uuid.UUID, title string) *model.Image {
	t.Helper()
	img := &model.Image{ID: uuid.New(), Created: time.Now().UTC(), Title: title, OwnerID: ownerID}
	require.NoError(t, d.CreateImage(context.Background(), img))
	return img
}
