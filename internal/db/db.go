// Package db is the relational store. The same queries run against
// Postgres (through a bounded pgx pool) and SQLite (modernc, pure Go).
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// ErrDuplicate reports a violated unique index (email or category name).
var ErrDuplicate = errors.New("duplicate key")

//go:embed schema/*.sql
var schemas embed.FS

type Options struct {
	Driver         string
	URL            string
	MaxConns       int
	AcquireTimeout time.Duration
}

type DB struct {
	sql            *sql.DB
	pool           *pgxpool.Pool // nil for SQLite
	driver         string
	acquireTimeout time.Duration
}

func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.MaxConns < 1 {
		opts.MaxConns = 5
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Second
	}
	d := &DB{driver: opts.Driver, acquireTimeout: opts.AcquireTimeout}

	switch opts.Driver {
	case Postgres:
		cfg, err := pgxpool.ParseConfig(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parse postgres url: %w", err)
		}
		cfg.MaxConns = int32(opts.MaxConns)
		cfg.MaxConnIdleTime = 5 * time.Minute
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		d.pool = pool
		d.sql = stdlib.OpenDBFromPool(pool)
	case SQLite:
		dsn := opts.URL
		if !strings.HasPrefix(dsn, "file:") {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create database directory: %w", err)
				}
			}
			dsn = "file:" + dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
		sqlDB, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		d.sql = sqlDB
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}

	d.sql.SetMaxOpenConns(opts.MaxConns)
	d.sql.SetMaxIdleConns(opts.MaxConns)

	if err := d.sql.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}
	slog.Info("Connected to database", "driver", opts.Driver, "max_conns", opts.MaxConns)
	return d, nil
}

func (d *DB) Close() error {
	err := d.sql.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

// Migrate creates any missing tables and indexes.
func (d *DB) Migrate(ctx context.Context) error {
	schema, err := schemas.ReadFile("schema/" + d.driver + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	conn, err := d.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, stmt := range strings.Split(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	slog.Info("Database schema applied", "driver", d.driver)
	return nil
}

// Conn takes a connection from the bounded pool. Only the acquisition is
// subject to the acquire timeout; the caller's context governs the rest.
// The caller must Close it to give the slot back.
func (d *DB) Conn(ctx context.Context) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, d.acquireTimeout)
	defer cancel()
	c, err := d.sql.Conn(actx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return c, nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d *DB) rebind(query string) string {
	if d.driver != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, err := d.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	res, err := conn.ExecContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	return res, nil
}

// queryRow runs a single-row query and hands the row to scan while the
// connection is still held.
func (d *DB) queryRow(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return scan(conn.QueryRowContext(ctx, d.rebind(query), args...))
}

func (d *DB) query(ctx context.Context, scan func(*sql.Rows) error, query string, args ...any) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	rows, err := conn.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

const pgUniqueViolation = "23505"

func wrapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(liteErr.Error(), "UNIQUE") {
		return fmt.Errorf("%w: %s", ErrDuplicate, liteErr.Error())
	}
	return err
}
