package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/model"
)

const userColumns = `id, created, email, password_hash, is_admin`

func (d *DB) CreateUser(ctx context.Context, user *model.User) error {
	_, err := d.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Created, user.Email, user.PasswordHash, user.IsAdmin)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail expects a normalized (lowercase) email. It returns
// (nil, nil) when no user matches.
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return d.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = ?`, email)
}

func (d *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return d.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (d *DB) getUser(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	err := d.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&u.ID, &u.Created, &u.Email, &u.PasswordHash, &u.IsAdmin)
	}, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (d *DB) SaveUser(ctx context.Context, user *model.User) error {
	_, err := d.exec(ctx,
		`UPDATE users SET email = ?, password_hash = ?, is_admin = ? WHERE id = ?`,
		user.Email, user.PasswordHash, user.IsAdmin, user.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
