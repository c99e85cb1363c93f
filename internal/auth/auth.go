package auth

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/db"
	"github.com/notes-bin/pictureteam/internal/errs"
	"github.com/notes-bin/pictureteam/internal/model"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// UserStore is the slice of the relational store the credential store
// needs. Lookups return (nil, nil) when the user does not exist.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	SaveUser(ctx context.Context, user *model.User) error
}

type Auth struct {
	users  UserStore
	hasher *Hasher
	tokens *Tokens
	logger *slog.Logger
}

func NewAuth(users UserStore, hasher *Hasher, tokens *Tokens, logger *slog.Logger) *Auth {
	return &Auth{users: users, hasher: hasher, tokens: tokens, logger: logger.With("scope", "auth")}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Auth) Register(ctx context.Context, email, password string) (uuid.UUID, error) {
	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return uuid.Nil, ErrInvalidEmail
	}

	existing, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		a.logger.Error("Failed to look up user", "email", email, "error", err)
		return uuid.Nil, errs.Unexpected
	}
	if existing != nil {
		return uuid.Nil, ErrEmailExists
	}

	hash, err := a.hasher.Hash(strings.TrimSpace(password))
	if err != nil {
		a.logger.Error("Failed to hash password", "error", err)
		return uuid.Nil, errs.Unexpected
	}

	user := &model.User{
		ID:           uuid.New(),
		Created:      time.Now().UTC(),
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      false,
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		// lost a race against a concurrent registration
		if errors.Is(err, db.ErrDuplicate) {
			return uuid.Nil, ErrEmailExists
		}
		a.logger.Error("Failed to create user", "email", email, "error", err)
		return uuid.Nil, errs.Unexpected
	}
	a.logger.Info("User registered", "user_id", user.ID)
	return user.ID, nil
}

func (a *Auth) Login(ctx context.Context, email, password string) (string, error) {
	user, err := a.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		a.logger.Error("Failed to look up user", "error", err)
		return "", errs.Unexpected
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	ok, err := a.hasher.Verify(user.PasswordHash, strings.TrimSpace(password))
	if err != nil || !ok {
		return "", ErrIncorrectPassword
	}

	token, err := a.tokens.Issue(Identity{UserID: user.ID, Admin: user.IsAdmin})
	if err != nil {
		a.logger.Error("Failed to issue token", "user_id", user.ID, "error", err)
		return "", errs.Unexpected
	}
	return token, nil
}

// SetAdmin grants or revokes administrator rights. Tokens issued before
// the change keep their old admin claim until they expire, which is why
// admin-only routes re-check IsAdmin.
func (a *Auth) SetAdmin(ctx context.Context, email string, admin bool) error {
	user, err := a.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		a.logger.Error("Failed to look up user", "error", err)
		return errs.Unexpected
	}
	if user == nil {
		return ErrUserNotFound
	}
	user.IsAdmin = admin
	if err := a.users.SaveUser(ctx, user); err != nil {
		a.logger.Error("Failed to save user", "user_id", user.ID, "error", err)
		return errs.Unexpected
	}
	return nil
}

func (a *Auth) IsAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	user, err := a.users.GetUserByID(ctx, id)
	if err != nil {
		a.logger.Error("Failed to look up user", "user_id", id, "error", err)
		return false, errs.Unexpected
	}
	if user == nil {
		return false, ErrUserNotFound
	}
	return user.IsAdmin, nil
}
