// Package category maintains the set of categories images can be filed
// under.
package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/db"
	"github.com/notes-bin/pictureteam/internal/errs"
	"github.com/notes-bin/pictureteam/internal/model"
)

const NamePattern = `^[A-Za-z]+$`

var namePattern = regexp.MustCompile(NamePattern)

var (
	ErrNotFound      = errs.New(errs.KindNotFound, "category was not found")
	ErrAlreadyExists = errs.New(errs.KindConflict, "category already exists")
)

// InvalidNameError is returned for names that do not match NamePattern.
type InvalidNameError struct {
	Pattern string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("category name must match %s", e.Pattern)
}

func (e *InvalidNameError) ErrKind() errs.Kind {
	return errs.KindValidation
}

type Store interface {
	CreateCategory(ctx context.Context, c *model.Category) error
	GetCategory(ctx context.Context, id uuid.UUID) (*model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	SaveCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	ListCategoryCounts(ctx context.Context) ([]model.CategoryCount, error)
}

// Ledger enforces category naming and uniqueness. Callers are expected
// to have checked that the caller is an administrator.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

func NewLedger(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger.With("scope", "category")}
}

func validate(name string) error {
	if !namePattern.MatchString(name) {
		return &InvalidNameError{Pattern: NamePattern}
	}
	return nil
}

func (l *Ledger) Create(ctx context.Context, name string) (uuid.UUID, error) {
	if err := validate(name); err != nil {
		return uuid.Nil, err
	}
	existing, err := l.store.GetCategoryByName(ctx, name)
	if err != nil {
		l.logger.Error("Failed to look up category", "name", name, "error", err)
		return uuid.Nil, errs.Unexpected
	}
	if existing != nil {
		return uuid.Nil, ErrAlreadyExists
	}

	c := &model.Category{ID: uuid.New(), Created: time.Now().UTC(), Name: name}
	if err := l.store.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return uuid.Nil, ErrAlreadyExists
		}
		l.logger.Error("Failed to create category", "name", name, "error", err)
		return uuid.Nil, errs.Unexpected
	}
	l.logger.Info("Category created", "category_id", c.ID, "name", name)
	return c.ID, nil
}

func (l *Ledger) Rename(ctx context.Context, id uuid.UUID, name string) error {
	if err := validate(name); err != nil {
		return err
	}
	c, err := l.store.GetCategory(ctx, id)
	if err != nil {
		l.logger.Error("Failed to look up category", "category_id", id, "error", err)
		return errs.Unexpected
	}
	if c == nil {
		return ErrNotFound
	}

	other, err := l.store.GetCategoryByName(ctx, name)
	if err != nil {
		l.logger.Error("Failed to look up category", "name", name, "error", err)
		return errs.Unexpected
	}
	if other != nil && other.ID != id {
		return ErrAlreadyExists
	}

	c.Name = name
	if err := l.store.SaveCategory(ctx, c); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return ErrAlreadyExists
		}
		l.logger.Error("Failed to rename category", "category_id", id, "error", err)
		return errs.Unexpected
	}
	return nil
}

// Delete removes the category together with every image association.
// Either both go or neither does.
func (l *Ledger) Delete(ctx context.Context, id uuid.UUID) error {
	c, err := l.store.GetCategory(ctx, id)
	if err != nil {
		l.logger.Error("Failed to look up category", "category_id", id, "error", err)
		return errs.Unexpected
	}
	if c == nil {
		return ErrNotFound
	}
	if err := l.store.DeleteCategory(ctx, id); err != nil {
		l.logger.Error("Failed to delete category", "category_id", id, "error", err)
		return errs.Unexpected
	}
	l.logger.Info("Category deleted", "category_id", id, "name", c.Name)
	return nil
}

func (l *Ledger) List(ctx context.Context) ([]model.CategoryCount, error) {
	categories, err := l.store.ListCategoryCounts(ctx)
	if err != nil {
		l.logger.Error("Failed to list categories", "error", err)
		return nil, errs.Unexpected
	}
	if categories == nil {
		categories = []model.CategoryCount{}
	}
	return categories, nil
}
