package image

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/errs"
)

var (
	ErrInvalidID       = errs.New(errs.KindValidation, "no image exists with the given id")
	ErrAlreadyUploaded = errs.New(errs.KindConflict, "the image has already been uploaded")
	ErrExpectedFile    = errs.New(errs.KindValidation, "expected a file in the request")
	ErrNotFound        = errs.New(errs.KindNotFound, "image was not found")
	ErrNotOwner        = errs.New(errs.KindForbidden, "only the owner may change this image")
	ErrEmptyTitle      = errs.New(errs.KindValidation, "the image title must not be empty")
)

// CategoryNotFoundError names the first category id that could not be
// resolved.
type CategoryNotFoundError struct {
	ID uuid.UUID
}

func (e *CategoryNotFoundError) Error() string {
	return fmt.Sprintf("category %s was not found", e.ID)
}

func (e *CategoryNotFoundError) ErrKind() errs.Kind {
	return errs.KindValidation
}
