package auth

import "github.com/notes-bin/pictureteam/internal/errs"

var (
	ErrInvalidEmail      = errs.New(errs.KindValidation, "the given e-mail is invalid")
	ErrEmailExists       = errs.New(errs.KindConflict, "the given e-mail address already exists")
	ErrUserNotFound      = errs.New(errs.KindNotFound, "user was not found")
	ErrIncorrectPassword = errs.New(errs.KindForbidden, "incorrect password")
	ErrMissingToken      = errs.New(errs.KindUnauthorized, "authorization token is missing")
	ErrInvalidToken      = errs.New(errs.KindValidation, "invalid authorization token")
	ErrAdminOnly         = errs.New(errs.KindForbidden, "only administrators may do this")
)
