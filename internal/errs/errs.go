// Package errs holds the error taxonomy shared by every component.
//
// Components return either one of their own sentinel *Error values or
// Unexpected. Raw causes are logged where they occur and never travel
// past the component that saw them.
package errs

import "errors"

type Kind int

const (
	KindUnexpected Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "unexpected"
	}
}

type Error struct {
	Kind    Kind
	Message string
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Unexpected is the opaque outcome of store, I/O and signing failures.
var Unexpected = New(KindUnexpected, "an unexpected error happened")

func (e *Error) ErrKind() Kind {
	return e.Kind
}

// Kinded is implemented by typed errors that carry data, such as the id
// of a missing category, but still belong to the taxonomy.
type Kinded interface {
	error
	ErrKind() Kind
}

// KindOf reports the kind of err. Errors outside the taxonomy are
// Unexpected.
func KindOf(err error) Kind {
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrKind()
	}
	return KindUnexpected
}
