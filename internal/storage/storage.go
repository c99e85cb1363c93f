// Package storage keeps uploaded image bytes. Objects are addressed by
// slash-separated names such as "<image id>.png" or "staging/<uuid>".
package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
)

var ErrNotExist = errors.New("object does not exist")

// StagingPrefix holds objects whose upload has not been published yet.
const StagingPrefix = "staging/"

type Backend interface {
	// Put writes r to name and returns once the bytes are durable.
	Put(ctx context.Context, name string, r io.Reader) error
	// Move renames an object, replacing any object already at to. Once
	// the object exists at to, Move reports success.
	Move(ctx context.Context, from, to string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Find returns the name of some object starting with prefix, or
	// ErrNotExist.
	Find(ctx context.Context, prefix string) (string, error)
	Delete(ctx context.Context, name string) error
}

// StagingName is where an upload waits before it is published.
func StagingName(id string) string {
	return path.Join(StagingPrefix, id)
}

// sourceRemoved handles the delete that ends a copy-based move. The copy
// is already committed, so a failure only leaves a stray source behind.
func sourceRemoved(from, to string, err error) {
	if err != nil && !errors.Is(err, ErrNotExist) {
		slog.Warn("Failed to remove source of moved object", "from", from, "to", to, "error", err)
	}
}
