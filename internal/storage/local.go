package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Local stores objects as files under a directory.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(dir, filepath.FromSlash(StagingPrefix)), 0755); err != nil {
		return nil, err
	}
	return &Local{dir: dir}, nil
}

func (s *Local) path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// Put writes to a temporary file in the target directory, syncs it and
// renames it into place so readers never see a partial object.
func (s *Local) Put(_ context.Context, name string, r io.Reader) error {
	target := s.path(name)
	out, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		slog.Error("Failed to create file", "path", target, "error", err)
		return err
	}
	defer os.Remove(out.Name())

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		slog.Error("Failed to save file", "path", target, "error", err)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(out.Name(), target)
}

func (s *Local) Move(_ context.Context, from, to string) error {
	return notExist(os.Rename(s.path(from), s.path(to)))
}

func (s *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, notExist(err)
	}
	return f, nil
}

func (s *Local) Find(_ context.Context, prefix string) (string, error) {
	matches, err := filepath.Glob(s.path(prefix) + "*")
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			rel, err := filepath.Rel(s.dir, m)
			if err != nil {
				return "", err
			}
			return filepath.ToSlash(rel), nil
		}
	}
	return "", ErrNotExist
}

func (s *Local) Delete(_ context.Context, name string) error {
	return notExist(os.Remove(s.path(name)))
}

func notExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotExist
	}
	return err
}
