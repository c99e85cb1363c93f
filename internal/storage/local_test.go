package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func read(t *testing.T, b Backend, name string) string {
	t.Helper()
	rc, err := b.Open(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocalPutMoveFind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocal(dir)
	require.NoError(t, err)

	staged := StagingName("abc")
	require.NoError(t, s.Put(ctx, staged, strings.NewReader("bytes")))
	assert.Equal(t, "bytes", read(t, s, staged))

	_, err = s.Find(ctx, "img1.")
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, s.Move(ctx, staged, "img1.jpg"))
	_, err = s.Open(ctx, staged)
	assert.ErrorIs(t, err, ErrNotExist)

	name, err := s.Find(ctx, "img1.")
	require.NoError(t, err)
	assert.Equal(t, "img1.jpg", name)
	assert.Equal(t, "bytes", read(t, s, name))

	entries, err := os.ReadDir(filepath.Join(dir, "staging"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no temporary files are left behind")
}

func TestLocalFindIgnoresDirectories(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	_, err = s.Find(context.Background(), "staging")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestLocalMissing(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Move(ctx, "nope", "other"), ErrNotExist)
	assert.ErrorIs(t, s.Delete(ctx, "nope"), ErrNotExist)
}

func TestLocalPutFailedReaderLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	err = s.Put(ctx, "img.png", io.MultiReader(strings.NewReader("half"), failingReader{}))
	assert.Error(t, err)
	_, err = s.Open(ctx, "img.png")
	assert.ErrorIs(t, err, ErrNotExist)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
