package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/pictureteam/internal/model"
	"github.com/notes-bin/pictureteam/internal/redis"
)

type fakeSource struct {
	mu     sync.Mutex
	scores []model.ImageScore
	err    error
	calls  int
}

func (f *fakeSource) TopRatedImages(_ context.Context, n int) ([]model.ImageScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.scores) > n {
		return f.scores[:n], nil
	}
	return f.scores, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	c, err := redis.NewClient(mr.Addr(), "", 0, 2)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRefreshTopRated(t *testing.T) {
	ctx := context.Background()
	c := newRedis(t)
	best, next := uuid.New(), uuid.New()
	src := &fakeSource{scores: []model.ImageScore{{ImageID: best, Average: 5}, {ImageID: next, Average: 4}}}

	require.NoError(t, RefreshTopRated(ctx, src, c))
	ids, err := c.GetTopRated(ctx, TopRatedSize)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{best, next}, ids)

	src.err = errors.New("store down")
	assert.Error(t, RefreshTopRated(ctx, src, c))
	ids, err = c.GetTopRated(ctx, TopRatedSize)
	require.NoError(t, err)
	assert.Len(t, ids, 2, "a failed refresh keeps the old leaderboard")
}

func TestStartTopRatedRefreshStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newRedis(t)
	src := &fakeSource{scores: []model.ImageScore{{ImageID: uuid.New(), Average: 3}}}

	done := make(chan struct{})
	go func() {
		StartTopRatedRefresh(ctx, src, c, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return src.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh loop did not stop")
	}
}
