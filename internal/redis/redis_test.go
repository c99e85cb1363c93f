package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/pictureteam/internal/model"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr(), "", 0, 2)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRatingSummaryCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	id := uuid.New()

	gen, err := c.RatingGeneration(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, gen)

	miss, err := c.GetRatingSummary(ctx, id, gen)
	require.NoError(t, err)
	assert.Nil(t, miss)

	summary := model.Summarize([]model.Rating{{UserID: uuid.New(), ImageID: id, Value: 4}})
	require.NoError(t, c.CacheRatingSummary(ctx, id, gen, summary, time.Minute))

	hit, err := c.GetRatingSummary(ctx, id, gen)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, summary, *hit)

	mr.FastForward(2 * time.Minute)
	expired, err := c.GetRatingSummary(ctx, id, gen)
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestInvalidateRatingSummary(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	id := uuid.New()
	summary := model.Summarize([]model.Rating{{UserID: uuid.New(), ImageID: id, Value: 2}})

	require.NoError(t, c.CacheRatingSummary(ctx, id, 0, summary, time.Minute))
	require.NoError(t, c.InvalidateRatingSummary(ctx, id))

	gen, err := c.RatingGeneration(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	gone, err := c.GetRatingSummary(ctx, id, gen)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// A summary written late under the old generation stays unreachable.
	require.NoError(t, c.CacheRatingSummary(ctx, id, 0, summary, time.Minute))
	gone, err = c.GetRatingSummary(ctx, id, gen)
	require.NoError(t, err)
	assert.Nil(t, gone)

	other, err := c.RatingGeneration(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, other, "generations are per image")
}

func TestTopRated(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	a, b, old := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, c.SaveTopRated(ctx, []model.ImageScore{{ImageID: old, Average: 5}}))
	require.NoError(t, c.SaveTopRated(ctx, []model.ImageScore{
		{ImageID: a, Average: 3.5},
		{ImageID: b, Average: 4.5},
	}))

	ids, err := c.GetTopRated(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b, a}, ids, "the previous leaderboard is replaced")

	ids, err = c.GetTopRated(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, ids)

	require.NoError(t, c.SaveTopRated(ctx, nil))
	ids, err = c.GetTopRated(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewClientUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()
	_, err = NewClient(addr, "", 0, 1)
	assert.Error(t, err)
}
