package rating

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/pictureteam/internal/db"
	"github.com/notes-bin/pictureteam/internal/db/dbtest"
	"github.com/notes-bin/pictureteam/internal/errs"
	"github.com/notes-bin/pictureteam/internal/model"
	"github.com/notes-bin/pictureteam/internal/redis"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	d     *db.DB
	owner *model.User
	rater *model.User
	image *model.Image
}

func newFixture(t *testing.T) *fixture {
	d := dbtest.New(t)
	owner := dbtest.User(t, d, "owner@b.com")
	return &fixture{
		d:     d,
		owner: owner,
		rater: dbtest.User(t, d, "rater@b.com"),
		image: dbtest.Image(t, d, owner.ID, "t"),
	}
}

func TestRate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := NewAggregator(f.d, discard)

	err := a.Rate(ctx, f.image.ID, f.owner.ID, 3)
	assert.ErrorIs(t, err, ErrOwnImage)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.ErrorIs(t, a.Rate(ctx, f.image.ID, f.rater.ID, 0), ErrInvalidRating)
	assert.ErrorIs(t, a.Rate(ctx, f.image.ID, f.rater.ID, 6), ErrInvalidRating)
	assert.ErrorIs(t, a.Rate(ctx, uuid.New(), f.rater.ID, 3), ErrImageNotFound)

	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 3))
	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 5))

	summary, err := a.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count, "a second rating replaces the first")
	assert.Equal(t, 5.0, summary.Average)
	require.Len(t, summary.Ratings, 1)
	assert.Equal(t, 5, summary.Ratings[0].Value)
}

func TestRatingsAverage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := NewAggregator(f.d, discard)

	empty, err := a.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.Average)
	assert.NotNil(t, empty.Ratings)

	second := dbtest.User(t, f.d, "second@b.com")
	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 2))
	require.NoError(t, a.Rate(ctx, f.image.ID, second.ID, 5))

	summary, err := a.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 3.5, summary.Average, 1e-9)

	_, err = a.Ratings(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestUserAveragesAndTopRated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := NewAggregator(f.d, discard)
	other := dbtest.Image(t, f.d, f.rater.ID, "other")

	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 2))
	require.NoError(t, a.Rate(ctx, other.ID, f.owner.ID, 4))

	averages, err := a.UserAverages(ctx)
	require.NoError(t, err)
	require.Len(t, averages, 2)
	byEmail := map[string]float64{}
	for _, ur := range averages {
		require.NotNil(t, ur.Average)
		byEmail[ur.Email] = *ur.Average
	}
	assert.InDelta(t, 2.0, byEmail["owner@b.com"], 1e-9)
	assert.InDelta(t, 4.0, byEmail["rater@b.com"], 1e-9)

	top, err := a.TopRated(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{other.ID, f.image.ID}, top)
}

func TestRatingsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client, err := redis.NewClient(mr.Addr(), "", 0, 2)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	a := NewAggregator(f.d, discard).WithCache(client, time.Minute)
	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 3))

	_, err = a.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	gen, err := client.RatingGeneration(ctx, f.image.ID)
	require.NoError(t, err)
	cached, err := client.GetRatingSummary(ctx, f.image.ID, gen)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 3.0, cached.Average)

	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 4))
	summary, err := a.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, summary.Average, "rating invalidates the cached summary")

	// A broken cache falls back to the store.
	mr.Close()
	summary, err = a.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, summary.Average)
	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 1))
}

func TestTopRatedPrefersLeaderboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(mr.Addr(), "", 0, 2)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	a := NewAggregator(f.d, discard).WithCache(client, time.Minute)
	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 3))

	top, err := a.TopRated(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.image.ID}, top, "empty leaderboard falls back to the store")

	cachedOnly := uuid.New()
	require.NoError(t, client.SaveTopRated(ctx, []model.ImageScore{{ImageID: cachedOnly, Average: 5}}))
	top, err = a.TopRated(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{cachedOnly}, top)
}

func newCacheClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(mr.Addr(), "", 0, 4)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// pausedReads holds RatingsByImage after the store has answered until
// release is closed.
type pausedReads struct {
	*db.DB
	read    chan struct{}
	release chan struct{}
}

func (s *pausedReads) RatingsByImage(ctx context.Context, imageID uuid.UUID) ([]model.Rating, error) {
	ratings, err := s.DB.RatingsByImage(ctx, imageID)
	s.read <- struct{}{}
	<-s.release
	return ratings, err
}

func TestRatingsCacheDropsSummaryReadBeforeRate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := newCacheClient(t)

	writer := NewAggregator(f.d, discard).WithCache(client, time.Minute)
	slow := &pausedReads{DB: f.d, read: make(chan struct{}), release: make(chan struct{})}
	reader := NewAggregator(slow, discard).WithCache(client, time.Minute)

	require.NoError(t, writer.Rate(ctx, f.image.ID, f.rater.ID, 1))

	done := make(chan model.RatingSummary, 1)
	go func() {
		summary, _ := reader.Ratings(ctx, f.image.ID)
		done <- summary
	}()
	<-slow.read
	require.NoError(t, writer.Rate(ctx, f.image.ID, f.rater.ID, 5))
	close(slow.release)
	assert.Equal(t, 1.0, (<-done).Average, "the reader saw the store before the second rating")

	summary, err := writer.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, summary.Average)
	summary, err = NewAggregator(f.d, discard).WithCache(client, time.Minute).Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, summary.Average)
}

// flakyCache fails invalidations while failing is set.
type flakyCache struct {
	*redis.Client
	failing bool
}

func (c *flakyCache) InvalidateRatingSummary(ctx context.Context, imageID uuid.UUID) error {
	if c.failing {
		return errors.New("connection refused")
	}
	return c.Client.InvalidateRatingSummary(ctx, imageID)
}

func TestRatingsAfterFailedInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := newCacheClient(t)
	cache := &flakyCache{Client: client}
	a := NewAggregator(f.d, discard).WithCache(cache, time.Minute)

	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 3))
	summary, err := a.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, summary.Average)

	cache.failing = true
	require.NoError(t, a.Rate(ctx, f.image.ID, f.rater.ID, 4), "cache failures never surface")
	assert.True(t, a.isStale(f.image.ID))

	summary, err = a.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, summary.Average, "a stale image is read from the store")

	cache.failing = false
	summary, err = a.Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, summary.Average)
	assert.False(t, a.isStale(f.image.ID), "a later invalidation clears the mark")

	summary, err = NewAggregator(f.d, discard).WithCache(client, time.Minute).Ratings(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, summary.Average, "the shared cache no longer serves the old summary")
}
