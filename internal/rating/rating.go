// Package rating records how users rate each other's images and
// summarizes the results.
package rating

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/errs"
	"github.com/notes-bin/pictureteam/internal/model"
)

const (
	MinRating = 1
	MaxRating = 5
)

var (
	ErrImageNotFound = errs.New(errs.KindNotFound, "image was not found")
	ErrOwnImage      = errs.New(errs.KindValidation, "own images cannot be rated")
	ErrInvalidRating = errs.New(errs.KindValidation, "the rating must be between 1 and 5")
)

type Store interface {
	GetImage(ctx context.Context, id uuid.UUID) (*model.Image, error)
	UpsertRating(ctx context.Context, r model.Rating) error
	RatingsByImage(ctx context.Context, imageID uuid.UUID) ([]model.Rating, error)
	UserAverageRatings(ctx context.Context) ([]model.UserRating, error)
	TopRatedImages(ctx context.Context, n int) ([]model.ImageScore, error)
}

// Cache is an optional read-through cache for summaries and the
// top-rated leaderboard. Summaries are keyed by a per-image generation
// that InvalidateRatingSummary advances. Its failures are logged and
// never surface.
type Cache interface {
	RatingGeneration(ctx context.Context, imageID uuid.UUID) (int64, error)
	GetRatingSummary(ctx context.Context, imageID uuid.UUID, generation int64) (*model.RatingSummary, error)
	CacheRatingSummary(ctx context.Context, imageID uuid.UUID, generation int64, summary model.RatingSummary, ttl time.Duration) error
	InvalidateRatingSummary(ctx context.Context, imageID uuid.UUID) error
	GetTopRated(ctx context.Context, n int) ([]uuid.UUID, error)
}

type Aggregator struct {
	store    Store
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger

	mu sync.Mutex
	// stale holds images whose invalidation failed, stamped with a
	// sequence number. They bypass the cache until an invalidation that
	// started after the stamp succeeds.
	stale map[uuid.UUID]uint64
	seq   uint64
}

func NewAggregator(store Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger.With("scope", "rating"),
		stale:  map[uuid.UUID]uint64{},
	}
}

// WithCache enables caching of rating summaries for ttl.
func (a *Aggregator) WithCache(cache Cache, ttl time.Duration) *Aggregator {
	a.cache = cache
	a.cacheTTL = ttl
	return a
}

func (a *Aggregator) image(ctx context.Context, id uuid.UUID) (*model.Image, error) {
	img, err := a.store.GetImage(ctx, id)
	if err != nil {
		a.logger.Error("Failed to look up image", "image_id", id, "error", err)
		return nil, errs.Unexpected
	}
	if img == nil {
		return nil, ErrImageNotFound
	}
	return img, nil
}

// Rate records raterID's rating of the image, replacing an earlier one.
func (a *Aggregator) Rate(ctx context.Context, imageID, raterID uuid.UUID, value int) error {
	img, err := a.image(ctx, imageID)
	if err != nil {
		return err
	}
	if img.OwnerID == raterID {
		return ErrOwnImage
	}
	if value < MinRating || value > MaxRating {
		return ErrInvalidRating
	}

	r := model.Rating{UserID: raterID, ImageID: imageID, Value: value}
	if err := a.store.UpsertRating(ctx, r); err != nil {
		a.logger.Error("Failed to save rating", "image_id", imageID, "user_id", raterID, "error", err)
		return errs.Unexpected
	}
	if a.cache != nil {
		if err := a.invalidate(context.WithoutCancel(ctx), imageID); err != nil {
			a.logger.Warn("Failed to invalidate rating summary", "image_id", imageID, "error", err)
		}
	}
	return nil
}

func (a *Aggregator) Ratings(ctx context.Context, imageID uuid.UUID) (model.RatingSummary, error) {
	if _, err := a.image(ctx, imageID); err != nil {
		return model.RatingSummary{}, err
	}
	if a.cache == nil {
		return a.summarize(ctx, imageID)
	}

	if a.isStale(imageID) {
		if err := a.invalidate(ctx, imageID); err != nil {
			a.logger.Warn("Rating summary cache still stale, reading store", "image_id", imageID, "error", err)
			return a.summarize(ctx, imageID)
		}
	}

	gen, err := a.cache.RatingGeneration(ctx, imageID)
	if err != nil {
		a.logger.Warn("Failed to read rating summary generation", "image_id", imageID, "error", err)
		return a.summarize(ctx, imageID)
	}
	cached, err := a.cache.GetRatingSummary(ctx, imageID, gen)
	if err != nil {
		a.logger.Warn("Failed to read rating summary cache", "image_id", imageID, "error", err)
	} else if cached != nil {
		return *cached, nil
	}

	summary, err := a.summarize(ctx, imageID)
	if err != nil {
		return summary, err
	}
	if err := a.cache.CacheRatingSummary(ctx, imageID, gen, summary, a.cacheTTL); err != nil {
		a.logger.Warn("Failed to cache rating summary", "image_id", imageID, "error", err)
	}
	return summary, nil
}

func (a *Aggregator) summarize(ctx context.Context, imageID uuid.UUID) (model.RatingSummary, error) {
	ratings, err := a.store.RatingsByImage(ctx, imageID)
	if err != nil {
		a.logger.Error("Failed to list ratings", "image_id", imageID, "error", err)
		return model.RatingSummary{}, errs.Unexpected
	}
	return model.Summarize(ratings), nil
}

// invalidate advances the image's summary generation. On failure the
// image is marked stale; on success any mark made before it started is
// cleared.
func (a *Aggregator) invalidate(ctx context.Context, imageID uuid.UUID) error {
	a.mu.Lock()
	before := a.stale[imageID]
	a.mu.Unlock()

	err := a.cache.InvalidateRatingSummary(ctx, imageID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.seq++
		a.stale[imageID] = a.seq
		return err
	}
	if mark, ok := a.stale[imageID]; ok && mark == before {
		delete(a.stale, imageID)
	}
	return nil
}

func (a *Aggregator) isStale(imageID uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.stale[imageID]
	return ok
}

// UserAverages returns each user's average received rating.
func (a *Aggregator) UserAverages(ctx context.Context) ([]model.UserRating, error) {
	averages, err := a.store.UserAverageRatings(ctx)
	if err != nil {
		a.logger.Error("Failed to list user ratings", "error", err)
		return nil, errs.Unexpected
	}
	if averages == nil {
		averages = []model.UserRating{}
	}
	return averages, nil
}

// TopRated returns up to n image ids by descending average rating. The
// cached leaderboard is used when it has entries.
func (a *Aggregator) TopRated(ctx context.Context, n int) ([]uuid.UUID, error) {
	if a.cache != nil {
		ids, err := a.cache.GetTopRated(ctx, n)
		if err != nil {
			a.logger.Warn("Failed to read top rated cache", "error", err)
		} else if len(ids) > 0 {
			return ids, nil
		}
	}

	scores, err := a.store.TopRatedImages(ctx, n)
	if err != nil {
		a.logger.Error("Failed to list top rated images", "error", err)
		return nil, errs.Unexpected
	}
	ids := make([]uuid.UUID, 0, len(scores))
	for _, s := range scores {
		ids = append(ids, s.ImageID)
	}
	return ids, nil
}
