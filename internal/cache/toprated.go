// Package cache keeps derived data in Redis fresh in the background.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/notes-bin/pictureteam/internal/model"
)

// TopRatedSize is how many images the leaderboard holds.
const TopRatedSize = 10

type TopRatedSource interface {
	TopRatedImages(ctx context.Context, n int) ([]model.ImageScore, error)
}

type TopRatedSink interface {
	SaveTopRated(ctx context.Context, scores []model.ImageScore) error
}

// RefreshTopRated recomputes the leaderboard once.
func RefreshTopRated(ctx context.Context, src TopRatedSource, dst TopRatedSink) error {
	scores, err := src.TopRatedImages(ctx, TopRatedSize)
	if err != nil {
		return err
	}
	return dst.SaveTopRated(ctx, scores)
}

// StartTopRatedRefresh refreshes the leaderboard immediately and then on
// every tick until ctx is cancelled.
func StartTopRatedRefresh(ctx context.Context, src TopRatedSource, dst TopRatedSink, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := RefreshTopRated(ctx, src, dst); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Failed to refresh top rated images", "error", err)
		} else {
			slog.Debug("Refreshed top rated images")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
