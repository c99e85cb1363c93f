package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/notes-bin/pictureteam/internal/model"
)

const topRatedKey = "images:top-rated"

type Client struct {
	*redis.Client
}

func NewClient(addr, password string, db, poolSize int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		client.Close()
		return nil, err
	}
	slog.Info("Connected to Redis", "addr", addr)
	return &Client{client}, nil
}

func generationKey(imageID uuid.UUID) string {
	return fmt.Sprintf("rating:generation:%s", imageID)
}

func summaryKey(imageID uuid.UUID, generation int64) string {
	return fmt.Sprintf("rating:summary:%s:%d", imageID, generation)
}

// RatingGeneration returns the image's summary generation, 0 until the
// first invalidation. Summaries are cached per generation, so one built
// from a read that raced an invalidation lands under a key nobody reads.
func (c *Client) RatingGeneration(ctx context.Context, imageID uuid.UUID) (int64, error) {
	n, err := c.Get(ctx, generationKey(imageID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (c *Client) CacheRatingSummary(ctx context.Context, imageID uuid.UUID, generation int64, summary model.RatingSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.Set(ctx, summaryKey(imageID, generation), data, ttl).Err()
}

// GetRatingSummary returns (nil, nil) on a cache miss.
func (c *Client) GetRatingSummary(ctx context.Context, imageID uuid.UUID, generation int64) (*model.RatingSummary, error) {
	data, err := c.Get(ctx, summaryKey(imageID, generation)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var summary model.RatingSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// InvalidateRatingSummary moves the image to a new generation.
func (c *Client) InvalidateRatingSummary(ctx context.Context, imageID uuid.UUID) error {
	return c.Incr(ctx, generationKey(imageID)).Err()
}

// SaveTopRated replaces the leaderboard in one transaction.
func (c *Client) SaveTopRated(ctx context.Context, scores []model.ImageScore) error {
	_, err := c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, topRatedKey)
		if len(scores) == 0 {
			return nil
		}
		members := make([]redis.Z, 0, len(scores))
		for _, s := range scores {
			members = append(members, redis.Z{Score: s.Average, Member: s.ImageID.String()})
		}
		pipe.ZAdd(ctx, topRatedKey, members...)
		return nil
	})
	return err
}

// GetTopRated returns up to n image ids, best first.
func (c *Client) GetTopRated(ctx context.Context, n int) ([]uuid.UUID, error) {
	members, err := c.ZRevRange(ctx, topRatedKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			slog.Warn("Skipping malformed leaderboard entry", "member", m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
