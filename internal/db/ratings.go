package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/model"
)

// UpsertRating stores the rating, replacing any earlier rating the same
// user gave the same image.
func (d *DB) UpsertRating(ctx context.Context, r model.Rating) error {
	_, err := d.exec(ctx,
		`INSERT INTO ratings (user_id, image_id, rating) VALUES (?, ?, ?)
		ON CONFLICT (user_id, image_id) DO UPDATE SET rating = excluded.rating`,
		r.UserID, r.ImageID, r.Value)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

func (d *DB) RatingsByImage(ctx context.Context, imageID uuid.UUID) ([]model.Rating, error) {
	ratings := []model.Rating{}
	err := d.query(ctx, func(rows *sql.Rows) error {
		var r model.Rating
		if err := rows.Scan(&r.UserID, &r.ImageID, &r.Value); err != nil {
			return err
		}
		ratings = append(ratings, r)
		return nil
	}, `SELECT user_id, image_id, rating FROM ratings WHERE image_id = ? ORDER BY user_id`, imageID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return ratings, nil
}

// UserAverageRatings returns, per user, the average rating their images
// received.
func (d *DB) UserAverageRatings(ctx context.Context) ([]model.UserRating, error) {
	var out []model.UserRating
	err := d.query(ctx, func(rows *sql.Rows) error {
		var (
			ur  model.UserRating
			avg sql.NullFloat64
		)
		if err := rows.Scan(&ur.Email, &avg); err != nil {
			return err
		}
		if avg.Valid {
			v := avg.Float64
			ur.Average = &v
		}
		out = append(out, ur)
		return nil
	}, `SELECT u.email, AVG(CAST(r.rating AS DOUBLE PRECISION))
		FROM users u
		LEFT JOIN images i ON i.owner_id = u.id
		LEFT JOIN ratings r ON r.image_id = i.id
		GROUP BY u.email
		ORDER BY u.email`)
	if err != nil {
		return nil, fmt.Errorf("list user ratings: %w", err)
	}
	return out, nil
}

// TopRatedImages returns up to n images ordered by average rating.
func (d *DB) TopRatedImages(ctx context.Context, n int) ([]model.ImageScore, error) {
	var out []model.ImageScore
	err := d.query(ctx, func(rows *sql.Rows) error {
		var s model.ImageScore
		if err := rows.Scan(&s.ImageID, &s.Average); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	}, `SELECT image_id, AVG(CAST(rating AS DOUBLE PRECISION)) AS average
		FROM ratings
		GROUP BY image_id
		ORDER BY average DESC, image_id
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list top rated images: %w", err)
	}
	return out, nil
}
