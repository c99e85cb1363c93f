package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/model"
)

const imageColumns = `id, created, upload_date, title, description, owner_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (model.Image, error) {
	var (
		img         model.Image
		uploadDate  sql.NullTime
		description sql.NullString
	)
	if err := s.Scan(&img.ID, &img.Created, &uploadDate, &img.Title, &description, &img.OwnerID); err != nil {
		return img, err
	}
	if uploadDate.Valid {
		t := uploadDate.Time
		img.UploadDate = &t
	}
	if description.Valid {
		desc := description.String
		img.Description = &desc
	}
	return img, nil
}

func (d *DB) CreateImage(ctx context.Context, img *model.Image) error {
	_, err := d.exec(ctx,
		`INSERT INTO images (`+imageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		img.ID, img.Created, img.UploadDate, img.Title, img.Description, img.OwnerID)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// GetImage returns (nil, nil) when the image does not exist.
func (d *DB) GetImage(ctx context.Context, id uuid.UUID) (*model.Image, error) {
	var img model.Image
	err := d.queryRow(ctx, func(row *sql.Row) error {
		var err error
		img, err = scanImage(row)
		return err
	}, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return &img, nil
}

// MarkUploaded sets the upload date only if it is still unset. It reports
// false when another upload got there first.
func (d *DB) MarkUploaded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := d.exec(ctx,
		`UPDATE images SET upload_date = ? WHERE id = ? AND upload_date IS NULL`, at, id)
	if err != nil {
		return false, fmt.Errorf("mark image uploaded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark image uploaded: %w", err)
	}
	return n == 1, nil
}

// ReclaimUpload moves the upload date from prev to at. It reports false
// when the stored date is no longer prev.
func (d *DB) ReclaimUpload(ctx context.Context, id uuid.UUID, prev, at time.Time) (bool, error) {
	res, err := d.exec(ctx,
		`UPDATE images SET upload_date = ? WHERE id = ? AND upload_date = ?`, at, id, prev)
	if err != nil {
		return false, fmt.Errorf("reclaim image upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclaim image upload: %w", err)
	}
	return n == 1, nil
}

// ClearUploaded undoes the claim made at `at` when the bytes could not be
// published. A later claim is left alone.
func (d *DB) ClearUploaded(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := d.exec(ctx, `UPDATE images SET upload_date = NULL WHERE id = ? AND upload_date = ?`, id, at); err != nil {
		return fmt.Errorf("clear image upload date: %w", err)
	}
	return nil
}

// SearchImages matches query case-insensitively against title and
// description; an empty query matches everything. Newest first.
func (d *DB) SearchImages(ctx context.Context, query string, offset, limit int) ([]model.Image, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var images []model.Image
	err := d.query(ctx, func(rows *sql.Rows) error {
		img, err := scanImage(rows)
		if err != nil {
			return err
		}
		images = append(images, img)
		return nil
	}, `SELECT `+imageColumns+` FROM images
		WHERE ? = '' OR LOWER(title) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\'
		ORDER BY created DESC, id
		LIMIT ? OFFSET ?`,
		query, pattern, pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search images: %w", err)
	}
	return images, nil
}

func (d *DB) ImagesByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Image, error) {
	var images []model.Image
	err := d.query(ctx, func(rows *sql.Rows) error {
		img, err := scanImage(rows)
		if err != nil {
			return err
		}
		images = append(images, img)
		return nil
	}, `SELECT `+imageColumns+` FROM images WHERE owner_id = ? ORDER BY created DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list images by owner: %w", err)
	}
	return images, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
