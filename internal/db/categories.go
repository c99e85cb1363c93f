package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/model"
)

func (d *DB) CreateCategory(ctx context.Context, c *model.Category) error {
	_, err := d.exec(ctx, `INSERT INTO categories (id, created, name) VALUES (?, ?, ?)`,
		c.ID, c.Created, c.Name)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// GetCategory returns (nil, nil) when the category does not exist.
func (d *DB) GetCategory(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	return d.getCategory(ctx, `SELECT id, created, name FROM categories WHERE id = ?`, id)
}

// GetCategoryByName looks the name up case-insensitively.
func (d *DB) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	return d.getCategory(ctx, `SELECT id, created, name FROM categories WHERE LOWER(name) = LOWER(?)`, name)
}

func (d *DB) getCategory(ctx context.Context, query string, arg any) (*model.Category, error) {
	var c model.Category
	err := d.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&c.ID, &c.Created, &c.Name)
	}, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (d *DB) SaveCategory(ctx context.Context, c *model.Category) error {
	if _, err := d.exec(ctx, `UPDATE categories SET name = ? WHERE id = ?`, c.Name, c.ID); err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// DeleteCategory removes the category's image associations and then the
// category itself in one transaction.
func (d *DB) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM image_categories WHERE category_id = ?`), id); err != nil {
		return fmt.Errorf("remove category images: %w", err)
	}
	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM categories WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit category delete: %w", err)
	}
	return nil
}

func (d *DB) ListCategoryCounts(ctx context.Context) ([]model.CategoryCount, error) {
	var categories []model.CategoryCount
	err := d.query(ctx, func(rows *sql.Rows) error {
		var c model.CategoryCount
		if err := rows.Scan(&c.ID, &c.Created, &c.Name, &c.ImageCount); err != nil {
			return err
		}
		categories = append(categories, c)
		return nil
	}, `SELECT c.id, c.created, c.name, COUNT(ic.image_id)
		FROM categories c
		LEFT JOIN image_categories ic ON ic.category_id = c.id
		GROUP BY c.id, c.created, c.name
		ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// AddImageToCategory binds an image to a category. Binding twice is a
// no-op.
func (d *DB) AddImageToCategory(ctx context.Context, categoryID, imageID uuid.UUID) error {
	_, err := d.exec(ctx,
		`INSERT INTO image_categories (image_id, category_id) VALUES (?, ?)
		ON CONFLICT (image_id, category_id) DO NOTHING`, imageID, categoryID)
	if err != nil {
		return fmt.Errorf("add image to category: %w", err)
	}
	return nil
}

func (d *DB) CategoriesByImage(ctx context.Context, imageID uuid.UUID) ([]model.Category, error) {
	categories := []model.Category{}
	err := d.query(ctx, func(rows *sql.Rows) error {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Created, &c.Name); err != nil {
			return err
		}
		categories = append(categories, c)
		return nil
	}, `SELECT c.id, c.created, c.name
		FROM categories c
		JOIN image_categories ic ON ic.category_id = c.id
		WHERE ic.image_id = ?
		ORDER BY c.name`, imageID)
	if err != nil {
		return nil, fmt.Errorf("list image categories: %w", err)
	}
	return categories, nil
}
