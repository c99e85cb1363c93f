// Package image drives an image through its lifecycle: metadata is
// created first, categories are bound, and the binary is uploaded once.
package image

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/errs"
	"github.com/notes-bin/pictureteam/internal/model"
	"github.com/notes-bin/pictureteam/internal/storage"
)

const DefaultExtension = "png"

// AbandonAfter is how long an upload claim may stay without published
// bytes before another upload may take it over.
const AbandonAfter = time.Minute

var extPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

type Store interface {
	CreateImage(ctx context.Context, img *model.Image) error
	GetImage(ctx context.Context, id uuid.UUID) (*model.Image, error)
	MarkUploaded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ReclaimUpload(ctx context.Context, id uuid.UUID, prev, at time.Time) (bool, error)
	ClearUploaded(ctx context.Context, id uuid.UUID, at time.Time) error
	SearchImages(ctx context.Context, query string, offset, limit int) ([]model.Image, error)
	ImagesByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Image, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*model.Category, error)
	AddImageToCategory(ctx context.Context, categoryID, imageID uuid.UUID) error
	CategoriesByImage(ctx context.Context, imageID uuid.UUID) ([]model.Category, error)
}

// PartReader yields the parts of a multipart body; *multipart.Reader
// satisfies it.
type PartReader interface {
	NextPart() (*multipart.Part, error)
}

type Manager struct {
	store  Store
	blobs  storage.Backend
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(store Store, blobs storage.Backend, logger *slog.Logger) *Manager {
	return &Manager{store: store, blobs: blobs, logger: logger.With("scope", "image"), now: time.Now}
}

// Create stores the image metadata and binds it to every category.
// The bindings are not part of one transaction with the insert; if one
// fails the image stays with the categories bound so far and Categorize
// can complete it.
func (m *Manager) Create(ctx context.Context, ownerID uuid.UUID, title string, description *string, categoryIDs []uuid.UUID) (uuid.UUID, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return uuid.Nil, ErrEmptyTitle
	}
	if description != nil {
		d := strings.TrimSpace(*description)
		if d == "" {
			description = nil
		} else {
			description = &d
		}
	}

	categories, err := m.resolve(ctx, categoryIDs)
	if err != nil {
		return uuid.Nil, err
	}

	img := &model.Image{
		ID:          uuid.New(),
		Created:     time.Now().UTC(),
		Title:       title,
		Description: description,
		OwnerID:     ownerID,
	}
	if err := m.store.CreateImage(ctx, img); err != nil {
		m.logger.Error("Failed to create image", "owner_id", ownerID, "error", err)
		return uuid.Nil, errs.Unexpected
	}
	if err := m.bind(ctx, img.ID, categories); err != nil {
		return uuid.Nil, err
	}
	m.logger.Info("Image created", "image_id", img.ID, "owner_id", ownerID)
	return img.ID, nil
}

// Categorize binds any of the given categories the image is missing.
func (m *Manager) Categorize(ctx context.Context, callerID, imageID uuid.UUID, categoryIDs []uuid.UUID) error {
	img, err := m.lookup(ctx, imageID)
	if err != nil {
		return err
	}
	if img.OwnerID != callerID {
		return ErrNotOwner
	}
	categories, err := m.resolve(ctx, categoryIDs)
	if err != nil {
		return err
	}
	return m.bind(ctx, imageID, categories)
}

func (m *Manager) resolve(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	resolved := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		c, err := m.store.GetCategory(ctx, id)
		if err != nil {
			m.logger.Error("Failed to look up category", "category_id", id, "error", err)
			return nil, errs.Unexpected
		}
		if c == nil {
			return nil, &CategoryNotFoundError{ID: id}
		}
		resolved = append(resolved, c.ID)
	}
	return resolved, nil
}

func (m *Manager) bind(ctx context.Context, imageID uuid.UUID, categoryIDs []uuid.UUID) error {
	for _, id := range categoryIDs {
		if err := m.store.AddImageToCategory(ctx, id, imageID); err != nil {
			m.logger.Error("Failed to bind category", "image_id", imageID, "category_id", id, "error", err)
			return errs.Unexpected
		}
	}
	return nil
}

func (m *Manager) lookup(ctx context.Context, id uuid.UUID) (*model.Image, error) {
	img, err := m.store.GetImage(ctx, id)
	if err != nil {
		m.logger.Error("Failed to look up image", "image_id", id, "error", err)
		return nil, errs.Unexpected
	}
	if img == nil {
		return nil, ErrNotFound
	}
	return img, nil
}

// Extension returns the lowercased extension of filename, or
// DefaultExtension when it has none usable.
func Extension(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if !extPattern.MatchString(ext) {
		return DefaultExtension
	}
	return strings.ToLower(ext)
}

func objectName(id uuid.UUID, ext string) string {
	return id.String() + "." + ext
}

// SaveImage stores the first part of the upload as the image binary.
// The bytes are staged durably before the upload date is claimed with a
// conditional update, and published only after the claim succeeds, so a
// concurrent second upload cannot overwrite the first. A claim whose
// bytes never got published is taken over once it is AbandonAfter old.
func (m *Manager) SaveImage(ctx context.Context, id uuid.UUID, parts PartReader) error {
	img, err := m.store.GetImage(ctx, id)
	if err != nil {
		m.logger.Error("Failed to look up image", "image_id", id, "error", err)
		return errs.Unexpected
	}
	if img == nil {
		return ErrInvalidID
	}
	if img.Uploaded() {
		abandoned, err := m.abandoned(ctx, img)
		if err != nil {
			return err
		}
		if !abandoned {
			return ErrAlreadyUploaded
		}
	}

	part, err := parts.NextPart()
	if errors.Is(err, io.EOF) {
		return ErrExpectedFile
	}
	if err != nil {
		m.logger.Warn("Failed to read upload", "image_id", id, "error", err)
		return ErrExpectedFile
	}
	defer part.Close()

	staged := storage.StagingName(uuid.NewString())
	if err := m.blobs.Put(ctx, staged, part); err != nil {
		m.logger.Error("Failed to stage upload", "image_id", id, "error", err)
		m.discard(ctx, staged)
		return errs.Unexpected
	}

	at := m.now().UTC().Truncate(time.Microsecond)
	var ok bool
	if img.Uploaded() {
		ok, err = m.store.ReclaimUpload(ctx, id, *img.UploadDate, at)
	} else {
		ok, err = m.store.MarkUploaded(ctx, id, at)
	}
	if err != nil {
		m.logger.Error("Failed to mark image uploaded", "image_id", id, "error", err)
		m.discard(ctx, staged)
		return errs.Unexpected
	}
	if !ok {
		m.discard(ctx, staged)
		return ErrAlreadyUploaded
	}

	name := objectName(id, Extension(part.FileName()))
	if err := m.blobs.Move(ctx, staged, name); err != nil {
		m.logger.Error("Failed to publish upload", "image_id", id, "object", name, "error", err)
		if err := m.store.ClearUploaded(context.WithoutCancel(ctx), id, at); err != nil {
			m.logger.Error("Failed to clear upload date, image stays claimed until the claim is abandoned",
				"image_id", id, "abandon_after", AbandonAfter, "error", err)
		}
		m.discard(ctx, staged)
		return errs.Unexpected
	}
	m.logger.Info("Image uploaded", "image_id", id, "object", name)
	return nil
}

// abandoned reports whether img carries an upload date with no bytes
// behind it that is old enough for its uploader to have given up.
func (m *Manager) abandoned(ctx context.Context, img *model.Image) (bool, error) {
	if m.now().Sub(*img.UploadDate) < AbandonAfter {
		return false, nil
	}
	_, err := m.blobs.Find(ctx, img.ID.String()+".")
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotExist) {
		m.logger.Error("Failed to find image", "image_id", img.ID, "error", err)
		return false, errs.Unexpected
	}
	m.logger.Warn("Taking over abandoned upload", "image_id", img.ID, "claimed_at", *img.UploadDate)
	return true, nil
}

func (m *Manager) discard(ctx context.Context, name string) {
	if err := m.blobs.Delete(context.WithoutCancel(ctx), name); err != nil && !errors.Is(err, storage.ErrNotExist) {
		m.logger.Warn("Failed to remove staged upload", "object", name, "error", err)
	}
}

// GetImage opens the stored binary. The returned name carries the
// extension the image was uploaded with.
func (m *Manager) GetImage(ctx context.Context, id uuid.UUID) (io.ReadCloser, string, error) {
	name, err := m.blobs.Find(ctx, id.String()+".")
	if errors.Is(err, storage.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		m.logger.Error("Failed to find image", "image_id", id, "error", err)
		return nil, "", errs.Unexpected
	}
	rc, err := m.blobs.Open(ctx, name)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		m.logger.Error("Failed to open image", "image_id", id, "error", err)
		return nil, "", errs.Unexpected
	}
	return rc, name, nil
}

func (m *Manager) Info(ctx context.Context, id uuid.UUID) (model.ImageInfo, error) {
	img, err := m.lookup(ctx, id)
	if err != nil {
		return model.ImageInfo{}, err
	}
	return m.info(ctx, *img)
}

func (m *Manager) info(ctx context.Context, img model.Image) (model.ImageInfo, error) {
	categories, err := m.store.CategoriesByImage(ctx, img.ID)
	if err != nil {
		m.logger.Error("Failed to list image categories", "image_id", img.ID, "error", err)
		return model.ImageInfo{}, errs.Unexpected
	}
	return model.ImageInfo{Image: img, Categories: categories}, nil
}

// Search pages through the images matching query, then drops the ones
// whose binary is missing. A page can therefore come back short.
func (m *Manager) Search(ctx context.Context, query string, offset, limit int) ([]model.ImageInfo, error) {
	images, err := m.store.SearchImages(ctx, strings.TrimSpace(query), offset, limit)
	if err != nil {
		m.logger.Error("Failed to search images", "query", query, "error", err)
		return nil, errs.Unexpected
	}

	results := make([]model.ImageInfo, 0, len(images))
	for _, img := range images {
		if !img.Uploaded() {
			continue
		}
		_, err := m.blobs.Find(ctx, img.ID.String()+".")
		if errors.Is(err, storage.ErrNotExist) {
			continue
		}
		if err != nil {
			m.logger.Error("Failed to find image", "image_id", img.ID, "error", err)
			return nil, errs.Unexpected
		}
		info, err := m.info(ctx, img)
		if err != nil {
			return nil, err
		}
		results = append(results, info)
	}
	return results, nil
}

func (m *Manager) ByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Image, error) {
	images, err := m.store.ImagesByOwner(ctx, ownerID)
	if err != nil {
		m.logger.Error("Failed to list images", "owner_id", ownerID, "error", err)
		return nil, errs.Unexpected
	}
	if images == nil {
		images = []model.Image{}
	}
	return images, nil
}
