package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/notes-bin/pictureteam/internal/auth"
	"github.com/notes-bin/pictureteam/internal/cache"
	"github.com/notes-bin/pictureteam/internal/config"
	"github.com/notes-bin/pictureteam/internal/errs"
	"github.com/notes-bin/pictureteam/internal/image"
	"github.com/notes-bin/pictureteam/internal/model"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

type Gate interface {
	Authorize(header string) (auth.Identity, error)
}

type Credentials interface {
	Register(ctx context.Context, email, password string) (uuid.UUID, error)
	Login(ctx context.Context, email, password string) (string, error)
	IsAdmin(ctx context.Context, id uuid.UUID) (bool, error)
}

type Categories interface {
	Create(ctx context.Context, name string) (uuid.UUID, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]model.CategoryCount, error)
}

type Images interface {
	Create(ctx context.Context, ownerID uuid.UUID, title string, description *string, categoryIDs []uuid.UUID) (uuid.UUID, error)
	Categorize(ctx context.Context, callerID, imageID uuid.UUID, categoryIDs []uuid.UUID) error
	SaveImage(ctx context.Context, id uuid.UUID, parts image.PartReader) error
	GetImage(ctx context.Context, id uuid.UUID) (io.ReadCloser, string, error)
	Info(ctx context.Context, id uuid.UUID) (model.ImageInfo, error)
	Search(ctx context.Context, query string, offset, limit int) ([]model.ImageInfo, error)
	ByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Image, error)
}

type Ratings interface {
	Rate(ctx context.Context, imageID, raterID uuid.UUID, value int) error
	Ratings(ctx context.Context, imageID uuid.UUID) (model.RatingSummary, error)
	UserAverages(ctx context.Context) ([]model.UserRating, error)
	TopRated(ctx context.Context, n int) ([]uuid.UUID, error)
}

type Handler struct {
	config     *config.Config
	gate       Gate
	users      Credentials
	categories Categories
	images     Images
	ratings    Ratings
}

func NewHandler(config *config.Config, gate Gate, users Credentials, categories Categories, images Images, ratings Ratings) *Handler {
	return &Handler{
		config:     config,
		gate:       gate,
		users:      users,
		categories: categories,
		images:     images,
		ratings:    ratings,
	}
}

func SetupRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/user/register", h.Register)
	r.Post("/user/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/user/images", h.UserImages)
		r.Get("/user/ratings", h.UserRatings)

		r.Get("/categories", h.ListCategories)

		r.Post("/images", h.CreateImage)
		r.Get("/images", h.SearchImages)
		r.Get("/images/top", h.TopImages)
		r.Post("/images/{id}", h.UploadImage)
		r.Get("/images/{id}", h.DownloadImage)
		r.Get("/images/{id}/info", h.ImageInfo)
		r.Put("/images/{id}/categories", h.CategorizeImage)
		r.Put("/images/{id}/rating", h.RateImage)
		r.Get("/images/{id}/rating", h.ImageRatings)

		r.Group(func(r chi.Router) {
			r.Use(h.AdminMiddleware)
			r.Post("/categories", h.CreateCategory)
			r.Put("/categories/{id}", h.RenameCategory)
			r.Delete("/categories/{id}", h.DeleteCategory)
		})
	})

	return r
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]uuid.UUID{"id": id})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) UserImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.images.ByOwner(r.Context(), identity(r).UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]model.Image{"images": images})
}

func (h *Handler) UserRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.ratings.UserAverages(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]model.UserRating{"ratings": ratings})
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]model.CategoryCount{"categories": categories})
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.categories.Create(r.Context(), req.Name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]uuid.UUID{"id": id})
}

func (h *Handler) RenameCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.categories.Rename(r.Context(), id, req.Name); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.categories.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string      `json:"title"`
		Description *string     `json:"description"`
		Categories  []uuid.UUID `json:"categories"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, err := h.images.Create(r.Context(), identity(r).UserID, req.Title, req.Description, req.Categories)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]uuid.UUID{"id": id})
}

func (h *Handler) SearchImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		respondError(w, http.StatusBadRequest, "Invalid offset")
		return
	}
	limit, err := intParam(q.Get("limit"), defaultSearchLimit)
	if err != nil || limit < 1 || limit > maxSearchLimit {
		respondError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	images, err := h.images.Search(r.Context(), q.Get("search"), offset, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]model.ImageInfo{"images": images})
}

func (h *Handler) TopImages(w http.ResponseWriter, r *http.Request) {
	ids, err := h.ratings.TopRated(r.Context(), cache.TopRatedSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]uuid.UUID{"images": ids})
}

// UploadImage streams the first multipart part straight to storage.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	parts, err := r.MultipartReader()
	if err != nil {
		respondServiceError(w, image.ErrExpectedFile)
		return
	}
	if err := h.images.SaveImage(r.Context(), id, parts); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rc, name, err := h.images.GetImage(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("Failed to serve image", "image_id", id, "error", err)
	}
}

func (h *Handler) ImageInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	info, err := h.images.Info(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *Handler) CategorizeImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Categories []uuid.UUID `json:"categories"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.images.Categorize(r.Context(), identity(r).UserID, id, req.Categories); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RateImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Rating int `json:"rating"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.ratings.Rate(r.Context(), id, identity(r).UserID, req.Rating); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ImageRatings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	summary, err := h.ratings.Ratings(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// identity is only valid behind AuthMiddleware.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// statusFor maps a service error to its HTTP status. Conflicts are
// reported as bad requests.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindValidation, errs.KindConflict:
		return http.StatusBadRequest
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	slog.Debug("Service call failed", "kind", errs.KindOf(err).String(), "status", status)
	var kinded errs.Kinded
	if status == http.StatusInternalServerError || !errors.As(err, &kinded) {
		respondError(w, status, errs.Unexpected.Error())
		return
	}
	respondError(w, status, kinded.Error())
}

func respondError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "message", message)
	} else {
		slog.Debug("Request rejected", "status", status, "message", message)
	}
	respondJSON(w, status, map[string]string{"message": message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
