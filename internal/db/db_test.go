package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/pictureteam/internal/db"
	"github.com/notes-bin/pictureteam/internal/db/dbtest"
	"github.com/notes-bin/pictureteam/internal/model"
)

func TestUsers(t *testing.T) {
	ctx := context.Background()
	d := dbtest.New(t)

	u := dbtest.User(t, d, "a@b.com")

	got, err := d.GetUserByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.False(t, got.IsAdmin)

	missing, err := d.GetUserByEmail(ctx, "nobody@b.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dup := &model.User{ID: uuid.New(), Created: time.Now(), Email: "A@B.com", PasswordHash: "y"}
	assert.ErrorIs(t, d.CreateUser(ctx, dup), db.ErrDuplicate)

	got.IsAdmin = true
	require.NoError(t, d.SaveUser(ctx, got))
	byID, err := d.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, byID.IsAdmin)
}

func TestMarkUploadedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	d := dbtest.New(t)
	owner := dbtest.User(t, d, "o@b.com")
	img := dbtest.Image(t, d, owner.ID, "sunset")

	first := time.Now().UTC().Truncate(time.Microsecond)
	ok, err := d.MarkUploaded(ctx, img.ID, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.MarkUploaded(ctx, img.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := d.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.True(t, got.Uploaded())

	require.NoError(t, d.ClearUploaded(ctx, img.ID, first.Add(time.Second)))
	got, err = d.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.True(t, got.Uploaded(), "a clear for another claim changes nothing")

	require.NoError(t, d.ClearUploaded(ctx, img.ID, first))
	got, err = d.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.False(t, got.Uploaded())
}

func TestReclaimUpload(t *testing.T) {
	ctx := context.Background()
	d := dbtest.New(t)
	owner := dbtest.User(t, d, "o@b.com")
	img := dbtest.Image(t, d, owner.ID, "sunset")

	stuck := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	ok, err := d.MarkUploaded(ctx, img.ID, stuck)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := d.GetImage(ctx, img.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UploadDate)

	ok, err = d.ReclaimUpload(ctx, img.ID, got.UploadDate.Add(time.Second), time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok, "a different previous date does not match")

	now := time.Now().UTC().Truncate(time.Microsecond)
	ok, err = d.ReclaimUpload(ctx, img.ID, *got.UploadDate, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.ReclaimUpload(ctx, img.ID, *got.UploadDate, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok, "only one reclaim wins")

	got, err = d.GetImage(ctx, img.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UploadDate)
	assert.True(t, now.Equal(*got.UploadDate))
}

func TestSearchImages(t *testing.T) {
	ctx := context.Background()
	d := dbtest.New(t)
	owner := dbtest.User(t, d, "o@b.com")

	desc := "Taken at 100% zoom"
	sunset := &model.Image{ID: uuid.New(), Created: time.Now().UTC().Add(-time.Hour), Title: "Sunset", Description: &desc, OwnerID: owner.ID}
	require.NoError(t, d.CreateImage(ctx, sunset))
	dbtest.Image(t, d, owner.ID, "Mountain")

	all, err := d.SearchImages(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Mountain", all[0].Title, "newest first")

	byTitle, err := d.SearchImages(ctx, "SUN", 0, 10)
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	require.NotNil(t, byTitle[0].Description)
	assert.Equal(t, desc, *byTitle[0].Description)

	byDesc, err := d.SearchImages(ctx, "100%", 0, 10)
	require.NoError(t, err)
	assert.Len(t, byDesc, 1)

	literal, err := d.SearchImages(ctx, "%", 0, 10)
	require.NoError(t, err)
	assert.Len(t, literal, 1, "% is matched literally")

	page, err := d.SearchImages(ctx, "", 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Sunset", page[0].Title)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	d := dbtest.New(t)
	owner := dbtest.User(t, d, "o@b.com")
	img := dbtest.Image(t, d, owner.ID, "cat")
	animals := dbtest.Category(t, d, "Animals")
	dbtest.Category(t, d, "Nature")

	dup := &model.Category{ID: uuid.New(), Created: time.Now(), Name: "animals"}
	assert.ErrorIs(t, d.CreateCategory(ctx, dup), db.ErrDuplicate)

	byName, err := d.GetCategoryByName(ctx, "ANIMALS")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, animals.ID, byName.ID)

	require.NoError(t, d.AddImageToCategory(ctx, animals.ID, img.ID))
	require.NoError(t, d.AddImageToCategory(ctx, animals.ID, img.ID), "binding twice is a no-op")

	counts, err := d.ListCategoryCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "Animals", counts[0].Name)
	assert.EqualValues(t, 1, counts[0].ImageCount)
	assert.EqualValues(t, 0, counts[1].ImageCount)

	cats, err := d.CategoriesByImage(ctx, img.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)

	require.NoError(t, d.DeleteCategory(ctx, animals.ID))
	gone, err := d.GetCategory(ctx, animals.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	cats, err = d.CategoriesByImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestDeleteCategoryRollsBack(t *testing.T) {
	ctx := context.Background()
	d := dbtest.New(t)
	owner := dbtest.User(t, d, "o@b.com")
	img := dbtest.Image(t, d, owner.ID, "cat")
	animals := dbtest.Category(t, d, "Animals")
	require.NoError(t, d.AddImageToCategory(ctx, animals.ID, img.ID))

	dbtest.FailCategoryDeletes(t, d)

	assert.Error(t, d.DeleteCategory(ctx, animals.ID))

	still, err := d.GetCategory(ctx, animals.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
	cats, err := d.CategoriesByImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Len(t, cats, 1, "associations survive the rolled back delete")
}

func TestRatings(t *testing.T) {
	ctx := context.Background()
	d := dbtest.New(t)
	owner := dbtest.User(t, d, "o@b.com")
	rater := dbtest.User(t, d, "r@b.com")
	img := dbtest.Image(t, d, owner.ID, "cat")

	require.NoError(t, d.UpsertRating(ctx, model.Rating{UserID: rater.ID, ImageID: img.ID, Value: 3}))
	require.NoError(t, d.UpsertRating(ctx, model.Rating{UserID: rater.ID, ImageID: img.ID, Value: 5}))

	ratings, err := d.RatingsByImage(ctx, img.ID)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, 5, ratings[0].Value)

	assert.Error(t, d.UpsertRating(ctx, model.Rating{UserID: owner.ID, ImageID: img.ID, Value: 9}),
		"the check constraint rejects out of range values")

	avgs, err := d.UserAverageRatings(ctx)
	require.NoError(t, err)
	require.Len(t, avgs, 2)
	assert.Equal(t, "o@b.com", avgs[0].Email)
	require.NotNil(t, avgs[0].Average)
	assert.InDelta(t, 5.0, *avgs[0].Average, 1e-9)
	assert.Nil(t, avgs[1].Average)

	top, err := d.TopRatedImages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, img.ID, top[0].ImageID)
}
