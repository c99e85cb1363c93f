package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	img := uuid.New()

	empty := Summarize(nil)
	assert.Zero(t, empty.Average)
	assert.Zero(t, empty.Count)
	assert.NotNil(t, empty.Ratings)

	s := Summarize([]Rating{
		{UserID: uuid.New(), ImageID: img, Value: 3},
		{UserID: uuid.New(), ImageID: img, Value: 4},
	})
	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 3.5, s.Average, 1e-9)
}
