package model

import (
	"time"

	"github.com/google/uuid"
)

type Category struct {
	ID      uuid.UUID `json:"id"`
	Created time.Time `json:"created"`
	Name    string    `json:"name"`
}

type CategoryCount struct {
	Category
	ImageCount int64 `json:"imageCount"`
}
