package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Created      time.Time `json:"created"`
	Email        string    `json:"email"` // normalized, lowercase
	PasswordHash string    `json:"-"`     // argon2id, PHC encoded
	IsAdmin      bool      `json:"isAdmin"`
}

// UserRating is the average rating a user received across all of their
// images. Average is nil when none of them was ever rated.
type UserRating struct {
	Email   string   `json:"email"`
	Average *float64 `json:"averageRating"`
}
