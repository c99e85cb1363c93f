package model

import (
	"time"

	"github.com/google/uuid"
)

type Image struct {
	ID          uuid.UUID  `json:"id"`
	Created     time.Time  `json:"created"`
	UploadDate  *time.Time `json:"uploadDate,omitempty"` // nil until the binary is stored
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	OwnerID     uuid.UUID  `json:"ownerId"`
}

func (img *Image) Uploaded() bool {
	return img.UploadDate != nil
}

type ImageInfo struct {
	Image
	Categories []Category `json:"categories"`
}
