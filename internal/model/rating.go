package model

import "github.com/google/uuid"

type Rating struct {
	UserID  uuid.UUID `json:"userId"` // rater
	ImageID uuid.UUID `json:"imageId"`
	Value   int       `json:"rating"`
}

type RatingSummary struct {
	Average float64  `json:"average"`
	Count   int      `json:"ratingCount"`
	Ratings []Rating `json:"ratings"`
}

// Summarize computes the average of ratings. An image without ratings
// averages 0.
func Summarize(ratings []Rating) RatingSummary {
	s := RatingSummary{Count: len(ratings), Ratings: ratings}
	if s.Ratings == nil {
		s.Ratings = []Rating{}
	}
	if s.Count == 0 {
		return s
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Value
	}
	s.Average = float64(sum) / float64(s.Count)
	return s
}

type ImageScore struct {
	ImageID uuid.UUID `json:"imageId"`
	Average float64   `json:"average"`
}
