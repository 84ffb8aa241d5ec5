package entity

import (
	"time"

	"github.com/google/uuid"
)

// Report is a finished writer output. It is created once and never updated.
type Report struct {
	Id        uuid.UUID
	Title     string
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

type ScoredReport struct {
	Report *Report
	Score  float64
}
