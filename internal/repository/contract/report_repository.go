package contract

import (
	"context"
	"errors"

	"research-flowstream/internal/entity"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrDimensionMismatch  = errors.New("vector dimension does not match collection")
)

type Distance string

const DistanceCosine Distance = "cosine"

type CollectionInfo struct {
	Name       string
	Dimension  int
	Distance   Distance
	PointCount int64
}

// ReportRepository is a single vector collection of reports.
type ReportRepository interface {
	// GetCollection returns ErrCollectionNotFound when the collection is absent.
	GetCollection(ctx context.Context) (*CollectionInfo, error)
	// CreateCollection returns ErrCollectionExists when it already exists.
	CreateCollection(ctx context.Context, dimension int, distance Distance) error
	// Upsert inserts the report or overwrites the point with the same id.
	Upsert(ctx context.Context, report *entity.Report) error
	// Scroll returns up to limit reports, newest first.
	Scroll(ctx context.Context, limit int) ([]*entity.Report, error)
	// Search returns up to limit reports ordered by descending similarity.
	Search(ctx context.Context, vector []float32, limit int) ([]*entity.ScoredReport, error)
}
