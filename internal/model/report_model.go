package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Payload keys of a report point.
const (
	PayloadTitle = "title"
	PayloadText  = "text"
)

// ReportPoint is one row of a reports collection. The table name is the
// collection name, so queries pass it through Table() instead of TableName().
type ReportPoint struct {
	Id        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Embedding pgvector.Vector   `gorm:"type:vector"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"autoCreateTime"`
}

// ScoredReportPoint is a search row with its cosine similarity.
type ScoredReportPoint struct {
	ReportPoint
	Score float64
}
