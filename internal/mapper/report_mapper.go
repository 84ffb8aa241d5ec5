package mapper

import (
	"research-flowstream/internal/entity"
	"research-flowstream/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type ReportMapper struct{}

func NewReportMapper() *ReportMapper {
	return &ReportMapper{}
}

func (m *ReportMapper) ToEntity(p *model.ReportPoint) *entity.Report {
	if p == nil {
		return nil
	}
	return &entity.Report{
		Id:        p.Id,
		Title:     payloadString(p.Payload, model.PayloadTitle),
		Text:      payloadString(p.Payload, model.PayloadText),
		Embedding: p.Embedding.Slice(),
		CreatedAt: p.CreatedAt,
	}
}

func (m *ReportMapper) ToModel(r *entity.Report) *model.ReportPoint {
	if r == nil {
		return nil
	}
	return &model.ReportPoint{
		Id:        r.Id,
		Embedding: pgvector.NewVector(r.Embedding),
		Payload: datatypes.JSONMap{
			model.PayloadTitle: r.Title,
			model.PayloadText:  r.Text,
		},
		CreatedAt: r.CreatedAt,
	}
}

func (m *ReportMapper) ToEntities(points []*model.ReportPoint) []*entity.Report {
	entities := make([]*entity.Report, len(points))
	for i, p := range points {
		entities[i] = m.ToEntity(p)
	}
	return entities
}

func (m *ReportMapper) ToScored(rows []model.ScoredReportPoint) []*entity.ScoredReport {
	out := make([]*entity.ScoredReport, len(rows))
	for i := range rows {
		out[i] = &entity.ScoredReport{
			Report: m.ToEntity(&rows[i].ReportPoint),
			Score:  rows[i].Score,
		}
	}
	return out
}

// payloadString tolerates points written by other clients: missing or
// non-string values read as "".
func payloadString(payload datatypes.JSONMap, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}
