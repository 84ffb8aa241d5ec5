package events

import (
	"encoding/json"
	"fmt"
	"time"
)

const TypeReportSaved = "report.saved"

// ReportSaved is emitted once a report and its embedding are stored.
type ReportSaved struct {
	ReportID string    `json:"report_id"`
	Title    string    `json:"title"`
	Length   int       `json:"length"`
	SavedAt  time.Time `json:"saved_at"`
}

func (e ReportSaved) EventType() string {
	return TypeReportSaved
}

func (e ReportSaved) Payload() map[string]interface{} {
	return map[string]interface{}{
		"report_id": e.ReportID,
		"title":     e.Title,
		"length":    e.Length,
	}
}

func (e ReportSaved) Timestamp() time.Time {
	return e.SavedAt
}

func DecodeReportSaved(data []byte) (ReportSaved, error) {
	var e ReportSaved
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("decode %s: %w", TypeReportSaved, err)
	}
	if e.ReportID == "" {
		return e, fmt.Errorf("decode %s: missing report_id", TypeReportSaved)
	}
	return e, nil
}
