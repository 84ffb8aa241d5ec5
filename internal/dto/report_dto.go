package dto

type StartJobRequest struct {
	Topic string `json:"topic" validate:"max=2000"`
}

type SearchReportsRequest struct {
	Query string `json:"query" validate:"max=2000"`
}

type ReportResponse struct {
	Id    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type SearchReportResponse struct {
	Id    string  `json:"id"`
	Score float64 `json:"score"`
	Title string  `json:"title"`
	Text  string  `json:"text"`
}
