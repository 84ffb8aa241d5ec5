package client

// Report is one entry of the backend's report list.
type Report struct {
	Id    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// SearchHit is a report ranked by similarity to a query; higher scores rank first.
type SearchHit struct {
	Id    string  `json:"id"`
	Score float64 `json:"score"`
	Title string  `json:"title"`
	Text  string  `json:"text"`
}

type startJobRequest struct {
	Topic string `json:"topic"`
}

type searchRequest struct {
	Query string `json:"query"`
}
