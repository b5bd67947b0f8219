package models

// DailyStats is a count for a single day.
type DailyStats struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// StatusStats is a count for a single submission status.
type StatusStats struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}
