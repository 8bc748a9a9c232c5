package models

import "time"

// RawEvent is one per-request sample read from the metric source.
// Only structural and timing fields are carried; message content never is.
type RawEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Service    string    `json:"service"`
	StatusCode int       `json:"status_code"`
	LatencyMs  float64   `json:"latency_ms"`
	SourceID   string    `json:"source_id"`
	Endpoint   string    `json:"endpoint,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Region     string    `json:"region,omitempty"`
}

func (e RawEvent) IsError() bool {
	return e.StatusCode >= 500
}

func (e RawEvent) IsAuthFailure() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
