package api

import "github.com/open-teleop/pilot/domain/relay"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Device  bool   `json:"device"`
}

// StreamsResponse is returned by GET /api/v1/streams.
type StreamsResponse struct {
	Status  string             `json:"status"`
	Streams []relay.StreamInfo `json:"streams"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
