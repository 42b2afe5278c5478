// Package server provides the small HTTP surface of the bot: a health check
// for orchestrators and usage numbers for the operator.
package server

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is "ok" or "unavailable".
	Status string `json:"status"`
	// Error explains an unavailable status.
	Error string `json:"error,omitempty"`
}

// StatsResponse is the HTTP response for the stats endpoint.
type StatsResponse struct {
	Users           int64 `json:"users"`
	FilesProcessed  int64 `json:"files_processed"`
	PendingSessions int   `json:"pending_sessions"`
}
