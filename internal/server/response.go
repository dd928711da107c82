package server

import (
	"time"

	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// APIResponse is the envelope for writes, health and errors.
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	Error     string    `json:"error,omitempty"`
	Errors    any       `json:"errors,omitempty"`
	ID        string    `json:"id,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadingsListResponse is the envelope for reads.
type ReadingsListResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Count     int              `json:"count"`
	Total     int64            `json:"total"`
	Data      []models.Reading `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}
