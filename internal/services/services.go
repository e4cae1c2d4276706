package services

import (
	"context"

	"github.com/desertthunder/tasting/internal/models"
)

// Service is a remote tasting backend.
type Service interface {
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// SubmitResponse upserts one answer on the (participant, slide) key.
	SubmitResponse(ctx context.Context, resp *models.Response) (*models.Response, error)

	// UpdateProgress persists a participant's progress pointer.
	UpdateProgress(ctx context.Context, participantID string, ptr models.ProgressPointer) error

	// Name returns the name of the service.
	Name() string
}

// ErrorBody is the JSON error envelope written by the API.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code of an API error.
type ErrorDetail struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
