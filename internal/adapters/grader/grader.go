// Package grader calls the external AI grading service for a single
// photographed exercise sheet and returns a structured grading result.
package grader

import (
	"context"

	"gradedesk/internal/domain/grading"
)

// GradeRequest carries one sheet image to the grading service.
type GradeRequest struct {
	// Image is the raw image bytes as uploaded.
	Image []byte
	// MIMEType is the sniffed content type of Image, e.g. "image/jpeg".
	MIMEType string
	// Language is the language the feedback should be written in.
	Language string
}

// Grader grades one sheet per call. Implementations must be safe for
// concurrent use.
type Grader interface {
	Grade(ctx context.Context, req GradeRequest) (*grading.Result, error)
}
