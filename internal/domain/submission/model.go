package submission

import (
	"errors"
	"strings"
	"time"

	"gradedesk/internal/domain/grading"
)

// Submission statuses
const (
	StatusIdle    = "idle"
	StatusGrading = "grading"
	StatusSuccess = "success"
	StatusError   = "error"
)

// ValidStatuses contains all valid submission statuses.
var ValidStatuses = []string{StatusIdle, StatusGrading, StatusSuccess, StatusError}

// GradingFailedMessage is the stable user-facing message recorded when the
// external grading engine fails. The raw failure is logged, never shown.
const GradingFailedMessage = "Grading failed. Please try again."

// PlaceholderName is the generic file name browsers assign to pasted
// clipboard images. Submissions with this name are renamed at ingestion so
// multiple pastes in one session stay distinguishable.
const PlaceholderName = "image.png"

// Domain errors
var (
	ErrEmptyID          = errors.New("submission ID is required")
	ErrEmptyFileName    = errors.New("submission file name is required")
	ErrEmptyPayload     = errors.New("submission image payload is required")
	ErrInvalidStatus    = errors.New("submission status must be one of: idle, grading, success, error")
	ErrResultMismatch   = errors.New("result must be present exactly when status is success")
	ErrErrorMismatch    = errors.New("error message must be present exactly when status is error")
	ErrInvalidRotation  = errors.New("rotation must be a multiple of 90")
	ErrMissingTimestamp = errors.New("uploaded_at must be set")
)

// Submission represents one uploaded exercise sheet and its grading state.
// ImagePayload is a self-describing data URI and never changes after
// ingestion. Result and ErrorMessage are mutually exclusive and tied to
// Status: Result is non-nil iff success, ErrorMessage non-empty iff error.
type Submission struct {
	ID           string          `json:"id"`
	FileName     string          `json:"fileName"`
	ImagePayload string          `json:"imagePayload"`
	Status       string          `json:"status"`
	Result       *grading.Result `json:"result"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	UploadedAt   time.Time       `json:"uploadedAt"`
	Rotation     int             `json:"rotation"`
}

// Validate checks if the Submission has valid data.
// PRE: Submission struct is populated
// POST: Returns nil if valid, error otherwise
func (s *Submission) Validate() error {
	if s.ID == "" {
		return ErrEmptyID
	}
	if s.FileName == "" {
		return ErrEmptyFileName
	}
	if s.ImagePayload == "" {
		return ErrEmptyPayload
	}
	if !isValidStatus(s.Status) {
		return ErrInvalidStatus
	}
	if (s.Result != nil) != (s.Status == StatusSuccess) {
		return ErrResultMismatch
	}
	if (s.ErrorMessage != "") != (s.Status == StatusError) {
		return ErrErrorMismatch
	}
	if s.Rotation%90 != 0 {
		return ErrInvalidRotation
	}
	if s.UploadedAt.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// Pending returns true if the submission is eligible for a grade-all batch.
// Idle submissions have never been graded; errored ones are retriable.
func (s *Submission) Pending() bool {
	return s.Status == StatusIdle || s.Status == StatusError
}

// BeginGrading transitions the submission into the grading state.
// Valid from every status: idle starts a first attempt, error a retry,
// success a re-grade. The previous result is retained until the new call
// settles so the UI can keep showing it; the error message is cleared.
// PRE: none
// POST: Status is grading, ErrorMessage is empty
func (s *Submission) BeginGrading() {
	s.Status = StatusGrading
	s.ErrorMessage = ""
}

// MarkSuccess records a settled grading call that produced a result.
// PRE: result is non-nil and validated
// POST: Status is success, Result set, ErrorMessage empty
func (s *Submission) MarkSuccess(result *grading.Result) {
	s.Status = StatusSuccess
	s.Result = result
	s.ErrorMessage = ""
}

// MarkFailed records a settled grading call that failed.
// The message stored is the stable user-facing one, not the raw error.
// PRE: msg is non-empty
// POST: Status is error, ErrorMessage set, Result cleared
func (s *Submission) MarkFailed(msg string) {
	s.Status = StatusError
	s.ErrorMessage = msg
	s.Result = nil
}

// Rotate turns the display rotation another 90 degrees clockwise.
// Purely presentational; persisted with the submission.
func (s *Submission) Rotate() {
	s.Rotation = (s.Rotation + 90) % 360
}

// DeriveFileName replaces generic placeholder names with a time-derived one
// so multiple clipboard pastes in a session stay distinguishable. All other
// names pass through verbatim, duplicates included.
// PRE: now is the ingestion timestamp
// POST: Returns a non-empty display name
func DeriveFileName(name string, now time.Time) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == PlaceholderName {
		return "sheet_" + now.Format("15-04-05") + ".png"
	}
	return trimmed
}

func isValidStatus(status string) bool {
	for _, s := range ValidStatuses {
		if status == s {
			return true
		}
	}
	return false
}
