package orchestrators

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"

	"gradedesk/internal/adapters/grader"
	"gradedesk/internal/domain/grading"
	domain "gradedesk/internal/domain/submission"
)

// ErrSubmissionGone reports that the submission was deleted before or while
// the operation ran.
var ErrSubmissionGone = errors.New("submission no longer exists")

// GradingWorkspace is the slice of the submission collection the grading
// orchestrators need.
type GradingWorkspace interface {
	Get(id string) (domain.Submission, bool)
	BeginGrading(ctx context.Context, id string) bool
	SetSuccess(ctx context.Context, id string, result *grading.Result) bool
	SetFailure(ctx context.Context, id string, msg string) bool
}

// GradeSubmissionInput carries input for the single-grade orchestrator.
type GradeSubmissionInput struct {
	ID string
}

// GradeSubmissionDeps holds dependencies for GradeSubmission.
type GradeSubmissionDeps struct {
	Workspace GradingWorkspace
	Grader    grader.Grader
	Language  string
}

// GradeOutcome reports which settled state a grading call ended in.
type GradeOutcome int

const (
	// GradeFailed: the submission settled to error with the fixed message.
	GradeFailed GradeOutcome = iota
	// GradeSucceeded: the submission settled to success with a result.
	GradeSucceeded
)

// ExecuteGradeSubmission runs one submission through the grading service and
// settles it into success or error. A service failure is not an orchestrator
// error: the submission settles to error with a fixed user-facing message and
// the raw cause goes to the log only.
// If the submission is deleted while the call is in flight, the settle is a
// silent no-op. Two concurrent grades of the same id both settle; the later
// settle wins.
// PRE: the submission exists (else ErrSubmissionGone)
// POST: the submission is in success or error, never left in grading
func ExecuteGradeSubmission(ctx context.Context, input GradeSubmissionInput, deps GradeSubmissionDeps) (GradeOutcome, error) {
	sub, ok := deps.Workspace.Get(input.ID)
	if !ok {
		return GradeFailed, ErrSubmissionGone
	}

	imgData, mime, err := decodeImagePayload(sub.ImagePayload)
	if err != nil {
		// Corrupt payload settles like a service failure.
		deps.Workspace.SetFailure(ctx, input.ID, domain.GradingFailedMessage)
		slog.Error("grading_event", "event", "payload_unreadable", "submission_id", input.ID, "error", err.Error())
		return GradeFailed, nil
	}

	if !deps.Workspace.BeginGrading(ctx, input.ID) {
		return GradeFailed, ErrSubmissionGone
	}
	slog.Info("grading_event", "event", "grading_started", "submission_id", input.ID, "file_name", sub.FileName)

	result, err := deps.Grader.Grade(ctx, grader.GradeRequest{
		Image:    imgData,
		MIMEType: mime,
		Language: deps.Language,
	})
	if err != nil {
		deps.Workspace.SetFailure(ctx, input.ID, domain.GradingFailedMessage)
		slog.Error("grading_event", "event", "grading_failed", "submission_id", input.ID, "error", err.Error())
		return GradeFailed, nil
	}

	deps.Workspace.SetSuccess(ctx, input.ID, result)
	slog.Info("grading_event", "event", "grading_succeeded", "submission_id", input.ID, "score", result.Score)
	return GradeSucceeded, nil
}

// decodeImagePayload splits a data URI payload into raw bytes and MIME type.
func decodeImagePayload(payload string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(payload, "data:")
	if !ok {
		return nil, "", errors.New("payload is not a data URI")
	}
	meta, b64, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("payload has no data part")
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime == meta {
		return nil, "", errors.New("payload is not base64-encoded")
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}
