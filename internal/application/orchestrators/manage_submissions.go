package orchestrators

import (
	"context"
	"errors"
	"log/slog"
)

// ErrResetNotConfirmed reports a reset attempt without the explicit
// confirmation flag.
var ErrResetNotConfirmed = errors.New("reset requires explicit confirmation")

// ManageWorkspace is the slice of the submission collection the management
// orchestrators need.
type ManageWorkspace interface {
	Delete(ctx context.Context, id string) bool
	Rotate(ctx context.Context, id string) bool
	Select(id string) bool
	ResetAll(ctx context.Context)
}

// ManageDeps holds dependencies for the management orchestrators.
type ManageDeps struct {
	Workspace ManageWorkspace
}

// ExecuteDeleteSubmission removes one submission. If it was selected the
// selection is cleared, not reassigned.
// POST: returns ErrSubmissionGone if the id was already absent
func ExecuteDeleteSubmission(ctx context.Context, id string, deps ManageDeps) error {
	if !deps.Workspace.Delete(ctx, id) {
		return ErrSubmissionGone
	}
	slog.Info("submission_event", "event", "submission_deleted", "submission_id", id)
	return nil
}

// ExecuteRotateSubmission turns the display rotation another quarter turn.
func ExecuteRotateSubmission(ctx context.Context, id string, deps ManageDeps) error {
	if !deps.Workspace.Rotate(ctx, id) {
		return ErrSubmissionGone
	}
	return nil
}

// ExecuteSelectSubmission moves the detail-view focus.
func ExecuteSelectSubmission(_ context.Context, id string, deps ManageDeps) error {
	if !deps.Workspace.Select(id) {
		return ErrSubmissionGone
	}
	return nil
}

// ResetWorkspaceInput carries the confirmation for the irreversible reset.
type ResetWorkspaceInput struct {
	Confirm bool
}

// ExecuteResetWorkspace destroys every submission and clears durable storage.
// PRE: Confirm is true (the caller collected the user's confirmation)
func ExecuteResetWorkspace(ctx context.Context, input ResetWorkspaceInput, deps ManageDeps) error {
	if !input.Confirm {
		return ErrResetNotConfirmed
	}
	deps.Workspace.ResetAll(ctx)
	return nil
}
