package orchestrators

import (
	"context"
	"errors"
	"log/slog"

	"gradedesk/internal/adapters/grader"
)

// ErrBatchInProgress reports that a grade-all batch is already running.
var ErrBatchInProgress = errors.New("a grade-all batch is already running")

// BatchWorkspace extends GradingWorkspace with the batch flag and the
// eligibility snapshot.
type BatchWorkspace interface {
	GradingWorkspace
	PendingIDs() []string
	TryBeginGradingAll() bool
	SetGradingAll(on bool)
}

// GradeAllPendingDeps holds dependencies for GradeAllPending.
type GradeAllPendingDeps struct {
	Workspace BatchWorkspace
	Grader    grader.Grader
	Language  string
}

// ClaimGradeAllBatch raises the batch flag and snapshots the eligible ids in
// one atomic step, so at most one batch can be claimed at a time. The caller
// owns the claim and must pass the ids to RunGradeAllBatch, which lowers the
// flag when the batch ends.
func ClaimGradeAllBatch(ws BatchWorkspace) ([]string, error) {
	if !ws.TryBeginGradingAll() {
		return nil, ErrBatchInProgress
	}
	return ws.PendingIDs(), nil
}

// ExecuteGradeAllPending grades every idle and error submission, strictly one
// at a time, in display order. Eligibility is snapshotted up front: sheets
// added mid-batch wait for the next run. One failing sheet settles to error
// and the batch moves on.
// POST: the batch flag is lowered even when the run is interrupted
func ExecuteGradeAllPending(ctx context.Context, deps GradeAllPendingDeps) error {
	ids, err := ClaimGradeAllBatch(deps.Workspace)
	if err != nil {
		return err
	}
	return RunGradeAllBatch(ctx, ids, deps)
}

// RunGradeAllBatch grades a claimed batch sequentially and releases the
// claim when done. Deleted ids are skipped.
// PRE: the caller holds the claim from ClaimGradeAllBatch
func RunGradeAllBatch(ctx context.Context, ids []string, deps GradeAllPendingDeps) error {
	defer deps.Workspace.SetGradingAll(false)

	slog.Info("grading_event", "event", "batch_started", "eligible", len(ids))
	succeeded, failed := 0, 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			slog.Info("grading_event", "event", "batch_interrupted", "succeeded", succeeded, "failed", failed, "eligible", len(ids))
			return err
		}
		outcome, err := ExecuteGradeSubmission(ctx, GradeSubmissionInput{ID: id}, GradeSubmissionDeps{
			Workspace: deps.Workspace,
			Grader:    deps.Grader,
			Language:  deps.Language,
		})
		if errors.Is(err, ErrSubmissionGone) {
			// Deleted mid-batch, skip.
			continue
		}
		if err != nil {
			return err
		}
		if outcome == GradeSucceeded {
			succeeded++
		} else {
			failed++
		}
	}
	slog.Info("grading_event", "event", "batch_finished", "succeeded", succeeded, "failed", failed)
	return nil
}
