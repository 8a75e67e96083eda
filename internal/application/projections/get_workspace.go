package projections

import (
	"context"

	domain "gradedesk/internal/domain/submission"
)

// StatusCounts tallies the collection by lifecycle state.
type StatusCounts struct {
	Idle    int `json:"idle"`
	Grading int `json:"grading"`
	Success int `json:"success"`
	Error   int `json:"error"`
}

// GetWorkspaceDeps holds dependencies for the workspace projection.
type GetWorkspaceDeps struct {
	Workspace HistorySource
}

// WorkspaceView is the full client-facing state: every submission with its
// image payload, the current selection, and the batch flag.
type WorkspaceView struct {
	Submissions []domain.Submission `json:"submissions"`
	SelectedID  string              `json:"selectedId,omitempty"`
	GradingAll  bool                `json:"gradingAll"`
	Counts      StatusCounts        `json:"counts"`
}

// QueryGetWorkspace returns the current collection in display order.
func QueryGetWorkspace(_ context.Context, deps GetWorkspaceDeps) (WorkspaceView, error) {
	snap := deps.Workspace.Snapshot()
	view := WorkspaceView{
		Submissions: snap.Submissions,
		SelectedID:  snap.SelectedID,
		GradingAll:  snap.GradingAll,
	}
	if view.Submissions == nil {
		view.Submissions = []domain.Submission{}
	}
	for _, sub := range snap.Submissions {
		switch sub.Status {
		case domain.StatusIdle:
			view.Counts.Idle++
		case domain.StatusGrading:
			view.Counts.Grading++
		case domain.StatusSuccess:
			view.Counts.Success++
		case domain.StatusError:
			view.Counts.Error++
		}
	}
	return view, nil
}
