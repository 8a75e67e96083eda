package projections

import (
	"context"
	"sort"
	"strings"
	"time"

	"gradedesk/internal/application/listutil"
	"gradedesk/internal/application/workspace"
	domain "gradedesk/internal/domain/submission"
)

// HistorySource defines the workspace view needed by the history projection.
type HistorySource interface {
	Snapshot() workspace.Snapshot
}

// GetHistoryQuery carries input for the history projection.
type GetHistoryQuery struct {
	Search string // case-insensitive file name substring, empty matches all
	Page   listutil.PageParams
}

// GetHistoryDeps holds dependencies for the history projection.
type GetHistoryDeps struct {
	Workspace HistorySource
}

// HistoryEntry is one settled submission in the history list. The image
// payload is deliberately absent: the list stays light, the detail view
// fetches the full submission.
type HistoryEntry struct {
	ID           string    `json:"id"`
	FileName     string    `json:"fileName"`
	Status       string    `json:"status"`
	Score        *float64  `json:"score,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// GetHistoryResult carries the output of the history projection.
type GetHistoryResult struct {
	Entries  []HistoryEntry    `json:"entries"`
	PageInfo listutil.PageInfo `json:"pageInfo"`
}

// QueryGetHistory lists the settled submissions, newest first. In-flight and
// untouched sheets never show up here.
func QueryGetHistory(_ context.Context, query GetHistoryQuery, deps GetHistoryDeps) (GetHistoryResult, error) {
	snap := deps.Workspace.Snapshot()
	needle := strings.ToLower(strings.TrimSpace(query.Search))

	var entries []HistoryEntry
	for _, sub := range snap.Submissions {
		if sub.Status != domain.StatusSuccess && sub.Status != domain.StatusError {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(sub.FileName), needle) {
			continue
		}
		e := HistoryEntry{
			ID:           sub.ID,
			FileName:     sub.FileName,
			Status:       sub.Status,
			ErrorMessage: sub.ErrorMessage,
			UploadedAt:   sub.UploadedAt,
		}
		if sub.Result != nil {
			score := sub.Result.Score
			e.Score = &score
			e.Summary = sub.Result.Summary
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UploadedAt.After(entries[j].UploadedAt)
	})

	info := listutil.NewPageInfo(query.Page.Page, query.Page.PerPage, len(entries))
	page := entries[info.Offset():info.End()]
	if page == nil {
		page = []HistoryEntry{}
	}
	return GetHistoryResult{Entries: page, PageInfo: info}, nil
}
