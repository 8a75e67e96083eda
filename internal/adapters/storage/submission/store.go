package submission

import (
	"context"

	domain "gradedesk/internal/domain/submission"
)

// Store persists the ordered Submission collection as a whole. The in-memory
// workspace owns the collection during a session; the store's job is to
// reproduce it across restarts, so writes replace the full collection rather
// than upserting rows.
type Store interface {
	// LoadAll returns the collection in stored order. Unreadable rows are
	// repaired or skipped, never fatal.
	LoadAll(ctx context.Context) ([]domain.Submission, error)
	// ReplaceAll atomically replaces the stored collection.
	ReplaceAll(ctx context.Context, subs []domain.Submission) error
	// Clear removes every stored submission (explicit reset-all only).
	Clear(ctx context.Context) error
}
