package workspace

import (
	"context"
	"log/slog"
	"sync"

	"gradedesk/internal/adapters/storage"
	"gradedesk/internal/domain/grading"
	domain "gradedesk/internal/domain/submission"
)

// Store is the persistence interface the workspace needs.
type Store interface {
	LoadAll(ctx context.Context) ([]domain.Submission, error)
	ReplaceAll(ctx context.Context, subs []domain.Submission) error
	Clear(ctx context.Context) error
}

// Snapshot is a read-only copy of the workspace state handed to readers and
// subscribers. Result pointers are shared but treated as immutable once set.
type Snapshot struct {
	Submissions []domain.Submission
	SelectedID  string
	GradingAll  bool
}

// Workspace owns the ordered submission collection and the current
// selection. Every mutation derives a new collection from the current one
// under the lock, persists the full collection while still holding it (so
// durable writes land in mutation order and a restart can never resurrect
// an older snapshot), and notifies subscribers with a snapshot, so readers
// never observe a partial batch.
//
// Mutations by id on an absent id are tolerated no-ops: grading settles
// asynchronously and the user may have deleted the submission meanwhile.
type Workspace struct {
	mu          sync.Mutex
	store       Store
	subs        []domain.Submission
	selectedID  string
	gradingAll  bool
	loaded      bool
	warn        func(msg string)
	subscribers []func(Snapshot)
}

// New creates a Workspace backed by the given store. warn receives advisory
// messages (storage capacity) and may be nil.
func New(store Store, warn func(msg string)) *Workspace {
	if warn == nil {
		warn = func(string) {}
	}
	return &Workspace{store: store, warn: warn}
}

// Load populates the workspace from durable storage. Runs once at startup,
// before any mutation; until it has completed every save is skipped so a
// slow or failed load can never be overwritten by an empty collection.
// If nothing is selected yet, the newest submission becomes selected.
// PRE: no mutations have been applied yet
// POST: workspace holds the persisted collection; load errors yield an
// empty collection, never a startup failure
func (w *Workspace) Load(ctx context.Context) {
	subs, err := w.store.LoadAll(ctx)
	if err != nil {
		slog.Warn("workspace_event", "event", "load_failed", "error", err.Error())
		subs = nil
	}

	w.mu.Lock()
	w.subs = subs
	if w.selectedID == "" && len(subs) > 0 {
		w.selectedID = subs[len(subs)-1].ID
	}
	w.loaded = true
	snap := w.snapshotLocked()
	w.mu.Unlock()

	slog.Info("workspace_event", "event", "loaded", "count", len(subs))
	w.notify(snap)
}

// Subscribe registers a listener invoked with a snapshot after every change.
// Listeners run outside the lock, in registration order.
func (w *Workspace) Subscribe(fn func(Snapshot)) {
	w.mu.Lock()
	w.subscribers = append(w.subscribers, fn)
	w.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Get returns a copy of the submission with the given id.
func (w *Workspace) Get(id string) (domain.Submission, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.subs {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Submission{}, false
}

// AppendBatch appends an ingested batch in one atomic update and selects the
// last (most recently decoded) element.
// PRE: subs are validated idle submissions with fresh unique ids
// POST: collection extended, selection moved, collection persisted
func (w *Workspace) AppendBatch(ctx context.Context, subs []domain.Submission) {
	if len(subs) == 0 {
		return
	}
	w.mu.Lock()
	next := make([]domain.Submission, 0, len(w.subs)+len(subs))
	next = append(next, w.subs...)
	next = append(next, subs...)
	w.subs = next
	w.selectedID = subs[len(subs)-1].ID
	snap := w.snapshotLocked()
	w.persistLocked(ctx, snap.Submissions)
	w.mu.Unlock()

	w.notify(snap)
}

// Delete removes a submission by id. If it was selected, the selection
// becomes empty; focus is never silently moved to another submission.
// POST: returns false if the id was absent (no-op)
func (w *Workspace) Delete(ctx context.Context, id string) bool {
	w.mu.Lock()
	idx := w.indexLocked(id)
	if idx < 0 {
		w.mu.Unlock()
		return false
	}
	next := make([]domain.Submission, 0, len(w.subs)-1)
	next = append(next, w.subs[:idx]...)
	next = append(next, w.subs[idx+1:]...)
	w.subs = next
	if w.selectedID == id {
		w.selectedID = ""
	}
	snap := w.snapshotLocked()
	w.persistLocked(ctx, snap.Submissions)
	w.mu.Unlock()

	w.notify(snap)
	return true
}

// Rotate turns a submission's display rotation another 90 degrees.
// POST: returns false if the id was absent (no-op)
func (w *Workspace) Rotate(ctx context.Context, id string) bool {
	return w.update(ctx, id, func(s *domain.Submission) { s.Rotate() })
}

// BeginGrading transitions a submission into the grading state.
// POST: returns false if the id was absent (no-op)
func (w *Workspace) BeginGrading(ctx context.Context, id string) bool {
	return w.update(ctx, id, func(s *domain.Submission) { s.BeginGrading() })
}

// SetSuccess records a settled grading call that produced a result.
// Tolerant of deletion races: absent id is a no-op.
func (w *Workspace) SetSuccess(ctx context.Context, id string, result *grading.Result) bool {
	return w.update(ctx, id, func(s *domain.Submission) { s.MarkSuccess(result) })
}

// SetFailure records a settled grading call that failed.
// Tolerant of deletion races: absent id is a no-op.
func (w *Workspace) SetFailure(ctx context.Context, id string, msg string) bool {
	return w.update(ctx, id, func(s *domain.Submission) { s.MarkFailed(msg) })
}

// Select moves the selection to the given submission.
// POST: returns false if the id was absent (selection unchanged)
func (w *Workspace) Select(id string) bool {
	w.mu.Lock()
	if w.indexLocked(id) < 0 {
		w.mu.Unlock()
		return false
	}
	w.selectedID = id
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.notify(snap)
	return true
}

// ResetAll destroys the whole collection and clears durable storage.
// PRE: the caller obtained the irreversible-action confirmation
// POST: collection and selection empty, stored collection cleared
func (w *Workspace) ResetAll(ctx context.Context) {
	w.mu.Lock()
	w.subs = nil
	w.selectedID = ""
	snap := w.snapshotLocked()
	if w.loaded {
		if err := w.store.Clear(ctx); err != nil {
			slog.Error("workspace_event", "event", "clear_failed", "error", err.Error())
		}
	}
	w.mu.Unlock()

	slog.Info("workspace_event", "event", "reset_all")
	w.notify(snap)
}

// TryBeginGradingAll raises the global batch-in-progress flag, but only if
// no batch holds it already. The check and the set happen under one lock
// acquisition, so among any number of concurrent callers exactly one wins.
func (w *Workspace) TryBeginGradingAll() bool {
	w.mu.Lock()
	if w.gradingAll {
		w.mu.Unlock()
		return false
	}
	w.gradingAll = true
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.notify(snap)
	return true
}

// SetGradingAll toggles the global batch-in-progress flag.
func (w *Workspace) SetGradingAll(on bool) {
	w.mu.Lock()
	w.gradingAll = on
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.notify(snap)
}

// GradingAll reports whether a grade-all batch is running.
func (w *Workspace) GradingAll() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gradingAll
}

// PendingIDs returns the ids eligible for a grade-all batch, in display
// order, snapshotted at call time.
func (w *Workspace) PendingIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ids []string
	for _, s := range w.subs {
		if s.Pending() {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// update applies fn to the submission with the given id, persists, notifies.
func (w *Workspace) update(ctx context.Context, id string, fn func(*domain.Submission)) bool {
	w.mu.Lock()
	idx := w.indexLocked(id)
	if idx < 0 {
		w.mu.Unlock()
		return false
	}
	next := make([]domain.Submission, len(w.subs))
	copy(next, w.subs)
	fn(&next[idx])
	w.subs = next
	snap := w.snapshotLocked()
	w.persistLocked(ctx, snap.Submissions)
	w.mu.Unlock()

	w.notify(snap)
	return true
}

func (w *Workspace) indexLocked(id string) int {
	for i, s := range w.subs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (w *Workspace) snapshotLocked() Snapshot {
	subs := make([]domain.Submission, len(w.subs))
	copy(subs, w.subs)
	return Snapshot{Submissions: subs, SelectedID: w.selectedID, GradingAll: w.gradingAll}
}

// persistLocked writes the full collection. Called with the mutation lock
// held: durable writes serialize in the same order as the mutations they
// record, so the stored snapshot is always the newest one. Skipped before
// the initial load has completed. Capacity failures are advisory; the
// in-memory collection stays the source of truth for the session either way.
func (w *Workspace) persistLocked(ctx context.Context, subs []domain.Submission) {
	if !w.loaded {
		return
	}
	if err := w.store.ReplaceAll(ctx, subs); err != nil {
		if storage.IsCapacityErr(err) {
			slog.Warn("workspace_event", "event", "save_capacity_exceeded", "error", err.Error())
			w.warn("Storage is full. Changes will not survive a restart until space is freed.")
			return
		}
		slog.Error("workspace_event", "event", "save_failed", "error", err.Error())
	}
}

func (w *Workspace) notify(snap Snapshot) {
	w.mu.Lock()
	subscribers := make([]func(Snapshot), len(w.subscribers))
	copy(subscribers, w.subscribers)
	w.mu.Unlock()
	for _, fn := range subscribers {
		fn(snap)
	}
}
