package orchestrators

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gradedesk/internal/adapters/grader"
	"gradedesk/internal/domain/grading"
	domain "gradedesk/internal/domain/submission"
)

func TestGradeAllPending_GradesIdleAndErrorInOrder(t *testing.T) {
	ws := newMockGradingWorkspace(
		gradableSubmission("a", domain.StatusIdle),
		gradableSubmission("b", domain.StatusSuccess),
		gradableSubmission("c", domain.StatusError),
	)
	ws.subs["b"].Result = passingResult()

	var graded []string
	var mu sync.Mutex
	deps := GradeAllPendingDeps{
		Workspace: ws,
		Grader: graderFunc(func(_ context.Context, req grader.GradeRequest) (*grading.Result, error) {
			mu.Lock()
			defer mu.Unlock()
			for id, s := range ws.subs {
				if s.Status == domain.StatusGrading {
					graded = append(graded, id)
				}
			}
			return passingResult(), nil
		}),
	}

	if err := ExecuteGradeAllPending(context.Background(), deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graded) != 2 || graded[0] != "a" || graded[1] != "c" {
		t.Errorf("expected [a c] graded in display order, got %v", graded)
	}
	if sub, _ := ws.Get("b"); sub.Status != domain.StatusSuccess {
		t.Error("already-graded submission must be skipped")
	}
}

func TestGradeAllPending_FlagToggledEvenWhenNothingEligible(t *testing.T) {
	ws := newMockGradingWorkspace(gradableSubmission("a", domain.StatusSuccess))
	ws.subs["a"].Result = passingResult()
	deps := GradeAllPendingDeps{Workspace: ws, Grader: graderFunc(func(context.Context, grader.GradeRequest) (*grading.Result, error) {
		t.Fatal("grader must not run with nothing eligible")
		return nil, nil
	})}

	if err := ExecuteGradeAllPending(context.Background(), deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ws.flagLog) != 2 || !ws.flagLog[0] || ws.flagLog[1] {
		t.Errorf("expected flag raised then lowered, got %v", ws.flagLog)
	}
}

func TestGradeAllPending_OneFailureDoesNotAbortBatch(t *testing.T) {
	ws := newMockGradingWorkspace(
		gradableSubmission("a", domain.StatusIdle),
		gradableSubmission("b", domain.StatusIdle),
	)
	deps := GradeAllPendingDeps{
		Workspace: ws,
		Grader: graderFunc(func(_ context.Context, req grader.GradeRequest) (*grading.Result, error) {
			if s, _ := ws.Get("a"); s.Status == domain.StatusGrading {
				return nil, errors.New("transient blowup")
			}
			return passingResult(), nil
		}),
	}

	if err := ExecuteGradeAllPending(context.Background(), deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub, _ := ws.Get("a"); sub.Status != domain.StatusError {
		t.Errorf("expected first to settle on error, got %s", sub.Status)
	}
	if sub, _ := ws.Get("b"); sub.Status != domain.StatusSuccess {
		t.Errorf("expected batch to continue to second, got %s", sub.Status)
	}
	if ws.gradingAll {
		t.Error("expected flag lowered after batch")
	}
}

func TestGradeAllPending_RejectsConcurrentBatch(t *testing.T) {
	ws := newMockGradingWorkspace(gradableSubmission("a", domain.StatusIdle))
	ws.gradingAll = true
	deps := GradeAllPendingDeps{Workspace: ws, Grader: grader.Noop{}}

	if err := ExecuteGradeAllPending(context.Background(), deps); !errors.Is(err, ErrBatchInProgress) {
		t.Errorf("expected ErrBatchInProgress, got %v", err)
	}
}

// gatedBatchWorkspace holds the winning claim until both callers have
// attempted it, so the two claims genuinely overlap.
type gatedBatchWorkspace struct {
	*mockGradingWorkspace
	mu        sync.Mutex
	attempts  int
	bothTried chan struct{}
}

func (g *gatedBatchWorkspace) TryBeginGradingAll() bool {
	g.mu.Lock()
	claimed := g.gradingAll
	if !claimed {
		g.gradingAll = true
	}
	g.attempts++
	if g.attempts == 2 {
		close(g.bothTried)
	}
	g.mu.Unlock()
	if !claimed {
		<-g.bothTried
	}
	return !claimed
}

func TestGradeAllPending_ConcurrentRequestsClaimOnce(t *testing.T) {
	ws := &gatedBatchWorkspace{
		mockGradingWorkspace: newMockGradingWorkspace(gradableSubmission("a", domain.StatusIdle)),
		bothTried:            make(chan struct{}),
	}
	deps := GradeAllPendingDeps{Workspace: ws, Grader: grader.Noop{}}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- ExecuteGradeAllPending(context.Background(), deps)
		}()
	}

	var ran, rejected int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			ran++
		case errors.Is(err, ErrBatchInProgress):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ran != 1 || rejected != 1 {
		t.Errorf("expected exactly one batch to run, got ran=%d rejected=%d", ran, rejected)
	}
	if ws.gradingAll {
		t.Error("expected flag lowered after the winning batch")
	}
}

func TestGradeAllPending_SkipsDeletedMidBatch(t *testing.T) {
	ws := newMockGradingWorkspace(
		gradableSubmission("a", domain.StatusIdle),
		gradableSubmission("b", domain.StatusIdle),
	)
	deps := GradeAllPendingDeps{
		Workspace: ws,
		Grader: graderFunc(func(context.Context, grader.GradeRequest) (*grading.Result, error) {
			delete(ws.subs, "b")
			return passingResult(), nil
		}),
	}

	if err := ExecuteGradeAllPending(context.Background(), deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub, _ := ws.Get("a"); sub.Status != domain.StatusSuccess {
		t.Errorf("expected first graded, got %s", sub.Status)
	}
}
