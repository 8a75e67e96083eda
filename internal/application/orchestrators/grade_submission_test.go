package orchestrators

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"gradedesk/internal/adapters/grader"
	"gradedesk/internal/domain/grading"
	domain "gradedesk/internal/domain/submission"
)

// graderFunc adapts a function to the grader interface.
type graderFunc func(ctx context.Context, req grader.GradeRequest) (*grading.Result, error)

func (f graderFunc) Grade(ctx context.Context, req grader.GradeRequest) (*grading.Result, error) {
	return f(ctx, req)
}

// mockGradingWorkspace implements BatchWorkspace over a map.
type mockGradingWorkspace struct {
	subs       map[string]*domain.Submission
	order      []string
	gradingAll bool
	flagLog    []bool
}

func newMockGradingWorkspace(subs ...domain.Submission) *mockGradingWorkspace {
	m := &mockGradingWorkspace{subs: map[string]*domain.Submission{}}
	for i := range subs {
		s := subs[i]
		m.subs[s.ID] = &s
		m.order = append(m.order, s.ID)
	}
	return m
}

func (m *mockGradingWorkspace) Get(id string) (domain.Submission, bool) {
	s, ok := m.subs[id]
	if !ok {
		return domain.Submission{}, false
	}
	return *s, true
}

func (m *mockGradingWorkspace) BeginGrading(_ context.Context, id string) bool {
	s, ok := m.subs[id]
	if !ok {
		return false
	}
	s.BeginGrading()
	return true
}

func (m *mockGradingWorkspace) SetSuccess(_ context.Context, id string, result *grading.Result) bool {
	s, ok := m.subs[id]
	if !ok {
		return false
	}
	s.MarkSuccess(result)
	return true
}

func (m *mockGradingWorkspace) SetFailure(_ context.Context, id string, msg string) bool {
	s, ok := m.subs[id]
	if !ok {
		return false
	}
	s.MarkFailed(msg)
	return true
}

func (m *mockGradingWorkspace) PendingIDs() []string {
	var ids []string
	for _, id := range m.order {
		if m.subs[id].Pending() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *mockGradingWorkspace) TryBeginGradingAll() bool {
	if m.gradingAll {
		return false
	}
	m.gradingAll = true
	m.flagLog = append(m.flagLog, true)
	return true
}

func (m *mockGradingWorkspace) SetGradingAll(on bool) {
	m.gradingAll = on
	m.flagLog = append(m.flagLog, on)
}

func payloadFor(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func gradableSubmission(id string, status string) domain.Submission {
	s := domain.Submission{
		ID:           id,
		FileName:     id + ".png",
		ImagePayload: payloadFor(pngBytes),
		Status:       status,
		UploadedAt:   fixedTime,
	}
	if status == domain.StatusError {
		s.ErrorMessage = domain.GradingFailedMessage
	}
	return s
}

func passingResult() *grading.Result {
	return &grading.Result{
		ProblemStatement: "Compute 2+2",
		Score:            8,
		Summary:          "Mostly right",
		Steps:            []grading.Step{{StepNumber: 1, Content: "2+2=4", IsCorrect: true, Feedback: "ok"}},
		CorrectSolution:  "4",
	}
}

func TestGradeSubmission_Success(t *testing.T) {
	ws := newMockGradingWorkspace(gradableSubmission("a", domain.StatusIdle))
	var gotReq grader.GradeRequest
	deps := GradeSubmissionDeps{
		Workspace: ws,
		Grader: graderFunc(func(_ context.Context, req grader.GradeRequest) (*grading.Result, error) {
			gotReq = req
			return passingResult(), nil
		}),
		Language: "Vietnamese",
	}

	outcome, err := ExecuteGradeSubmission(context.Background(), GradeSubmissionInput{ID: "a"}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != GradeSucceeded {
		t.Errorf("expected GradeSucceeded, got %v", outcome)
	}
	sub, _ := ws.Get("a")
	if sub.Status != domain.StatusSuccess || sub.Result == nil {
		t.Errorf("expected success with result, got %+v", sub)
	}
	if gotReq.MIMEType != "image/png" || len(gotReq.Image) == 0 {
		t.Errorf("expected decoded image handed to grader, got mime %q", gotReq.MIMEType)
	}
	if gotReq.Language != "Vietnamese" {
		t.Errorf("expected language forwarded, got %q", gotReq.Language)
	}
}

func TestGradeSubmission_ServiceFailureSettlesWithFixedMessage(t *testing.T) {
	ws := newMockGradingWorkspace(gradableSubmission("a", domain.StatusIdle))
	deps := GradeSubmissionDeps{
		Workspace: ws,
		Grader: graderFunc(func(context.Context, grader.GradeRequest) (*grading.Result, error) {
			return nil, errors.New("502 upstream exploded with secret details")
		}),
	}

	outcome, err := ExecuteGradeSubmission(context.Background(), GradeSubmissionInput{ID: "a"}, deps)
	if err != nil {
		t.Fatalf("grading failure must not be an orchestrator error: %v", err)
	}
	if outcome != GradeFailed {
		t.Errorf("expected GradeFailed, got %v", outcome)
	}
	sub, _ := ws.Get("a")
	if sub.Status != domain.StatusError {
		t.Fatalf("expected error status, got %s", sub.Status)
	}
	if sub.ErrorMessage != domain.GradingFailedMessage {
		t.Errorf("expected the fixed user-facing message, got %q", sub.ErrorMessage)
	}
	if sub.Result != nil {
		t.Error("expected no result on a settled failure")
	}
}

func TestGradeSubmission_GoneUpFront(t *testing.T) {
	ws := newMockGradingWorkspace()
	deps := GradeSubmissionDeps{Workspace: ws, Grader: graderFunc(func(context.Context, grader.GradeRequest) (*grading.Result, error) {
		t.Fatal("grader must not be called for a missing submission")
		return nil, nil
	})}

	_, err := ExecuteGradeSubmission(context.Background(), GradeSubmissionInput{ID: "ghost"}, deps)
	if !errors.Is(err, ErrSubmissionGone) {
		t.Errorf("expected ErrSubmissionGone, got %v", err)
	}
}

func TestGradeSubmission_DeletedMidFlightIsSilent(t *testing.T) {
	ws := newMockGradingWorkspace(gradableSubmission("a", domain.StatusIdle))
	deps := GradeSubmissionDeps{
		Workspace: ws,
		Grader: graderFunc(func(context.Context, grader.GradeRequest) (*grading.Result, error) {
			delete(ws.subs, "a")
			return passingResult(), nil
		}),
	}

	if _, err := ExecuteGradeSubmission(context.Background(), GradeSubmissionInput{ID: "a"}, deps); err != nil {
		t.Errorf("mid-flight deletion must settle silently, got %v", err)
	}
}

func TestGradeSubmission_RegradeAfterError(t *testing.T) {
	ws := newMockGradingWorkspace(gradableSubmission("a", domain.StatusError))
	deps := GradeSubmissionDeps{
		Workspace: ws,
		Grader: graderFunc(func(context.Context, grader.GradeRequest) (*grading.Result, error) {
			return passingResult(), nil
		}),
	}

	if _, err := ExecuteGradeSubmission(context.Background(), GradeSubmissionInput{ID: "a"}, deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sub, _ := ws.Get("a")
	if sub.Status != domain.StatusSuccess || sub.ErrorMessage != "" {
		t.Errorf("expected clean success after regrade, got %+v", sub)
	}
}

func TestGradeSubmission_CorruptPayloadSettles(t *testing.T) {
	bad := gradableSubmission("a", domain.StatusIdle)
	bad.ImagePayload = "not a data uri"
	ws := newMockGradingWorkspace(bad)
	deps := GradeSubmissionDeps{Workspace: ws, Grader: graderFunc(func(context.Context, grader.GradeRequest) (*grading.Result, error) {
		t.Fatal("grader must not see an unreadable payload")
		return nil, nil
	})}

	if _, err := ExecuteGradeSubmission(context.Background(), GradeSubmissionInput{ID: "a"}, deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sub, _ := ws.Get("a")
	if sub.Status != domain.StatusError || sub.ErrorMessage != domain.GradingFailedMessage {
		t.Errorf("expected settled error, got %+v", sub)
	}
}

func TestDecodeImagePayload(t *testing.T) {
	data, mime, err := decodeImagePayload(payloadFor([]byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mime != "image/png" || len(data) != 3 {
		t.Errorf("got mime %q len %d", mime, len(data))
	}

	for _, bad := range []string{"", "data:image/png,plain", "plain,abc", "data:image/png;base64,@@@"} {
		if _, _, err := decodeImagePayload(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
