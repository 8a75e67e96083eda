package grading

import (
	"errors"
)

// Score bounds for a graded sheet.
const (
	MinScore = 0
	MaxScore = 10
)

// Domain errors
var (
	ErrEmptyProblemStatement = errors.New("problem statement cannot be empty")
	ErrScoreOutOfRange       = errors.New("score must be between 0 and 10")
	ErrEmptySteps            = errors.New("graded result must contain at least one step")
	ErrBadStepNumber         = errors.New("step numbers must be positive")
)

// Step is one graded step of the student's work.
// Correction is only present when the step is incorrect.
type Step struct {
	StepNumber int    `json:"stepNumber"`
	Content    string `json:"content"`
	IsCorrect  bool   `json:"isCorrect"`
	Correction string `json:"correction,omitempty"`
	Feedback   string `json:"feedback"`
}

// Competencies is the three-part assessment of the student's work.
type Competencies struct {
	Logic        string `json:"logic"`
	Calculation  string `json:"calculation"`
	Presentation string `json:"presentation"`
}

// Result is the structured outcome returned by the external grading engine
// for a single sheet. CorrectSolution is Markdown and is shown only when the
// score is below the maximum.
type Result struct {
	ProblemStatement string       `json:"problemStatement"`
	Score            float64      `json:"score"`
	Summary          string       `json:"summary"`
	Steps            []Step       `json:"steps"`
	CorrectSolution  string       `json:"correctSolution"`
	Competencies     Competencies `json:"competencies"`
	Tips             []string     `json:"tips"`
}

// Validate checks if the Result has valid data.
// PRE: Result was decoded from the grading engine's JSON response
// POST: Returns nil if valid, error otherwise
func (r *Result) Validate() error {
	if r.ProblemStatement == "" {
		return ErrEmptyProblemStatement
	}
	if r.Score < MinScore || r.Score > MaxScore {
		return ErrScoreOutOfRange
	}
	if len(r.Steps) == 0 {
		return ErrEmptySteps
	}
	for _, s := range r.Steps {
		if s.StepNumber <= 0 {
			return ErrBadStepNumber
		}
	}
	return nil
}

// IsPerfect returns true when the sheet earned the maximum score.
// The reference solution is suppressed for perfect sheets.
func (r *Result) IsPerfect() bool {
	return r.Score >= MaxScore
}
