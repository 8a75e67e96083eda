package grader

import (
	"context"

	"gradedesk/internal/domain/grading"
)

// Noop returns a canned result without calling any external service.
// Used in development when no API key is configured, and in tests.
type Noop struct{}

func (Noop) Grade(_ context.Context, _ GradeRequest) (*grading.Result, error) {
	return &grading.Result{
		ProblemStatement: "Compute 12 + 7.",
		Score:            10,
		Summary:          "Correct and clearly presented.",
		Steps: []grading.Step{
			{StepNumber: 1, Content: "12 + 7 = 19", IsCorrect: true, Feedback: "Correct addition."},
		},
		CorrectSolution: "12 + 7 = **19**",
		Competencies: grading.Competencies{
			Logic:        "Sound.",
			Calculation:  "Accurate.",
			Presentation: "Clear.",
		},
		Tips: []string{"Keep writing one operation per line."},
	}, nil
}
