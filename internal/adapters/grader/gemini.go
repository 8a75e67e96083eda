package grader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"gradedesk/internal/domain/grading"
)

// DefaultModel is used when GEMINI_MODEL is not set.
const DefaultModel = "gemini-3-pro-preview"

// Gemini grades sheets with the Google Gemini API.
type Gemini struct {
	APIKey string
	Model  string
}

func NewGemini(apiKey, model string) *Gemini {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{
		APIKey: strings.TrimSpace(apiKey),
		Model:  model,
	}
}

const systemInstruction = `You are an excellent mathematics teacher grading a student's written
work from a photographed exercise sheet.

Follow these steps:
1. Read the problem statement off the image.
2. Analyze every step of the student's solution in order.
3. Check calculation accuracy, logical reasoning, and presentation.
4. Score the work on a 10-point scale, grading each step strictly.
5. Assess the student's competencies: reasoning, calculation, presentation.
6. If the work is wrong or suboptimal, point out the mistakes and provide
   a complete model solution in Markdown.

Requirements:
- Encouraging pedagogical tone, but strict about correctness.
- Weigh logical reasoning over the final answer alone.
- Respond with JSON only, matching this shape exactly:
{
  "problemStatement": string,        // the problem as read from the image
  "score": number,                   // 0..10
  "summary": string,                 // short overall remark
  "steps": [
    {
      "stepNumber": integer,         // 1-based
      "content": string,             // the student's step
      "isCorrect": boolean,
      "correction": string,          // omit or empty when the step is correct
      "feedback": string
    }
  ],
  "correctSolution": string,         // Markdown model solution
  "competencies": {
    "logic": string,
    "calculation": string,
    "presentation": string
  },
  "tips": [string]
}
Any text outside the JSON object is an error.`

// Grade sends the sheet image to Gemini and parses the structured reply.
// PRE: req.Image is a decodable image, req.MIMEType matches its content
// POST: the returned result passes grading.Result.Validate
func (g *Gemini) Grade(ctx context.Context, req GradeRequest) (*grading.Result, error) {
	if g.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.Model)
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	user := "Grade the student's work on this sheet. Respond with JSON only."
	if lang := strings.TrimSpace(req.Language); lang != "" {
		user += " Write all feedback in " + lang + "."
	}

	parts := []genai.Part{
		genai.Text(user),
		&genai.Blob{MIMEType: req.MIMEType, Data: req.Image},
	}

	// Retries cover transient 5xx failures, not malformed replies.
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return nil, fmt.Errorf("gemini grade: empty response")
		}
		txt = stripCodeFences(strings.TrimSpace(txt))

		var result grading.Result
		if err := json.Unmarshal([]byte(txt), &result); err != nil {
			return nil, fmt.Errorf("gemini grade: bad JSON: %w", err)
		}
		if err := result.Validate(); err != nil {
			return nil, fmt.Errorf("gemini grade: invalid result: %w", err)
		}
		return &result, nil
	}
	return nil, lastErr
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

// stripCodeFences removes a surrounding ```json ... ``` block if the model
// ignored the JSON response MIME type.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func ptrFloat32(v float32) *float32 { return &v }
