package grader

import (
	"context"
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json", `{"score": 10}`, `{"score": 10}`},
		{"json fence", "```json\n{\"score\": 10}\n```", `{"score": 10}`},
		{"bare fence", "```\n{\"score\": 10}\n```", `{"score": 10}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFences(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFirstText_NilResponse(t *testing.T) {
	if got := firstText(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestGemini_EmptyKeyFailsFast(t *testing.T) {
	g := NewGemini("", "")
	if _, err := g.Grade(context.Background(), GradeRequest{}); err == nil {
		t.Error("expected error with empty API key")
	}
}

func TestNewGemini_DefaultsModel(t *testing.T) {
	g := NewGemini("key", "  ")
	if g.Model != DefaultModel {
		t.Errorf("expected default model, got %q", g.Model)
	}
}

func TestNoop_ReturnsValidResult(t *testing.T) {
	res, err := Noop{}.Grade(context.Background(), GradeRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := res.Validate(); err != nil {
		t.Errorf("canned result must validate: %v", err)
	}
	if !res.IsPerfect() {
		t.Error("expected perfect canned score")
	}
}
