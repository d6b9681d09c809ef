package analysis

import (
	"errors"
	"strings"
	"testing"

	"github.com/promptsmith/sdprompt/internal/models"
)

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected models.AnalysisResult
		wantErr  bool
	}{
		{
			name:  "plain object",
			input: `{"composition":"A","lighting":"B","colors":"C","style":"D","suggestedPrompt":"E"}`,
			expected: models.AnalysisResult{
				Composition: "A", Lighting: "B", Colors: "C", Style: "D", SuggestedPrompt: "E",
			},
		},
		{
			name:  "code fence with snake case keys and color list",
			input: "```json\n{\"composition\": \"A\", \"colours\": [\"red\", \"gold\"], \"suggested_prompt\": \"E\"}\n```",
			expected: models.AnalysisResult{
				Composition:     "A",
				Lighting:        FallbackLighting,
				Colors:          "red, gold",
				Style:           FallbackStyle,
				SuggestedPrompt: "E",
			},
		},
		{
			name:  "prose around object",
			input: "Sure, here you go:\n{\"style\": \"D\", \"suggestedPrompt\": \"E\"}\nHope this helps!",
			expected: models.AnalysisResult{
				Composition:     FallbackComposition,
				Lighting:        FallbackLighting,
				Colors:          FallbackColors,
				Style:           "D",
				SuggestedPrompt: "E",
			},
		},
		{
			name:    "missing suggested prompt fails validation",
			input:   `{"composition":"A"}`,
			wantErr: true,
		},
		{
			name:    "wrong type fails validation",
			input:   `{"suggestedPrompt": 42}`,
			wantErr: true,
		},
		{
			name:    "no object",
			input:   "Composition: A",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStructured(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseStructured() expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStructured() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("ParseStructured() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestExtractFallsBackToLabels(t *testing.T) {
	input := "Composition: A\nLighting: B\nColors: C\nStyle: D\nSuggested Prompt: E"
	got, structured := Extract(input)
	if structured {
		t.Error("Extract() reported structured output for labelled text")
	}
	if got.Style != "D" || got.SuggestedPrompt != "E" {
		t.Errorf("Extract() = %+v", got)
	}

	got, structured = Extract(`{"suggestedPrompt":"a lighthouse"}`)
	if !structured {
		t.Error("Extract() did not use JSON")
	}
	if got.SuggestedPrompt != "a lighthouse" {
		t.Errorf("SuggestedPrompt = %q", got.SuggestedPrompt)
	}
}

func TestMix(t *testing.T) {
	results := []models.AnalysisResult{
		{Composition: "c1", Lighting: "l1", Colors: "k1", Style: "s1", SuggestedPrompt: "p1"},
		{Composition: "c2", Lighting: "", Colors: "k2", Style: "s2", SuggestedPrompt: "p2"},
	}

	last := func(n int) int { return n - 1 }
	mixed, err := Mix(results, last)
	if err != nil {
		t.Fatalf("Mix() error = %v", err)
	}

	if mixed.Composition != "c2" || mixed.Lighting != "l1" || mixed.Style != "s2" {
		t.Errorf("Mix() picked unexpected fields: %+v", mixed)
	}
	if !strings.HasPrefix(mixed.SuggestedPrompt, "Mixed prompt from 2 images: ") {
		t.Errorf("SuggestedPrompt = %q", mixed.SuggestedPrompt)
	}
	if !strings.HasSuffix(mixed.SuggestedPrompt, "p1, p2") {
		t.Errorf("SuggestedPrompt = %q", mixed.SuggestedPrompt)
	}
}

func TestMixNeedsTwo(t *testing.T) {
	_, err := Mix([]models.AnalysisResult{{SuggestedPrompt: "x"}}, func(int) int { return 0 })
	if !errors.Is(err, ErrNotEnoughResults) {
		t.Errorf("Mix() error = %v, want ErrNotEnoughResults", err)
	}
}
