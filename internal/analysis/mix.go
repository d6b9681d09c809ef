package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/promptsmith/sdprompt/internal/models"
)

// ErrNotEnoughResults is returned when fewer than two analyses are mixed.
var ErrNotEnoughResults = errors.New("need at least 2 analyzed images to mix prompts")

// Mix combines several analyses into one. Each descriptive field is taken
// from a result chosen by pick(n), which must return a value in [0, n).
func Mix(results []models.AnalysisResult, pick func(n int) int) (models.AnalysisResult, error) {
	if len(results) < 2 {
		return models.AnalysisResult{}, ErrNotEnoughResults
	}

	var compositions, lightings, colors, styles, prompts []string
	for _, r := range results {
		compositions = appendNonEmpty(compositions, r.Composition)
		lightings = appendNonEmpty(lightings, r.Lighting)
		colors = appendNonEmpty(colors, r.Colors)
		styles = appendNonEmpty(styles, r.Style)
		prompts = appendNonEmpty(prompts, r.SuggestedPrompt)
	}

	choose := func(values []string, fallback string) string {
		if len(values) == 0 {
			return fallback
		}
		return values[pick(len(values))]
	}

	return models.AnalysisResult{
		Composition:     choose(compositions, "No composition data available"),
		Lighting:        choose(lightings, "No lighting data available"),
		Colors:          choose(colors, "No color data available"),
		Style:           choose(styles, "No style data available"),
		SuggestedPrompt: fmt.Sprintf("Mixed prompt from %d images: %s", len(results), strings.Join(prompts, ", ")),
	}, nil
}

func appendNonEmpty(values []string, v string) []string {
	if strings.TrimSpace(v) == "" {
		return values
	}
	return append(values, v)
}
