package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/promptsmith/sdprompt/internal/models"
)

// mixMarkers are prefixes models put in front of a combined prompt.
var mixMarkers = []string{"Improved Prompt:", "Combined Prompt:", "Final Prompt:", "Result:", "Mixed Prompt:"}

// BuildCategoryPrompt asks the model for fresh content for one category.
// The timestamp is only there to perturb otherwise identical requests.
func BuildCategoryPrompt(cat models.Category, context string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a completely unique and creative prompt section for Stable Diffusion category: %q (%s). ", cat.Name, cat.Description)
	fmt.Fprintf(&b, "Current timestamp (ignore this, it's for randomization): %s. ", models.Timestamp(now))

	if current := strings.TrimSpace(cat.Content); current != "" {
		fmt.Fprintf(&b, "Build upon or modify this existing content: %q. ", current)
	}
	if context != "" {
		fmt.Fprintf(&b, "Consider this context for other prompt sections: %s. ", context)
	}

	b.WriteString("Make it detailed and descriptive in 10-15 words. Provide a DIFFERENT response each time, even for identical inputs.")
	return b.String()
}

// BuildNegativePrompt asks the model for a negative prompt matching base.
func BuildNegativePrompt(base string, now time.Time) string {
	return fmt.Sprintf(`Generate a comprehensive negative prompt for this Stable Diffusion prompt: %q.
Current timestamp (ignore this, it's for randomization): %s.
Include common negative terms to avoid artifacts and issues. Provide a DIFFERENT response even for identical inputs.`,
		base, models.Timestamp(now))
}

// BuildMixPrompt asks the model to merge several prompts into one.
func BuildMixPrompt(prompts []string) string {
	numbered := make([]string, len(prompts))
	for i, p := range prompts {
		numbered[i] = fmt.Sprintf("Prompt %d: %s", i+1, p)
	}

	return fmt.Sprintf(`I need you to combine and refine these Stable Diffusion prompts into a single coherent prompt. Create a creative and UNIQUE response each time this request is made, even if the source prompts are identical:

%s

Create a single improved prompt that includes the best elements from all of these. Make sure the result is cohesive, well-structured, and effective for Stable Diffusion image generation. Focus on descriptive elements, style, composition, and quality enhancers. Your response should be unique and creative, different from previous generations even with the same inputs.`,
		strings.Join(numbered, "\n\n"))
}

// CleanMixed drops everything up to the first known result marker.
func CleanMixed(response string) string {
	for _, marker := range mixMarkers {
		if idx := strings.Index(response, marker); idx != -1 {
			return strings.TrimSpace(response[idx+len(marker):])
		}
	}
	return strings.TrimSpace(response)
}
