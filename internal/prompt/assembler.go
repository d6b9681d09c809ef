package prompt

import (
	"sort"
	"strings"

	"github.com/promptsmith/sdprompt/internal/models"
)

// Separator joins category segments in the assembled prompt.
const Separator = ", "

// TokenLimits is the advisory token budget per model family.
var TokenLimits = map[models.SDModel]int{
	models.ModelSD15: 75,
	models.ModelSDXL: 150,
	models.ModelSD35: 100,
	models.ModelFlux: 125,
}

// Assemble joins the trimmed content of every active, non-empty category in
// ascending order. The input slice is not modified.
func Assemble(categories []models.Category) string {
	included := make([]models.Category, 0, len(categories))
	for _, cat := range categories {
		if cat.Active && strings.TrimSpace(cat.Content) != "" {
			included = append(included, cat)
		}
	}

	sort.SliceStable(included, func(i, j int) bool {
		return included[i].Order < included[j].Order
	})

	parts := make([]string, len(included))
	for i, cat := range included {
		parts[i] = strings.TrimSpace(cat.Content)
	}
	return strings.Join(parts, Separator)
}

// CountTokens estimates tokens as whitespace-delimited segments. It is an
// approximation, not a tokenizer.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// Count computes the token budget of an assembled prompt for model.
// Unknown models get a zero limit and are always over it when non-empty.
func Count(assembled string, model models.SDModel) models.TokenCount {
	total := CountTokens(assembled)
	limit := TokenLimits[model]
	return models.TokenCount{
		Total:       total,
		Limit:       limit,
		IsOverLimit: total > limit,
	}
}

// Set is the mutable category state of one prompt builder session.
type Set []models.Category

// Toggle flips the active flag of the category with the given id. Content is
// left untouched.
func (s Set) Toggle(id string) bool {
	for i := range s {
		if s[i].ID == id {
			s[i].Active = !s[i].Active
			return true
		}
	}
	return false
}

// SetContent replaces the content of the category with the given id.
func (s Set) SetContent(id, content string) bool {
	for i := range s {
		if s[i].ID == id {
			s[i].Content = content
			return true
		}
	}
	return false
}

// Find returns the category with the given id.
func (s Set) Find(id string) (models.Category, bool) {
	for _, cat := range s {
		if cat.ID == id {
			return cat, true
		}
	}
	return models.Category{}, false
}

// Assemble builds the prompt from the current state of the set.
func (s Set) Assemble() string {
	return Assemble(s)
}

// Context renders the other filled categories as "Name: content" pairs, used
// to steer AI generation of a single category.
func (s Set) Context(excludeID string) string {
	var parts []string
	for _, cat := range s {
		content := strings.TrimSpace(cat.Content)
		if cat.ID == excludeID || !cat.Active || content == "" {
			continue
		}
		parts = append(parts, cat.Name+": "+content)
	}
	return strings.Join(parts, "; ")
}

// Snapshot maps category id to content for every active category with
// content, as stored on a SavedPrompt.
func Snapshot(categories []models.Category) map[string]string {
	snapshot := make(map[string]string)
	for _, cat := range categories {
		if cat.Active && cat.Content != "" {
			snapshot[cat.ID] = cat.Content
		}
	}
	return snapshot
}

// Restore rebuilds the default category set from a saved snapshot. A category
// is active iff the snapshot holds content for it.
func Restore(snapshot map[string]string) Set {
	cats := DefaultCategories()
	for i := range cats {
		content := snapshot[cats[i].ID]
		cats[i].Content = content
		cats[i].Active = content != ""
	}
	return cats
}
