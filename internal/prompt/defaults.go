package prompt

import "github.com/promptsmith/sdprompt/internal/models"

var defaultCategories = []models.Category{
	{ID: "subject", Name: "Main Subject", Description: "Central element or theme of the image", Active: true, Order: 0},
	{ID: "style", Name: "Style", Description: "Artistic style and genre", Active: true, Order: 1},
	{ID: "quality", Name: "Quality Enhancers", Description: "Quality-improving adjectives", Active: true, Order: 2},
	{ID: "composition", Name: "Composition", Description: "Arrangement, viewpoint, and framing", Active: true, Order: 3},
	{ID: "lighting", Name: "Lighting", Description: "Light source and quality", Active: true, Order: 4},
	{ID: "color", Name: "Color Palette", Description: "Dominant colors and mood", Active: true, Order: 5},
	{ID: "background", Name: "Environment/Background", Description: "Description of the background or environment", Active: true, Order: 6},
	{ID: "mood", Name: "Mood/Atmosphere", Description: "Emotional tone and atmosphere", Active: true, Order: 7},
}

// CommonNegativePrompts are ready-made negative prompt fragments.
var CommonNegativePrompts = []string{
	"blurry, bad quality, low resolution",
	"deformed, distorted, disfigured",
	"watermark, text, signature",
	"oversaturated, overexposed",
	"cropped, frame, border",
}

// DefaultCategories returns a fresh copy of the seed category list.
func DefaultCategories() Set {
	cats := make(Set, len(defaultCategories))
	copy(cats, defaultCategories)
	return cats
}
