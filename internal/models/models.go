package models

import "time"

// TimestampLayout is the ISO-8601 form used for SavedPrompt timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// SDModel is a Stable Diffusion model family a prompt is written for
type SDModel string

const (
	ModelSD15 SDModel = "SD 1.5"
	ModelSDXL SDModel = "SDXL"
	ModelSD35 SDModel = "SD 3.5"
	ModelFlux SDModel = "Flux"
)

// SDModels lists the supported model families in display order.
var SDModels = []SDModel{ModelSD15, ModelSDXL, ModelSD35, ModelFlux}

// Valid reports whether m is one of the supported model families.
func (m SDModel) Valid() bool {
	for _, known := range SDModels {
		if m == known {
			return true
		}
	}
	return false
}

// Category is one configurable segment of the assembled prompt
type Category struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Active      bool   `json:"active" yaml:"active"`
	Order       int    `json:"order" yaml:"order"`
	Content     string `json:"content" yaml:"content"`
}

// SavedPrompt is a persisted, user-named snapshot of an assembled prompt
type SavedPrompt struct {
	ID             string            `json:"id" yaml:"id"`
	Title          string            `json:"title" yaml:"title"`
	Prompt         string            `json:"prompt" yaml:"prompt"`
	NegativePrompt string            `json:"negativePrompt" yaml:"negativePrompt"`
	Model          SDModel           `json:"model" yaml:"model"`
	Categories     map[string]string `json:"categories" yaml:"categories"`
	CreatedAt      string            `json:"createdAt" yaml:"createdAt"`
	UpdatedAt      string            `json:"updatedAt" yaml:"updatedAt"`
	Version        int64             `json:"version,omitempty" yaml:"version,omitempty"`
}

// Timestamp formats t the way SavedPrompt timestamps are stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// AnalysisResult is the structured outcome of one image analysis call
type AnalysisResult struct {
	Composition     string `json:"composition" yaml:"composition"`
	Lighting        string `json:"lighting" yaml:"lighting"`
	Colors          string `json:"colors" yaml:"colors"`
	Style           string `json:"style" yaml:"style"`
	SuggestedPrompt string `json:"suggestedPrompt" yaml:"suggestedPrompt"`
}

// ImageWithAnalysis is one uploaded image in a batch analysis session
type ImageWithAnalysis struct {
	ID          int64           `json:"id"`
	ImageData   string          `json:"imageData"`
	Analysis    *AnalysisResult `json:"analysis"`
	IsAnalyzing bool            `json:"isAnalyzing"`
	Error       string          `json:"error,omitempty"`
}

// TokenCount is the advisory token budget of an assembled prompt
type TokenCount struct {
	Total       int  `json:"total" yaml:"total"`
	Limit       int  `json:"limit" yaml:"limit"`
	IsOverLimit bool `json:"isOverLimit" yaml:"isOverLimit"`
}

// ArtStyle is one predefined style from the style catalog
type ArtStyle struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	Category    string `json:"category"`
}

// StyleCategory groups art styles in the catalog
type StyleCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StyleCatalog is the read-only style asset loaded at startup
type StyleCatalog struct {
	Styles     []ArtStyle      `json:"styles"`
	Categories []StyleCategory `json:"categories"`
}
