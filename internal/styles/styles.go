package styles

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/promptsmith/sdprompt/internal/models"
	"github.com/promptsmith/sdprompt/internal/prompt"
)

// NoneID clears the style category.
const NoneID = "none"

// StyleCategoryID is the prompt category a style fills.
const StyleCategoryID = "style"

var ErrUnknownStyle = errors.New("unknown style")

//go:embed styles.json
var defaultCatalog []byte

// Catalog is the read-only style catalog
type Catalog struct {
	models.StyleCatalog
	byID map[string]models.ArtStyle
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded style catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns the built-in one when path is
// empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style catalog: %w", err)
	}
	c, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse style catalog %s: %w", path, err)
	}
	slog.Debug("loaded style catalog", "path", path, "styles", len(c.Styles))
	return c, nil
}

func parse(data []byte) (*Catalog, error) {
	var raw models.StyleCatalog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Styles == nil {
		raw.Styles = []models.ArtStyle{}
	}
	if raw.Categories == nil {
		raw.Categories = []models.StyleCategory{}
	}

	c := &Catalog{StyleCatalog: raw, byID: make(map[string]models.ArtStyle, len(raw.Styles))}
	for _, s := range raw.Styles {
		c.byID[s.ID] = s
	}
	return c, nil
}

func (c *Catalog) Find(id string) (models.ArtStyle, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Apply writes the style's prompt into the style category of set. NoneID
// clears it.
func (c *Catalog) Apply(set prompt.Set, styleID string) error {
	content := ""
	if styleID != NoneID {
		s, ok := c.Find(styleID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStyle, styleID)
		}
		content = s.Prompt
	}

	if !set.SetContent(StyleCategoryID, content) {
		return fmt.Errorf("prompt has no %s category", StyleCategoryID)
	}
	for i := range set {
		if set[i].ID == StyleCategoryID {
			set[i].Active = content != ""
		}
	}
	return nil
}
