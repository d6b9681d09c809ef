package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/promptsmith/sdprompt/internal/models"
	"github.com/promptsmith/sdprompt/internal/prompt"
	"github.com/promptsmith/sdprompt/internal/providers"
	"github.com/promptsmith/sdprompt/internal/proxy"
	"github.com/promptsmith/sdprompt/internal/storage"
)

// creativeTemperature is used for category fills and negative prompts.
const creativeTemperature = 0.8

type assembleRequest struct {
	Categories []models.Category `json:"categories"`
	Model      models.SDModel    `json:"model"`
	StyleID    string            `json:"styleId,omitempty"`
}

type assembleResponse struct {
	Prompt     string            `json:"prompt"`
	Tokens     models.TokenCount `json:"tokens"`
	Categories []models.Category `json:"categories"`
}

func (h *Handler) HandleAssemble(w http.ResponseWriter, r *http.Request) {
	var req assembleRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Model == "" {
		req.Model = models.ModelSD15
	}
	if !req.Model.Valid() {
		h.writeError(w, fmt.Errorf("%w: unknown model %q", errBadRequest, req.Model))
		return
	}

	set := categorySet(req.Categories)
	if req.StyleID != "" {
		if err := h.styles.Apply(set, req.StyleID); err != nil {
			h.writeError(w, err)
			return
		}
	}

	assembled := set.Assemble()
	h.writeJSON(w, http.StatusOK, assembleResponse{
		Prompt:     assembled,
		Tokens:     prompt.Count(assembled, req.Model),
		Categories: set,
	})
}

func (h *Handler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, prompt.DefaultCategories())
}

func (h *Handler) HandleGenerateCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Categories []models.Category `json:"categories"`
		Context    string            `json:"context"`
		Model      string            `json:"model"`
	}
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	set := categorySet(req.Categories)
	cat, ok := set.Find(id)
	if !ok {
		h.writeError(w, fmt.Errorf("%w: category %s", errNotFound, id))
		return
	}

	// An explicit context wins over the one derived from the other categories.
	hint := strings.TrimSpace(req.Context)
	if hint == "" {
		hint = set.Context(id)
	}

	text, err := h.proxy.GenerateText(r.Context(), proxy.GenerateInput{
		Prompt:  prompt.BuildCategoryPrompt(cat, hint, h.now()),
		Model:   req.Model,
		Options: providers.Options{Temperature: providers.Float(creativeTemperature)},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"categoryId": id,
		"content":    strings.TrimSpace(text),
	})
}

func (h *Handler) HandleNegativePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
		Model  string `json:"model"`
	}
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.writeError(w, fmt.Errorf("%w: prompt is required", proxy.ErrValidation))
		return
	}

	text, err := h.proxy.GenerateText(r.Context(), proxy.GenerateInput{
		Prompt:  prompt.BuildNegativePrompt(req.Prompt, h.now()),
		Model:   req.Model,
		Options: providers.Options{Temperature: providers.Float(creativeTemperature)},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"negativePrompt": strings.TrimSpace(text)})
}

type mixRequest struct {
	PromptIDs    []string `json:"promptIds"`
	CustomPrompt string   `json:"customPrompt"`
	Model        string   `json:"model"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    *int     `json:"maxTokens"`
}

type mixResponse struct {
	Prompt string `json:"prompt"`
	// Mixed is false when a single source was returned as is.
	Mixed bool `json:"mixed"`
}

func (h *Handler) HandleMix(w http.ResponseWriter, r *http.Request) {
	var req mixRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	var sources []string
	for _, id := range req.PromptIDs {
		p, err := h.store.Get(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
		if p.Prompt != "" {
			sources = append(sources, p.Prompt)
		}
	}
	if custom := strings.TrimSpace(req.CustomPrompt); custom != "" {
		sources = append(sources, custom)
	}

	switch len(sources) {
	case 0:
		h.writeError(w, fmt.Errorf("%w: select at least one prompt or enter custom text", errBadRequest))
		return
	case 1:
		h.writeJSON(w, http.StatusOK, mixResponse{Prompt: sources[0], Mixed: false})
		return
	}

	text, err := h.proxy.GenerateText(r.Context(), proxy.GenerateInput{
		Prompt:  prompt.BuildMixPrompt(sources),
		Model:   req.Model,
		Options: providers.Options{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, mixResponse{Prompt: prompt.CleanMixed(text), Mixed: true})
}

func (h *Handler) HandleStyles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.styles.StyleCatalog)
}

// categorySet copies the caller's categories, or starts from the defaults.
func categorySet(in []models.Category) prompt.Set {
	if len(in) == 0 {
		return prompt.DefaultCategories()
	}
	return append(prompt.Set(nil), in...)
}
