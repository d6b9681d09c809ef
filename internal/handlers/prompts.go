package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/promptsmith/sdprompt/internal/export"
	"github.com/promptsmith/sdprompt/internal/models"
)

func (h *Handler) HandleListPrompts(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.LoadAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	if q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q"))); q != "" {
		filtered := make([]models.SavedPrompt, 0, len(list))
		for _, p := range list {
			if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Prompt), q) {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}

	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGetPrompt(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	h.savePrompt(w, r, "")
}

func (h *Handler) HandleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	h.savePrompt(w, r, r.PathValue("id"))
}

func (h *Handler) savePrompt(w http.ResponseWriter, r *http.Request, id string) {
	var p models.SavedPrompt
	if err := h.readJSON(w, r, &p); err != nil {
		h.writeError(w, err)
		return
	}
	if id != "" {
		p.ID = id
	}
	if p.Model != "" && !p.Model.Valid() {
		h.writeError(w, fmt.Errorf("%w: unknown model %q", errBadRequest, p.Model))
		return
	}

	saved, err := h.store.Upsert(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) HandleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleImportPrompts merges an uploaded collection. ?format= selects json
// (default), jsonl, yaml or parquet.
func (h *Handler) HandleImportPrompts(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	data, err := h.readBody(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	records, dropped, err := export.Unmarshal(format, data)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	result, err := h.store.ImportMerge(r.Context(), records)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result.Dropped += dropped
	h.writeJSON(w, http.StatusOK, result)
}

// HandleExportPrompts downloads the whole collection. ?format= as for import.
func (h *Handler) HandleExportPrompts(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	list, err := h.store.LoadAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, err := export.Marshal(format, list)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(format, h.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
