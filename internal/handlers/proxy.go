package handlers

import (
	"net/http"

	"github.com/promptsmith/sdprompt/internal/proxy"
)

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var in proxy.GenerateInput
	if err := h.readJSON(w, r, &in); err != nil {
		h.writeError(w, err)
		return
	}

	body, err := h.proxy.Generate(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) HandleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ImageData string `json:"imageData"`
		Model     string `json:"model"`
	}
	if err := h.readJSON(w, r, &in); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.proxy.AnalyzeImage(r.Context(), in.ImageData, in.Model)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	body, err := h.proxy.ListModels(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HandleStatus always answers 200; a down upstream is reported in the body.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.proxy.Status(r.Context()))
}
