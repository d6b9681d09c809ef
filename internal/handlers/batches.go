package handlers

import (
	"fmt"
	"net/http"
	"strconv"
)

func (h *Handler) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if r.ContentLength != 0 {
		if err := h.readJSON(w, r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.Model == "" {
		req.Model = h.proxy.VisionModel()
	}
	if req.Model == "" {
		h.writeError(w, fmt.Errorf("%w: model is required", errBadRequest))
		return
	}

	h.writeJSON(w, http.StatusCreated, h.batches.Create(req.Model))
}

func (h *Handler) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.batches.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

func (h *Handler) HandleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	h.batches.Delete(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAddBatchImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageData string `json:"imageData"`
	}
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	img, err := h.batches.AddImage(r.PathValue("id"), req.ImageData)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, img)
}

func (h *Handler) HandleRemoveBatchImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := imageIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.batches.RemoveImage(r.PathValue("id"), imageID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAnalyzeBatchImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := imageIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	img, err := h.batches.Analyze(r.Context(), r.PathValue("id"), imageID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, img)
}

func (h *Handler) HandleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	summary, err := h.batches.AnalyzeAll(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleMixBatch(w http.ResponseWriter, r *http.Request) {
	mixed, err := h.batches.Mix(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, mixed)
}

func imageIDParam(r *http.Request) (int64, error) {
	raw := r.PathValue("imageId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid image id %q", errBadRequest, raw)
	}
	return id, nil
}
