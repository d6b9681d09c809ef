package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/promptsmith/sdprompt/internal/analysis"
	"github.com/promptsmith/sdprompt/internal/batch"
	"github.com/promptsmith/sdprompt/internal/providers"
	"github.com/promptsmith/sdprompt/internal/proxy"
	"github.com/promptsmith/sdprompt/internal/storage"
	"github.com/promptsmith/sdprompt/internal/styles"
)

// maxBodyBytes bounds request bodies; base64 images are large.
const maxBodyBytes = 32 << 20

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

type Handler struct {
	proxy     *proxy.Service
	store     storage.Repository
	batches   *batch.Manager
	styles    *styles.Catalog
	staticDir string
	now       func() time.Time
}

// Deps are the services a Handler serves.
type Deps struct {
	Proxy     *proxy.Service
	Store     storage.Repository
	Batches   *batch.Manager
	Styles    *styles.Catalog
	StaticDir string
}

func New(deps Deps) *Handler {
	if deps.Styles == nil {
		deps.Styles = styles.Default()
	}
	return &Handler{
		proxy:     deps.Proxy,
		store:     deps.Store,
		batches:   deps.Batches,
		styles:    deps.Styles,
		staticDir: deps.StaticDir,
		now:       time.Now,
	}
}

// problem is the JSON body of every failed request
type problem struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"statusText,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, body := h.classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "err", err)
	} else {
		slog.Debug("request rejected", "status", status, "err", err)
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) classify(err error) (int, problem) {
	var upstream *providers.UpstreamError
	var unreachable *providers.UnreachableError

	switch {
	case errors.As(err, &upstream):
		return upstream.StatusCode, problem{
			Error:      fmt.Sprintf("Upstream API error: %d %s", upstream.StatusCode, upstream.Status),
			Details:    upstream.Body,
			Status:     upstream.StatusCode,
			StatusText: upstream.Status,
			Suggestion: proxy.SuggestionUpstream,
		}
	case errors.As(err, &unreachable):
		return http.StatusInternalServerError, problem{
			Error:      "Failed to connect to the generation service",
			Details:    unreachable.Err.Error(),
			Suggestion: h.proxy.UnreachableSuggestion(),
		}
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, proxy.ErrValidation),
		errors.Is(err, storage.ErrInvalid),
		errors.Is(err, batch.ErrEmptyImage),
		errors.Is(err, batch.ErrNotEnoughAnalyses),
		errors.Is(err, analysis.ErrNotEnoughResults),
		errors.Is(err, styles.ErrUnknownStyle):
		status = http.StatusBadRequest
	case errors.Is(err, errNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrEmptyCollection),
		errors.Is(err, batch.ErrNotFound),
		errors.Is(err, batch.ErrImageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrVersionConflict),
		errors.Is(err, batch.ErrBatchFull),
		errors.Is(err, batch.ErrSuperseded):
		status = http.StatusConflict
	}

	return status, problem{
		Error:      err.Error(),
		Status:     status,
		StatusText: http.StatusText(status),
	}
}

// readJSON decodes the request body into v.
func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return data, nil
}
