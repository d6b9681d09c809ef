package handlers

import (
	"log/slog"
	"net/http"
	"slices"
	"time"
)

// Routes registers every endpoint and wraps the mux with CORS and request
// logging.
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate", h.HandleGenerate)
	mux.HandleFunc("POST /api/analyze-image", h.HandleAnalyzeImage)
	mux.HandleFunc("GET /api/models", h.HandleModels)
	mux.HandleFunc("GET /api/ollama-status", h.HandleStatus)

	mux.HandleFunc("POST /api/assemble", h.HandleAssemble)
	mux.HandleFunc("GET /api/categories", h.HandleCategories)
	mux.HandleFunc("POST /api/categories/{id}/generate", h.HandleGenerateCategory)
	mux.HandleFunc("POST /api/negative-prompt", h.HandleNegativePrompt)
	mux.HandleFunc("POST /api/mix", h.HandleMix)
	mux.HandleFunc("GET /api/styles", h.HandleStyles)

	mux.HandleFunc("GET /api/prompts", h.HandleListPrompts)
	mux.HandleFunc("POST /api/prompts", h.HandleCreatePrompt)
	mux.HandleFunc("GET /api/prompts/export", h.HandleExportPrompts)
	mux.HandleFunc("POST /api/prompts/import", h.HandleImportPrompts)
	mux.HandleFunc("GET /api/prompts/{id}", h.HandleGetPrompt)
	mux.HandleFunc("PUT /api/prompts/{id}", h.HandleUpdatePrompt)
	mux.HandleFunc("DELETE /api/prompts/{id}", h.HandleDeletePrompt)

	mux.HandleFunc("POST /api/batches", h.HandleCreateBatch)
	mux.HandleFunc("GET /api/batches/{id}", h.HandleGetBatch)
	mux.HandleFunc("DELETE /api/batches/{id}", h.HandleDeleteBatch)
	mux.HandleFunc("POST /api/batches/{id}/images", h.HandleAddBatchImage)
	mux.HandleFunc("POST /api/batches/{id}/upload", h.HandleUploadBatchImages)
	mux.HandleFunc("DELETE /api/batches/{id}/images/{imageId}", h.HandleRemoveBatchImage)
	mux.HandleFunc("POST /api/batches/{id}/images/{imageId}/analyze", h.HandleAnalyzeBatchImage)
	mux.HandleFunc("POST /api/batches/{id}/analyze", h.HandleAnalyzeBatch)
	mux.HandleFunc("POST /api/batches/{id}/mix", h.HandleMixBatch)

	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	mux.HandleFunc("GET /", h.HandleStatic)

	return logRequests(cors(allowedOrigins, mux))
}

func cors(allowedOrigins []string, next http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || slices.Contains(allowedOrigins, origin)) {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
