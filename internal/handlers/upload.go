package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/promptsmith/sdprompt/internal/batch"
	"github.com/promptsmith/sdprompt/internal/models"
)

const maxImageBytes = 10 * 1024 * 1024

type uploadResponse struct {
	Images  []models.ImageWithAnalysis `json:"images"`
	Skipped []string                   `json:"skipped,omitempty"`
}

// HandleUploadBatchImages adds images to a batch from a multipart form
// ("files" or "file" fields) or from a JSON {"imageUrl": ...} body. Files
// beyond the batch limit or that are not images are reported as skipped.
func (h *Handler) HandleUploadBatchImages(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	if _, err := h.batches.Get(batchID); err != nil {
		h.writeError(w, err)
		return
	}

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		h.handleURLUpload(w, r, batchID)
		return
	}
	h.handleFileUpload(w, r, batchID)
}

func (h *Handler) handleURLUpload(w http.ResponseWriter, r *http.Request, batchID string) {
	var request struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := h.readJSON(w, r, &request); err != nil {
		h.writeError(w, err)
		return
	}
	if request.ImageURL == "" {
		h.writeError(w, fmt.Errorf("%w: imageUrl is required", errBadRequest))
		return
	}

	data, err := downloadImage(r.Context(), request.ImageURL)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	dataURL, err := toDataURL(data)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	img, err := h.batches.AddImage(batchID, dataURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	slog.Info("Image added from URL", "batch", batchID, "url", request.ImageURL)
	h.writeJSON(w, http.StatusCreated, uploadResponse{Images: []models.ImageWithAnalysis{img}})
}

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request, batchID string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		h.writeError(w, fmt.Errorf("%w: failed to read form: %v", errBadRequest, err))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		h.writeError(w, fmt.Errorf("%w: no files uploaded", errBadRequest))
		return
	}

	resp := uploadResponse{Images: []models.ImageWithAnalysis{}}
	full := false
	for _, header := range files {
		dataURL, err := readUpload(header)
		if err != nil {
			slog.Warn("Skipping upload", "file", header.Filename, "err", err)
			resp.Skipped = append(resp.Skipped, header.Filename)
			continue
		}

		img, err := h.batches.AddImage(batchID, dataURL)
		if errors.Is(err, batch.ErrBatchFull) {
			full = true
			resp.Skipped = append(resp.Skipped, header.Filename)
			continue
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
		resp.Images = append(resp.Images, img)
	}

	if len(resp.Images) == 0 {
		if full {
			h.writeError(w, fmt.Errorf("%w: max %d images", batch.ErrBatchFull, h.batches.MaxImages()))
			return
		}
		h.writeError(w, fmt.Errorf("%w: none of the uploaded files is a supported image", errBadRequest))
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func readUpload(header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file contents: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("file too large (max 10MB)")
	}
	return toDataURL(data)
}

// toDataURL checks that data decodes as an image and wraps it as a base64
// data URL.
func toDataURL(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("not a supported image: %w", err)
	}
	return fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(data)), nil
}

func downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image too large (max 10MB)")
	}
	return data, nil
}
