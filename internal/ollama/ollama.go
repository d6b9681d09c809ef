package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/promptsmith/sdprompt/internal/providers"
)

// DefaultURL is where a local Ollama listens out of the box
const DefaultURL = "http://localhost:11434"

// Ollama is a provider for Ollama
type Ollama struct {
	baseURL string
	client  *http.Client
}

// New returns a new Ollama provider for the given base URL. A zero timeout
// leaves requests bounded only by the caller's context.
func New(baseURL string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Address returns the base URL of the Ollama server
func (o *Ollama) Address() string {
	return o.baseURL
}

type generateRequest struct {
	Model   string             `json:"model"`
	Prompt  string             `json:"prompt"`
	System  string             `json:"system,omitempty"`
	Images  []string           `json:"images,omitempty"`
	Format  string             `json:"format,omitempty"`
	Stream  bool               `json:"stream"`
	Options *providers.Options `json:"options,omitempty"`
}

// Generate posts a non-streaming generation to /api/generate and returns the
// body verbatim
func (o *Ollama) Generate(ctx context.Context, req providers.Request) (json.RawMessage, error) {
	body := generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		System: req.System,
		Images: req.Images,
		Format: req.Format,
		Stream: false,
	}

	opts := req.Options
	if opts.System != nil {
		if body.System == "" {
			body.System = *opts.System
		}
		opts.System = nil
	}
	if !opts.IsZero() {
		body.Options = &opts
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	return o.do(ctx, http.MethodPost, "/api/generate", requestBody)
}

// ListModels fetches /api/tags
func (o *Ollama) ListModels(ctx context.Context) (json.RawMessage, error) {
	return o.do(ctx, http.MethodGet, "/api/tags", nil)
}

func (o *Ollama) do(ctx context.Context, method, path string, payload []byte) (json.RawMessage, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &providers.UnreachableError{Address: o.baseURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &providers.UnreachableError{Address: o.baseURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, providers.NewUpstreamError(resp, body)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("ollama returned a non-JSON body for %s", path)
	}

	return json.RawMessage(body), nil
}
