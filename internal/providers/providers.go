package providers

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request is one non-streaming generation call against the upstream service
type Request struct {
	Model   string
	Prompt  string
	System  string
	Images  []string // base64 without data-URL prefix
	Format  string   // "json" asks the upstream for a JSON-only answer
	Options Options
}

// Provider defines the interface for an upstream generation service
type Provider interface {
	// Generate returns the upstream response body verbatim.
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
	// ListModels returns the upstream model listing verbatim.
	ListModels(ctx context.Context) (json.RawMessage, error)
	// Address is where the upstream is expected to run, used in error hints.
	Address() string
}

// GenerateResponse is the part of a generation body the backend reads itself
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Model is one entry of a model listing
type Model struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

// ModelList is the body of a model listing
type ModelList struct {
	Models []Model `json:"models"`
}

// DecodeText pulls the generated text out of a generation body.
func DecodeText(body json.RawMessage) (string, error) {
	var resp GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	return resp.Response, nil
}

// DecodeModels parses a model listing body.
func DecodeModels(body json.RawMessage) (*ModelList, error) {
	var list ModelList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}
	return &list, nil
}
