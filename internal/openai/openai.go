package openai

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

// DefaultURL is the public OpenAI API. Any server speaking the chat
// completions protocol can be used instead.
const DefaultURL = "https://api.openai.com/v1"

// OpenAI is a provider for OpenAI-compatible chat completion servers
type OpenAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New returns a new OpenAI provider
func New(baseURL, apiKey string, timeout time.Duration) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OpenAI) Address() string {
	return o.baseURL
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model            string          `json:"model"`
	Messages         []message       `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Seed             *int64          `json:"seed,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	ResponseFormat   *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends one chat completion and returns it shaped like a
// non-streaming generate response.
func (o *OpenAI) Generate(ctx context.Context, req providers.Request) (json.RawMessage, error) {
	body, err := o.do(ctx, http.MethodPost, "/chat/completions", buildChatRequest(req))
	if err != nil {
		return nil, err
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from %s", o.baseURL)
	}

	model := response.Model
	if model == "" {
		model = req.Model
	}
	return json.Marshal(providers.GenerateResponse{
		Model:    model,
		Response: response.Choices[0].Message.Content,
		Done:     true,
	})
}

// ListModels returns the server's models in the {"models":[...]} shape.
func (o *OpenAI) ListModels(ctx context.Context) (json.RawMessage, error) {
	body, err := o.do(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data []struct {
			ID      string `json:"id"`
			Created int64  `json:"created"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	list := providers.ModelList{Models: make([]providers.Model, 0, len(response.Data))}
	for _, m := range response.Data {
		model := providers.Model{Name: m.ID}
		if m.Created > 0 {
			model.ModifiedAt = time.Unix(m.Created, 0).UTC().Format(time.RFC3339)
		}
		list.Models = append(list.Models, model)
	}
	return json.Marshal(list)
}

func buildChatRequest(req providers.Request) chatRequest {
	opts := req.Options
	chat := chatRequest{
		Model:            req.Model,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		MaxTokens:        opts.NumPredict,
		Seed:             opts.Seed,
		Stop:             opts.Stop,
		FrequencyPenalty: frequencyPenalty(opts.RepeatPenalty),
	}

	system := req.System
	if system == "" && opts.System != nil {
		system = *opts.System
	}
	if system != "" {
		chat.Messages = append(chat.Messages, message{Role: "system", Content: system})
	}

	if len(req.Images) == 0 {
		chat.Messages = append(chat.Messages, message{Role: "user", Content: req.Prompt})
	} else {
		parts := []contentPart{{Type: "text", Text: req.Prompt}}
		for _, img := range req.Images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + img}})
		}
		chat.Messages = append(chat.Messages, message{Role: "user", Content: parts})
	}

	if req.Format == "json" {
		chat.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return chat
}

// frequencyPenalty maps a multiplicative repeat penalty (1 is neutral) onto
// the additive frequency penalty range [-2, 2].
func frequencyPenalty(repeat *float64) *float64 {
	if repeat == nil {
		return nil
	}
	p := min(max(*repeat-1, -2), 2)
	return &p
}

func (o *OpenAI) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		requestBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(requestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &providers.UnreachableError{Address: o.baseURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, providers.NewUpstreamError(resp, body)
	}
	return body, nil
}
