package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/promptsmith/sdprompt/internal/providers"
)

func TestGenerate(t *testing.T) {
	var got chatRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"content":"a castle"}}]}`))
	}))
	defer server.Close()

	client := New(server.URL+"/v1/", "sk-test", time.Second)
	body, err := client.Generate(context.Background(), providers.Request{
		Model:  "gpt-4o-mini",
		Prompt: "describe a castle",
		Options: providers.Options{
			Temperature:   providers.Float(0.3),
			NumPredict:    providers.Int(200),
			RepeatPenalty: providers.Float(1.1),
			System:        providers.String("answer in English"),
		},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "describe a castle" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 200 {
		t.Errorf("max_tokens = %v", got.MaxTokens)
	}
	if got.FrequencyPenalty == nil || *got.FrequencyPenalty < 0.09 || *got.FrequencyPenalty > 0.11 {
		t.Errorf("frequency_penalty = %v", got.FrequencyPenalty)
	}

	text, err := providers.DecodeText(body)
	if err != nil || text != "a castle" {
		t.Errorf("DecodeText() = %q, %v", text, err)
	}
}

func TestBuildChatRequestWithImages(t *testing.T) {
	chat := buildChatRequest(providers.Request{
		Model:  "gpt-4o",
		Prompt: "analyze",
		Images: []string{"aGVsbG8="},
		Format: "json",
	})

	if len(chat.Messages) != 1 {
		t.Fatalf("messages = %+v", chat.Messages)
	}
	parts, ok := chat.Messages[0].Content.([]contentPart)
	if !ok || len(parts) != 2 {
		t.Fatalf("content = %#v", chat.Messages[0].Content)
	}
	if parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/jpeg;base64,aGVsbG8=" {
		t.Errorf("image part = %+v", parts[1])
	}
	if chat.ResponseFormat == nil || chat.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", chat.ResponseFormat)
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o","created":1700000000},{"id":"llava-1.6"}]}`))
	}))
	defer server.Close()

	body, err := New(server.URL, "", time.Second).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	list, err := providers.DecodeModels(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Models) != 2 || list.Models[0].Name != "gpt-4o" || list.Models[0].ModifiedAt == "" {
		t.Errorf("models = %+v", list.Models)
	}
}

func TestUpstreamErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := New(server.URL, "bad", time.Second).Generate(context.Background(), providers.Request{Model: "m", Prompt: "p"})
	var upstream *providers.UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusUnauthorized {
		t.Errorf("error = %v, want upstream 401", err)
	}

	server.Close()
	_, err = New(server.URL, "", time.Second).ListModels(context.Background())
	var unreachable *providers.UnreachableError
	if !errors.As(err, &unreachable) {
		t.Errorf("error = %v, want unreachable", err)
	}
}
