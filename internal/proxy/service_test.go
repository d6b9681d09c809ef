package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/promptsmith/sdprompt/internal/analysis"
	"github.com/promptsmith/sdprompt/internal/ollama"
	"github.com/promptsmith/sdprompt/internal/providers"
)

type fakeProvider struct {
	mu       sync.Mutex
	requests []providers.Request
	response string
	models   string
	err      error
}

func (f *fakeProvider) Generate(_ context.Context, req providers.Request) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return json.Marshal(providers.GenerateResponse{Model: req.Model, Response: f.response, Done: true})
}

func (f *fakeProvider) ListModels(context.Context) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.models), nil
}

func (f *fakeProvider) Address() string { return "http://localhost:11434" }

func TestGenerateAppliesDefaultsAndFreshSeeds(t *testing.T) {
	fake := &fakeProvider{response: "a red fox"}
	svc := NewService(fake, Config{DefaultModel: "llama2"})

	in := GenerateInput{
		Prompt:  "describe a fox",
		Options: providers.Options{Temperature: providers.Float(1.1), Seed: providers.Int64(5)},
	}
	for range 2 {
		if _, err := svc.Generate(context.Background(), in); err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
	}

	if len(fake.requests) != 2 {
		t.Fatalf("got %d upstream calls, want 2", len(fake.requests))
	}
	first, second := fake.requests[0], fake.requests[1]

	if first.Model != "llama2" {
		t.Errorf("Model = %q, want configured default", first.Model)
	}
	if *first.Options.Temperature != 1.1 {
		t.Errorf("Temperature = %v, want caller override", *first.Options.Temperature)
	}
	if *first.Options.NumPredict != 500 {
		t.Errorf("NumPredict = %v, want default 500", *first.Options.NumPredict)
	}
	if *first.Options.System != DefaultSystem {
		t.Errorf("System = %q", *first.Options.System)
	}
	if *first.Options.Seed == 5 && *second.Options.Seed == 5 {
		t.Error("caller seed was forwarded instead of a fresh one")
	}
	if *first.Options.Seed == *second.Options.Seed {
		t.Errorf("identical calls forwarded the same seed %d", *first.Options.Seed)
	}
}

func TestGenerateValidation(t *testing.T) {
	fake := &fakeProvider{}
	svc := NewService(fake, Config{})

	_, err := svc.Generate(context.Background(), GenerateInput{Prompt: "  "})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Generate() error = %v, want ErrValidation", err)
	}
	if len(fake.requests) != 0 {
		t.Error("validation failure reached the upstream")
	}
}

func TestAnalyzeImage(t *testing.T) {
	tests := []struct {
		name      string
		imageData string
		model     string
		wantErr   error
	}{
		{name: "missing image", model: "llava", wantErr: ErrValidation},
		{name: "missing model", imageData: "data:image/png;base64,aGk=", wantErr: ErrValidation},
		{name: "valid", imageData: "data:image/png;base64,aGk=", model: "llava"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeProvider{response: "Composition: A\nLighting: B\nColors: C\nStyle: D\nSuggested Prompt: E"}
			svc := NewService(fake, Config{Structured: true})

			got, err := svc.AnalyzeImage(context.Background(), tt.imageData, tt.model)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AnalyzeImage() error = %v, want %v", err, tt.wantErr)
				}
				if len(fake.requests) != 0 {
					t.Error("validation failure reached the upstream")
				}
				return
			}
			if err != nil {
				t.Fatalf("AnalyzeImage() error = %v", err)
			}

			req := fake.requests[0]
			if len(req.Images) != 1 || req.Images[0] != "aGk=" {
				t.Errorf("Images = %v, want data URL prefix stripped", req.Images)
			}
			if req.Prompt != analysis.Instruction {
				t.Error("analysis instruction not sent")
			}
			if req.Format != "json" {
				t.Errorf("Format = %q, want json", req.Format)
			}
			if req.Options.Seed == nil {
				t.Error("seed not injected")
			}
			if got.Composition != "A" || got.SuggestedPrompt != "E" {
				t.Errorf("AnalyzeImage() = %+v", got)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	t.Run("running with vision model", func(t *testing.T) {
		fake := &fakeProvider{models: `{"models":[{"name":"llama2:latest"},{"name":"LLaVA:7b"}]}`}
		status := NewService(fake, Config{}).Status(context.Background())

		if !status.Running {
			t.Fatal("Running = false")
		}
		if status.HasLlava == nil || !*status.HasLlava {
			t.Error("HasLlava should be true")
		}
		if strings.Join(status.ModelNames, ",") != "llama2:latest,LLaVA:7b" {
			t.Errorf("ModelNames = %v", status.ModelNames)
		}
	})

	t.Run("running without vision model", func(t *testing.T) {
		fake := &fakeProvider{models: `{"models":[{"name":"mistral"}]}`}
		status := NewService(fake, Config{}).Status(context.Background())
		if status.HasLlava == nil || *status.HasLlava {
			t.Errorf("HasLlava = %v, want false", status.HasLlava)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		fake := &fakeProvider{err: &providers.UnreachableError{Address: "http://localhost:11434", Err: errors.New("connection refused")}}
		status := NewService(fake, Config{}).Status(context.Background())

		if status.Running {
			t.Error("Running = true")
		}
		if status.HasLlava != nil || status.ModelNames != nil {
			t.Error("model details reported while not running")
		}
		if !strings.Contains(status.Suggestion, "http://localhost:11434") {
			t.Errorf("Suggestion = %q", status.Suggestion)
		}
	})
}

func TestUpstreamErrorThroughOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewService(ollama.New(server.URL, time.Second), Config{DefaultModel: "llama2"})
	_, err := svc.Generate(context.Background(), GenerateInput{Prompt: "hi"})

	var upstream *providers.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Generate() error = %v, want UpstreamError", err)
	}
	if upstream.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", upstream.StatusCode)
	}
	if !strings.Contains(upstream.Body, "model not found") {
		t.Errorf("Body = %q", upstream.Body)
	}
}

func TestSetDefaults(t *testing.T) {
	fake := &fakeProvider{response: "ok"}
	svc := NewService(fake, Config{DefaultModel: "m"})
	svc.SetDefaults(providers.Options{Temperature: providers.Float(0.2)})

	text, err := svc.GenerateText(context.Background(), GenerateInput{Prompt: "p"})
	if err != nil || text != "ok" {
		t.Fatalf("GenerateText() = %q, %v", text, err)
	}
	if got := *fake.requests[0].Options.Temperature; got != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", got)
	}
	if fake.requests[0].Options.NumPredict != nil {
		t.Error("replaced defaults still carry num_predict")
	}
}

func TestStripDataURL(t *testing.T) {
	tests := map[string]string{
		"data:image/jpeg;base64,AAAA":    "AAAA",
		"data:image/svg+xml;base64,BBBB": "BBBB",
		"CCCC":                           "CCCC",
	}
	for in, want := range tests {
		if got := StripDataURL(in); got != want {
			t.Errorf("StripDataURL(%q) = %q, want %q", in, got, want)
		}
	}
}
