package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OLLAMA_URL", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("OLLAMA_MODEL", "")

	cm, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	cfg := cm.Get()

	if cfg.Server.Port != 3001 {
		t.Errorf("Server.Port = %d, want 3001", cfg.Server.Port)
	}
	if cfg.Ollama.URL != "http://localhost:11434" {
		t.Errorf("Ollama.URL = %q", cfg.Ollama.URL)
	}
	if cfg.Ollama.Timeout != 5*time.Minute {
		t.Errorf("Ollama.Timeout = %v", cfg.Ollama.Timeout)
	}
	if cfg.Batch.MaxImages != 6 || cfg.Batch.TTL != time.Hour {
		t.Errorf("Batch = %+v", cfg.Batch)
	}
	if !cfg.Analysis.Structured {
		t.Error("Analysis.Structured = false, want true")
	}

	opts := cfg.GenerationOptions()
	if opts.Temperature == nil || *opts.Temperature != 0.7 {
		t.Errorf("Temperature = %v", opts.Temperature)
	}
	if opts.NumPredict == nil || *opts.NumPredict != 500 {
		t.Errorf("NumPredict = %v", opts.NumPredict)
	}
	if opts.System == nil || *opts.System == "" {
		t.Error("System instruction missing")
	}
	if opts.TopP != nil || opts.TopK != nil || opts.Seed != nil {
		t.Error("unset knobs should stay nil")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SDPROMPT_SERVER_PORT", "8080")
	t.Setenv("SDPROMPT_STORAGE_DRIVER", "sqlite")
	t.Setenv("SDPROMPT_OLLAMA_URL", "")
	t.Setenv("OLLAMA_URL", "")
	t.Setenv("OLLAMA_HOST", "gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "mistral")

	cm, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	cfg := cm.Get()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q", cfg.Storage.Driver)
	}
	if cfg.Ollama.URL != "http://gpu-box:11434" {
		t.Errorf("Ollama.URL = %q, want OLLAMA_HOST with scheme", cfg.Ollama.URL)
	}
	if cfg.Model() != "mistral" {
		t.Errorf("Model() = %q, want mistral", cfg.Model())
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `provider: gemini
gemini:
  api_key: ${TEST_SDPROMPT_KEY}
  model: gemini-1.5-pro
generation:
  temperature: 0.2
batch:
  interval: 2s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_SDPROMPT_KEY", "secret")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("SDPROMPT_GEMINI_API_KEY", "")

	cm, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	cfg := cm.Get()

	if cfg.Model() != "gemini-1.5-pro" {
		t.Errorf("Model() = %q", cfg.Model())
	}
	if cfg.Gemini.APIKey != "secret" {
		t.Errorf("Gemini.APIKey = %q, want resolved env reference", cfg.Gemini.APIKey)
	}
	if *cfg.GenerationOptions().Temperature != 0.2 {
		t.Errorf("Temperature = %v", *cfg.GenerationOptions().Temperature)
	}
	if cfg.Batch.Interval != 2*time.Second {
		t.Errorf("Batch.Interval = %v", cfg.Batch.Interval)
	}
	if cm.ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q", cm.ConfigFileUsed())
	}
}

func TestExplicitZeroGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `generation:
  temperature: 0
  top_k: 0
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cm, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	opts := cm.Get().GenerationOptions()

	if opts.Temperature == nil || *opts.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", opts.Temperature)
	}
	if opts.TopK == nil || *opts.TopK != 0 {
		t.Errorf("TopK = %v, want explicit 0", opts.TopK)
	}
	if opts.TopP != nil || opts.RepeatPenalty != nil {
		t.Errorf("TopP = %v, RepeatPenalty = %v, want unset", opts.TopP, opts.RepeatPenalty)
	}
	if opts.NumPredict == nil || *opts.NumPredict != 500 {
		t.Errorf("NumPredict = %v, want default 500", opts.NumPredict)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "openai provider", mutate: func(c *Config) { c.Provider = "openai" }},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "bedrock" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "no batch images", mutate: func(c *Config) { c.Batch.MaxImages = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Provider: "ollama",
				Server:   ServerConfig{Port: 3001},
				Storage:  StorageConfig{Driver: "json"},
				Batch:    BatchConfig{MaxImages: 6},
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefaultIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	cm, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if cm.Get().Server.Port != 3001 {
		t.Errorf("Server.Port = %d", cm.Get().Server.Port)
	}
}

func TestProviderModels(t *testing.T) {
	cfg := &Config{
		Ollama: OllamaConfig{Model: "llama2", VisionModel: "llava"},
		Gemini: GeminiConfig{Model: "gemini-1.5-flash", VisionModel: "gemini-1.5-pro"},
		OpenAI: OpenAIConfig{Model: "gpt-4o-mini", VisionModel: "gpt-4o"},
	}

	tests := []struct {
		provider   string
		wantModel  string
		wantVision string
	}{
		{provider: "ollama", wantModel: "llama2", wantVision: "llava"},
		{provider: "gemini", wantModel: "gemini-1.5-flash", wantVision: "gemini-1.5-pro"},
		{provider: "openai", wantModel: "gpt-4o-mini", wantVision: "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg.Provider = tt.provider
			if got := cfg.Model(); got != tt.wantModel {
				t.Errorf("Model() = %q, want %q", got, tt.wantModel)
			}
			if got := cfg.VisionModel(); got != tt.wantVision {
				t.Errorf("VisionModel() = %q, want %q", got, tt.wantVision)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	if got := NormalizeURL("http://host:1/"); got != "http://host:1" {
		t.Errorf("NormalizeURL() = %q", got)
	}
	if got := ParseLogLevel("debug"); got != slog.LevelDebug {
		t.Errorf("ParseLogLevel(debug) = %v", got)
	}
	if got := ParseLogLevel("loud"); got != slog.LevelInfo {
		t.Errorf("ParseLogLevel(loud) = %v", got)
	}
}
