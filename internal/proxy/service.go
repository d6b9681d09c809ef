package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/promptsmith/sdprompt/internal/analysis"
	"github.com/promptsmith/sdprompt/internal/models"
	"github.com/promptsmith/sdprompt/internal/providers"
)

// DefaultSystem keeps every answer in English.
const DefaultSystem = "You are a helpful assistant for writing Stable Diffusion prompts. " +
	"Always respond in English only, regardless of the language of the request."

// Remediation hints returned alongside failures.
const (
	SuggestionUpstream    = "Make sure the requested model is installed (ollama pull <model>) and the upstream service is healthy."
	suggestionUnreachable = "Check if the server is running at %s"
)

// ErrValidation marks a request rejected before any upstream call.
var ErrValidation = errors.New("validation failed")

var dataURLPrefix = regexp.MustCompile(`^data:image/[\w.+-]+;base64,`)

// DefaultOptions are the server-side generation defaults.
func DefaultOptions() providers.Options {
	return providers.Options{
		Temperature: providers.Float(0.7),
		NumPredict:  providers.Int(500),
		System:      providers.String(DefaultSystem),
	}
}

// Config controls a Service.
type Config struct {
	DefaultModel  string
	VisionModel   string
	VisionMarkers []string
	// Structured asks the upstream for JSON analysis output.
	Structured bool
	Defaults   providers.Options
	Seeds      providers.SeedSource
}

// Service relays generation requests to one upstream provider.
type Service struct {
	provider providers.Provider
	seeds    providers.SeedSource

	mu       sync.RWMutex
	defaults providers.Options

	defaultModel  string
	visionModel   string
	visionMarkers []string
	structured    bool
}

func NewService(provider providers.Provider, cfg Config) *Service {
	if cfg.Seeds == nil {
		cfg.Seeds = providers.NewRandomSeeds()
	}
	if cfg.Defaults.IsZero() {
		cfg.Defaults = DefaultOptions()
	}
	if len(cfg.VisionMarkers) == 0 {
		cfg.VisionMarkers = []string{"llava"}
	}
	return &Service{
		provider:      provider,
		seeds:         cfg.Seeds,
		defaults:      cfg.Defaults,
		defaultModel:  cfg.DefaultModel,
		visionModel:   cfg.VisionModel,
		visionMarkers: cfg.VisionMarkers,
		structured:    cfg.Structured,
	}
}

// SetDefaults swaps the generation defaults used by later calls.
func (s *Service) SetDefaults(opts providers.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = opts
}

// Defaults returns the current generation defaults.
func (s *Service) Defaults() providers.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// Address is the upstream location used in remediation hints.
func (s *Service) Address() string {
	return s.provider.Address()
}

// UnreachableSuggestion is the hint returned when the upstream cannot be contacted.
func (s *Service) UnreachableSuggestion() string {
	return fmt.Sprintf(suggestionUnreachable, s.provider.Address())
}

// GenerateInput is a caller's generation request.
type GenerateInput struct {
	Prompt  string            `json:"prompt"`
	Model   string            `json:"model,omitempty"`
	Options providers.Options `json:"options,omitempty"`
}

// Generate forwards a text generation and returns the upstream body verbatim.
// The seed is always replaced with a fresh one.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (json.RawMessage, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrValidation)
	}

	model := in.Model
	if model == "" {
		model = s.defaultModel
	}

	req := providers.Request{
		Model:   model,
		Prompt:  in.Prompt,
		Options: s.resolve(in.Options),
	}

	slog.Debug("forwarding generation", "model", model, "seed", *req.Options.Seed)
	return s.provider.Generate(ctx, req)
}

// GenerateText runs Generate and returns only the generated text.
func (s *Service) GenerateText(ctx context.Context, in GenerateInput) (string, error) {
	body, err := s.Generate(ctx, in)
	if err != nil {
		return "", err
	}
	return providers.DecodeText(body)
}

// AnalyzeImage sends one image to a multimodal model and parses the answer
// into its five sections.
func (s *Service) AnalyzeImage(ctx context.Context, imageData, model string) (models.AnalysisResult, error) {
	if imageData == "" {
		return models.AnalysisResult{}, fmt.Errorf("%w: imageData is required", ErrValidation)
	}
	if model == "" {
		return models.AnalysisResult{}, fmt.Errorf("%w: model is required", ErrValidation)
	}

	req := providers.Request{
		Model:   model,
		Prompt:  analysis.Instruction,
		Images:  []string{StripDataURL(imageData)},
		Options: s.resolve(providers.Options{}),
	}
	if s.structured {
		req.Format = "json"
	}

	body, err := s.provider.Generate(ctx, req)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	text, err := providers.DecodeText(body)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result, structured := analysis.Extract(text)
	if !structured {
		slog.Warn("analysis response was not valid JSON, used label parser", "model", model)
	}
	return result, nil
}

// VisionModel is the model used when a caller does not name one for analysis.
func (s *Service) VisionModel() string {
	return s.visionModel
}

// ListModels returns the upstream model listing verbatim.
func (s *Service) ListModels(ctx context.Context) (json.RawMessage, error) {
	return s.provider.ListModels(ctx)
}

// Status is the upstream health report.
type Status struct {
	Running    bool              `json:"running"`
	StatusCode int               `json:"statusCode,omitempty"`
	Models     []providers.Model `json:"models,omitempty"`
	HasLlava   *bool             `json:"hasLlava,omitempty"`
	ModelNames []string          `json:"modelNames,omitempty"`
	Error      string            `json:"error,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
}

// Status probes the model listing. It never returns an error; failures are
// reported as a non-running status.
func (s *Service) Status(ctx context.Context) Status {
	body, err := s.provider.ListModels(ctx)
	if err != nil {
		status := Status{Running: false, Error: err.Error()}
		var upstream *providers.UpstreamError
		if errors.As(err, &upstream) {
			status.StatusCode = upstream.StatusCode
			status.Suggestion = SuggestionUpstream
		} else {
			status.Suggestion = s.UnreachableSuggestion()
		}
		return status
	}

	list, err := providers.DecodeModels(body)
	if err != nil {
		return Status{Running: false, Error: err.Error(), Suggestion: SuggestionUpstream}
	}

	names := make([]string, 0, len(list.Models))
	hasVision := false
	for _, m := range list.Models {
		names = append(names, m.Name)
		if s.isVision(m.Name) {
			hasVision = true
		}
	}

	return Status{
		Running:    true,
		StatusCode: 200,
		Models:     list.Models,
		HasLlava:   &hasVision,
		ModelNames: names,
	}
}

func (s *Service) isVision(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range s.visionMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (s *Service) resolve(caller providers.Options) providers.Options {
	forced := providers.Options{Seed: providers.Int64(s.seeds.Next())}
	return providers.Resolve(s.Defaults(), caller, forced)
}

// StripDataURL removes a leading data:image/...;base64, prefix.
func StripDataURL(data string) string {
	return dataURLPrefix.ReplaceAllString(data, "")
}
