package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/promptsmith/sdprompt/internal/providers"
	"github.com/promptsmith/sdprompt/internal/proxy"
)

// EnvPrefix prefixes every environment override, e.g. SDPROMPT_SERVER_PORT.
const EnvPrefix = "SDPROMPT"

// Config is the full runtime configuration
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	Provider   string           `mapstructure:"provider"`
	Server     ServerConfig     `mapstructure:"server"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Generation GenerationConfig `mapstructure:"generation"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Styles     StylesConfig     `mapstructure:"styles"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	StaticDir   string   `mapstructure:"static_dir"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type OllamaConfig struct {
	URL           string        `mapstructure:"url"`
	Model         string        `mapstructure:"model"`
	VisionModel   string        `mapstructure:"vision_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	VisionMarkers []string      `mapstructure:"vision_markers"`
}

type GeminiConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	VisionModel string `mapstructure:"vision_model"`
}

// OpenAIConfig targets any server speaking the chat completions protocol.
type OpenAIConfig struct {
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	VisionModel string        `mapstructure:"vision_model"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// GenerationConfig holds the server-side generation defaults. Unset knobs
// are nil and left to the upstream; an explicit 0 is forwarded.
type GenerationConfig struct {
	Temperature   *float64 `mapstructure:"temperature"`
	NumPredict    *int     `mapstructure:"num_predict"`
	TopP          *float64 `mapstructure:"top_p"`
	TopK          *int     `mapstructure:"top_k"`
	RepeatPenalty *float64 `mapstructure:"repeat_penalty"`
	System        string   `mapstructure:"system"`
}

type AnalysisConfig struct {
	Structured bool `mapstructure:"structured"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type BatchConfig struct {
	MaxImages int           `mapstructure:"max_images"`
	Interval  time.Duration `mapstructure:"interval"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type StylesConfig struct {
	Path string `mapstructure:"path"`
}

// Defaults maps every config key to its default value.
func Defaults() map[string]any {
	return map[string]any{
		"log_level":                 "info",
		"provider":                  "ollama",
		"server.host":               "",
		"server.port":               3001,
		"server.static_dir":         "dist",
		"server.cors_origins":       []string{"*"},
		"ollama.url":                "http://localhost:11434",
		"ollama.model":              "llama2",
		"ollama.vision_model":       "llava",
		"ollama.timeout":            "5m",
		"ollama.vision_markers":     []string{"llava"},
		"gemini.api_key":            "${GEMINI_API_KEY}",
		"gemini.model":              "gemini-1.5-flash",
		"gemini.vision_model":       "gemini-1.5-flash",
		"openai.url":                "https://api.openai.com/v1",
		"openai.api_key":            "${OPENAI_API_KEY}",
		"openai.model":              "gpt-4o-mini",
		"openai.vision_model":       "gpt-4o-mini",
		"openai.timeout":            "2m",
		"generation.temperature":    0.7,
		"generation.num_predict":    500,
		"generation.system":         proxy.DefaultSystem,
		"analysis.structured":       true,
		"storage.driver":            "json",
		"storage.path":              "data/saved-prompts.json",
		"batch.max_images":          6,
		"batch.interval":            "0s",
		"batch.ttl":                 "1h",
		"styles.path":               "",
	}
}

// optionalKeys have no default but can still come from the environment.
var optionalKeys = []string{
	"generation.top_p",
	"generation.top_k",
	"generation.repeat_penalty",
}

// legacyEnv lists older variable names still honoured for a key, in
// precedence order after the prefixed name.
var legacyEnv = map[string][]string{
	"ollama.url":     {"OLLAMA_URL", "OLLAMA_HOST"},
	"ollama.model":   {"OLLAMA_MODEL"},
	"gemini.api_key": {"GEMINI_API_KEY"},
	"openai.api_key": {"OPENAI_API_KEY"},
}

// Manager loads configuration and notifies subscribers when the file changes
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range optionalKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	for key, names := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sdprompt")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Ollama.URL = NormalizeURL(cfg.Ollama.URL)
	cfg.Gemini.APIKey = ResolveEnvVars(cfg.Gemini.APIKey)
	cfg.OpenAI.APIKey = ResolveEnvVars(cfg.OpenAI.APIKey)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current config
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFileUsed is the path of the loaded file, empty when running on
// defaults and environment only.
func (cm *Manager) ConfigFileUsed() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig reloads the file on change and runs the callbacks. Invalid
// edits are logged and ignored.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			slog.Warn("ignoring invalid config change", "file", e.Name, "err", err)
			return
		}
		slog.Info("config reloaded", "file", e.Name, "op", e.Op.String())

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Watch starts watching when a config file is in use and blocks until ctx
// is done.
func (cm *Manager) Watch(ctx context.Context) error {
	if cm.ConfigFileUsed() != "" {
		cm.WatchConfig()
	}
	<-ctx.Done()
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Provider {
	case "ollama", "gemini", "openai":
	default:
		return fmt.Errorf("unsupported provider: %q", c.Provider)
	}
	switch c.Storage.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Batch.MaxImages <= 0 {
		return fmt.Errorf("batch.max_images must be positive, got %d", c.Batch.MaxImages)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Model is the default text model of the selected provider.
func (c *Config) Model() string {
	switch c.Provider {
	case "gemini":
		return c.Gemini.Model
	case "openai":
		return c.OpenAI.Model
	}
	return c.Ollama.Model
}

// VisionModel is the default multimodal model of the selected provider.
func (c *Config) VisionModel() string {
	switch c.Provider {
	case "gemini":
		return c.Gemini.VisionModel
	case "openai":
		return c.OpenAI.VisionModel
	}
	return c.Ollama.VisionModel
}

// GenerationOptions converts the generation section into default options.
func (c *Config) GenerationOptions() providers.Options {
	g := c.Generation
	opts := providers.Options{
		Temperature:   g.Temperature,
		NumPredict:    g.NumPredict,
		TopP:          g.TopP,
		TopK:          g.TopK,
		RepeatPenalty: g.RepeatPenalty,
	}
	if g.System != "" {
		opts.System = providers.String(g.System)
	}
	return opts
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${VAR} references
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// NormalizeURL adds a scheme to bare host:port values such as OLLAMA_HOST.
func NormalizeURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "http://" + raw
}

// WriteDefault writes a default config file
func WriteDefault(path string) error {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# sdprompt configuration
# Every key can be overridden with an SDPROMPT_ environment variable,
# e.g. SDPROMPT_OLLAMA_URL or SDPROMPT_SERVER_PORT.
# gemini.api_key and openai.api_key use ${ENV_VAR} syntax to reference the environment.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
