package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/promptsmith/sdprompt/internal/config"
	"github.com/promptsmith/sdprompt/internal/gemini"
	"github.com/promptsmith/sdprompt/internal/ollama"
	"github.com/promptsmith/sdprompt/internal/openai"
	"github.com/promptsmith/sdprompt/internal/providers"
	"github.com/promptsmith/sdprompt/internal/proxy"
	"github.com/promptsmith/sdprompt/internal/storage"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
}

func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "sdprompt",
		Short: "Stable Diffusion prompt builder backed by a local LLM",
		Long: `sdprompt assembles Stable Diffusion prompts from ordered categories,
fills them with an LLM (Ollama or Gemini), analyzes reference images and keeps
a library of saved prompts.

Run "sdprompt serve" for the web interface and API, or use the subcommands
directly from a terminal.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Config file (default ./config.yaml or $HOME/.sdprompt/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	cmd.AddCommand(newModelsCmd(flags))
	cmd.AddCommand(newGenerateCmd(flags))
	cmd.AddCommand(newAssembleCmd(flags))
	cmd.AddCommand(newAnalyzeCmd(flags))
	cmd.AddCommand(newPromptsCmd(flags))
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// load reads the configuration and installs the default logger.
func (f *globalFlags) load() (*config.Manager, error) {
	cm, err := config.NewManager(f.configFile)
	if err != nil {
		return nil, err
	}

	level := cm.Get().LogLevel
	if f.logLevel != "" {
		level = f.logLevel
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	})))

	if file := cm.ConfigFileUsed(); file != "" {
		slog.Debug("Loaded config", "file", file)
	}
	return cm, nil
}

func newProvider(cfg *config.Config) (providers.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires gemini.api_key or GEMINI_API_KEY")
		}
		return gemini.New(cfg.Gemini.APIKey), nil
	case "openai":
		return openai.New(cfg.OpenAI.URL, cfg.OpenAI.APIKey, cfg.OpenAI.Timeout), nil
	default:
		return ollama.New(cfg.Ollama.URL, cfg.Ollama.Timeout), nil
	}
}

func newProxyService(cfg *config.Config) (*proxy.Service, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	return proxy.NewService(provider, proxy.Config{
		DefaultModel:  cfg.Model(),
		VisionModel:   cfg.VisionModel(),
		VisionMarkers: cfg.Ollama.VisionMarkers,
		Structured:    cfg.Analysis.Structured,
		Defaults:      cfg.GenerationOptions(),
	}), nil
}

// openStore loads the configuration and opens the saved prompt library.
func (f *globalFlags) openStore() (storage.Repository, error) {
	cm, err := f.load()
	if err != nil {
		return nil, err
	}
	return openStore(cm.Get())
}

func openStore(cfg *config.Config) (storage.Repository, error) {
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt store: %w", err)
	}
	return store, nil
}
