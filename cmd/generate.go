package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promptsmith/sdprompt/internal/prompt"
	"github.com/promptsmith/sdprompt/internal/providers"
	"github.com/promptsmith/sdprompt/internal/proxy"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the generation provider is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := flags.load()
			if err != nil {
				return err
			}
			svc, err := newProxyService(cm.Get())
			if err != nil {
				return err
			}

			status := svc.Status(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			if !status.Running {
				return fmt.Errorf("provider at %s is not available", svc.Address())
			}
			return nil
		},
	}
}

func newModelsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := flags.load()
			if err != nil {
				return err
			}
			svc, err := newProxyService(cm.Get())
			if err != nil {
				return err
			}

			body, err := svc.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			list, err := providers.DecodeModels(body)
			if err != nil {
				return err
			}
			for _, m := range list.Models {
				fmt.Fprintln(cmd.OutOrStdout(), m.Name)
			}
			return nil
		},
	}
}

func newGenerateCmd(flags *globalFlags) *cobra.Command {
	var (
		model       string
		temperature float64
		maxTokens   int
		negative    bool
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Send a prompt to the provider and print the response",
		Example: `  # Free-form generation with the default model
  sdprompt generate "describe a misty forest at dawn"

  # Negative prompt for an existing prompt
  sdprompt generate --negative "portrait of a knight, oil painting"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := flags.load()
			if err != nil {
				return err
			}
			svc, err := newProxyService(cm.Get())
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			if negative {
				text = prompt.BuildNegativePrompt(text, timeNow())
			}

			var opts providers.Options
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = providers.Float(temperature)
			}
			if cmd.Flags().Changed("max-tokens") {
				opts.NumPredict = providers.Int(maxTokens)
			}

			out, err := svc.GenerateText(cmd.Context(), proxy.GenerateInput{
				Prompt:  text,
				Model:   model,
				Options: opts,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name (defaults to the configured model)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "Sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 500, "Maximum tokens to generate")
	cmd.Flags().BoolVar(&negative, "negative", false, "Generate a negative prompt for the given prompt")

	return cmd
}
