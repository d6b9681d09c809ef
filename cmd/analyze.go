package cmd

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Describe an image as composition, lighting, colors, style and a suggested prompt",
		Example: `  # Analyze with the configured vision model
  sdprompt analyze reference.jpg

  # Use a specific multimodal model
  sdprompt analyze reference.png --model llava:13b`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := flags.load()
			if err != nil {
				return err
			}
			svc, err := newProxyService(cm.Get())
			if err != nil {
				return err
			}
			if model == "" {
				model = svc.VisionModel()
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			result, err := svc.AnalyzeImage(cmd.Context(), base64.StdEncoding.EncodeToString(data), model)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Vision model (defaults to the configured vision model)")

	return cmd
}
