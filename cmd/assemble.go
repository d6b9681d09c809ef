package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptsmith/sdprompt/internal/models"
	"github.com/promptsmith/sdprompt/internal/prompt"
	"github.com/promptsmith/sdprompt/internal/providers"
	"github.com/promptsmith/sdprompt/internal/proxy"
	"github.com/promptsmith/sdprompt/internal/styles"
)

var timeNow = time.Now

func newAssembleCmd(flags *globalFlags) *cobra.Command {
	var (
		set      []string
		disable  []string
		fill     []string
		styleID  string
		sdModel  string
		llmModel string
		title    string
	)

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Build a prompt from category content",
		Long: `Builds a Stable Diffusion prompt from the default categories.

Categories are joined in order, skipping inactive and empty ones. The token
count is checked against the budget of the selected Stable Diffusion model.
Categories named with --fill are generated by the LLM, in the order given,
using the other filled categories as context.`,
		Example: `  # Manual content
  sdprompt assemble --set subject="a red fox" --set lighting="golden hour"

  # Apply a catalog style and let the LLM fill the background
  sdprompt assemble --set subject="a red fox" --style oil-painting --fill background

  # Save the result
  sdprompt assemble --set subject="a red fox" --save "Fox at dusk"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			model := models.SDModel(sdModel)
			if !model.Valid() {
				return fmt.Errorf("unknown model %q (one of %v)", sdModel, models.SDModels)
			}

			cats := prompt.DefaultCategories()
			for _, kv := range set {
				id, content, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --set %q, expected id=content", kv)
				}
				if !cats.SetContent(id, content) {
					return fmt.Errorf("unknown category %q", id)
				}
			}
			for _, id := range disable {
				c, ok := cats.Find(id)
				if !ok {
					return fmt.Errorf("unknown category %q", id)
				}
				if c.Active {
					cats.Toggle(id)
				}
			}

			if styleID != "" {
				catalog, err := loadStyles(flags)
				if err != nil {
					return err
				}
				if err := catalog.Apply(cats, styleID); err != nil {
					return err
				}
			}

			if len(fill) > 0 {
				cm, err := flags.load()
				if err != nil {
					return err
				}
				svc, err := newProxyService(cm.Get())
				if err != nil {
					return err
				}
				if err := fillCategories(cmd.Context(), svc, cats, fill, llmModel); err != nil {
					return err
				}
			}

			assembled := cats.Assemble()
			count := prompt.Count(assembled, model)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, assembled)
			fmt.Fprintf(out, "\ntokens: %d/%d", count.Total, count.Limit)
			if count.IsOverLimit {
				fmt.Fprint(out, " (over limit)")
			}
			fmt.Fprintln(out)

			if title == "" {
				return nil
			}
			return savePrompt(cmd, flags, models.SavedPrompt{
				Title:      title,
				Prompt:     assembled,
				Model:      model,
				Categories: prompt.Snapshot(cats),
			})
		},
	}

	cmd.Flags().StringArrayVar(&set, "set", nil, "Category content as id=content (repeatable)")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "Category ids to leave out")
	cmd.Flags().StringSliceVar(&fill, "fill", nil, "Category ids to generate with the LLM")
	cmd.Flags().StringVar(&styleID, "style", "", "Catalog style id applied to the style category")
	cmd.Flags().StringVar(&sdModel, "sd-model", string(models.ModelSD15), "Stable Diffusion model for the token budget")
	cmd.Flags().StringVarP(&llmModel, "model", "m", "", "LLM used for --fill (defaults to the configured model)")
	cmd.Flags().StringVar(&title, "save", "", "Save the assembled prompt under this title")

	return cmd
}

func fillCategories(ctx context.Context, svc *proxy.Service, cats prompt.Set, ids []string, model string) error {
	for _, id := range ids {
		cat, ok := cats.Find(id)
		if !ok {
			return fmt.Errorf("unknown category %q", id)
		}
		text, err := svc.GenerateText(ctx, proxy.GenerateInput{
			Prompt:  prompt.BuildCategoryPrompt(cat, cats.Context(id), timeNow()),
			Model:   model,
			Options: providers.Options{Temperature: providers.Float(0.8)},
		})
		if err != nil {
			return fmt.Errorf("failed to generate %s: %w", id, err)
		}
		cats.SetContent(id, strings.TrimSpace(text))
	}
	return nil
}

func loadStyles(flags *globalFlags) (*styles.Catalog, error) {
	cm, err := flags.load()
	if err != nil {
		return nil, err
	}
	return styles.Load(cm.Get().Styles.Path)
}
