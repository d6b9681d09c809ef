package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/promptsmith/sdprompt/internal/export"
	"github.com/promptsmith/sdprompt/internal/models"
	"github.com/promptsmith/sdprompt/internal/prompt"
)

func newPromptsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage saved prompts",
		Long: `Lists, shows, deletes, imports and exports the saved prompt library.

Import and export pick the format from the file extension: .json, .jsonl,
.yaml/.yml or .parquet.`,
	}

	cmd.AddCommand(newPromptsListCmd(flags))
	cmd.AddCommand(newPromptsShowCmd(flags))
	cmd.AddCommand(newPromptsDeleteCmd(flags))
	cmd.AddCommand(newPromptsExportCmd(flags))
	cmd.AddCommand(newPromptsImportCmd(flags))

	return cmd
}

func newPromptsListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.LoadAll(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tMODEL\tUPDATED")
			for _, p := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Title, p.Model, p.UpdatedAt)
			}
			return tw.Flush()
		},
	}
}

func newPromptsShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved prompt and its categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s, v%d)\n\n%s\n", p.Title, p.Model, p.Version, p.Prompt)
			if p.NegativePrompt != "" {
				fmt.Fprintf(out, "\nnegative: %s\n", p.NegativePrompt)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw)
			for _, cat := range prompt.Restore(p.Categories) {
				if cat.Active {
					fmt.Fprintf(tw, "%s\t%s\n", cat.Name, cat.Content)
				}
			}
			return tw.Flush()
		},
	}
}

func newPromptsDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newPromptsExportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export the saved prompt library",
		Example: `  # Dated JSON file in the current directory
  sdprompt prompts export

  # Parquet for analysis tooling
  sdprompt prompts export library.parquet`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.LoadAll(cmd.Context())
			if err != nil {
				return err
			}

			path := export.Filename(export.FormatJSON, timeNow())
			if len(args) == 1 {
				path = args[0]
			}
			if err := export.WriteFile(path, list); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d prompts to %s\n", len(list), path)
			return nil
		},
	}
}

func newPromptsImportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge prompts from an export file into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, dropped, err := export.ReadFile(args[0])
			if err != nil {
				return err
			}
			result, err := store.ImportMerge(cmd.Context(), records)
			if err != nil {
				return err
			}
			result.Dropped += dropped

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d prompts, dropped %d invalid records\n", result.Imported, result.Dropped)
			return nil
		},
	}
}

// savePrompt stores p in the configured library and prints its id.
func savePrompt(cmd *cobra.Command, flags *globalFlags, p models.SavedPrompt) error {
	store, err := flags.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := store.Upsert(cmd.Context(), p)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %q as %s\n", saved.Title, saved.ID)
	return nil
}
