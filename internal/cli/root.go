// Package cli holds the luce command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "luce",
	Short: "Review preview deployments and land model-authored fixes",
	Long: `luce reviews a deployed preview against a rubric with a language model.
When the score is below target it either opens a tracking issue or applies
the model's remediation to a single rolling pull request.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "project config file (overrides LUCE_CONFIG)")
	rootCmd.PersistentFlags().StringP("workdir", "C", "", "repository checkout to operate on (overrides LUCE_WORKDIR)")
	rootCmd.PersistentFlags().String("preview-url", "", "preview deployment URL (overrides PREVIEW_URL)")
	rootCmd.PersistentFlags().String("ref", "", "source revision under review (overrides GITHUB_SHA)")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(applyIssueCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
