package cli

import (
	"github.com/spf13/cobra"

	intm "github.com/scottymoll/luce/internal"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Review the preview and push the remediation to the rolling PR",
	Long: `Review the preview and, when the score is below target, ask the model
for a change, apply it inside the allowed paths and push it to the single
rolling pull request. Re-running for the same revision and instruction is a
no-op.

Examples:
  luce apply --preview-url https://pr-12.preview.dev --ref $GITHUB_SHA
  luce apply --multi-pass --max-passes 3`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	addApplyFlags(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := requirePreview(e.cfg); err != nil {
		return err
	}
	run := intm.NewRunContext(e.cfg, e.project, "apply")
	out, err := e.pipeline.ReviewAndApply(cmd.Context(), run, applyOptions(cmd, e.project))
	if err != nil {
		e.log.Error().Err(err).Msg("apply failed")
		return err
	}
	printOutcome(cmd, out)
	return nil
}
