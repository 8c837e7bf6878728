package cli

import (
	"github.com/spf13/cobra"

	intm "github.com/scottymoll/luce/internal"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review the preview and open a tracking issue when below target",
	Long: `Fetch the configured routes from the preview deployment, score them
against the rubric and, when the score is below target, open one tracking
issue for the source revision. The repository is never modified.`,
	Args: cobra.NoArgs,
	RunE: runReview,
}

func runReview(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := requirePreview(e.cfg); err != nil {
		return err
	}
	out, err := e.pipeline.ReviewOnly(cmd.Context(), intm.NewRunContext(e.cfg, e.project, "review"))
	if err != nil {
		e.log.Error().Err(err).Msg("review failed")
		return err
	}
	printOutcome(cmd, out)
	return nil
}
