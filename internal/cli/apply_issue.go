package cli

import (
	"github.com/spf13/cobra"

	intm "github.com/scottymoll/luce/internal"
)

var applyIssueCmd = &cobra.Command{
	Use:   "apply-issue",
	Short: "Apply the instruction from the newest open review issue",
	Long: `Find the newest open issue carrying a review label, take the longest
fenced block in its body as the instruction and land it on the rolling pull
request. The outcome is reported back as an issue comment.`,
	Args: cobra.NoArgs,
	RunE: runApplyIssue,
}

func init() {
	addApplyFlags(applyIssueCmd)
}

func runApplyIssue(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if e.cfg.SourceRef == "" {
		sha, err := e.git.HeadSHA(cmd.Context())
		if err != nil {
			return err
		}
		e.cfg.SourceRef = sha
	}
	run := intm.NewRunContext(e.cfg, e.project, "apply-issue")
	out, err := e.pipeline.ApplyFromIssue(cmd.Context(), run, applyOptions(cmd, e.project))
	if err != nil {
		e.log.Error().Err(err).Msg("apply from issue failed")
		return err
	}
	printOutcome(cmd, out)
	return nil
}
