package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scottymoll/luce/internal/diffnorm"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Rewrite a unified diff on stdin to a/ b/ prefixed paths",
	Long: `Read a unified diff (or a model reply containing one) from stdin and
write it back with header paths in the a/ b/ form git apply -p1 expects.

Examples:
  git diff --no-prefix | luce normalize
  luce normalize --extract < reply.md`,
	Args: cobra.NoArgs,
	RunE: runNormalize,
}

func init() {
	normalizeCmd.Flags().Bool("extract", false, "pull the diff out of fenced or prose-wrapped text first")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	text := string(raw)
	if extract, _ := cmd.Flags().GetBool("extract"); extract {
		text = diffnorm.Extract(text)
	}
	_, err = io.WriteString(cmd.OutOrStdout(), diffnorm.Normalize(text))
	return err
}
