package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scottymoll/luce/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run on GitHub deployment_status webhooks",
	Long: `Start an HTTP server that starts a run whenever GitHub reports a
successful deployment.

Endpoints:
  GET  /healthz  Health check
  POST /webhook  GitHub webhook receiver (deployment_status, ping)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (overrides LISTEN_ADDR)")
	serveCmd.Flags().Bool("review-only", false, "open tracking issues instead of pushing changes")
	addApplyFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		e.cfg.ListenAddr = addr
	}
	reviewOnly, _ := cmd.Flags().GetBool("review-only")

	srv := server.New(e.pipeline, e.cfg, e.project, server.Options{
		ReviewOnly: reviewOnly,
		Apply:      applyOptions(cmd, e.project),
	}, e.log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		e.log.Info().Msg("shutting down")
		_ = srv.Shutdown()
	}()

	return srv.Listen()
}
