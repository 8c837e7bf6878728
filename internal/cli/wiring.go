package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	intm "github.com/scottymoll/luce/internal"
	"github.com/scottymoll/luce/internal/generate"
	"github.com/scottymoll/luce/internal/hosting"
	"github.com/scottymoll/luce/internal/llm"
	"github.com/scottymoll/luce/internal/pipeline"
	"github.com/scottymoll/luce/internal/review"
	"github.com/scottymoll/luce/internal/rollingpr"
	"github.com/scottymoll/luce/internal/vcs"
)

// env is everything a command needs after configuration is resolved.
type env struct {
	cfg      intm.Config
	project  intm.ProjectConfig
	log      zerolog.Logger
	git      *vcs.Git
	pipeline *pipeline.Pipeline
}

// loadSettings resolves env config, flag overrides and the project file.
func loadSettings(cmd *cobra.Command) (intm.Config, intm.ProjectConfig, error) {
	cfg := intm.LoadEnv()
	flags := cmd.Flags()
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := flags.GetString("config"); v != "" {
		cfg.ConfigPath = v
	}
	if v, _ := flags.GetString("workdir"); v != "" {
		cfg.WorkDir = v
	}
	if v, _ := flags.GetString("preview-url"); v != "" {
		cfg.PreviewURL = v
	}
	if v, _ := flags.GetString("ref"); v != "" {
		cfg.SourceRef = v
	}

	path := cfg.ConfigPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.WorkDir, path)
	}
	project, err := intm.LoadProjectConfig(path)
	if err != nil {
		return cfg, project, err
	}
	return cfg, project, nil
}

// build wires the full dependency graph from the resolved configuration.
func build(ctx context.Context, cfg intm.Config, project intm.ProjectConfig) (*env, error) {
	log := intm.NewLogger(cfg.LogLevel)

	if cfg.OpenAIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	if cfg.GitHubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is required")
	}
	owner, repo, err := cfg.RepoParts()
	if err != nil {
		return nil, err
	}

	httpClient := llm.NewHTTPClient(time.Duration(cfg.HTTPTimeoutMinutes) * time.Minute)
	model := &llm.Client{
		BaseURL:    cfg.OpenAIBaseURL,
		APIKey:     cfg.OpenAIKey,
		Model:      cfg.Model,
		HTTPClient: httpClient,
		Log:        log,
	}

	host, err := hosting.New(ctx, httpClient, cfg.GitHubToken, cfg.GitHubAPIURL, owner, repo, log)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}

	git := vcs.NewGit(vcs.ExecRunner{Log: log}, cfg.WorkDir, vcs.Identity{
		Name:  project.Bot.Name,
		Email: project.Bot.Email,
	}, log)

	recon := rollingpr.New(host, git, rollingpr.Options{
		BranchPrefix: project.Output.DeltaBranchPrefix,
		TitleMarker:  project.Output.PRTitle,
		BaseBranch:   project.Output.BaseBranch,
		Labels:       project.Output.PRLabels,
	}, log)

	p := pipeline.New(pipeline.Deps{
		Reviewer:   review.New(model, httpClient, log),
		Generator:  generate.New(model, cfg.WorkDir, log),
		Git:        git,
		Reconciler: recon,
		Log:        log,
	})
	return &env{cfg: cfg, project: project, log: log, git: git, pipeline: p}, nil
}

// setup is the common prologue of every pipeline command.
func setup(cmd *cobra.Command) (*env, error) {
	cfg, project, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	return build(cmd.Context(), cfg, project)
}

func requirePreview(cfg intm.Config) error {
	if cfg.PreviewURL == "" {
		return errors.New("a preview URL is required (PREVIEW_URL or --preview-url)")
	}
	if cfg.SourceRef == "" {
		return errors.New("a source revision is required (GITHUB_SHA or --ref)")
	}
	return nil
}

// applyOptions merges project defaults with --multi-pass/--max-passes.
func applyOptions(cmd *cobra.Command, project intm.ProjectConfig) pipeline.ApplyOptions {
	opts := pipeline.ApplyOptions{
		MultiPass: project.Apply.MultiPass,
		MaxPasses: project.Apply.MaxPassesPerTask,
	}
	if f := cmd.Flags().Lookup("multi-pass"); f != nil && f.Changed {
		opts.MultiPass, _ = cmd.Flags().GetBool("multi-pass")
	}
	if f := cmd.Flags().Lookup("max-passes"); f != nil && f.Changed {
		opts.MaxPasses, _ = cmd.Flags().GetInt("max-passes")
	}
	return opts
}

func addApplyFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("multi-pass", false, "decompose the instruction into tasks and apply them one at a time")
	cmd.Flags().Int("max-passes", intm.DefaultMaxPassesPerTask, "refinement passes per task in multi-pass mode")
}

func printOutcome(cmd *cobra.Command, out pipeline.Outcome) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "status: %s\n", out.Status)
	if out.Verdict != nil {
		fmt.Fprintf(w, "score: %g\n", out.Verdict.Score)
	}
	if out.Reason != "" {
		fmt.Fprintf(w, "reason: %s\n", out.Reason)
	}
	if out.Via != "" {
		fmt.Fprintf(w, "applied via: %s (%d files)\n", out.Via, len(out.Paths))
	}
	if out.PR != nil {
		fmt.Fprintf(w, "pull request: %s\n", out.PR.HTMLURL)
	}
	if out.Issue != nil {
		fmt.Fprintf(w, "issue: %s\n", out.Issue.HTMLURL)
	}
}
