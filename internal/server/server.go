// Package server triggers luce runs from GitHub deployment webhooks.
package server

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/go-github/v62/github"
	"github.com/rs/zerolog"

	intm "github.com/scottymoll/luce/internal"
	"github.com/scottymoll/luce/internal/pipeline"
)

// Runner is the pipeline surface the server drives.
type Runner interface {
	ReviewOnly(ctx context.Context, run intm.RunContext) (pipeline.Outcome, error)
	ReviewAndApply(ctx context.Context, run intm.RunContext, opts pipeline.ApplyOptions) (pipeline.Outcome, error)
}

// Options configure what a webhook run does.
type Options struct {
	ReviewOnly bool
	Apply      pipeline.ApplyOptions
	Timeout    time.Duration
}

type Server struct {
	app     *fiber.App
	runner  Runner
	cfg     intm.Config
	project intm.ProjectConfig
	opts    Options
	log     zerolog.Logger

	// one run owns the working tree at a time
	busy     sync.Mutex
	inflight sync.WaitGroup
}

func New(runner Runner, cfg intm.Config, project intm.ProjectConfig, opts Options, log zerolog.Logger) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(cfg.HTTPTimeoutMinutes) * time.Minute * 3
	}
	s := &Server{runner: runner, cfg: cfg, project: project, opts: opts, log: log}
	s.app = fiber.New(fiber.Config{
		AppName:               "luce",
		DisableStartupMessage: true,
	})
	s.app.Use(s.loggingMiddleware)
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	s.app.Post("/webhook", s.webhook)
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	s.log.Info().
		Str("addr", s.cfg.ListenAddr).
		Bool("review_only", s.opts.ReviewOnly).
		Msg("starting webhook server")
	return s.app.Listen(s.cfg.ListenAddr)
}

// Shutdown stops accepting requests and waits for an in-flight run.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.inflight.Wait()
	return err
}

// Wait blocks until the background run, if any, has finished.
func (s *Server) Wait() { s.inflight.Wait() }

func (s *Server) loggingMiddleware(c *fiber.Ctx) error {
	s.log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg("incoming request")
	return c.Next()
}

func (s *Server) webhook(c *fiber.Ctx) error {
	event := c.Get("X-GitHub-Event")
	body := append([]byte(nil), c.Body()...)

	payload := body
	if s.cfg.WebhookSecret != "" {
		var err error
		payload, err = github.ValidatePayloadFromBody(c.Get(fiber.HeaderContentType), bytes.NewReader(body), c.Get(github.SHA256SignatureHeader), []byte(s.cfg.WebhookSecret))
		if err != nil {
			s.log.Warn().Err(err).Msg("webhook signature rejected")
			return fiber.NewError(fiber.StatusUnauthorized, "invalid signature")
		}
	}

	if event == "ping" {
		return c.JSON(fiber.Map{"status": "pong"})
	}
	parsed, err := github.ParseWebHook(event, payload)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ev, ok := parsed.(*github.DeploymentStatusEvent)
	if !ok {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "ignored", "reason": "unsupported event " + event})
	}
	if state := ev.GetDeploymentStatus().GetState(); state != "success" {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "ignored", "reason": "deployment state " + state})
	}

	preview := ev.GetDeploymentStatus().GetEnvironmentURL()
	if preview == "" {
		preview = ev.GetDeploymentStatus().GetTargetURL()
	}
	sha := ev.GetDeployment().GetSHA()
	if preview == "" || sha == "" {
		return fiber.NewError(fiber.StatusBadRequest, "deployment status lacks url or sha")
	}

	if !s.busy.TryLock() {
		return fiber.NewError(fiber.StatusConflict, "a run is already in progress")
	}

	// GitHub gives up on a delivery after ten seconds, so the run outlives
	// the request.
	run := s.newRun(sha, preview)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.busy.Unlock()
		s.execute(run)
	}()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted", "run_id": run.ID})
}

func (s *Server) newRun(sha, preview string) intm.RunContext {
	flow := "webhook-apply"
	if s.opts.ReviewOnly {
		flow = "webhook-review"
	}
	run := intm.NewRunContext(s.cfg, s.project, flow)
	run.SourceRef = sha
	run.PreviewURL = preview
	return run
}

func (s *Server) execute(run intm.RunContext) {
	log := intm.RunLogger(s.log, run)
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	log.Info().Str("preview", run.PreviewURL).Msg("deployment succeeded, starting run")
	var (
		out pipeline.Outcome
		err error
	)
	if s.opts.ReviewOnly {
		out, err = s.runner.ReviewOnly(ctx, run)
	} else {
		out, err = s.runner.ReviewAndApply(ctx, run, s.opts.Apply)
	}
	if err != nil {
		ev := log.Error().Err(err)
		if errors.Is(err, context.DeadlineExceeded) {
			ev = ev.Dur("timeout", s.opts.Timeout)
		}
		ev.Msg("webhook run failed")
		return
	}
	ev := log.Info().Str("status", string(out.Status)).Str("reason", out.Reason)
	if out.PR != nil {
		ev = ev.Str("pr", out.PR.HTMLURL)
	}
	if out.Issue != nil {
		ev = ev.Str("issue", out.Issue.HTMLURL)
	}
	ev.Msg("webhook run finished")
}
