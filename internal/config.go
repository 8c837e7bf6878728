package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRubricScore      = 18
	DefaultMaxPageChars     = 12000
	DefaultBranchPrefix     = "luce/delta-"
	DefaultBaseBranch       = "main"
	DefaultPRTitle          = "Luce auto-delta"
	DefaultMaxPassesPerTask = 2
	DefaultStateDir         = ".luce"
	DefaultModel            = "gpt-4o-mini"
)

// LoadEnv reads an optional .env file and then the process environment.
func LoadEnv() Config {
	_ = godotenv.Load()
	return loadConfigFromEnv()
}

func loadConfigFromEnv() Config {
	httpTimeoutMinutes := 5
	if timeoutStr := os.Getenv("HTTP_TIMEOUT_MINUTES"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil && timeout > 0 {
			httpTimeoutMinutes = timeout
		}
	}

	return Config{
		ListenAddr:         envOr("LISTEN_ADDR", ":8085"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		HTTPTimeoutMinutes: httpTimeoutMinutes,
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:              envOr("LUCE_MODEL", DefaultModel),
		GitHubToken:        os.Getenv("GITHUB_TOKEN"),
		GitHubAPIURL:       os.Getenv("GITHUB_API_URL"),
		Repository:         os.Getenv("GITHUB_REPOSITORY"),
		SourceRef:          os.Getenv("GITHUB_SHA"),
		PreviewURL:         os.Getenv("PREVIEW_URL"),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		ConfigPath:         envOr("LUCE_CONFIG", "luce.config.json"),
		WorkDir:            envOr("LUCE_WORKDIR", "."),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// RepoParts splits Repository into owner and name.
func (c Config) RepoParts() (string, string, error) {
	owner, name, ok := strings.Cut(c.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("GITHUB_REPOSITORY must be owner/name, got %q", c.Repository)
	}
	return owner, name, nil
}

// LoadProjectConfig reads luce.config.json (or any YAML superset of it).
// A missing file yields the defaults.
func LoadProjectConfig(path string) (ProjectConfig, error) {
	var cfg ProjectConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *ProjectConfig) applyDefaults() {
	if c.Targets.RubricScore <= 0 {
		c.Targets.RubricScore = DefaultRubricScore
	}
	if len(c.Preview.Routes) == 0 {
		c.Preview.Routes = []string{"/"}
	}
	if c.Preview.MaxPageChars <= 0 {
		c.Preview.MaxPageChars = DefaultMaxPageChars
	}
	if c.Review.RubricPath == "" {
		c.Review.RubricPath = filepath.Join("luce", "prompts", "rubric.md")
	}
	if len(c.Review.IssueLabels) == 0 {
		c.Review.IssueLabels = []string{"luce", "auto-review"}
	}
	if c.Output.DeltaBranchPrefix == "" {
		c.Output.DeltaBranchPrefix = DefaultBranchPrefix
	}
	if c.Output.BaseBranch == "" {
		c.Output.BaseBranch = DefaultBaseBranch
	}
	if c.Output.PRTitle == "" {
		c.Output.PRTitle = DefaultPRTitle
	}
	if c.Output.PRLabels == nil {
		c.Output.PRLabels = []string{"luce-auto"}
	}
	if c.Apply.MaxPassesPerTask <= 0 {
		c.Apply.MaxPassesPerTask = DefaultMaxPassesPerTask
	}
	if c.Bot.Name == "" {
		c.Bot.Name = "luce-bot"
	}
	if c.Bot.Email == "" {
		c.Bot.Email = "luce-bot@users.noreply.github.com"
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
}

// DefaultProjectConfig returns the configuration used when no file exists.
func DefaultProjectConfig() ProjectConfig {
	var cfg ProjectConfig
	cfg.applyDefaults()
	return cfg
}
