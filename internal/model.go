package internal

import (
	"time"

	"github.com/google/uuid"
)

// Config is the process-level configuration read from the environment.
type Config struct {
	ListenAddr         string
	LogLevel           string
	HTTPTimeoutMinutes int

	OpenAIKey     string
	OpenAIBaseURL string
	Model         string

	GitHubToken  string
	GitHubAPIURL string
	Repository   string // owner/name
	SourceRef    string
	PreviewURL   string

	WebhookSecret string
	ConfigPath    string
	WorkDir       string
}

// ProjectConfig mirrors luce.config.json.
type ProjectConfig struct {
	Targets  TargetsConfig `yaml:"targets" json:"targets"`
	Preview  PreviewConfig `yaml:"preview" json:"preview"`
	Review   ReviewConfig  `yaml:"review" json:"review"`
	Output   OutputConfig  `yaml:"output" json:"output"`
	Apply    ApplyConfig   `yaml:"apply" json:"apply"`
	Bot      BotConfig     `yaml:"bot" json:"bot"`
	StateDir string        `yaml:"stateDir" json:"stateDir"`
}

type TargetsConfig struct {
	RubricScore float64 `yaml:"rubricScore" json:"rubricScore"`
}

type PreviewConfig struct {
	Routes       []string `yaml:"routes" json:"routes"`
	MaxPageChars int      `yaml:"maxPageChars" json:"maxPageChars"`
}

type ReviewConfig struct {
	RubricPath  string   `yaml:"rubricPath" json:"rubricPath"`
	IssueLabels []string `yaml:"issueLabels" json:"issueLabels"`
}

type OutputConfig struct {
	AllowPaths        []string `yaml:"allowPaths" json:"allowPaths"`
	DeltaBranchPrefix string   `yaml:"deltaBranchPrefix" json:"deltaBranchPrefix"`
	BaseBranch        string   `yaml:"baseBranch" json:"baseBranch"`
	PRTitle           string   `yaml:"prTitle" json:"prTitle"`
	PRLabels          []string `yaml:"prLabels" json:"prLabels"`
}

type ApplyConfig struct {
	MultiPass        bool `yaml:"multiPass" json:"multiPass"`
	MaxPassesPerTask int  `yaml:"maxPassesPerTask" json:"maxPassesPerTask"`
}

type BotConfig struct {
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email" json:"email"`
}

// RunContext carries everything one pipeline run needs. It is built once at
// the entry point and passed down explicitly.
type RunContext struct {
	ID         string
	Flow       string
	SourceRef  string
	PreviewURL string
	WorkDir    string
	StartedAt  time.Time
	Project    ProjectConfig
}

// ReviewVerdict is the structured judgement returned by the reviewer.
type ReviewVerdict struct {
	Score                  float64  `json:"score"`
	Findings               []string `json:"findings"`
	RequiredFixes          []string `json:"requiredFixes"`
	RemediationInstruction string   `json:"remediationInstruction"`
	Stop                   bool     `json:"stop"`
}

// Halts reports whether the pipeline should end without mutating anything.
func (v ReviewVerdict) Halts(target float64) bool {
	return v.Stop || v.Score >= target
}

// InvalidVerdict is substituted when the model reply fails validation.
func InvalidVerdict() ReviewVerdict {
	return ReviewVerdict{
		Score:         0,
		Findings:      []string{"Invalid JSON from model"},
		RequiredFixes: []string{},
	}
}

// EditDirective replaces the whole content of one file.
type EditDirective struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewRunContext stamps a fresh run with an ID.
func NewRunContext(cfg Config, project ProjectConfig, flow string) RunContext {
	return RunContext{
		ID:         uuid.NewString(),
		Flow:       flow,
		SourceRef:  cfg.SourceRef,
		PreviewURL: cfg.PreviewURL,
		WorkDir:    cfg.WorkDir,
		StartedAt:  time.Now().UTC(),
		Project:    project,
	}
}
