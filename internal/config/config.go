// Package config loads agent configuration from the environment, with an
// optional YAML file supplying defaults. Environment variables always win.
// Credentials are accepted from the environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredential reports a required credential that is absent. Jobs
// fail on it before any repository mutation.
var ErrMissingCredential = errors.New("missing required credential")

// Defaults.
const (
	DefaultPort           = 3000
	DefaultModel          = "claude-sonnet-4-5-20250929"
	DefaultBackendTimeout = 300 * time.Second
	DefaultGitTimeout     = 120 * time.Second
)

// Config holds everything a job needs. It is passed explicitly into each
// job's context rather than read from process globals, so tests can build
// isolated instances.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// GitHubUsername is the owner namespace for all target repositories.
	GitHubUsername string

	// AnthropicAPIKey authenticates the generative backend. Env only.
	AnthropicAPIKey string

	// GitHubToken authenticates git pushes. Env only.
	GitHubToken string

	// WorkspaceDir is where working copies are materialized.
	WorkspaceDir string

	// Model overrides the default backend model.
	Model string

	// BackendTimeout bounds the generative call.
	BackendTimeout time.Duration

	// GitTimeout bounds each git subprocess invocation.
	GitTimeout time.Duration

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string
}

// fileConfig is the YAML schema. Timeout values are kept as raw scalars
// and routed through parseTimeout, so the file accepts exactly the same
// forms as the environment: a bare number of seconds or a Go duration
// string. Decoding them straight into time.Duration would silently read
// a bare number as nanoseconds.
type fileConfig struct {
	Port           int    `yaml:"port"`
	GitHubUsername string `yaml:"github_username"`
	WorkspaceDir   string `yaml:"workspace_dir"`
	Model          string `yaml:"model"`
	BackendTimeout string `yaml:"backend_timeout"`
	GitTimeout     string `yaml:"git_timeout"`
	LogLevel       string `yaml:"log_level"`
}

// Load builds a Config from defaults, then the YAML file at path (if path
// is non-empty and the file exists), then environment variables. Load does
// not validate credentials; call Validate before running jobs.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:           DefaultPort,
		Model:          DefaultModel,
		BackendTimeout: DefaultBackendTimeout,
		GitTimeout:     DefaultGitTimeout,
		LogLevel:       "info",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			if err := cfg.applyFile(&fc); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Optional file; fall through to env.
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.WorkspaceDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		cfg.WorkspaceDir = filepath.Join(home, ".forgehand", "repos")
	}

	return cfg, nil
}

// applyFile overlays set fields from the YAML file onto c.
func (c *Config) applyFile(fc *fileConfig) error {
	if fc.Port != 0 {
		if fc.Port < 0 || fc.Port > 65535 {
			return fmt.Errorf("invalid port %d", fc.Port)
		}
		c.Port = fc.Port
	}
	if fc.GitHubUsername != "" {
		c.GitHubUsername = fc.GitHubUsername
	}
	if fc.WorkspaceDir != "" {
		c.WorkspaceDir = fc.WorkspaceDir
	}
	if fc.Model != "" {
		c.Model = fc.Model
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.BackendTimeout != "" {
		d, err := parseTimeout(fc.BackendTimeout)
		if err != nil {
			return fmt.Errorf("invalid backend_timeout %q: %w", fc.BackendTimeout, err)
		}
		c.BackendTimeout = d
	}
	if fc.GitTimeout != "" {
		d, err := parseTimeout(fc.GitTimeout)
		if err != nil {
			return fmt.Errorf("invalid git_timeout %q: %w", fc.GitTimeout, err)
		}
		c.GitTimeout = d
	}
	return nil
}

// applyEnv overlays recognized environment variables onto cfg.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Port = port
	}
	if v := os.Getenv("GITHUB_USERNAME"); v != "" {
		c.GitHubUsername = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.AnthropicAPIKey = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHubToken = v
	}
	if v := os.Getenv("FORGEHAND_WORKSPACE"); v != "" {
		c.WorkspaceDir = v
	}
	if v := os.Getenv("FORGEHAND_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("FORGEHAND_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("FORGEHAND_BACKEND_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("invalid FORGEHAND_BACKEND_TIMEOUT %q: %w", v, err)
		}
		c.BackendTimeout = d
	}
	if v := os.Getenv("FORGEHAND_GIT_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("invalid FORGEHAND_GIT_TIMEOUT %q: %w", v, err)
		}
		c.GitTimeout = d
	}
	return nil
}

// parseTimeout accepts either a bare number of seconds or a Go duration
// string.
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

// Validate checks that every credential a job depends on is present.
func (c *Config) Validate() error {
	if c.GitHubUsername == "" {
		return fmt.Errorf("GITHUB_USERNAME is not set: %w", ErrMissingCredential)
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set: %w", ErrMissingCredential)
	}
	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is not set: %w", ErrMissingCredential)
	}
	return nil
}

// RemoteURL builds the authenticated remote URL for a repository in the
// configured owner namespace. The result embeds the write token and must
// be redacted before logging.
func (c *Config) RemoteURL(repo string) string {
	return fmt.Sprintf("https://%s:%s@github.com/%s/%s.git",
		c.GitHubUsername, c.GitHubToken, c.GitHubUsername, repo)
}
