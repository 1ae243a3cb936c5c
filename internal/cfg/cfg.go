package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
)

// Text generation backends selectable with -backend.
const (
	BackendOllama  = "ollama"
	BackendClaude  = "claude"
	BackendOpenAI  = "openai"
	BackendCommand = "command"
)

// Config adds triaged-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	Backend               string
	BackendTimeoutSeconds int
	OllamaURL             string
	OllamaModel           string
	ClaudeAPIKey          string
	ClaudeModel           string
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIURL             string
	BackendCommand        string

	MaxTurns       int
	AlertThreshold int

	AlertFile       string
	DatabaseURL     string
	AlertForwardURL string
	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")

	fs.StringVar(&c.Backend, "backend", BackendOllama, "text generation backend (ollama|claude|openai|command)")
	fs.IntVar(&c.BackendTimeoutSeconds, "backend-timeout-seconds", 60, "seconds allowed for one backend call (1..600)")
	fs.StringVar(&c.OllamaURL, "ollama-url", "http://localhost:11434", "Ollama server URL")
	fs.StringVar(&c.OllamaModel, "ollama-model", "llama3.2", "Ollama model to use")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude backend")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.OpenAIAPIKey, "openai-api-key", "", "API key for the OpenAI backend")
	fs.StringVar(&c.OpenAIModel, "openai-model", "gpt-4o-mini", "OpenAI model to use")
	fs.StringVar(&c.OpenAIURL, "openai-url", "", "base URL of an OpenAI-compatible server (empty = api.openai.com)")
	fs.StringVar(&c.BackendCommand, "backend-command", "ollama run llama3.2", "command line run per prompt by the command backend, prompt on stdin")

	fs.IntVar(&c.MaxTurns, "max-turns", 5, "assistant questions before a verdict is forced (1..20)")
	fs.IntVar(&c.AlertThreshold, "alert-threshold", 60, "emergency index at or above which a verdict is queued (0..100)")

	fs.StringVar(&c.AlertFile, "alert-file", "critical_alerts.json", "JSON file holding the alert queue (empty = in-memory)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the alert queue (takes precedence over alert-file)")
	fs.StringVar(&c.AlertForwardURL, "alert-forward-url", "", "base URL of a remote triaged alert service (empty = in-process queue)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for high and critical alerts")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.BackendTimeoutSeconds <= 0 || c.BackendTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid BACKEND_TIMEOUT_SECONDS %d (must be 1..600)", c.BackendTimeoutSeconds))
	}
	if c.MaxTurns <= 0 || c.MaxTurns > 20 {
		errs = append(errs, fmt.Errorf("invalid MAX_TURNS %d (must be 1..20)", c.MaxTurns))
	}
	if c.AlertThreshold < 0 || c.AlertThreshold > 100 {
		errs = append(errs, fmt.Errorf("invalid ALERT_THRESHOLD %d (must be 0..100)", c.AlertThreshold))
	}

	errs = append(errs, c.validateBackend()...)

	if c.AlertForwardURL != "" {
		if err := checkHTTPURL(c.AlertForwardURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid ALERT_FORWARD_URL: %w", err))
		}
	}
	if c.OpenAIURL != "" {
		if err := checkHTTPURL(c.OpenAIURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid OPENAI_URL: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// validateBackend checks only the settings the selected backend reads.
func (c *Config) validateBackend() []error {
	var errs []error
	switch c.Backend {
	case BackendOllama:
		if err := checkHTTPURL(c.OllamaURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid OLLAMA_URL: %w", err))
		}
		if c.OllamaModel == "" {
			errs = append(errs, errors.New("OLLAMA_MODEL is required for the ollama backend"))
		}
	case BackendClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required for the claude backend"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required for the claude backend"))
		}
	case BackendOpenAI:
		// compatible local servers usually run without a key
		if c.OpenAIAPIKey == "" && c.OpenAIURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai backend unless OPENAI_URL is set"))
		}
		if c.OpenAIModel == "" {
			errs = append(errs, errors.New("OPENAI_MODEL is required for the openai backend"))
		}
	case BackendCommand:
		if strings.TrimSpace(c.BackendCommand) == "" {
			errs = append(errs, errors.New("BACKEND_COMMAND is required for the command backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid BACKEND %q (must be one of %s, %s, %s, %s)",
			c.Backend, BackendOllama, BackendClaude, BackendOpenAI, BackendCommand))
	}
	return errs
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}
