// Package config provides configuration loading for tandem.
//
// Configuration is layered: built-in defaults, then the user file
// (~/.config/tandem/config.yaml), then the project file (tandem.yaml in the
// working directory or any parent), then environment variables, optionally
// read from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/mcp"
)

// Config represents the complete tandem configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Approval ApprovalConfig `yaml:"approval"`
	Agent    AgentConfig    `yaml:"agent"`
	MCP      MCPConfig      `yaml:"mcp"`
	Log      LogConfig      `yaml:"log"`

	// Keys are read from the environment only and never written to disk.
	Keys Keys `yaml:"-"`
}

// ModelConfig configures the model caller.
type ModelConfig struct {
	// Provider is anthropic, openai or google. Inferred from Name when empty.
	Provider ai.Provider `yaml:"provider"`
	// Name is the model ID. Defaults to the provider's default model.
	Name        string  `yaml:"name"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// Timeout bounds a single model call, retries included.
	Timeout time.Duration `yaml:"timeout"`
	// Retries is the number of extra attempts for transient failures.
	Retries int `yaml:"retries"`
}

// ApprovalConfig configures the tool execution gate.
type ApprovalConfig struct {
	Policy ai.ApprovalPolicy `yaml:"policy"`
	// WritableRoots are directories patches may touch without asking under
	// auto-edit. The working directory is always writable.
	WritableRoots []string `yaml:"writable_roots"`
	// ExemptCommands are glob patterns for commands that never need
	// confirmation, e.g. "go test *".
	ExemptCommands []string `yaml:"exempt_commands"`
	// ConfirmTimeout bounds each confirmation prompt. Zero waits forever.
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	// ConfirmDefault is the decision applied when a confirmation times out.
	ConfirmDefault ai.ReviewDecision `yaml:"confirm_default"`
	// Sandbox is the wrapper argv prepended to sandboxed commands, e.g.
	// ["bwrap", "--ro-bind", "/", "/", "--"]. Empty runs them on the host.
	Sandbox []string `yaml:"sandbox"`
}

// AgentConfig configures the turn loop.
type AgentConfig struct {
	MaxTurns     int    `yaml:"max_turns"`
	Instructions string `yaml:"instructions"`
	// SystemPrompt replaces the built-in system prompt when set.
	SystemPrompt string `yaml:"system_prompt"`
	// SessionDir is where transcripts are saved. Empty disables saving.
	SessionDir string `yaml:"session_dir"`
}

// MCPConfig lists the external tool providers.
type MCPConfig struct {
	Servers []mcp.ServerConfig `yaml:"servers"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Keys holds provider API keys.
type Keys struct {
	Anthropic string
	OpenAI    string
	Google    string
}

// For returns the key for provider p.
func (k Keys) For(p ai.Provider) string {
	switch p {
	case ai.ProviderAnthropic:
		return k.Anthropic
	case ai.ProviderOpenAI:
		return k.OpenAI
	case ai.ProviderGoogle:
		return k.Google
	}
	return ""
}

// DefaultConfig returns a Config with sensible defaults. The model is left
// unset; the loader resolves it once every layer has been applied.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			MaxTokens: 8192,
			Timeout:   5 * time.Minute,
			Retries:   4,
		},
		Approval: ApprovalConfig{
			Policy:         ai.PolicySuggest,
			ConfirmTimeout: 5 * time.Minute,
			ConfirmDefault: ai.DecisionDeny,
		},
		Agent: AgentConfig{
			MaxTurns: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !c.Model.Provider.Valid() {
		return fmt.Errorf("model.provider %q is not one of anthropic, openai, google", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("model.max_tokens must not be negative")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0 and 2")
	}
	if c.Model.Timeout < 0 {
		return fmt.Errorf("model.timeout must not be negative")
	}
	if c.Model.Retries < 0 {
		return fmt.Errorf("model.retries must not be negative")
	}

	if !c.Approval.Policy.Valid() {
		return fmt.Errorf("approval.policy %q is not one of suggest, auto-edit, full-auto", c.Approval.Policy)
	}
	switch c.Approval.ConfirmDefault {
	case ai.DecisionApprove, ai.DecisionDeny:
	default:
		return fmt.Errorf("approval.confirm_default must be approve or deny")
	}
	if c.Approval.ConfirmTimeout < 0 {
		return fmt.Errorf("approval.confirm_timeout must not be negative")
	}

	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be at least 1")
	}

	seen := make(map[string]bool, len(c.MCP.Servers))
	for _, s := range c.MCP.Servers {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("mcp.servers: %w", err)
		}
		if seen[s.Name] {
			return fmt.Errorf("mcp.servers: duplicate name %q", s.Name)
		}
		seen[s.Name] = true
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
}

// LoadFromFile loads a partial configuration from a YAML file. Fields the
// file does not set stay zero so the result can be merged onto defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one. Non-zero values in other take
// precedence; lists replace rather than append.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Model
	if other.Model.Provider != "" {
		c.Model.Provider = other.Model.Provider
	}
	if other.Model.Name != "" {
		c.Model.Name = other.Model.Name
	}
	if other.Model.MaxTokens != 0 {
		c.Model.MaxTokens = other.Model.MaxTokens
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}
	if other.Model.Retries != 0 {
		c.Model.Retries = other.Model.Retries
	}

	// Approval
	if other.Approval.Policy != "" {
		c.Approval.Policy = other.Approval.Policy
	}
	if len(other.Approval.WritableRoots) > 0 {
		c.Approval.WritableRoots = other.Approval.WritableRoots
	}
	if len(other.Approval.ExemptCommands) > 0 {
		c.Approval.ExemptCommands = other.Approval.ExemptCommands
	}
	if other.Approval.ConfirmTimeout != 0 {
		c.Approval.ConfirmTimeout = other.Approval.ConfirmTimeout
	}
	if other.Approval.ConfirmDefault != "" {
		c.Approval.ConfirmDefault = other.Approval.ConfirmDefault
	}
	if len(other.Approval.Sandbox) > 0 {
		c.Approval.Sandbox = other.Approval.Sandbox
	}

	// Agent
	if other.Agent.MaxTurns != 0 {
		c.Agent.MaxTurns = other.Agent.MaxTurns
	}
	if other.Agent.Instructions != "" {
		c.Agent.Instructions = other.Agent.Instructions
	}
	if other.Agent.SystemPrompt != "" {
		c.Agent.SystemPrompt = other.Agent.SystemPrompt
	}
	if other.Agent.SessionDir != "" {
		c.Agent.SessionDir = other.Agent.SessionDir
	}

	// MCP
	if len(other.MCP.Servers) > 0 {
		c.MCP.Servers = other.MCP.Servers
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	// Keys
	if other.Keys.Anthropic != "" {
		c.Keys.Anthropic = other.Keys.Anthropic
	}
	if other.Keys.OpenAI != "" {
		c.Keys.OpenAI = other.Keys.OpenAI
	}
	if other.Keys.Google != "" {
		c.Keys.Google = other.Keys.Google
	}
}
