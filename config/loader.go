package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/model"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "tandem.yaml"
	// UserConfigDir is the directory for user-level config, relative to home.
	UserConfigDir = ".config/tandem"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
	// EnvFile is loaded from the working directory when present.
	EnvFile = ".env"
)

// Environment variables read by the loader.
const (
	EnvProvider       = "TANDEM_PROVIDER"
	EnvModel          = "TANDEM_MODEL"
	EnvApprovalPolicy = "TANDEM_APPROVAL_POLICY"
	EnvMaxTurns       = "TANDEM_MAX_TURNS"
	EnvLogLevel       = "TANDEM_LOG_LEVEL"
	EnvLogFormat      = "TANDEM_LOG_FORMAT"
	EnvAnthropicKey   = "ANTHROPIC_API_KEY"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvGoogleKey      = "GOOGLE_API_KEY"
	EnvGeminiKey      = "GEMINI_API_KEY"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger  *slog.Logger
	homeDir string
	workdir string
	lookup  func(key string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHomeDir overrides the directory the user config is resolved against.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// WithWorkdir sets the directory the project config search starts from.
func WithWorkdir(dir string) LoaderOption {
	return func(l *Loader) {
		l.workdir = dir
	}
}

// WithLookupEnv replaces os.LookupEnv for the environment layer.
func WithLookupEnv(fn func(key string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.lookup = fn
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = ai.NopLogger()
	}
	l := &Loader{logger: logger, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	if l.homeDir == "" {
		l.homeDir, _ = os.UserHomeDir()
	}
	if l.workdir == "" {
		l.workdir, _ = os.Getwd()
	}
	return l
}

// Load loads configuration with layered precedence:
//  1. Default config
//  2. User config (~/.config/tandem/config.yaml)
//  3. Project config (tandem.yaml in the working directory or a parent)
//  4. Environment variables, with .env filling in unset ones
//
// The model name and provider are then resolved against each other and
// the result is validated.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := l.UserConfigPath(); path != "" {
		if userCfg, err := LoadFromFile(path); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", path))
			cfg.Merge(userCfg)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if path := l.FindProjectConfig(); path != "" {
		projectCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", path))
		cfg.Merge(projectCfg)
	} else {
		l.logger.Debug("No project config found")
	}

	envCfg, err := l.fromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Merge(envCfg)

	resolveModel(cfg)
	if p, err := ai.ParseApprovalPolicy(string(cfg.Approval.Policy)); err == nil {
		cfg.Approval.Policy = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't
// exist and returns its path.
func (l *Loader) EnsureUserConfig() (string, error) {
	path := l.UserConfigPath()
	if path == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	cfg := DefaultConfig()
	resolveModel(cfg)
	if err := cfg.SaveToFile(path); err != nil {
		return "", err
	}
	l.logger.Info("Created default user config", slog.String("path", path))
	return path, nil
}

// UserConfigPath returns the path to the user config file.
func (l *Loader) UserConfigPath() string {
	if l.homeDir == "" {
		return ""
	}
	return filepath.Join(l.homeDir, UserConfigDir, UserConfigFile)
}

// FindProjectConfig searches for tandem.yaml in the working directory and
// its parents.
func (l *Loader) FindProjectConfig() string {
	if l.workdir == "" {
		return ""
	}
	dir := l.workdir
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// fromEnv builds the environment layer. Process variables win over .env.
func (l *Loader) fromEnv() (*Config, error) {
	dotenv := map[string]string{}
	if l.workdir != "" {
		path := filepath.Join(l.workdir, EnvFile)
		if vals, err := godotenv.Read(path); err == nil {
			l.logger.Debug("Loaded env file", slog.String("path", path))
			dotenv = vals
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to read env file", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	get := func(key string) string {
		if v, ok := l.lookup(key); ok {
			return v
		}
		return dotenv[key]
	}

	cfg := &Config{}
	cfg.Model.Provider = ai.Provider(get(EnvProvider))
	cfg.Model.Name = get(EnvModel)
	if v := get(EnvApprovalPolicy); v != "" {
		p, err := ai.ParseApprovalPolicy(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvApprovalPolicy, err)
		}
		cfg.Approval.Policy = p
	}
	if v := get(EnvMaxTurns); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvMaxTurns, err)
		}
		cfg.Agent.MaxTurns = n
	}
	cfg.Log.Level = get(EnvLogLevel)
	cfg.Log.Format = get(EnvLogFormat)

	cfg.Keys.Anthropic = get(EnvAnthropicKey)
	cfg.Keys.OpenAI = get(EnvOpenAIKey)
	cfg.Keys.Google = get(EnvGoogleKey)
	if cfg.Keys.Google == "" {
		cfg.Keys.Google = get(EnvGeminiKey)
	}
	return cfg, nil
}

// resolveModel fills in whichever of provider and model name is missing.
// A known model name implies its provider; with neither set the Anthropic
// default model is used.
func resolveModel(cfg *Config) {
	m := &cfg.Model
	if m.Name != "" {
		if m.Provider == "" {
			if p, ok := model.ProviderFor(m.Name); ok {
				m.Provider = p
			}
		}
		return
	}
	if m.Provider == "" {
		m.Provider = ai.ProviderAnthropic
	}
	if info, ok := model.Default(m.Provider); ok {
		m.Name = info.ID
	}
}
