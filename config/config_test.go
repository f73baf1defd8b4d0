package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/mcp"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Model.Provider = ai.ProviderAnthropic
	cfg.Model.Name = "claude-sonnet-4-5"
	return cfg
}

func noEnv(string) (string, bool) { return "", false }

func envMap(vals map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vals[key]
		return v, ok
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"provider", func(c *Config) { c.Model.Provider = "mistral" }, "model.provider"},
		{"model name", func(c *Config) { c.Model.Name = "" }, "model.name"},
		{"temperature", func(c *Config) { c.Model.Temperature = 3 }, "model.temperature"},
		{"retries", func(c *Config) { c.Model.Retries = -1 }, "model.retries"},
		{"policy", func(c *Config) { c.Approval.Policy = "yolo" }, "approval.policy"},
		{"confirm default", func(c *Config) { c.Approval.ConfirmDefault = ai.DecisionExplain }, "approval.confirm_default"},
		{"max turns", func(c *Config) { c.Agent.MaxTurns = 0 }, "agent.max_turns"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"mcp server", func(c *Config) {
			c.MCP.Servers = []mcp.ServerConfig{{Name: "fs", Transport: mcp.TransportStdio}}
		}, "mcp.servers"},
		{"duplicate mcp server", func(c *Config) {
			s := mcp.ServerConfig{Name: "fs", Transport: mcp.TransportStdio, Command: "fs-server"}
			c.MCP.Servers = []mcp.ServerConfig{s, s}
		}, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMerge(t *testing.T) {
	cfg := validConfig()
	cfg.Approval.ExemptCommands = []string{"ls *"}

	cfg.Merge(&Config{
		Model:    ModelConfig{Name: "gpt-5.1", Provider: ai.ProviderOpenAI},
		Approval: ApprovalConfig{ExemptCommands: []string{"go test *"}},
		Agent:    AgentConfig{MaxTurns: 10},
	})

	assert.Equal(t, "gpt-5.1", cfg.Model.Name)
	assert.Equal(t, ai.ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, []string{"go test *"}, cfg.Approval.ExemptCommands)
	assert.Equal(t, 10, cfg.Agent.MaxTurns)
	assert.Equal(t, ai.PolicySuggest, cfg.Approval.Policy)
	assert.Equal(t, 5*time.Minute, cfg.Model.Timeout)

	cfg.Merge(nil)
	assert.Equal(t, "gpt-5.1", cfg.Model.Name)
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig()
	cfg.Keys.Anthropic = "secret"
	cfg.MCP.Servers = []mcp.ServerConfig{{Name: "docs", Transport: mcp.TransportHTTP, URL: "http://localhost:9000/mcp"}}
	require.NoError(t, cfg.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), "5m0s")

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Model, loaded.Model)
	assert.Equal(t, cfg.MCP.Servers, loaded.MCP.Servers)
	assert.Empty(t, loaded.Keys.Anthropic)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "model: [")
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		l := NewLoader(nil, WithHomeDir(t.TempDir()), WithWorkdir(t.TempDir()), WithLookupEnv(noEnv))
		cfg, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, ai.ProviderAnthropic, cfg.Model.Provider)
		assert.Equal(t, "claude-sonnet-4-5", cfg.Model.Name)
		assert.Equal(t, ai.PolicySuggest, cfg.Approval.Policy)
		assert.Equal(t, 30, cfg.Agent.MaxTurns)
	})

	t.Run("layers", func(t *testing.T) {
		home := t.TempDir()
		project := t.TempDir()
		work := filepath.Join(project, "sub", "dir")
		require.NoError(t, os.MkdirAll(work, 0o755))

		writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
model:
  provider: openai
  max_tokens: 1000
agent:
  max_turns: 12
`)
		writeFile(t, filepath.Join(project, ProjectConfigFile), `
approval:
  policy: auto_edit
  exempt_commands: ["go test *"]
mcp:
  servers:
    - name: fs
      transport: stdio
      command: fs-server
      args: ["--root", "."]
      timeout: 10s
`)

		l := NewLoader(nil, WithHomeDir(home), WithWorkdir(work), WithLookupEnv(envMap(map[string]string{
			EnvMaxTurns:  "20",
			EnvOpenAIKey: "sk-test",
		})))
		cfg, err := l.Load()
		require.NoError(t, err)

		assert.Equal(t, ai.ProviderOpenAI, cfg.Model.Provider)
		assert.Equal(t, "gpt-5.1", cfg.Model.Name)
		assert.Equal(t, 1000, cfg.Model.MaxTokens)
		assert.Equal(t, ai.PolicyAutoEdit, cfg.Approval.Policy)
		assert.Equal(t, []string{"go test *"}, cfg.Approval.ExemptCommands)
		assert.Equal(t, 20, cfg.Agent.MaxTurns)
		require.Len(t, cfg.MCP.Servers, 1)
		assert.Equal(t, 10*time.Second, cfg.MCP.Servers[0].Timeout)
		assert.Equal(t, "sk-test", cfg.Keys.For(ai.ProviderOpenAI))
	})

	t.Run("model name implies provider", func(t *testing.T) {
		l := NewLoader(nil, WithHomeDir(t.TempDir()), WithWorkdir(t.TempDir()), WithLookupEnv(envMap(map[string]string{
			EnvModel: "gemini-2.5-pro",
		})))
		cfg, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, ai.ProviderGoogle, cfg.Model.Provider)
	})

	t.Run("dotenv fills unset variables", func(t *testing.T) {
		work := t.TempDir()
		writeFile(t, filepath.Join(work, EnvFile), "TANDEM_APPROVAL_POLICY=full-auto\nGEMINI_API_KEY=g-key\nTANDEM_LOG_LEVEL=debug\n")

		l := NewLoader(nil, WithHomeDir(t.TempDir()), WithWorkdir(work), WithLookupEnv(envMap(map[string]string{
			EnvLogLevel: "warn",
		})))
		cfg, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, ai.PolicyFullAuto, cfg.Approval.Policy)
		assert.Equal(t, "g-key", cfg.Keys.Google)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("invalid env", func(t *testing.T) {
		l := NewLoader(nil, WithHomeDir(t.TempDir()), WithWorkdir(t.TempDir()), WithLookupEnv(envMap(map[string]string{
			EnvMaxTurns: "many",
		})))
		_, err := l.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvMaxTurns)
	})

	t.Run("broken project file", func(t *testing.T) {
		work := t.TempDir()
		writeFile(t, filepath.Join(work, ProjectConfigFile), "agent: {max_turns: [")
		l := NewLoader(nil, WithHomeDir(t.TempDir()), WithWorkdir(work), WithLookupEnv(noEnv))
		_, err := l.Load()
		assert.Error(t, err)
	})
}

func TestEnsureUserConfig(t *testing.T) {
	home := t.TempDir()
	l := NewLoader(nil, WithHomeDir(home), WithWorkdir(t.TempDir()), WithLookupEnv(noEnv))

	path, err := l.EnsureUserConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, UserConfigDir, UserConfigFile), path)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model.Name)

	again, err := l.EnsureUserConfig()
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warning", "error"} {
		_, err := ParseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
