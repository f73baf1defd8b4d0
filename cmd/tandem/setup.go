package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/config"
	"github.com/spetersoncode/tandem/hook"
	"github.com/spetersoncode/tandem/internal/localexec"
	"github.com/spetersoncode/tandem/internal/metrics"
	"github.com/spetersoncode/tandem/internal/provider/anthropic"
	"github.com/spetersoncode/tandem/internal/provider/google"
	"github.com/spetersoncode/tandem/internal/provider/openai"
	"github.com/spetersoncode/tandem/internal/retry"
	"github.com/spetersoncode/tandem/internal/store"
	"github.com/spetersoncode/tandem/model"
	"github.com/spetersoncode/tandem/prompt"
	"github.com/spetersoncode/tandem/workflow"
)

// instructionsFile is read from the working directory and appended to the
// configured instructions.
const instructionsFile = "AGENTS.md"

// app holds everything built from configuration for one process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	workdir  string
	metrics  *metrics.Metrics
	sessions *store.SessionStore
}

// newApp loads configuration, applies flag overrides and builds the logger.
func newApp(f *flags, logOut io.Writer) (*app, error) {
	workdir := f.workdir
	if workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		workdir = wd
	}
	workdir, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	info, err := os.Stat(workdir)
	if err != nil {
		return nil, fmt.Errorf("stat working directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", workdir)
	}

	boot := newLogger(config.LogConfig{Level: f.logLevel, Format: f.logFormat}, logOut)
	cfg, err := config.NewLoader(boot, config.WithWorkdir(workdir)).Load()
	if err != nil {
		return nil, err
	}
	if err := f.apply(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log, logOut)
	slog.SetDefault(logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		workdir: workdir,
		metrics: metrics.New(),
	}
	if dir := cfg.Agent.SessionDir; dir != "" {
		a.sessions = store.NewSessionStore(store.NewFileAdapter(expandHome(dir)))
	}
	return a, nil
}

// apply overrides cfg with the flags that were set.
func (f *flags) apply(cfg *config.Config) error {
	switch {
	case f.provider != "" && f.model == "":
		cfg.Model.Provider = ai.Provider(f.provider)
		if info, ok := model.Default(cfg.Model.Provider); ok {
			cfg.Model.Name = info.ID
		}
	case f.model != "":
		cfg.Model.Name = f.model
		cfg.Model.Provider = ai.Provider(f.provider)
		if cfg.Model.Provider == "" {
			p, ok := model.ProviderFor(f.model)
			if !ok {
				return fmt.Errorf("cannot infer the provider of %q; pass --provider", f.model)
			}
			cfg.Model.Provider = p
		}
	}
	if f.policy != "" {
		p, err := ai.ParseApprovalPolicy(f.policy)
		if err != nil {
			return err
		}
		cfg.Approval.Policy = p
	}
	if f.maxTurns > 0 {
		cfg.Agent.MaxTurns = f.maxTurns
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	return nil
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

// chatProvider builds the configured provider client.
func (a *app) chatProvider(ctx context.Context) (ai.ChatProvider, error) {
	m := a.cfg.Model
	key := a.cfg.Keys.For(m.Provider)
	if key == "" {
		return nil, fmt.Errorf("no API key for the %s provider; set %s", m.Provider, keyEnv(m.Provider))
	}
	switch m.Provider {
	case ai.ProviderAnthropic:
		return anthropic.New(key, anthropic.WithModel(m.Name)), nil
	case ai.ProviderOpenAI:
		return openai.New(key, openai.WithModel(m.Name)), nil
	case ai.ProviderGoogle:
		return google.New(ctx, key, google.WithModel(m.Name))
	}
	return nil, fmt.Errorf("unknown provider: %s", m.Provider)
}

func keyEnv(p ai.Provider) string {
	switch p {
	case ai.ProviderOpenAI:
		return config.EnvOpenAIKey
	case ai.ProviderGoogle:
		return config.EnvGoogleKey
	}
	return config.EnvAnthropicKey
}

// caller wraps the provider in a retrying model caller bounded by the
// configured timeout.
func (a *app) caller(p ai.ChatProvider, session *ai.Session) model.Caller {
	m := a.cfg.Model
	chatOpts := []ai.Option{}
	if m.MaxTokens > 0 {
		chatOpts = append(chatOpts, ai.WithMaxTokens(m.MaxTokens))
	}
	if m.Temperature > 0 {
		chatOpts = append(chatOpts, ai.WithTemperature(m.Temperature))
	}
	pc := model.NewProviderCaller(p, session,
		model.WithRetry(retry.DefaultConfig().WithAttempts(m.Retries+1)),
		model.WithChatOptions(chatOpts...),
		model.WithMetrics(a.metrics),
	)
	if m.Timeout <= 0 {
		return pc
	}
	return model.CallerFunc(func(ctx context.Context, req model.Request) (*model.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, m.Timeout)
		defer cancel()
		return pc.Call(ctx, req)
	})
}

// session describes one workflow. A resumed session keeps its saved ID.
type session struct {
	wf     *workflow.Workflow
	bridge *hook.Bridge
	broker *prompt.Broker
}

// newSession builds a workflow and its bridge. onPrompt receives every
// prompt the broker submits and must not block.
func (a *app) newSession(ctx context.Context, resume string, onPrompt func(prompt.Request)) (*session, error) {
	provider, err := a.chatProvider(ctx)
	if err != nil {
		return nil, err
	}

	sess := ai.NewSession(a.cfg.Model.Name, a.workdir, a.logger)
	policy := a.cfg.Approval.Policy
	var seed []ai.Message
	if resume != "" {
		if a.sessions == nil {
			return nil, errors.New("session saving is disabled; set agent.session_dir to resume sessions")
		}
		rec, err := a.sessions.Load(ctx, resume)
		if err != nil {
			return nil, fmt.Errorf("resume %s: %w", resume, err)
		}
		sess.ID = rec.ID
		seed = rec.Messages
		if rec.Policy.Valid() {
			policy = rec.Policy
		}
		a.logger.Info("resumed session", "id", rec.ID, "messages", len(rec.Messages))
	}

	broker := prompt.NewBroker(
		prompt.WithTimeout(a.cfg.Approval.ConfirmTimeout),
		prompt.WithConfirmDefault(a.cfg.Approval.ConfirmDefault),
		prompt.WithOnSubmit(onPrompt),
	)
	bridge := hook.New(hook.Options{
		Policy:         policy,
		Messages:       seed,
		Prompter:       broker,
		Workdir:        a.workdir,
		WritableRoots:  a.cfg.Approval.WritableRoots,
		ExemptCommands: a.cfg.Approval.ExemptCommands,
		Logger:         a.logger,
	})

	deps := workflow.Deps{
		Session: sess,
		Caller:  a.caller(provider, sess),
		Executor: localexec.New(
			localexec.WithSandboxWrapper(a.cfg.Approval.Sandbox...),
			localexec.WithLogger(a.logger),
		),
		Patcher:    localexec.NewPatcher(a.logger),
		MCPServers: a.cfg.MCP.Servers,
		Metrics:    a.metrics,
	}
	wf, err := workflow.New(deps, bridge, a.workflowOptions()...)
	if err != nil {
		return nil, err
	}
	if err := wf.Initialize(ctx); err != nil {
		return nil, err
	}
	return &session{wf: wf, bridge: bridge, broker: broker}, nil
}

func (a *app) workflowOptions() []workflow.Option {
	opts := []workflow.Option{
		workflow.WithMaxTurns(a.cfg.Agent.MaxTurns),
		workflow.WithTitle(appName),
	}
	if a.cfg.Agent.SystemPrompt != "" {
		opts = append(opts, workflow.WithSystemPrompt(a.cfg.Agent.SystemPrompt))
	}
	if text := a.instructions(); text != "" {
		opts = append(opts, workflow.WithInstructions(text))
	}
	return opts
}

// instructions joins the configured instructions with the project's
// AGENTS.md, if any.
func (a *app) instructions() string {
	parts := []string{}
	if s := strings.TrimSpace(a.cfg.Agent.Instructions); s != "" {
		parts = append(parts, s)
	}
	if data, err := os.ReadFile(filepath.Join(a.workdir, instructionsFile)); err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// save persists the transcript when session saving is enabled.
func (a *app) save(ctx context.Context, s *session) {
	if a.sessions == nil {
		return
	}
	state := s.bridge.State()
	if len(state.Messages) == 0 {
		return
	}
	id := s.wf.SessionID()
	err := a.sessions.Save(ctx, store.SessionRecord{
		ID:       id,
		Model:    a.cfg.Model.Name,
		Workdir:  a.workdir,
		Messages: state.Messages,
		Policy:   state.ApprovalPolicy,
	})
	if err != nil {
		a.logger.Warn("failed to save session", "id", id, "error", err)
		return
	}
	a.logger.Debug("session saved", "id", id)
}

// summary reports token usage and, for known models, the cost.
func (a *app) summary(s *session) string {
	u := s.wf.Usage()
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return ""
	}
	line := fmt.Sprintf("tokens: %d in, %d out", u.InputTokens, u.OutputTokens)
	if info, ok := model.Lookup(a.cfg.Model.Name); ok {
		line += fmt.Sprintf(" (~$%.4f)", info.Pricing.Cost(u))
	}
	return line
}

// serveMetrics starts the prometheus endpoint. The returned function shuts
// it down.
func (a *app) serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		a.logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
