package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	ai "github.com/spetersoncode/tandem"
)

// DefaultTimeout bounds connecting, listing and calling when a server
// configures no timeout of its own.
const DefaultTimeout = 30 * time.Second

type provider struct {
	cfg       ServerConfig
	client    Client
	connected bool
	err       error
	tools     int
}

func (p *provider) timeout(fallback time.Duration) time.Duration {
	if p.cfg.Timeout > 0 {
		return p.cfg.Timeout
	}
	return fallback
}

type entry struct {
	tool  ai.Tool
	owner *provider
}

// ProviderStatus describes one configured provider.
type ProviderStatus struct {
	Name      string
	Transport Transport
	Connected bool
	Error     string
	Tools     int
}

// Manager owns the external tool-provider connections and routes tool calls
// to them. It is safe for concurrent use.
//
// Connection failures are isolated: a provider that cannot connect is kept
// as disconnected and contributes no tools, and nothing the manager does
// fails because one provider misbehaves.
type Manager struct {
	logger     *slog.Logger
	dialer     Dialer
	clientName string
	version    string
	timeout    time.Duration

	mu        sync.RWMutex
	providers []*provider
	catalog   map[string]entry
	ordered   []ai.Tool
	loaded    bool

	// loadMu makes catalog loading single-flight.
	loadMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the function used to create clients.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithTimeout sets the default per-provider timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithClientInfo sets the implementation name and version sent on initialize.
func WithClientInfo(name, version string) Option {
	return func(m *Manager) {
		m.clientName = name
		m.version = version
	}
}

// NewManager creates a Manager for session.
func NewManager(session *ai.Session, opts ...Option) *Manager {
	m := &Manager{
		logger:     session.Log().With("component", "mcp"),
		dialer:     DefaultDialer,
		clientName: "tandem",
		version:    "1.0.0",
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize connects to every enabled provider in configs. Providers are
// connected concurrently; a provider that fails is recorded as disconnected
// and logged. Initialize never fails as a whole.
func (m *Manager) Initialize(ctx context.Context, configs []ServerConfig) {
	seen := make(map[string]bool, len(configs))
	var pending []*provider
	for _, cfg := range configs {
		if cfg.Disabled {
			m.logger.Debug("mcp server disabled", "server", cfg.Name)
			continue
		}
		if seen[cfg.Name] {
			m.logger.Warn("duplicate mcp server name, skipping", "server", cfg.Name)
			continue
		}
		seen[cfg.Name] = true
		pending = append(pending, &provider{cfg: cfg})
	}

	var wg sync.WaitGroup
	for _, p := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.connect(ctx, p)
		}()
	}
	wg.Wait()

	m.mu.Lock()
	m.providers = append(m.providers, pending...)
	m.catalog = nil
	m.ordered = nil
	m.loaded = false
	m.mu.Unlock()
}

func (m *Manager) connect(ctx context.Context, p *provider) {
	log := m.logger.With("server", p.cfg.Name, "transport", p.cfg.Transport)

	if err := p.cfg.Validate(); err != nil {
		p.err = err
		log.Warn("mcp server misconfigured", "error", err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout(m.timeout))
	defer cancel()

	c, err := m.dialer(cctx, p.cfg)
	if err != nil {
		p.err = err
		log.Warn("mcp server connect failed", "error", err)
		return
	}

	if err := c.Start(cctx); err != nil {
		p.err = fmt.Errorf("failed to start MCP client: %w", err)
		closeQuietly(c)
		log.Warn("mcp server connect failed", "error", p.err)
		return
	}

	_, err = c.Initialize(cctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    m.clientName,
				Version: m.version,
			},
		},
	})
	if err != nil {
		p.err = fmt.Errorf("failed to initialize MCP session: %w", err)
		closeQuietly(c)
		log.Warn("mcp server connect failed", "error", p.err)
		return
	}

	p.client = c
	p.connected = true
	log.Info("mcp server connected")
}

func closeQuietly(c Client) {
	defer func() { _ = recover() }()
	_ = c.Close()
}

// AllTools returns the union of the tool catalogs of all connected
// providers. The catalog is fetched once and cached for the manager's
// lifetime. When two providers advertise the same name the provider listed
// first in the configuration keeps it.
func (m *Manager) AllTools(ctx context.Context) []ai.Tool {
	if err := m.load(ctx); err != nil {
		m.logger.Debug("tool catalog not loaded", "error", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ai.Tool(nil), m.ordered...)
}

// HasTool reports whether a connected provider advertises name. If the
// catalog has not been fetched yet it is loaded first.
func (m *Manager) HasTool(name string) bool {
	m.mu.RLock()
	loaded := m.loaded
	_, ok := m.catalog[name]
	m.mu.RUnlock()
	if loaded {
		return ok
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	_ = m.load(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok = m.catalog[name]
	return ok
}

func (m *Manager) load(ctx context.Context) error {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.RLock()
	loaded = m.loaded
	providers := append([]*provider(nil), m.providers...)
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	lists := make([][]mcp.Tool, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		if !p.connected {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			lctx, cancel := context.WithTimeout(ctx, p.timeout(m.timeout))
			defer cancel()
			res, err := p.client.ListTools(lctx, mcp.ListToolsRequest{})
			if err != nil {
				m.logger.Warn("mcp list tools failed", "server", p.cfg.Name, "error", err)
				return
			}
			lists[i] = res.Tools
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	catalog := make(map[string]entry)
	var ordered []ai.Tool
	counts := make([]int, len(providers))
	for i, p := range providers {
		for _, t := range lists[i] {
			if prev, dup := catalog[t.Name]; dup {
				m.logger.Warn("mcp tool name collision, keeping first provider",
					"tool", t.Name, "kept", prev.owner.cfg.Name, "ignored", p.cfg.Name)
				continue
			}
			tool := importTool(t)
			catalog[t.Name] = entry{tool: tool, owner: p}
			ordered = append(ordered, tool)
			counts[i]++
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// CloseAll may have run while we were listing.
	if !sameProviders(m.providers, providers) {
		return errors.New("mcp: providers changed during load")
	}
	for i, p := range providers {
		p.tools = counts[i]
	}
	m.catalog = catalog
	m.ordered = ordered
	m.loaded = true
	return nil
}

func sameProviders(a, b []*provider) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CallTool routes call to the provider that advertises it. It returns a
// *ai.ToolNotFoundError if no connected provider does. Failures of the call
// itself are returned as an error ToolResult, not as an error.
func (m *Manager) CallTool(ctx context.Context, call ai.ToolCall) (ai.ToolResult, error) {
	if err := m.load(ctx); err != nil {
		m.logger.Debug("tool catalog not loaded", "error", err)
	}

	m.mu.RLock()
	e, ok := m.catalog[call.Name]
	m.mu.RUnlock()
	if !ok || !e.owner.connected {
		return ai.ToolResult{}, &ai.ToolNotFoundError{Name: call.Name}
	}

	cctx, cancel := context.WithTimeout(ctx, e.owner.timeout(m.timeout))
	defer cancel()

	start := time.Now()
	res, err := e.owner.client.CallTool(cctx, callRequest(call))
	if err != nil {
		m.logger.Warn("mcp tool call failed", "server", e.owner.cfg.Name, "tool", call.Name, "error", err)
		return ai.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    err.Error(),
			IsError:    true,
		}, nil
	}
	m.logger.Debug("mcp tool call", "server", e.owner.cfg.Name, "tool", call.Name, "duration", time.Since(start))

	result := importResult(call.ID, res)
	result.Name = call.Name
	return result, nil
}

// CloseAll closes every connection concurrently. Close failures (including
// panics) are collected and returned joined, but never stop the remaining
// closes, and the manager's provider table is always cleared.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	providers := m.providers
	m.providers = nil
	m.catalog = nil
	m.ordered = nil
	m.loaded = false
	m.mu.Unlock()

	errs := make([]error, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		if p.client == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = closeProvider(p)
			if errs[i] != nil {
				m.logger.Warn("mcp server close failed", "server", p.cfg.Name, "error", errs[i])
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func closeProvider(p *provider) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mcp server %q: close panicked: %v", p.cfg.Name, r)
		}
	}()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("mcp server %q: %w", p.cfg.Name, err)
	}
	return nil
}

// Providers returns the status of every configured provider, in
// configuration order.
func (m *Manager) Providers() []ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ProviderStatus, len(m.providers))
	for i, p := range m.providers {
		out[i] = ProviderStatus{
			Name:      p.cfg.Name,
			Transport: p.cfg.Transport,
			Connected: p.connected,
			Tools:     p.tools,
		}
		if p.err != nil {
			out[i].Error = p.err.Error()
		}
	}
	return out
}
