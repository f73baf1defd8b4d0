// Package gate implements the tool execution gate.
//
// Every tool call the model emits passes through Gate.Execute. Native shell
// and patch calls are classified against the approval policy and, when not
// auto-approved, confirmed by the user before they reach the executor. The
// user_select tool is answered in-process. Everything else is routed to the
// external tool providers.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/cancel"
	"github.com/spetersoncode/tandem/internal/diff"
	"github.com/spetersoncode/tandem/internal/metrics"
	"github.com/spetersoncode/tandem/safety"
)

// DefaultMaxExplains bounds how often a single call may be explained.
const DefaultMaxExplains = 3

// Outcome is the result of passing one call through the gate.
type Outcome struct {
	// Result is the tool result to append. It is zero when Dropped is set.
	Result ai.ToolResult
	// Dropped reports that the scope was cancelled and no result exists.
	Dropped bool
	// Halt asks the workflow to stop the turn loop after this call.
	Halt bool
	// Decision is the effective review decision, empty for calls that need
	// none (provider tools and user_select).
	Decision ai.ReviewDecision
	// Auto reports that Decision came from the classifier, not the user.
	Auto bool
}

// Gate is the tool execution gate. It is safe for concurrent use, but the
// workflow passes calls through it one at a time.
type Gate struct {
	session     *ai.Session
	logger      *slog.Logger
	executor    Executor
	patcher     PatchApplier
	classifier  safety.Classifier
	provider    ToolProvider
	selector    Selector
	explainer   Explainer
	exempt      []string
	maxExplains int
	metrics     *metrics.Metrics

	mu     sync.Mutex
	always map[string]struct{}
}

// Option configures a Gate.
type Option func(*Gate)

// WithExecutor sets the executor for approved shell commands.
func WithExecutor(e Executor) Option {
	return func(g *Gate) { g.executor = e }
}

// WithPatchApplier sets the applier for approved patches.
func WithPatchApplier(p PatchApplier) Option {
	return func(g *Gate) { g.patcher = p }
}

// WithClassifier replaces the default safety classifier.
func WithClassifier(c safety.Classifier) Option {
	return func(g *Gate) { g.classifier = c }
}

// WithToolProvider sets where non-native tools are routed.
func WithToolProvider(p ToolProvider) Option {
	return func(g *Gate) { g.provider = p }
}

// WithSelector sets who answers user_select calls.
func WithSelector(s Selector) Option {
	return func(g *Gate) { g.selector = s }
}

// WithExplainer sets the source of explanations for Explain decisions.
func WithExplainer(e Explainer) Option {
	return func(g *Gate) { g.explainer = e }
}

// WithExemptCommands sets command patterns that never need confirmation.
func WithExemptCommands(patterns ...string) Option {
	return func(g *Gate) { g.exempt = append(g.exempt, patterns...) }
}

// WithMaxExplains bounds the explain rounds per call. Defaults to
// DefaultMaxExplains.
func WithMaxExplains(n int) Option {
	return func(g *Gate) { g.maxExplains = n }
}

// WithMetrics records decisions and tool calls in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// New creates a Gate bound to session.
func New(session *ai.Session, opts ...Option) *Gate {
	if session == nil {
		session = ai.NewSession("", "", nil)
	}
	g := &Gate{
		session:     session,
		logger:      session.Log(),
		classifier:  safety.New(),
		maxExplains: DefaultMaxExplains,
		always:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Execute passes call through the gate. It returns exactly one result per
// call unless scope is cancelled first, in which case the outcome is
// Dropped and nothing was recorded.
func (g *Gate) Execute(scope *cancel.Scope, call ai.ToolCall, policy ai.ApprovalPolicy, writableRoots []string, confirm ai.ConfirmFunc) Outcome {
	if !scope.Active() {
		return Outcome{Dropped: true}
	}
	start := time.Now()

	var out Outcome
	switch call.Name {
	case ai.ToolShell:
		out = g.shell(scope, call, policy, writableRoots, confirm)
	case ai.ToolApplyPatch:
		out = g.patch(scope, call, policy, writableRoots, confirm)
	case ai.ToolUserSelect:
		out = g.userSelect(scope, call)
	default:
		out = g.external(scope, call)
	}

	if out.Dropped || !scope.Active() {
		g.logger.Debug("tool call dropped", "tool", call.Name, "id", call.ID)
		return Outcome{Dropped: true, Decision: out.Decision, Auto: out.Auto}
	}
	out.Result.ToolCallID = call.ID
	out.Result.Name = call.Name
	g.metrics.ToolCall(call.Name, out.Result.IsError, time.Since(start))
	return out
}

func (g *Gate) shell(scope *cancel.Scope, call ai.ToolCall, policy ai.ApprovalPolicy, roots []string, confirm ai.ConfirmFunc) Outcome {
	args, err := ai.ParseShellArgs(call.Arguments)
	if err != nil {
		return fail(call, "invalid shell arguments: %v", err)
	}
	argv := args.Argv()
	workdir := g.workdir(args.Workdir)

	key := "shell:" + strings.Join(argv, " ")
	var assessment ai.SafetyAssessment
	if g.remembered(key) {
		assessment = ai.SafetyAssessment{Kind: ai.AssessAutoApprove, Reason: "approved for session"}
	} else {
		assessment = g.classifier.ClassifyCommand(argv, workdir, policy, roots, g.exempt)
	}

	out, approved, _ := g.review(scope, call, key, assessment, ai.ConfirmRequest{
		ToolCallID: call.ID,
		Command:    argv,
		Workdir:    workdir,
	}, confirm)
	if !approved {
		return out
	}
	if g.executor == nil {
		return out.with(fail(call, "no executor configured for %s", call.Name))
	}

	g.logger.Info("running command", "cmd", argv, "workdir", workdir, "sandbox", assessment.RunInSandbox)
	res, err := g.executor.Exec(scope.Context(), ExecInput{
		Command:       argv,
		Workdir:       workdir,
		TimeoutMillis: args.Timeout,
		Sandbox:       assessment.RunInSandbox,
	})
	if !scope.Active() {
		return Outcome{Dropped: true, Decision: out.Decision, Auto: out.Auto}
	}
	if err != nil {
		return out.with(fail(call, "command failed: %v", err))
	}
	return out.with(Outcome{Result: shellResult(res)})
}

func shellResult(res ExecResult) ai.ToolResult {
	r := ai.ToolResult{Content: res.Output}
	if code := res.Metadata.ExitCode; code != nil && *code != 0 {
		if r.Content != "" && !strings.HasSuffix(r.Content, "\n") {
			r.Content += "\n"
		}
		r.Content += fmt.Sprintf("[exit code %d]", *code)
		r.IsError = true
	}
	return r
}

func (g *Gate) patch(scope *cancel.Scope, call ai.ToolCall, policy ai.ApprovalPolicy, roots []string, confirm ai.ConfirmFunc) Outcome {
	p, err := ai.ParsePatchArgs(call.Arguments)
	if err != nil {
		return fail(call, "invalid patch arguments: %v", err)
	}
	workdir := g.workdir("")

	key := patchKey(p)
	var assessment ai.SafetyAssessment
	if g.remembered(key) {
		assessment = ai.SafetyAssessment{Kind: ai.AssessAutoApprove, Reason: "approved for session"}
	} else {
		assessment = g.classifier.ClassifyPatch(p, workdir, policy, roots)
	}

	req := ai.ConfirmRequest{
		ToolCallID: call.ID,
		Workdir:    workdir,
		Patch:      p,
	}
	if assessment.Kind == ai.AssessAskUser {
		req.Preview = diff.Preview(p, workdir)
	}
	out, approved, edited := g.review(scope, call, key, assessment, req, confirm)
	if !approved {
		return out
	}
	if edited != nil {
		p = edited
	}
	if g.patcher == nil {
		return out.with(fail(call, "no patch applier configured for %s", call.Name))
	}

	g.logger.Info("applying patch", "files", p.Paths(), "sandbox", assessment.RunInSandbox)
	summary, err := g.patcher.Apply(scope.Context(), p, workdir, assessment.RunInSandbox)
	if !scope.Active() {
		return Outcome{Dropped: true, Decision: out.Decision, Auto: out.Auto}
	}
	if err != nil {
		return out.with(fail(call, "patch failed: %v", err))
	}
	return out.with(Outcome{Result: ai.ToolResult{Content: summary}})
}

// patchKey identifies a patch for Always decisions. It covers each file's
// operation and content, so a later patch to the same paths is asked again.
func patchKey(p *ai.Patch) string {
	h := sha256.New()
	for _, f := range p.Files {
		fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s", f.Path, f.Op, len(f.Content), f.Content)
	}
	return "patch:" + strings.Join(p.Paths(), ",") + ":" + hex.EncodeToString(h.Sum(nil))
}

// review turns an assessment into a decision, asking the user when needed.
// The returned outcome carries the decision; when approved is false it also
// carries the final result. edited is a user-supplied replacement patch.
func (g *Gate) review(scope *cancel.Scope, call ai.ToolCall, key string, assessment ai.SafetyAssessment, req ai.ConfirmRequest, confirm ai.ConfirmFunc) (out Outcome, approved bool, edited *ai.Patch) {
	switch assessment.Kind {
	case ai.AssessAutoApprove:
		g.metrics.ToolDecision(call.Name, "auto")
		return Outcome{Decision: ai.DecisionApprove, Auto: true}, true, nil
	case ai.AssessReject:
		g.metrics.ToolDecision(call.Name, "reject")
		out = fail(call, "command rejected: %s", assessment.Reason)
		out.Decision = ai.DecisionDeny
		out.Auto = true
		return out, false, nil
	}

	if confirm == nil {
		out = fail(call, "command requires approval but no confirmation handler is available")
		out.Decision = ai.DecisionDeny
		return out, false, nil
	}

	c, err := g.confirm(scope.Context(), req, confirm)
	if err != nil {
		if !scope.Active() {
			return Outcome{Dropped: true}, false, nil
		}
		g.logger.Warn("confirmation failed", "tool", call.Name, "error", err)
		out = fail(call, "confirmation failed: %v", err)
		out.Decision = ai.DecisionDeny
		return out, false, nil
	}
	if !scope.Active() {
		return Outcome{Dropped: true, Decision: c.Decision}, false, nil
	}
	g.metrics.ToolDecision(call.Name, string(c.Decision))

	switch c.Decision {
	case ai.DecisionAlways:
		g.remember(key)
		return Outcome{Decision: c.Decision}, true, c.Patch
	case ai.DecisionApprove:
		return Outcome{Decision: c.Decision}, true, c.Patch
	case ai.DecisionNoContinue:
		out = fail(call, "%s", denyMessage(c, "command rejected by user; stopping"))
		out.Decision = c.Decision
		out.Halt = true
		return out, false, nil
	default:
		out = fail(call, "%s", denyMessage(c, "command rejected by user"))
		out.Decision = ai.DecisionDeny
		return out, false, nil
	}
}

// confirm runs the confirmation flow, resolving Explain decisions by
// attaching an explanation and asking again.
func (g *Gate) confirm(ctx context.Context, req ai.ConfirmRequest, confirm ai.ConfirmFunc) (ai.CommandConfirmation, error) {
	for round := 0; ; round++ {
		c, err := confirm(ctx, req)
		if err != nil {
			return ai.CommandConfirmation{}, err
		}
		if c.Decision != ai.DecisionExplain {
			return c, nil
		}
		if round >= g.maxExplains {
			return ai.CommandConfirmation{
				Decision:          ai.DecisionDeny,
				CustomDenyMessage: "command rejected: too many explanation requests",
			}, nil
		}
		req.Explanation = c.Explanation
		if req.Explanation == "" {
			req.Explanation = g.explain(ctx, req)
		}
	}
}

func (g *Gate) explain(ctx context.Context, req ai.ConfirmRequest) string {
	if g.explainer == nil {
		return "No explanation is available for this command."
	}
	text, err := g.explainer.Explain(ctx, req)
	if err != nil {
		g.logger.Warn("explanation failed", "error", err)
		return fmt.Sprintf("Unable to generate an explanation: %v", err)
	}
	return text
}

func (g *Gate) userSelect(scope *cancel.Scope, call ai.ToolCall) Outcome {
	args, err := ai.ParseSelectArgs(call.Arguments)
	if err != nil {
		return fail(call, "invalid user_select arguments: %v", err)
	}
	if g.selector == nil {
		return fail(call, "no selection handler is available")
	}
	choice, err := g.selector.Select(scope.Context(), args.Question, args.Options, args.Default)
	if err != nil {
		if !scope.Active() {
			return Outcome{Dropped: true}
		}
		return fail(call, "selection failed: %v", err)
	}
	if choice == "" {
		return Outcome{Result: ai.ToolResult{Content: "The user dismissed the selection without choosing."}}
	}
	return Outcome{Result: ai.ToolResult{Content: choice}}
}

func (g *Gate) external(scope *cancel.Scope, call ai.ToolCall) Outcome {
	if g.provider == nil {
		return fail(call, "%v", &ai.ToolNotFoundError{Name: call.Name})
	}
	res, err := g.provider.CallTool(scope.Context(), call)
	if err != nil {
		if !scope.Active() {
			return Outcome{Dropped: true}
		}
		return fail(call, "%v", err)
	}
	return Outcome{Result: res}
}

// Forget clears every command remembered with an Always decision.
func (g *Gate) Forget() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.always)
}

func (g *Gate) remembered(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.always[key]
	return ok
}

func (g *Gate) remember(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.always[key] = struct{}{}
}

func (g *Gate) workdir(dir string) string {
	base := g.session.Workdir
	switch {
	case dir == "":
		return base
	case filepath.IsAbs(dir) || base == "":
		return filepath.Clean(dir)
	default:
		return filepath.Join(base, dir)
	}
}

func fail(call ai.ToolCall, format string, args ...any) Outcome {
	return Outcome{Result: ai.NewErrorResult(call, format, args...)}
}

// with returns next carrying o's decision fields.
func (o Outcome) with(next Outcome) Outcome {
	next.Decision = o.Decision
	next.Auto = o.Auto
	return next
}

func denyMessage(c ai.CommandConfirmation, fallback string) string {
	if c.CustomDenyMessage != "" {
		return c.CustomDenyMessage
	}
	return fallback
}
