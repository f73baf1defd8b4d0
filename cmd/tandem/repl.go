package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"sync"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/event"
	"github.com/spetersoncode/tandem/prompt"
)

const (
	maxResultPreview = 600
	maxArgsPreview   = 160
)

// runAgent starts an interactive session in the mode chosen by --events.
func runAgent(ctx context.Context, f *flags, args []string) error {
	switch f.events {
	case "", "text":
		return runREPL(ctx, f, args, os.Stdin, os.Stdout)
	case "agui":
		return runAGUI(ctx, f, args, os.Stdin, os.Stdout)
	}
	return fmt.Errorf("unknown events mode %q (want text or agui)", f.events)
}

// readLines feeds scanner lines to a channel that is closed on EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// repl is the line-oriented terminal host.
type repl struct {
	app     *app
	s       *session
	once    bool
	lines   <-chan string
	prompts chan prompt.Request
	ended   chan event.Type

	outMu sync.Mutex
	out   io.Writer
}

func runREPL(ctx context.Context, f *flags, args []string, in io.Reader, out io.Writer) error {
	a, err := newApp(f, os.Stderr)
	if err != nil {
		return err
	}
	stopMetrics := a.serveMetrics(f.metricsAddr)
	defer stopMetrics()

	r := &repl{
		app:     a,
		once:    f.once,
		lines:   readLines(in),
		prompts: make(chan prompt.Request, 16),
		ended:   make(chan event.Type, 1),
		out:     out,
	}
	s, err := a.newSession(ctx, f.resume, r.submit)
	if err != nil {
		return err
	}
	r.s = s
	unsubscribe := s.bridge.Subscribe(r.observe)
	defer unsubscribe()

	defer func() {
		if err := s.wf.Terminate(); err != nil && !errors.Is(err, ai.ErrAlreadyTerminated) {
			a.logger.Warn("shutdown", "error", err)
		}
		s.wf.Wait()
		a.save(context.Background(), s)
		if line := a.summary(s); line != "" {
			r.printf("%s\n", line)
		}
	}()

	cfg := s.wf.DisplayConfig()
	r.printf("%s · %s · %s · %s\n", cfg.Title, cfg.Model, cfg.ApprovalPolicy, a.workdir)
	r.printf("Type /help for commands, Ctrl-C to stop a turn.\n")

	if initial := strings.TrimSpace(strings.Join(args, " ")); initial != "" {
		r.handle(ctx, initial)
	}
	return r.loop(ctx)
}

func (r *repl) loop(ctx context.Context) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	for {
		if !r.s.wf.Running() {
			r.printf("> ")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-sigs:
			if !r.s.wf.Running() {
				return nil
			}
			_ = r.s.wf.Stop()
		case req := <-r.prompts:
			r.answer(ctx, sigs, req)
		case t := <-r.ended:
			if r.once {
				if t == event.RunError {
					return errors.New("turn loop failed")
				}
				return nil
			}
		case line, ok := <-r.lines:
			if !ok {
				return nil
			}
			if quit := r.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle runs one input line. It reports whether the user asked to quit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "/exit":
		return true
	case line == "/stop":
		_ = r.s.wf.Stop()
	case line == "/help":
		r.help()
	case strings.HasPrefix(line, "/"):
		if err := r.s.wf.RunCommand(ctx, line); err != nil {
			r.printf("error: %v\n", err)
		}
	default:
		if err := r.s.wf.Message(line); err != nil {
			r.printf("error: %v\n", err)
		}
	}
	return false
}

func (r *repl) help() {
	cmds := r.s.wf.Commands()
	for _, name := range r.s.wf.CommandNames() {
		c := cmds[name]
		r.printf("  %-32s %s\n", c.Usage, c.Description)
	}
	r.printf("  %-32s %s\n", "/stop", "Stop the running turn")
	r.printf("  %-32s %s\n", "/quit", "Exit")
}

// submit is the broker's OnSubmit hook. It must not block.
func (r *repl) submit(req prompt.Request) {
	select {
	case r.prompts <- req:
	default:
		r.app.logger.Warn("prompt dropped; too many pending prompts", "id", req.ID)
	}
}

// answer shows req and reads lines until one parses as a valid answer.
// Ctrl-C or EOF dismisses the prompt.
func (r *repl) answer(ctx context.Context, sigs <-chan os.Signal, req prompt.Request) {
	r.showPrompt(req)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			r.respond(prompt.Response{RequestID: req.ID, Cancelled: true})
			_ = r.s.wf.Stop()
			return
		case line, ok := <-r.lines:
			if !ok {
				r.respond(prompt.Response{RequestID: req.ID, Cancelled: true})
				return
			}
			resp, valid := parseAnswer(req, line)
			if !valid {
				r.printf("%s", answerHint(req))
				continue
			}
			r.respond(resp)
			return
		}
	}
}

func (r *repl) respond(resp prompt.Response) {
	if err := r.s.broker.Respond(resp); err != nil {
		// The prompt timed out or its turn was stopped.
		r.app.logger.Debug("prompt response ignored", "error", err)
	}
}

func (r *repl) showPrompt(req prompt.Request) {
	if req.Title != "" {
		r.printf("\n%s\n", req.Title)
	}
	r.printf("%s\n", req.Message)
	for i, opt := range req.Options {
		marker := " "
		if opt == req.Default {
			marker = "*"
		}
		r.printf(" %s%d) %s\n", marker, i+1, opt)
	}
	r.printf("%s", answerHint(req))
}

func answerHint(req prompt.Request) string {
	switch req.Kind {
	case prompt.KindConfirm:
		return "[y]es / [n]o [reason] / [a]lways / [e]xplain / [q]uit: "
	case prompt.KindSelect:
		return fmt.Sprintf("choose 1-%d: ", len(req.Options))
	}
	if req.Default != "" {
		return fmt.Sprintf("[%s]: ", req.Default)
	}
	return ": "
}

// parseAnswer turns a typed line into a response for req.
func parseAnswer(req prompt.Request, line string) (prompt.Response, bool) {
	resp := prompt.Response{RequestID: req.ID}
	line = strings.TrimSpace(line)

	switch req.Kind {
	case prompt.KindConfirm:
		word, rest, _ := strings.Cut(line, " ")
		switch strings.ToLower(word) {
		case "y", "yes":
			resp.Decision = ai.DecisionApprove
		case "n", "no":
			resp.Decision = ai.DecisionDeny
			resp.CustomDenyMessage = strings.TrimSpace(rest)
		case "a", "always":
			resp.Decision = ai.DecisionAlways
		case "e", "explain":
			resp.Decision = ai.DecisionExplain
		case "q", "quit":
			resp.Decision = ai.DecisionNoContinue
		default:
			return resp, false
		}
		return resp, true

	case prompt.KindSelect:
		if line == "" {
			if req.Default == "" {
				return resp, false
			}
			resp.Value = req.Default
			return resp, true
		}
		if n, err := strconv.Atoi(line); err == nil {
			if n < 1 || n > len(req.Options) {
				return resp, false
			}
			resp.Value = req.Options[n-1]
			return resp, true
		}
		i := slices.IndexFunc(req.Options, func(opt string) bool { return strings.EqualFold(opt, line) })
		if i < 0 {
			return resp, false
		}
		resp.Value = req.Options[i]
		return resp, true
	}

	resp.Value = line
	if line == "" {
		resp.Value = req.Default
	}
	return resp, true
}

// observe prints transcript changes. It runs on the emitting goroutine.
func (r *repl) observe(e event.Event) {
	switch e.Type {
	case event.MessageAdded:
		if e.Message != nil {
			r.printMessage(*e.Message)
		}
	case event.ToolCallRejected:
		if e.ToolCall != nil {
			reason := e.Reason
			if reason == "" {
				reason = "denied"
			}
			r.printf("  ✗ %s: %s\n", e.ToolCall.Name, reason)
		}
	case event.ToolCallDropped:
		if e.ToolCall != nil {
			r.printf("  ✗ %s: dropped\n", e.ToolCall.Name)
		}
	case event.RunError:
		r.printf("error: %v\n", e.Error)
		r.signalEnd(e.Type)
	case event.RunStopped:
		r.printf("stopped\n")
		r.signalEnd(e.Type)
	case event.RunEnd:
		r.signalEnd(e.Type)
	}
}

func (r *repl) signalEnd(t event.Type) {
	select {
	case r.ended <- t:
	default:
	}
}

func (r *repl) printMessage(msg ai.Message) {
	switch msg.Role {
	case ai.RoleAssistant:
		if text := strings.TrimSpace(msg.Text()); text != "" {
			r.printf("\n%s\n", text)
		}
		for _, call := range msg.ToolCalls() {
			r.printf("  ▸ %s %s\n", call.Name, oneLine(call.Arguments, maxArgsPreview))
		}
	case ai.RoleUI:
		r.printf("· %s\n", msg.Text())
	case ai.RoleTool:
		for _, res := range msg.ToolResults() {
			mark := "⎿"
			if res.IsError {
				mark = "⎿ error:"
			}
			r.printf("    %s %s\n", mark, indent(clip(res.Content, maxResultPreview), "      "))
		}
	}
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func oneLine(s string, max int) string {
	return clip(strings.Join(strings.Fields(s), " "), max)
}

func clip(s string, max int) string {
	s = strings.TrimRight(s, "\n")
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
