package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	aguievents "github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/agui"
	"github.com/spetersoncode/tandem/event"
	"github.com/spetersoncode/tandem/prompt"
)

// eventWriter writes AG-UI events as JSON lines. Writes are serialized.
type eventWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *eventWriter) write(evs ...aguievents.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ev := range evs {
		data, err := ev.ToJSON()
		if err != nil {
			return fmt.Errorf("serialize %s event: %w", ev.Type(), err)
		}
		if _, err := fmt.Fprintf(w.out, "%s\n", data); err != nil {
			return err
		}
	}
	return nil
}

// runAGUI drives a session with AG-UI events on out and run inputs or
// prompt responses, one JSON object per line, on in.
func runAGUI(ctx context.Context, f *flags, args []string, in io.Reader, out io.Writer) error {
	a, err := newApp(f, os.Stderr)
	if err != nil {
		return err
	}
	stopMetrics := a.serveMetrics(f.metricsAddr)
	defer stopMetrics()

	w := &eventWriter{out: out}
	onPrompt := func(req prompt.Request) {
		if err := w.write(agui.PromptRequest(req)); err != nil {
			a.logger.Error("failed to write prompt", "error", err)
		}
	}
	s, err := a.newSession(ctx, f.resume, onPrompt)
	if err != nil {
		return err
	}

	mapper := agui.NewMapper(s.wf.SessionID())
	ended := make(chan event.Type, 1)
	unsubscribe := s.bridge.Subscribe(func(e event.Event) {
		if err := w.write(mapper.Map(e)...); err != nil {
			a.logger.Error("failed to write event", "type", e.Type, "error", err)
		}
		switch e.Type {
		case event.RunEnd, event.RunError, event.RunStopped:
			select {
			case ended <- e.Type:
			default:
			}
		}
	})
	defer unsubscribe()

	defer func() {
		if err := s.wf.Terminate(); err != nil && !errors.Is(err, ai.ErrAlreadyTerminated) {
			a.logger.Warn("shutdown", "error", err)
		}
		s.wf.Wait()
		a.save(context.Background(), s)
	}()

	state := s.bridge.State()
	if err := w.write(mapper.StateSnapshot(state), mapper.MessagesSnapshot(state.Messages)); err != nil {
		return err
	}

	if initial := strings.TrimSpace(strings.Join(args, " ")); initial != "" {
		if err := s.wf.Message(initial); err != nil {
			return err
		}
	}

	lines := readLines(in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ended:
			if f.once {
				if t == event.RunError {
					return errors.New("turn loop failed")
				}
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := handleAGUILine(ctx, s, []byte(line)); err != nil {
				a.logger.Warn("input rejected", "error", err)
				_ = w.write(mapper.RunError(err))
			}
		}
	}
}

// handleAGUILine routes one frontend line: prompt responses go to the
// broker and runs submit the latest user message.
func handleAGUILine(ctx context.Context, s *session, line []byte) error {
	input, err := agui.ParseInput(line)
	if err != nil {
		return err
	}
	if input.Response != nil {
		return s.broker.Respond(*input.Response)
	}

	text, err := input.Run.LatestUserText()
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	switch {
	case text == "/stop":
		return s.wf.Stop()
	case strings.HasPrefix(text, "/"):
		return s.wf.RunCommand(ctx, text)
	}
	return s.wf.Message(text)
}
