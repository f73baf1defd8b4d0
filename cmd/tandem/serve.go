package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	aguievents "github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/agui"
	"github.com/spetersoncode/tandem/event"
	"github.com/spetersoncode/tandem/internal/metrics"
	"github.com/spetersoncode/tandem/prompt"
)

// streamBuffer bounds the events queued between the bridge and one SSE
// stream. Events beyond it are dropped and logged.
const streamBuffer = 1024

func serveCmd(f *flags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions to AG-UI frontends over HTTP server-sent events",
		Long: `serve exposes tandem to AG-UI compatible frontends.

  POST /api/agent                  run a message; streams AG-UI events (SSE)
  POST /api/respond?thread_id=ID   answer a pending prompt
  DELETE /api/threads/{id}         end a thread
  GET  /health                     health check
  GET  /metrics                    prometheus metrics

Each thread_id gets its own session. Pending confirmations are streamed as
CUSTOM "prompt_request" events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f, os.Stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	return cmd
}

func runServer(ctx context.Context, a *app, addr string) error {
	srv := newServer(a.logger, a.metrics, func(ctx context.Context, onPrompt func(prompt.Request)) (*session, error) {
		return a.newSession(ctx, "", onPrompt)
	})
	srv.onClose = func(s *session) { a.save(context.Background(), s) }

	server := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("AG-UI server listening", "addr", addr, "model", a.cfg.Model.Name, "workdir", a.workdir)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.closeAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown error", "error", err)
		}
	}
	a.logger.Info("server stopped")
	return nil
}

// opener creates the session for a new thread.
type opener func(ctx context.Context, onPrompt func(prompt.Request)) (*session, error)

// thread is one frontend conversation and its session.
type thread struct {
	id      string
	s       *session
	mapper  *agui.Mapper
	prompts chan prompt.Request

	// streaming guards against two concurrent streams on one thread.
	streaming sync.Mutex
}

// server routes AG-UI requests to per-thread sessions.
type server struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	open    opener
	onClose func(*session)

	mu      sync.Mutex
	threads map[string]*thread
}

func newServer(logger *slog.Logger, m *metrics.Metrics, open opener) *server {
	if logger == nil {
		logger = ai.NopLogger()
	}
	return &server{
		logger:  logger,
		metrics: m,
		open:    open,
		threads: make(map[string]*thread),
	}
}

func (srv *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agent", srv.handleAgent)
	mux.HandleFunc("POST /api/respond", srv.handleRespond)
	mux.HandleFunc("DELETE /api/threads/{id}", srv.handleDelete)
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", srv.metrics.Handler())
	return corsMiddleware(mux)
}

// thread returns the thread for id, creating its session on first use.
func (srv *server) thread(ctx context.Context, id string) (*thread, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if th, ok := srv.threads[id]; ok {
		return th, nil
	}

	th := &thread{
		id:      id,
		mapper:  agui.NewMapper(id),
		prompts: make(chan prompt.Request, 16),
	}
	s, err := srv.open(ctx, func(req prompt.Request) {
		select {
		case th.prompts <- req:
		default:
			srv.logger.Warn("prompt dropped", "thread_id", id, "prompt_id", req.ID)
		}
	})
	if err != nil {
		return nil, err
	}
	th.s = s
	srv.threads[id] = th
	srv.logger.Info("thread opened", "thread_id", id)
	return th, nil
}

func (srv *server) lookup(id string) (*thread, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	th, ok := srv.threads[id]
	return th, ok
}

func (srv *server) remove(id string) (*thread, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	th, ok := srv.threads[id]
	delete(srv.threads, id)
	return th, ok
}

func (srv *server) close(th *thread) {
	if err := th.s.wf.Terminate(); err != nil && !errors.Is(err, ai.ErrAlreadyTerminated) {
		srv.logger.Warn("thread shutdown", "thread_id", th.id, "error", err)
	}
	th.s.wf.Wait()
	if srv.onClose != nil {
		srv.onClose(th.s)
	}
}

// closeAll terminates every thread.
func (srv *server) closeAll() {
	srv.mu.Lock()
	threads := make([]*thread, 0, len(srv.threads))
	for id, th := range srv.threads {
		threads = append(threads, th)
		delete(srv.threads, id)
	}
	srv.mu.Unlock()
	for _, th := range threads {
		srv.close(th)
	}
}

// handleAgent runs one message and streams the thread's events until the
// turn loop ends. Disconnecting stops the loop.
func (srv *server) handleAgent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var input agui.RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		srv.logger.Warn("invalid request body", "error", err)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	prepared, err := input.Prepare()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text, err := prepared.LatestUserText()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text = strings.TrimSpace(text)

	threadID := prepared.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	log := srv.logger.With("thread_id", threadID, "run_id", prepared.RunID)

	th, err := srv.thread(context.Background(), threadID)
	if err != nil {
		log.Error("failed to open session", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !th.streaming.TryLock() {
		http.Error(w, "a run is already in progress on this thread", http.StatusConflict)
		return
	}
	defer th.streaming.Unlock()
	if th.s.wf.Running() {
		http.Error(w, "a run is already in progress on this thread", http.StatusConflict)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	evs := make(chan event.Event, streamBuffer)
	unsubscribe := th.s.bridge.Subscribe(func(e event.Event) {
		select {
		case evs <- e:
		default:
			log.Warn("event dropped", "type", e.Type)
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if strings.HasPrefix(text, "/") {
		if err := th.s.wf.RunCommand(r.Context(), text); err != nil {
			_ = writeSSE(w, flusher, th.mapper.RunError(err))
			return
		}
		srv.writeSnapshots(w, flusher, th)
		return
	}

	if err := th.s.wf.Message(text); err != nil {
		log.Warn("message rejected", "error", err)
		_ = writeSSE(w, flusher, th.mapper.RunError(err))
		return
	}
	log.Info("run started")

	var count int
	for {
		select {
		case <-r.Context().Done():
			log.Info("client disconnected; stopping run")
			_ = th.s.wf.Stop()
			return
		case req := <-th.prompts:
			if err := writeSSE(w, flusher, agui.PromptRequest(req)); err != nil {
				log.Error("failed to write SSE event", "error", err)
				_ = th.s.wf.Stop()
				return
			}
		case e := <-evs:
			for _, ev := range th.mapper.Map(e) {
				count++
				if err := writeSSE(w, flusher, ev); err != nil {
					log.Error("failed to write SSE event", "error", err, "event_type", ev.Type())
					_ = th.s.wf.Stop()
					return
				}
			}
			switch e.Type {
			case event.RunEnd, event.RunError, event.RunStopped, event.Terminated:
				srv.writeSnapshots(w, flusher, th)
				log.Info("run completed", "duration_ms", time.Since(start).Milliseconds(), "events_sent", count)
				return
			}
		}
	}
}

func (srv *server) writeSnapshots(w http.ResponseWriter, flusher http.Flusher, th *thread) {
	state := th.s.bridge.State()
	_ = writeSSE(w, flusher, th.mapper.StateSnapshot(state))
	_ = writeSSE(w, flusher, th.mapper.MessagesSnapshot(state.Messages))
}

// handleRespond answers a pending prompt on a thread.
func (srv *server) handleRespond(w http.ResponseWriter, r *http.Request) {
	th, ok := srv.lookup(r.URL.Query().Get("thread_id"))
	if !ok {
		http.Error(w, "unknown thread", http.StatusNotFound)
		return
	}
	var resp prompt.Response
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := th.s.broker.Respond(resp); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDelete terminates a thread's session.
func (srv *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	th, ok := srv.remove(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown thread", http.StatusNotFound)
		return
	}
	srv.close(th)
	srv.logger.Info("thread closed", "thread_id", th.id)
	w.WriteHeader(http.StatusNoContent)
}

// writeSSE writes an AG-UI event in SSE format.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev aguievents.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), string(data)); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	flusher.Flush()
	return nil
}

// corsMiddleware adds CORS headers for cross-origin frontend requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
