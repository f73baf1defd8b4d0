package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/config"
	"github.com/spetersoncode/tandem/hook"
	"github.com/spetersoncode/tandem/internal/store"
	"github.com/spetersoncode/tandem/model"
	"github.com/spetersoncode/tandem/prompt"
	"github.com/spetersoncode/tandem/workflow"
)

func TestFlagsApply(t *testing.T) {
	base := func() *config.Config {
		cfg := config.DefaultConfig()
		cfg.Model.Provider = ai.ProviderAnthropic
		cfg.Model.Name = "claude-sonnet-4-5"
		return cfg
	}

	t.Run("provider picks its default model", func(t *testing.T) {
		cfg := base()
		require.NoError(t, (&flags{provider: "google"}).apply(cfg))
		assert.Equal(t, ai.ProviderGoogle, cfg.Model.Provider)
		assert.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
	})

	t.Run("model implies provider", func(t *testing.T) {
		cfg := base()
		require.NoError(t, (&flags{model: "gpt-5.1"}).apply(cfg))
		assert.Equal(t, ai.ProviderOpenAI, cfg.Model.Provider)
		assert.Equal(t, "gpt-5.1", cfg.Model.Name)
	})

	t.Run("unknown model needs a provider", func(t *testing.T) {
		cfg := base()
		assert.Error(t, (&flags{model: "llama-3"}).apply(cfg))

		cfg = base()
		require.NoError(t, (&flags{model: "llama-3", provider: "openai"}).apply(cfg))
		assert.Equal(t, ai.ProviderOpenAI, cfg.Model.Provider)
	})

	t.Run("policy and limits", func(t *testing.T) {
		cfg := base()
		require.NoError(t, (&flags{policy: "full-auto", maxTurns: 5, logLevel: "debug", logFormat: "json"}).apply(cfg))
		assert.Equal(t, ai.PolicyFullAuto, cfg.Approval.Policy)
		assert.Equal(t, 5, cfg.Agent.MaxTurns)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
	})

	t.Run("invalid policy", func(t *testing.T) {
		assert.Error(t, (&flags{policy: "yolo"}).apply(base()))
	})
}

func TestParseAnswer(t *testing.T) {
	confirm := prompt.Request{ID: "c1", Kind: prompt.KindConfirm}
	tests := []struct {
		line     string
		decision ai.ReviewDecision
		message  string
		valid    bool
	}{
		{"y", ai.DecisionApprove, "", true},
		{"YES", ai.DecisionApprove, "", true},
		{"n", ai.DecisionDeny, "", true},
		{"n use go test instead", ai.DecisionDeny, "use go test instead", true},
		{"a", ai.DecisionAlways, "", true},
		{"e", ai.DecisionExplain, "", true},
		{"q", ai.DecisionNoContinue, "", true},
		{"", "", "", false},
		{"maybe", "", "", false},
	}
	for _, tt := range tests {
		t.Run("confirm "+tt.line, func(t *testing.T) {
			resp, ok := parseAnswer(confirm, tt.line)
			assert.Equal(t, tt.valid, ok)
			if ok {
				assert.Equal(t, "c1", resp.RequestID)
				assert.Equal(t, tt.decision, resp.Decision)
				assert.Equal(t, tt.message, resp.CustomDenyMessage)
			}
		})
	}

	t.Run("select", func(t *testing.T) {
		req := prompt.Request{ID: "s1", Kind: prompt.KindSelect, Options: []string{"red", "green"}, Default: "green"}

		resp, ok := parseAnswer(req, "1")
		require.True(t, ok)
		assert.Equal(t, "red", resp.Value)

		resp, ok = parseAnswer(req, "GREEN")
		require.True(t, ok)
		assert.Equal(t, "green", resp.Value)

		resp, ok = parseAnswer(req, "")
		require.True(t, ok)
		assert.Equal(t, "green", resp.Value)

		_, ok = parseAnswer(req, "3")
		assert.False(t, ok)
		_, ok = parseAnswer(req, "blue")
		assert.False(t, ok)

		req.Default = ""
		_, ok = parseAnswer(req, "")
		assert.False(t, ok)
	})

	t.Run("input", func(t *testing.T) {
		req := prompt.Request{ID: "i1", Kind: prompt.KindInput, Default: "main"}
		resp, ok := parseAnswer(req, "  feature  ")
		require.True(t, ok)
		assert.Equal(t, "feature", resp.Value)

		resp, ok = parseAnswer(req, "")
		require.True(t, ok)
		assert.Equal(t, "main", resp.Value)
	})
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short\n", 10))
	assert.Equal(t, "abc…", clip("abcdef", 3))
	assert.Equal(t, "a b c", oneLine("a\n  b\tc", 20))
	assert.Equal(t, "a\n  b", indent("a\nb", "  "))
}

func TestPrintTranscript(t *testing.T) {
	rec := store.SessionRecord{
		ID:    "s1",
		Model: "claude-sonnet-4-5",
		Messages: []ai.Message{
			ai.NewUserMessage("list files"),
			{Role: ai.RoleAssistant, Parts: []ai.ContentPart{
				ai.NewTextPart("Listing."),
				ai.NewToolCallPart(ai.ToolCall{ID: "c1", Name: ai.ToolShell, Arguments: `{"cmd":["ls"]}`}),
			}},
			ai.NewToolResultMessage(ai.ToolResult{ToolCallID: "c1", Name: ai.ToolShell, Content: "a.txt"}),
			ai.NewUIMessage("done"),
		},
	}
	var buf bytes.Buffer
	printTranscript(&buf, rec)
	out := buf.String()
	assert.Contains(t, out, "session s1")
	assert.Contains(t, out, "> list files")
	assert.Contains(t, out, "Listing.")
	assert.Contains(t, out, `▸ shell {"cmd":["ls"]}`)
	assert.Contains(t, out, "⎿ a.txt")
	assert.Contains(t, out, "· done")
	assert.Equal(t, "list files", firstPrompt(rec.Messages))
}

// textOpener opens sessions whose model always answers with text.
func textOpener(t *testing.T, text string) opener {
	return func(ctx context.Context, onPrompt func(prompt.Request)) (*session, error) {
		dir := t.TempDir()
		broker := prompt.NewBroker(prompt.WithOnSubmit(onPrompt))
		bridge := hook.New(hook.Options{Policy: ai.PolicySuggest, Prompter: broker, Workdir: dir})
		caller := model.CallerFunc(func(_ context.Context, req model.Request) (*model.Result, error) {
			return &model.Result{
				Messages:     []ai.Message{{Role: ai.RoleAssistant, Parts: []ai.ContentPart{ai.NewTextPart(text)}}},
				FinishReason: ai.FinishStop,
				Generation:   req.Generation,
			}, nil
		})
		wf, err := workflow.New(workflow.Deps{Session: ai.NewSession("test-model", dir, nil), Caller: caller}, bridge)
		if err != nil {
			return nil, err
		}
		if err := wf.Initialize(ctx); err != nil {
			return nil, err
		}
		return &session{wf: wf, bridge: bridge, broker: broker}, nil
	}
}

func newTestServer(t *testing.T) (*server, http.Handler) {
	t.Helper()
	srv := newServer(nil, nil, textOpener(t, "hi there"))
	t.Cleanup(srv.closeAll)
	return srv, srv.routes()
}

const runBody = `{"thread_id":"t1","run_id":"r1","messages":[{"id":"m1","role":"user","content":"hello"}]}`

func TestServer_Agent(t *testing.T) {
	srv, h := newTestServer(t)

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent", strings.NewReader(runBody)))
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: RUN_STARTED")
	assert.Contains(t, body, "event: TEXT_MESSAGE_CONTENT")
	assert.Contains(t, body, "hi there")
	assert.Contains(t, body, "event: RUN_FINISHED")
	assert.Contains(t, body, "event: STATE_SNAPSHOT")
	assert.Contains(t, body, "event: MESSAGES_SNAPSHOT")

	th, ok := srv.lookup("t1")
	require.True(t, ok)
	msgs := th.s.bridge.State().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Text())
	assert.Equal(t, "hi there", msgs[1].Text())
}

func TestServer_Command(t *testing.T) {
	_, h := newTestServer(t)

	body := `{"thread_id":"t2","messages":[{"id":"m1","role":"user","content":"/policy full-auto"}]}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent", strings.NewReader(body)))
	assert.Contains(t, rec.Body.String(), `"approvalPolicy":"full-auto"`)

	body = `{"thread_id":"t2","messages":[{"id":"m2","role":"user","content":"/nope"}]}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent", strings.NewReader(body)))
	assert.Contains(t, rec.Body.String(), "event: RUN_ERROR")
}

func TestServer_BadRequests(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"invalid json", http.MethodPost, "/api/agent", "{", http.StatusBadRequest},
		{"no messages", http.MethodPost, "/api/agent", `{"thread_id":"t"}`, http.StatusBadRequest},
		{"no user message", http.MethodPost, "/api/agent", `{"messages":[{"id":"a","role":"assistant","content":"x"}]}`, http.StatusBadRequest},
		{"respond unknown thread", http.MethodPost, "/api/respond?thread_id=zzz", `{"requestId":"x"}`, http.StatusNotFound},
		{"delete unknown thread", http.MethodDelete, "/api/threads/zzz", "", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/api/agent", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestServer_RespondAndDelete(t *testing.T) {
	srv, h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent", strings.NewReader(runBody)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/respond?thread_id=t1", strings.NewReader(`{"requestId":"none","decision":"approve"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no prompt is pending")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/threads/t1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := srv.lookup("t1")
	assert.False(t, ok)
}

func TestServer_Health(t *testing.T) {
	_, h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/agent", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleAGUILine(t *testing.T) {
	s, err := textOpener(t, "ok")(context.Background(), func(prompt.Request) {})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.wf.Terminate()
		s.wf.Wait()
	})

	assert.Error(t, handleAGUILine(context.Background(), s, []byte("not json")))
	assert.Error(t, handleAGUILine(context.Background(), s, []byte(`{"requestId":"missing","decision":"approve"}`)))

	require.NoError(t, handleAGUILine(context.Background(), s, []byte(`{"messages":[{"id":"m","role":"user","content":"/policy auto-edit"}]}`)))
	assert.Equal(t, ai.PolicyAutoEdit, s.bridge.State().ApprovalPolicy)

	require.NoError(t, handleAGUILine(context.Background(), s, []byte(`{"messages":[{"id":"m","role":"user","content":"hello"}]}`)))
	s.wf.Wait()
	msgs := s.bridge.State().Messages
	require.NotEmpty(t, msgs)
	assert.Equal(t, "ok", msgs[len(msgs)-1].Text())
}
