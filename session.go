package tandem

import (
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Session is the per-workflow context threaded through component constructors.
type Session struct {
	ID      string
	Model   string
	Workdir string
	Logger  *slog.Logger
}

// NewSession creates a session with a fresh ID.
func NewSession(model, workdir string, logger *slog.Logger) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Model:   model,
		Workdir: workdir,
		Logger:  logger,
	}
}

// Log returns the session logger, or a logger that discards everything.
func (s *Session) Log() *slog.Logger {
	if s == nil || s.Logger == nil {
		return NopLogger()
	}
	return s.Logger
}

// NopLogger returns a logger that discards all records.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
