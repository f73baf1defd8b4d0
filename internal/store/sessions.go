package store

import (
	"context"
	"encoding/json"
	"time"

	ai "github.com/spetersoncode/tandem"
)

// SessionRecord is the persisted form of a finished or suspended session.
type SessionRecord struct {
	ID       string            `json:"id"`
	Model    string            `json:"model,omitempty"`
	Workdir  string            `json:"workdir,omitempty"`
	SavedAt  time.Time         `json:"savedAt"`
	Messages []ai.Message      `json:"messages"`
	Policy   ai.ApprovalPolicy `json:"policy,omitempty"`
}

// SessionStore saves and restores session transcripts.
type SessionStore struct {
	adapter Adapter
	now     func() time.Time
}

// NewSessionStore creates a SessionStore. If adapter is nil, a default
// in-memory adapter is used.
func NewSessionStore(adapter Adapter) *SessionStore {
	if adapter == nil {
		adapter = NewMemoryAdapter()
	}
	return &SessionStore{adapter: adapter, now: time.Now}
}

// Save persists rec under rec.ID, stamping SavedAt.
func (s *SessionStore) Save(ctx context.Context, rec SessionRecord) error {
	rec.SavedAt = s.now()
	raw, err := json.Marshal(rec)
	if err != nil {
		return &SerializationError{Key: rec.ID, Err: err}
	}
	return s.adapter.Set(ctx, rec.ID, raw)
}

// Load restores the session saved under id.
func (s *SessionStore) Load(ctx context.Context, id string) (SessionRecord, error) {
	raw, ok, err := s.adapter.Get(ctx, id)
	if err != nil {
		return SessionRecord{}, err
	}
	if !ok {
		return SessionRecord{}, ErrKeyNotFound
	}
	var rec SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return SessionRecord{}, &SerializationError{Key: id, Err: err}
	}
	return rec, nil
}

// List returns the IDs of all saved sessions.
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	return s.adapter.Keys(ctx)
}

// Delete removes the session saved under id.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.adapter.Delete(ctx, id)
}
