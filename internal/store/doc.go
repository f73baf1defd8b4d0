// Package store holds the transcript primitives shared by the hook bridge and
// the workflow engine, and persists finished sessions through a pluggable
// [Adapter].
//
// Transcripts are append-only. [Append] assigns each message a stable ID the
// first time it is seen and ignores messages whose ID is already present.
// [TruncateFromRole] is the only operation that removes messages.
//
// Sessions are saved as JSON under their session ID:
//
//	sessions := store.NewSessionStore(store.NewFileAdapter(dir))
//	if err := sessions.Save(ctx, session.ID, state.Messages); err != nil {
//	    logger.Warn("save session", "error", err)
//	}
package store
