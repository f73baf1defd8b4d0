// Package cancel provides hierarchical cancellation scopes.
//
// A hard scope lives for the whole lifetime of a workflow. Child scopes are
// created per turn and per tool call; cancelling a scope cancels every
// descendant. Scopes are thin wrappers over context.Context so they can be
// handed to anything that accepts a context.
package cancel

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is the default cause recorded when Cancel is called with nil.
var ErrCancelled = errors.New("cancel: scope cancelled")

// Scope is a cancellable unit of work. The zero value is not usable; create
// scopes with NewHard or Child.
type Scope struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	parent *Scope

	mu   sync.Mutex
	stop []func() bool
}

// NewHard creates a root scope for a workflow's full lifetime.
func NewHard() *Scope {
	return newScope(context.Background(), nil)
}

// FromContext creates a root scope that is also cancelled when ctx is done.
func FromContext(ctx context.Context) *Scope {
	return newScope(ctx, nil)
}

func newScope(parent context.Context, p *Scope) *Scope {
	ctx, cancel := context.WithCancelCause(parent)
	return &Scope{ctx: ctx, cancel: cancel, parent: p}
}

// Child creates a scope whose cancellation is implied by s.
func (s *Scope) Child() *Scope {
	return newScope(s.ctx, s)
}

// Parent returns the scope s was derived from, or nil for a root scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Cancel marks s and all descendants cancelled. Only the first call records
// its cause; later calls are no-ops.
func (s *Scope) Cancel(cause error) {
	if cause == nil {
		cause = ErrCancelled
	}
	s.cancel(cause)
}

// Active reports whether s has not been cancelled.
func (s *Scope) Active() bool {
	return s.ctx.Err() == nil
}

// Done returns a channel closed when s is cancelled.
func (s *Scope) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context returns the context backing s.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Err returns nil while s is active, otherwise the cancellation cause.
func (s *Scope) Err() error {
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}

// OnCancel registers fn to run in its own goroutine once s is cancelled.
// If s is already cancelled fn runs immediately. The returned function
// unregisters fn and reports whether it was stopped before running.
func (s *Scope) OnCancel(fn func()) (stop func() bool) {
	stop = context.AfterFunc(s.ctx, fn)
	s.mu.Lock()
	s.stop = append(s.stop, stop)
	s.mu.Unlock()
	return stop
}

// Release unregisters every OnCancel callback that has not yet run.
func (s *Scope) Release() {
	s.mu.Lock()
	stops := s.stop
	s.stop = nil
	s.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

// IsCancelled reports whether err was caused by a cancelled scope or context.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
