package session

import (
	"context"
	"errors"
)

var (
	// ErrAbortedByCaller is the cause recorded when a stream is aborted
	// through the registry.
	ErrAbortedByCaller = errors.New("session aborted by caller")

	// ErrClientDisconnected is the cause recorded when the client went away
	// or a write to the sink failed.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrShutdown is the cause recorded when the relay is shutting down.
	ErrShutdown = errors.New("relay shutting down")

	// ErrIdleTimeout is the cause recorded when the upstream produced no
	// chunk within the configured idle window.
	ErrIdleTimeout = errors.New("upstream idle timeout")
)

// Token is a single-signal cancellation object shared by everything working
// on one stream. Once cancelled it stays cancelled and keeps the first cause.
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewToken creates a token derived from parent's values but not from its
// cancellation. Request contexts end when the handler returns, and the stream
// decides for itself when the client is gone.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel signals the token. A nil cause is recorded as context.Canceled.
// Only the first call has an effect.
func (t *Token) Cancel(cause error) {
	t.cancel(cause)
}

// Context returns a context that is done once the token is cancelled.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Done returns a channel closed on cancellation.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Cancelled reports whether the token has been signalled.
func (t *Token) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Cause returns the first cause passed to Cancel, or nil while the token is
// still live.
func (t *Token) Cause() error {
	if !t.Cancelled() {
		return nil
	}
	return context.Cause(t.ctx)
}

// Silent reports whether the token was cancelled for a reason the client is
// not told about.
func (t *Token) Silent() bool {
	return t.Cancelled() && IsSilent(t.Cause())
}

// IsSilent reports whether cause is a cancellation that should end the stream
// without telling the client anything.
func IsSilent(cause error) bool {
	return errors.Is(cause, ErrAbortedByCaller) ||
		errors.Is(cause, ErrClientDisconnected) ||
		errors.Is(cause, ErrShutdown) ||
		errors.Is(cause, context.Canceled)
}
