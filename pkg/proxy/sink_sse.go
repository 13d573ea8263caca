package proxy

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSinkClosed is returned by writes to a sink that was ended or aborted.
var ErrSinkClosed = errors.New("sink closed")

// SSESink writes events to an HTTP response as Server-Sent Events.
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	opened  bool
	ended   atomic.Bool
	aborted atomic.Bool
}

// NewSSESink wraps w. Nothing is written until Open or the first Write.
func NewSSESink(w http.ResponseWriter) *SSESink {
	return &SSESink{w: w, rc: http.NewResponseController(w)}
}

// Open sends the status line and stream headers so the client sees the
// stream start before the first chunk arrives.
func (s *SSESink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *SSESink) openLocked() error {
	if s.opened {
		return nil
	}
	s.opened = true
	SetSSEHeaders(s.w)
	s.w.WriteHeader(http.StatusOK)
	return s.rc.Flush()
}

// Write sends one event with data as its payload and flushes it.
func (s *SSESink) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended.Load() || s.aborted.Load() {
		return ErrSinkClosed
	}
	if err := s.openLocked(); err != nil {
		return err
	}

	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	return s.rc.Flush()
}

// End marks the stream finished. It writes nothing: End may run on another
// goroutine (shutdown), so the status line is left to Open on the handler
// goroutine and the response completes when the handler returns.
func (s *SSESink) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aborted.Load() {
		return nil
	}
	s.ended.Store(true)
	return nil
}

// Abort fails all further writes and unblocks a write in progress by
// expiring the write deadline. It does not take the write lock, so it never
// waits behind a slow client. The handler is expected to abort the
// connection once the pump returns. Abort after End is a no-op, so the
// deadline of a connection that may be reused is never touched.
func (s *SSESink) Abort() {
	if s.ended.Load() || s.aborted.Swap(true) {
		return
	}
	_ = s.rc.SetWriteDeadline(time.Now())
}

// Aborted reports whether Abort was called.
func (s *SSESink) Aborted() bool {
	return s.aborted.Load()
}
