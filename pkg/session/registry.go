package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Record is one live stream owned by the registry.
type Record struct {
	SessionID string
	Token     *Token
	Sink      Sink
	StartedAt time.Time

	// Metadata is for observability only (model, message count, client).
	Metadata map[string]string

	// claimed is the cause under which Abort or ShutdownAll took the record.
	// Guarded by the registry lock.
	claimed error
}

// Snapshot is a point-in-time copy of a record, safe to hand out.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	StartedAt time.Time         `json:"started_at"`
	Elapsed   time.Duration     `json:"elapsed"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Observer is notified about registry changes. Calls happen outside the
// registry lock.
type Observer interface {
	ActiveStreams(n int)
	AbortRequested(found bool)
}

// Registry is the concurrency-safe map of active streams.
type Registry struct {
	mu       sync.Mutex
	records  map[string]*Record
	observer Observer
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver attaches an observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*Record),
		now:     time.Now,
		logger:  slog.Default().With("component", "session.registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts a record for id and returns it. An existing record with the
// same id is replaced but not cancelled; it keeps running until its own exit.
func (r *Registry) Register(id string, sink Sink, token *Token, metadata map[string]string) *Record {
	rec := &Record{
		SessionID: id,
		Token:     token,
		Sink:      sink,
		StartedAt: r.now(),
		Metadata:  copyMetadata(metadata),
	}

	r.mu.Lock()
	_, replaced := r.records[id]
	r.records[id] = rec
	n := len(r.records)
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("session id reused while still active, replacing record", "session_id", id)
	}
	r.notifyActive(n)
	return rec
}

// Unregister removes whatever record is stored under id. Missing ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, ok := r.records[id]
	delete(r.records, id)
	n := len(r.records)
	r.mu.Unlock()

	if ok {
		r.notifyActive(n)
	}
}

// Release removes rec if it is still the record stored under its id. It is
// what a stream calls before its terminal frame and again on exit: a stream
// whose id was taken over by a newer registration leaves the newer record
// alone.
//
// Release returns nil while the stream still owns its sink. Once Abort or
// ShutdownAll has taken the record it returns their cause
// (ErrAbortedByCaller, ErrShutdown) and the sink must not be written to.
func (r *Registry) Release(rec *Record) error {
	if rec == nil {
		return nil
	}

	r.mu.Lock()
	cur, ok := r.records[rec.SessionID]
	removed := ok && cur == rec
	if removed {
		delete(r.records, rec.SessionID)
	}
	claimed := rec.claimed
	n := len(r.records)
	r.mu.Unlock()

	if removed {
		r.notifyActive(n)
	}
	return claimed
}

// Abort cancels the stream registered under id, closes its sink without a
// terminator and removes it. It returns false if no such stream exists, which
// includes a stream that finished just before the call.
func (r *Registry) Abort(id string) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		delete(r.records, id)
		rec.claimed = ErrAbortedByCaller
	}
	n := len(r.records)
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.AbortRequested(ok)
	}
	if !ok {
		return false
	}

	rec.Token.Cancel(ErrAbortedByCaller)
	rec.Sink.Abort()
	r.notifyActive(n)

	r.logger.Info("session aborted", "session_id", id, "elapsed_ms", r.now().Sub(rec.StartedAt).Milliseconds())
	return true
}

// List returns a snapshot of the active streams ordered by start time.
func (r *Registry) List() []Snapshot {
	now := r.now()

	r.mu.Lock()
	out := make([]Snapshot, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, Snapshot{
			SessionID: rec.SessionID,
			StartedAt: rec.StartedAt,
			Elapsed:   now.Sub(rec.StartedAt),
			Metadata:  copyMetadata(rec.Metadata),
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of active streams.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// ShutdownAll cancels every active stream, ends each sink gracefully and
// empties the registry. Sinks are ended concurrently; ctx bounds the wait.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	records := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		rec.claimed = ErrShutdown
		records = append(records, rec)
	}
	r.records = make(map[string]*Record)
	r.mu.Unlock()

	if len(records) == 0 {
		return nil
	}

	r.logger.Info("shutting down active sessions", "count", len(records))

	var wg sync.WaitGroup
	for _, rec := range records {
		rec.Token.Cancel(ErrShutdown)
		wg.Add(1)
		go func(rec *Record) {
			defer wg.Done()
			if err := rec.Sink.End(); err != nil {
				r.logger.Debug("sink end failed during shutdown", "session_id", rec.SessionID, "error", err)
			}
		}(rec)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	r.notifyActive(0)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, rec := range records {
			rec.Sink.Abort()
		}
		return ctx.Err()
	}
}

func (r *Registry) notifyActive(n int) {
	if r.observer != nil {
		r.observer.ActiveStreams(n)
	}
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
