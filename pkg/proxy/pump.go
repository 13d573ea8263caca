package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"mercator-hq/relay/pkg/archive"
	"mercator-hq/relay/pkg/session"
)

// State is a stream's position in its lifecycle.
type State string

// Stream states. Completed, Aborted and Errored are terminal.
const (
	StateStarted   State = "started"
	StateRelaying  State = "relaying"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateErrored   State = "errored"
)

// ChunkSource is a finite, single-pass sequence of raw chunks. Next returns
// io.EOF at the natural end.
type ChunkSource interface {
	Next() ([]byte, error)
	Close() error
}

// Releaser removes a record from the session registry. A non-nil result
// means the registry already took the record (abort, shutdown) and owns the
// sink from then on.
type Releaser interface {
	Release(rec *session.Record) error
}

// StreamObserver is told about relayed chunks and finished streams.
type StreamObserver interface {
	StreamChunk()
	StreamFinished(state State, duration time.Duration)
}

// TranscriptRecorder accepts completed exchanges for archiving. Record must
// not block.
type TranscriptRecorder interface {
	Record(t *archive.Transcript)
}

// PumpResult describes how a stream ended.
type PumpResult struct {
	State    State
	Chunks   int
	Duration time.Duration

	// Err is the upstream or sink error that ended the stream, if any.
	Err error
}

// Pump drains upstream chunks into a record's sink.
type Pump struct {
	registry    Releaser
	idleTimeout time.Duration
	observer    StreamObserver
	recorder    TranscriptRecorder
	logger      *slog.Logger
}

// PumpOption configures a Pump.
type PumpOption func(*Pump)

// WithIdleTimeout fails a stream that produces no chunk for d. Zero disables.
func WithIdleTimeout(d time.Duration) PumpOption {
	return func(p *Pump) { p.idleTimeout = d }
}

// WithStreamObserver attaches a stream observer.
func WithStreamObserver(o StreamObserver) PumpOption {
	return func(p *Pump) { p.observer = o }
}

// WithTranscriptRecorder archives completed streams.
func WithTranscriptRecorder(r TranscriptRecorder) PumpOption {
	return func(p *Pump) { p.recorder = r }
}

// NewPump creates a pump releasing records into registry.
func NewPump(registry Releaser, opts ...PumpOption) *Pump {
	p := &Pump{
		registry: registry,
		logger:   slog.Default().With("component", "proxy.pump"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run relays src into rec.Sink until the stream reaches a terminal state.
//
// Cancellation, whatever its source, ends the stream without output. Any
// other failure produces exactly one error event. The record is released
// from the registry on every exit.
func (p *Pump) Run(ctx context.Context, rec *session.Record, src ChunkSource, env *Envelope) PumpResult {
	start := time.Now()
	token := rec.Token
	acc := archive.NewAccumulator(0)

	res := PumpResult{State: StateStarted}

	released := false
	release := func() error {
		released = true
		return p.registry.Release(rec)
	}

	defer func() {
		if !released {
			_ = release()
		}
		src.Close()

		res.Duration = time.Since(start)
		if p.observer != nil {
			p.observer.StreamFinished(res.State, res.Duration)
		}
		if res.State == StateCompleted && p.recorder != nil {
			p.recorder.Record(p.transcript(rec, env, acc, start))
		}
		p.log(ctx, rec, res)
	}()

	var idle *time.Timer
	if p.idleTimeout > 0 {
		idle = time.AfterFunc(p.idleTimeout, func() { token.Cancel(session.ErrIdleTimeout) })
		defer idle.Stop()
	}

	res.State = StateRelaying
	for {
		chunk, err := src.Next()
		if err != nil {
			res.State, res.Err = p.finish(rec, err, release)
			return res
		}

		// Only upstream silence counts against the idle window.
		if idle != nil {
			idle.Stop()
		}

		if err := rec.Sink.Write(chunk); err != nil {
			token.Cancel(session.ErrClientDisconnected)
			res.State, res.Err = StateAborted, err
			return res
		}

		if idle != nil {
			idle.Reset(p.idleTimeout)
		}

		res.Chunks++
		acc.Add(chunk)
		if p.observer != nil {
			p.observer.StreamChunk()
		}
	}
}

// finish picks the terminal state once the source stopped yielding chunks.
// The record leaves the registry before any terminal frame, so an Abort
// arriving later finds nothing and never touches a finished sink.
func (p *Pump) finish(rec *session.Record, err error, release func() error) (State, error) {
	token := rec.Token

	if claimed := release(); claimed != nil {
		return StateAborted, claimed
	}
	if token.Silent() {
		return StateAborted, token.Cause()
	}

	if errors.Is(err, io.EOF) && !token.Cancelled() {
		if werr := rec.Sink.Write(DonePayload); werr != nil {
			token.Cancel(session.ErrClientDisconnected)
			return StateAborted, werr
		}
		if eerr := rec.Sink.End(); eerr != nil {
			p.logger.Debug("sink end failed", "session_id", rec.SessionID, "error", eerr)
		}
		return StateCompleted, nil
	}

	// A non-silent cancellation (idle timeout) reports its cause rather than
	// the resulting read error.
	if cause := token.Cause(); cause != nil {
		err = cause
	}

	if werr := rec.Sink.Write(ErrorPayload(HandleError(err))); werr != nil {
		token.Cancel(session.ErrClientDisconnected)
		return StateAborted, err
	}
	if eerr := rec.Sink.End(); eerr != nil {
		p.logger.Debug("sink end failed", "session_id", rec.SessionID, "error", eerr)
	}
	return StateErrored, err
}

func (p *Pump) transcript(rec *session.Record, env *Envelope, acc *archive.Accumulator, start time.Time) *archive.Transcript {
	t := &archive.Transcript{
		SessionID:   rec.SessionID,
		Mode:        ModeStreaming.String(),
		Content:     acc.Content(),
		Chunks:      acc.Chunks(),
		Outcome:     string(StateCompleted),
		StartedAt:   start,
		CompletedAt: time.Now(),
	}
	if env != nil {
		t.Model = env.Model
		t.Path = env.Path
		t.Messages = env.MessageCount
	}
	return t
}

func (p *Pump) log(ctx context.Context, rec *session.Record, res PumpResult) {
	attrs := []any{
		"session_id", rec.SessionID,
		"state", string(res.State),
		"chunks", res.Chunks,
		"duration_ms", res.Duration.Milliseconds(),
	}

	switch res.State {
	case StateErrored:
		p.logger.WarnContext(ctx, "stream failed", append(attrs, "error", res.Err)...)
	case StateAborted:
		p.logger.InfoContext(ctx, "stream cancelled", append(attrs, "cause", res.Err)...)
	default:
		p.logger.InfoContext(ctx, "stream completed", attrs...)
	}
}
