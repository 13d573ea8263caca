// Package recorder hands transcripts to storage off the request path.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/relay/pkg/archive"
)

// Config contains configuration for the transcript recorder.
type Config struct {
	// AsyncBuffer is the size of the write queue.
	// Default: 256
	AsyncBuffer int

	// WriteTimeout bounds a single storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:  256,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes transcripts asynchronously. Record never blocks: when the
// queue is full the transcript is dropped and counted.
type Recorder struct {
	storage  archive.Storage
	config   *Config
	queue    chan *archive.Transcript
	done     chan struct{}
	closeMu  sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	dropped  atomic.Int64
	recorded atomic.Int64
	logger   *slog.Logger
}

// New creates a recorder writing to storage and starts its worker.
func New(storage archive.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		queue:   make(chan *archive.Transcript, config.AsyncBuffer),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "archive.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("transcript recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Record enqueues t. An empty ID is filled in.
func (r *Recorder) Record(t *archive.Transcript) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		r.logger.Warn("recorder closed, dropping transcript", "session_id", t.SessionID)
		return
	}

	select {
	case r.queue <- t:
	default:
		r.dropped.Add(1)
		r.logger.Error("transcript queue full, dropping transcript",
			"session_id", t.SessionID,
			"queue_capacity", r.config.AsyncBuffer,
		)
	}
}

// Dropped returns how many transcripts were dropped.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Recorded returns how many transcripts were written.
func (r *Recorder) Recorded() int64 {
	return r.recorded.Load()
}

// Close stops accepting transcripts and waits for the queue to drain.
func (r *Recorder) Close() error {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.closeMu.Unlock()

	r.wg.Wait()
	r.logger.Info("transcript recorder shut down", "recorded", r.Recorded(), "dropped", r.Dropped())
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case t := <-r.queue:
			r.write(t)
		case <-r.done:
			for {
				select {
				case t := <-r.queue:
					r.write(t)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(t *archive.Transcript) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, t); err != nil {
		r.logger.Error("failed to store transcript",
			"transcript_id", t.ID,
			"session_id", t.SessionID,
			"error", err,
		)
		return
	}
	r.recorded.Add(1)

	r.logger.Debug("transcript recorded",
		"transcript_id", t.ID,
		"session_id", t.SessionID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
