package archive

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Storage.Get for unknown ids.
var ErrNotFound = errors.New("transcript not found")

// Transcript is the archived result of one completed exchange.
type Transcript struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Model     string `json:"model,omitempty"`
	Mode      string `json:"mode"`
	Path      string `json:"path,omitempty"`

	// Messages is the number of messages in the request.
	Messages int `json:"messages"`

	// Content is the concatenated assistant text.
	Content string `json:"content"`

	// Chunks is the number of stream chunks relayed (0 for one-shot).
	Chunks int `json:"chunks"`

	Outcome     string    `json:"outcome"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Duration returns how long the exchange took.
func (t *Transcript) Duration() time.Duration {
	return t.CompletedAt.Sub(t.StartedAt)
}

// Query filters transcripts. Zero fields do not filter.
type Query struct {
	SessionID string
	Model     string
	Since     *time.Time
	Until     *time.Time

	// Limit caps the number of results, newest first. 0 means no limit.
	Limit int
}

// Storage persists transcripts. Implementations must be safe for concurrent use.
type Storage interface {
	Store(ctx context.Context, t *Transcript) error
	Query(ctx context.Context, q *Query) ([]*Transcript, error)
	Get(ctx context.Context, id string) (*Transcript, error)

	// DeleteBefore removes transcripts completed before cutoff and returns
	// how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Count(ctx context.Context) (int64, error)
	Close() error
}
