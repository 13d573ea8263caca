package session

// Sink is the outbound side of a stream.
//
// Write sends one encoded event frame. End finishes the stream gracefully,
// flushing anything pending. Abort closes it immediately without a terminator;
// writes after Abort fail. Abort may be called from a goroutine other than the
// one writing and must be safe to call more than once.
type Sink interface {
	Write(frame []byte) error
	End() error
	Abort()
}
