package upstream

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"mercator-hq/relay/pkg/session"
)

// maxLineSize bounds a single SSE line from the upstream.
const maxLineSize = 4 << 20

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// ChunkStream is the lazy, finite sequence of chunks of one streaming call.
// It is not restartable and is meant to be drained by a single goroutine.
type ChunkStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	token   *session.Token

	closeOnce sync.Once
	done      bool
}

func newChunkStream(body io.ReadCloser, token *session.Token) *ChunkStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &ChunkStream{body: body, scanner: scanner, token: token}
}

// Next returns the payload of the next data event, as received. It returns
// io.EOF at the natural end of the stream (upstream [DONE] or end of body) and
// ErrCancelled as soon as the token has fired.
func (s *ChunkStream) Next() ([]byte, error) {
	if s.token.Cancelled() {
		s.Close()
		return nil, ErrCancelled
	}
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 || !bytes.HasPrefix(line, dataPrefix) {
			// blank separators, comments, event/id/retry fields
			continue
		}

		data := bytes.TrimSpace(line[len(dataPrefix):])
		if bytes.Equal(data, doneMarker) {
			s.Close()
			return nil, io.EOF
		}

		if s.token.Cancelled() {
			s.Close()
			return nil, ErrCancelled
		}

		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	err := s.scanner.Err()
	if s.token.Cancelled() {
		s.Close()
		return nil, ErrCancelled
	}
	if err != nil {
		s.Close()
		return nil, &StreamError{Message: "failed to read stream", Cause: err}
	}

	s.Close()
	return nil, io.EOF
}

// Close releases the upstream connection. It is safe to call more than once.
func (s *ChunkStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.done = true
		err = s.body.Close()
	})
	return err
}
