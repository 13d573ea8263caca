package proxy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// WebSocketSink sends each event as one text message on a WebSocket.
type WebSocketSink struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

// NewWebSocketSink wraps an upgraded connection.
func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

// Write sends data as a text message.
func (s *WebSocketSink) Write(data []byte) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// End sends a normal closure frame and closes the connection.
func (s *WebSocketSink) End() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Abort closes the underlying connection without a close frame.
func (s *WebSocketSink) Abort() {
	if s.closed.Swap(true) {
		return
	}
	_ = s.conn.Close()
}

// Closed reports whether End or Abort was called.
func (s *WebSocketSink) Closed() bool {
	return s.closed.Load()
}

// WatchPeer reads from the connection until it fails, which happens when the
// peer closes or goes silent past the pong deadline, then calls onGone. It
// also keeps the connection alive with pings. It returns when ctx is done or
// the peer is gone.
func (s *WebSocketSink) WatchPeer(ctx context.Context, onGone func()) {
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(ctx)

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if ctx.Err() == nil && !s.Closed() {
				onGone()
			}
			return
		}
	}
}

func (s *WebSocketSink) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
