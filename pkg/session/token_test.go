package session

import (
	"context"
	"errors"
	"testing"
)

func TestToken_FirstCauseWins(t *testing.T) {
	token := NewToken(context.Background())
	if token.Cancelled() || token.Cause() != nil {
		t.Fatal("new token should be live")
	}

	token.Cancel(ErrClientDisconnected)
	token.Cancel(ErrAbortedByCaller)

	if !token.Cancelled() {
		t.Fatal("expected token to be cancelled")
	}
	if !errors.Is(token.Cause(), ErrClientDisconnected) {
		t.Errorf("expected first cause to be kept, got %v", token.Cause())
	}
	select {
	case <-token.Done():
	default:
		t.Error("Done channel should be closed")
	}
}

func TestToken_DetachedFromParentCancellation(t *testing.T) {
	type key struct{}
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "v"))
	token := NewToken(parent)
	cancel()

	if token.Cancelled() {
		t.Error("parent cancellation must not cancel the token")
	}
	if token.Context().Value(key{}) != "v" {
		t.Error("expected parent values to be visible")
	}
}

func TestIsSilent(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		want  bool
	}{
		{name: "caller abort", cause: ErrAbortedByCaller, want: true},
		{name: "disconnect", cause: ErrClientDisconnected, want: true},
		{name: "shutdown", cause: ErrShutdown, want: true},
		{name: "plain cancel", cause: context.Canceled, want: true},
		{name: "idle timeout", cause: ErrIdleTimeout, want: false},
		{name: "other", cause: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSilent(tt.cause); got != tt.want {
				t.Errorf("IsSilent(%v) = %v, want %v", tt.cause, got, tt.want)
			}
		})
	}
}
