package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSink struct {
	mu      sync.Mutex
	frames  [][]byte
	ends    int32
	aborts  int32
	endWait chan struct{}
}

func (s *fakeSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if atomic.LoadInt32(&s.aborts) > 0 {
		return errors.New("sink closed")
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) End() error {
	if s.endWait != nil {
		<-s.endWait
	}
	atomic.AddInt32(&s.ends, 1)
	return nil
}

func (s *fakeSink) Abort() {
	atomic.AddInt32(&s.aborts, 1)
}

type countingObserver struct {
	mu      sync.Mutex
	active  []int
	found   int
	missing int
}

func (o *countingObserver) ActiveStreams(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = append(o.active, n)
}

func (o *countingObserver) AbortRequested(found bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if found {
		o.found++
	} else {
		o.missing++
	}
}

func TestRegistry_RegisterThenList(t *testing.T) {
	r := NewRegistry()
	token := NewToken(context.Background())
	r.Register("s1", &fakeSink{}, token, map[string]string{"model": "gpt-4o"})

	list := r.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(list))
	}
	if list[0].SessionID != "s1" {
		t.Errorf("expected session s1, got %q", list[0].SessionID)
	}
	if list[0].Metadata["model"] != "gpt-4o" {
		t.Errorf("expected model metadata to be kept, got %v", list[0].Metadata)
	}
}

func TestRegistry_ListIsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("s1", &fakeSink{}, NewToken(context.Background()), map[string]string{"model": "a"})

	list := r.List()
	list[0].Metadata["model"] = "changed"
	r.Register("s2", &fakeSink{}, NewToken(context.Background()), nil)

	if len(list) != 1 {
		t.Errorf("snapshot should not see later registrations, got %d entries", len(list))
	}
	if got := r.List()[0].Metadata["model"]; got != "a" {
		t.Errorf("mutating a snapshot changed the registry: model=%q", got)
	}
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("s1", &fakeSink{}, NewToken(context.Background()), nil)

	r.Unregister("s1")
	r.Unregister("s1")
	r.Unregister("never-registered")

	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_Abort(t *testing.T) {
	obs := &countingObserver{}
	r := NewRegistry(WithObserver(obs))
	sink := &fakeSink{}
	token := NewToken(context.Background())
	r.Register("s1", sink, token, nil)

	if !r.Abort("s1") {
		t.Fatal("expected abort of registered session to return true")
	}
	if !token.Cancelled() {
		t.Error("expected token to be cancelled")
	}
	if !errors.Is(token.Cause(), ErrAbortedByCaller) {
		t.Errorf("expected cause ErrAbortedByCaller, got %v", token.Cause())
	}
	if atomic.LoadInt32(&sink.aborts) != 1 {
		t.Errorf("expected sink to be hard-closed once, got %d", sink.aborts)
	}
	if atomic.LoadInt32(&sink.ends) != 0 {
		t.Error("abort must not end the sink gracefully")
	}
	if len(r.List()) != 0 {
		t.Error("expected aborted session to be absent from List")
	}

	if r.Abort("s1") {
		t.Error("expected second abort to return false")
	}
	if atomic.LoadInt32(&sink.aborts) != 1 {
		t.Error("second abort must not touch the sink")
	}
	if obs.found != 1 || obs.missing != 1 {
		t.Errorf("observer saw found=%d missing=%d, want 1/1", obs.found, obs.missing)
	}
}

func TestRegistry_AbortUnknown(t *testing.T) {
	r := NewRegistry()
	if r.Abort("nope") {
		t.Error("expected abort of unknown id to return false")
	}
}

func TestRegistry_DuplicateRegisterLastWriteWins(t *testing.T) {
	r := NewRegistry()
	first := NewToken(context.Background())
	second := NewToken(context.Background())
	firstRec := r.Register("dup", &fakeSink{}, first, map[string]string{"n": "1"})
	secondRec := r.Register("dup", &fakeSink{}, second, map[string]string{"n": "2"})

	if first.Cancelled() {
		t.Error("replacing a record must not cancel the prior stream")
	}
	if got := r.List()[0].Metadata["n"]; got != "2" {
		t.Errorf("expected the second registration to win, got n=%q", got)
	}

	// The older stream finishing must leave the newer record in place.
	r.Release(firstRec)
	if r.Len() != 1 {
		t.Fatalf("expected newer record to survive, got %d records", r.Len())
	}

	r.Release(secondRec)
	r.Release(secondRec)
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_ShutdownAll(t *testing.T) {
	r := NewRegistry()
	var sinks []*fakeSink
	var tokens []*Token
	for i := 0; i < 5; i++ {
		s := &fakeSink{}
		tok := NewToken(context.Background())
		sinks = append(sinks, s)
		tokens = append(tokens, tok)
		r.Register(fmt.Sprintf("s%d", i), s, tok, nil)
	}

	if err := r.ShutdownAll(context.Background()); err != nil {
		t.Fatalf("ShutdownAll() error = %v", err)
	}

	if r.Len() != 0 {
		t.Errorf("expected empty registry after shutdown, got %d", r.Len())
	}
	for i := range sinks {
		if !errors.Is(tokens[i].Cause(), ErrShutdown) {
			t.Errorf("token %d: expected ErrShutdown, got %v", i, tokens[i].Cause())
		}
		if atomic.LoadInt32(&sinks[i].ends) != 1 {
			t.Errorf("sink %d: expected graceful end, got %d", i, sinks[i].ends)
		}
	}
}

func TestRegistry_ShutdownAllDeadline(t *testing.T) {
	r := NewRegistry()
	stuck := &fakeSink{endWait: make(chan struct{})}
	defer close(stuck.endWait)
	r.Register("slow", stuck, NewToken(context.Background()), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := r.ShutdownAll(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if atomic.LoadInt32(&stuck.aborts) != 1 {
		t.Error("expected stuck sink to be hard-closed after the deadline")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	const n = 10000

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			rec := r.Register(id, &fakeSink{}, NewToken(context.Background()), nil)
			if i%3 == 0 {
				r.Abort(id)
			}
			r.Release(rec)
		}(i)
	}
	wg.Wait()

	if got := r.Len(); got != 0 {
		t.Errorf("expected empty registry, got %d", got)
	}
}

func TestRegistry_AbortRacingCompletion(t *testing.T) {
	for i := 0; i < 200; i++ {
		r := NewRegistry()
		sink := &fakeSink{}
		rec := r.Register("race", sink, NewToken(context.Background()), nil)

		var aborted atomic.Bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			aborted.Store(r.Abort("race"))
		}()
		go func() {
			defer wg.Done()
			r.Release(rec)
		}()
		wg.Wait()

		aborts := atomic.LoadInt32(&sink.aborts)
		if aborted.Load() && aborts != 1 {
			t.Fatalf("abort returned true but sink closed %d times", aborts)
		}
		if !aborted.Load() && aborts != 0 {
			t.Fatalf("abort returned false but sink was closed")
		}
	}
}

func TestRegistry_ListOrderAndElapsed(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	r := NewRegistry(WithClock(func() time.Time { return now }))

	r.Register("b", &fakeSink{}, NewToken(context.Background()), nil)
	now = base.Add(time.Second)
	r.Register("a", &fakeSink{}, NewToken(context.Background()), nil)
	now = base.Add(3 * time.Second)

	list := r.List()
	if list[0].SessionID != "b" || list[1].SessionID != "a" {
		t.Errorf("expected start-time order [b a], got [%s %s]", list[0].SessionID, list[1].SessionID)
	}
	if list[0].Elapsed != 3*time.Second {
		t.Errorf("expected elapsed 3s, got %v", list[0].Elapsed)
	}
}

func TestRegistry_ReleaseReportsClaim(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	live := r.Register("live", &fakeSink{}, NewToken(ctx), nil)
	if err := r.Release(live); err != nil {
		t.Errorf("Release() of a live record = %v, want nil", err)
	}
	if r.Abort("live") {
		t.Error("Abort() after Release() must return false")
	}

	aborted := r.Register("aborted", &fakeSink{}, NewToken(ctx), nil)
	if !r.Abort("aborted") {
		t.Fatal("Abort() of a live record should succeed")
	}
	if err := r.Release(aborted); !errors.Is(err, ErrAbortedByCaller) {
		t.Errorf("Release() after Abort() = %v, want ErrAbortedByCaller", err)
	}

	shut := r.Register("shut", &fakeSink{}, NewToken(ctx), nil)
	if err := r.ShutdownAll(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Release(shut); !errors.Is(err, ErrShutdown) {
		t.Errorf("Release() after ShutdownAll() = %v, want ErrShutdown", err)
	}

	// A displaced duplicate was never claimed and still owns its sink.
	old := r.Register("dup", &fakeSink{}, NewToken(ctx), nil)
	r.Register("dup", &fakeSink{}, NewToken(ctx), nil)
	if !r.Abort("dup") {
		t.Fatal("Abort() should take the newer record")
	}
	if err := r.Release(old); err != nil {
		t.Errorf("Release() of displaced record = %v, want nil", err)
	}
}
