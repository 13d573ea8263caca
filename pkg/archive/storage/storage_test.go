package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/relay/pkg/archive"
)

func backends(t *testing.T) map[string]archive.Storage {
	t.Helper()

	out := map[string]archive.Storage{"memory": NewMemoryStorage()}
	for _, driver := range []string{DriverModernc, DriverMattn} {
		s, err := NewSQLiteStorage(&SQLiteConfig{
			Path:        filepath.Join(t.TempDir(), driver+".db"),
			Driver:      driver,
			WALMode:     true,
			BusyTimeout: time.Second,
		})
		if err != nil {
			t.Fatalf("NewSQLiteStorage(%s) error = %v", driver, err)
		}
		t.Cleanup(func() { s.Close() })
		out["sqlite/"+driver] = s
	}
	return out
}

func transcript(id, session string, completed time.Time) *archive.Transcript {
	return &archive.Transcript{
		ID:          id,
		SessionID:   session,
		Model:       "gpt-4o",
		Mode:        "streaming",
		Path:        "/chat/completions",
		Messages:    2,
		Content:     "hello " + id,
		Chunks:      3,
		Outcome:     "completed",
		StartedAt:   completed.Add(-time.Second),
		CompletedAt: completed,
	}
}

func TestStorage_StoreGetQuery(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"a", "b", "c"} {
				session := "s1"
				if id == "c" {
					session = "s2"
				}
				if err := s.Store(ctx, transcript(id, session, base.Add(time.Duration(i)*time.Minute))); err != nil {
					t.Fatalf("Store() error = %v", err)
				}
			}

			got, err := s.Get(ctx, "b")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Content != "hello b" || got.Chunks != 3 || got.Messages != 2 {
				t.Errorf("unexpected transcript: %+v", got)
			}
			if !got.CompletedAt.Equal(base.Add(time.Minute)) {
				t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, base.Add(time.Minute))
			}

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, archive.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}

			all, err := s.Query(ctx, &archive.Query{})
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 3 || all[0].ID != "c" {
				t.Errorf("expected 3 results newest first, got %d (first %q)", len(all), all[0].ID)
			}

			bySession, _ := s.Query(ctx, &archive.Query{SessionID: "s1"})
			if len(bySession) != 2 {
				t.Errorf("expected 2 results for s1, got %d", len(bySession))
			}

			limited, _ := s.Query(ctx, &archive.Query{Limit: 1})
			if len(limited) != 1 {
				t.Errorf("expected limit to apply, got %d", len(limited))
			}

			n, _ := s.Count(ctx)
			if n != 3 {
				t.Errorf("Count() = %d, want 3", n)
			}
		})
	}
}

func TestStorage_DeleteBefore(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.Store(ctx, transcript("old", "s", base.AddDate(0, 0, -40)))
			_ = s.Store(ctx, transcript("new", "s", base))

			deleted, err := s.DeleteBefore(ctx, base.AddDate(0, 0, -30))
			if err != nil {
				t.Fatalf("DeleteBefore() error = %v", err)
			}
			if deleted != 1 {
				t.Errorf("deleted = %d, want 1", deleted)
			}
			if _, err := s.Get(ctx, "new"); err != nil {
				t.Errorf("recent transcript should survive: %v", err)
			}
		})
	}
}

func TestNewSQLiteStorage_UnknownDriver(t *testing.T) {
	_, err := NewSQLiteStorage(&SQLiteConfig{Path: ":memory:", Driver: "postgres"})
	var storageErr *archive.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}
