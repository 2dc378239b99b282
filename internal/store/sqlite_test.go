package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/twitter-mcp/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionAuditLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	created := time.UnixMilli(1_700_000_000_000)

	if err := s.RecordSessionOpened(ctx, &domain.SessionRecord{ID: "s1", Transport: "streamable", RemoteIP: "10.0.0.1", CreatedAt: created}); err != nil {
		t.Fatalf("RecordSessionOpened failed: %v", err)
	}

	rec, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec == nil || !rec.Open() || rec.Transport != "streamable" || rec.RemoteIP != "10.0.0.1" {
		t.Fatalf("unexpected session row: %+v", rec)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at %v, got %v", created, rec.CreatedAt)
	}

	closed := created.Add(time.Minute)
	if err := s.RecordSessionClosed(ctx, "s1", closed); err != nil {
		t.Fatalf("RecordSessionClosed failed: %v", err)
	}
	// A second close keeps the first timestamp.
	if err := s.RecordSessionClosed(ctx, "s1", closed.Add(time.Hour)); err != nil {
		t.Fatalf("second RecordSessionClosed failed: %v", err)
	}

	rec, err = s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec.Open() || !rec.ClosedAt.Equal(closed) {
		t.Fatalf("expected closed_at %v, got %+v", closed, rec.ClosedAt)
	}
}

func TestGetSessionMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	rec, err := s.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil row, got %+v", rec)
	}
}

func TestCloseOpenSessions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.RecordSessionOpened(ctx, &domain.SessionRecord{ID: id, Transport: "sse", CreatedAt: now}); err != nil {
			t.Fatalf("RecordSessionOpened(%s) failed: %v", id, err)
		}
	}
	if err := s.RecordSessionClosed(ctx, "a", now); err != nil {
		t.Fatalf("RecordSessionClosed failed: %v", err)
	}

	n, err := s.CloseOpenSessions(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("CloseOpenSessions failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows closed, got %d", n)
	}
}

func TestPostLog(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	first := &domain.PostRecord{PostID: "41", Username: "alice", Content: "first", CreatedAt: base}
	second := &domain.PostRecord{
		PostID:    "42",
		SessionID: "s1",
		Username:  "alice",
		Content:   "second",
		Images:    []string{"https://img/a.png"},
		URL:       "https://twitter.com/alice/status/42",
		CreatedAt: base.Add(time.Second),
	}
	for _, p := range []*domain.PostRecord{first, second} {
		if err := s.RecordPost(ctx, p); err != nil {
			t.Fatalf("RecordPost failed: %v", err)
		}
		if p.ID == 0 {
			t.Fatal("expected row id to be set")
		}
	}

	posts, err := s.ListPosts(ctx, 10)
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].PostID != "42" || posts[0].SessionID != "s1" || len(posts[0].Images) != 1 {
		t.Fatalf("unexpected newest post: %+v", posts[0])
	}
	if posts[1].Images == nil || len(posts[1].Images) != 0 {
		t.Fatalf("expected empty image list, got %#v", posts[1].Images)
	}

	limited, err := s.ListPosts(ctx, 1)
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 post, got %d", len(limited))
	}
}

func TestConcurrentPostWrites(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.RecordPost(ctx, &domain.PostRecord{PostID: "p", Username: "u", Content: "c", CreatedAt: time.Now()})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent RecordPost failed: %v", err)
		}
	}

	posts, err := s.ListPosts(ctx, 0)
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if len(posts) != 20 {
		t.Fatalf("expected 20 posts, got %d", len(posts))
	}
}
