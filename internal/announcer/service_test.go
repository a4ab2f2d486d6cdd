package announcer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"announcerd/internal/gateway"
	"announcerd/internal/journal"

	"announcerd/pkg/logx"
)

type panicPosts struct{}

func (panicPosts) ListPending(ctx context.Context) ([]gateway.Post, error) {
	panic("exploded")
}

func (panicPosts) RequestAnnouncement(ctx context.Context, id string) (bool, error) {
	return false, nil
}

type memJournal struct {
	mu   sync.Mutex
	recs []journal.TickRecord
}

func (j *memJournal) RecordTick(ctx context.Context, rec journal.TickRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, rec)
	return nil
}

func (j *memJournal) RecentTicks(ctx context.Context, n int) ([]journal.TickRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.TickRecord(nil), j.recs...), nil
}

func (j *memJournal) Close() error { return nil }

func TestRunTicksSequentially(t *testing.T) {
	t.Parallel()

	posts := &fakePosts{}
	s := newTestService(t, posts, &fakeAccounts{}, &fakeMail{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps int
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	s.sleep = func(c context.Context, d time.Duration) error {
		if d != 5*time.Second {
			t.Errorf("sleep duration = %v, want 5s", d)
		}
		sleeps++
		if sleeps == 3 {
			cancel()
			return c.Err()
		}
		return nil
	}

	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	// One tick before each sleep: three sleeps means three completed ticks,
	// never overlapping.
	if posts.listCalls != 3 {
		t.Fatalf("listCalls = %d, want 3", posts.listCalls)
	}
}

func TestRunSurvivesPanic(t *testing.T) {
	t.Parallel()

	jnl := &memJournal{}
	s, err := New(Config{Schedule: "1s"}, panicPosts{}, &fakeAccounts{}, &fakeMail{}, jnl, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps int
	s.sleep = func(c context.Context, d time.Duration) error {
		sleeps++
		if sleeps == 2 {
			cancel()
			return c.Err()
		}
		return nil
	}

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}

	jnl.mu.Lock()
	defer jnl.mu.Unlock()
	if len(jnl.recs) == 0 {
		t.Fatal("expected journaled ticks")
	}
	for _, rec := range jnl.recs {
		if rec.Stage != stagePanic {
			t.Fatalf("stage = %q, want %q", rec.Stage, stagePanic)
		}
		if rec.Error == "" {
			t.Fatal("panic record should carry the panic value")
		}
	}
}

func TestApplySwapsSchedule(t *testing.T) {
	t.Parallel()

	s := newTestService(t, &fakePosts{}, &fakeAccounts{}, &fakeMail{})

	if err := s.Apply(Config{Schedule: "30s", LinkBaseURL: "http://y/"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := s.schedule().Wait(now); got != 30*time.Second {
		t.Fatalf("Wait = %v, want 30s", got)
	}
	if got := s.linkBase(); got != "http://y/" {
		t.Fatalf("linkBase = %q", got)
	}

	if err := s.Apply(Config{Schedule: "bogus"}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	// A failed Apply must not clobber the live config.
	if got := s.schedule().Wait(now); got != 30*time.Second {
		t.Fatalf("Wait after failed Apply = %v, want 30s", got)
	}
}

func TestTickRecordTiming(t *testing.T) {
	t.Parallel()

	s := newTestService(t, &fakePosts{}, &fakeAccounts{}, &fakeMail{})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	s.now = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(250 * time.Millisecond)
	}

	rec := s.safeTick(context.Background())
	if !rec.At.Equal(base) {
		t.Fatalf("At = %v, want %v", rec.At, base)
	}
	if rec.TookMS != 250 {
		t.Fatalf("TookMS = %d, want 250", rec.TookMS)
	}
}
