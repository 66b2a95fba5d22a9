package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/store"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob(DefaultPruneSpec, func() {}); err != nil {
		t.Errorf("Expected descriptor to be accepted, got %v", err)
	}
	if err := s.AddJob("not a schedule", func() {}); err == nil {
		t.Error("Expected error for invalid expression")
	}
}

type stubPruner struct {
	before time.Time
	n      int64
	err    error
	calls  int
}

func (p *stubPruner) PruneSessions(ctx context.Context, before time.Time) (int64, error) {
	p.calls++
	p.before = before
	return p.n, p.err
}

func TestJanitorRunOnce(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &stubPruner{n: 3}
	j := NewJanitor(p, time.Hour)
	j.now = func() time.Time { return now }

	n, err := j.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	if !p.before.Equal(now.Add(-time.Hour)) {
		t.Errorf("unexpected cutoff %v", p.before)
	}
}

func TestJanitorRunOnceError(t *testing.T) {
	p := &stubPruner{err: errors.New("db down")}
	if _, err := NewJanitor(p, time.Hour).RunOnce(context.Background()); err == nil {
		t.Error("expected prune error to be returned")
	}
}

func TestJanitorDisabledWithoutTTL(t *testing.T) {
	p := &stubPruner{}
	if _, err := NewJanitor(p, 0).RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls != 0 {
		t.Error("expected no prune without a TTL")
	}
}

func TestJanitorPrunesMemoryStore(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	idle := models.NewSession("idle", time.Now().Add(-2*time.Hour))
	idle.UpdatedAt = time.Now().Add(-2 * time.Hour)
	active := models.NewSession("active", time.Now())
	active.UpdatedAt = time.Now()
	for _, s := range []*models.Session{idle, active} {
		if err := st.SaveSession(ctx, s); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	if _, err := NewJanitor(st, time.Hour).RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if st.Len() != 1 {
		t.Errorf("expected 1 session left, got %d", st.Len())
	}
}

func TestJanitorScheduleRejectsBadSpec(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := NewJanitor(&stubPruner{}, time.Hour).Schedule(context.Background(), s, "bogus"); err == nil {
		t.Error("expected error for invalid spec")
	}
}
