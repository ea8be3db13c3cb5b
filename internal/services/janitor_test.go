package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
)

func TestJanitor_RunOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := e.clock.Now()

	if _, err := e.perms.Grant(ctx, e.borrower.ID, e.room.ID, now.Add(-72*time.Hour), now.Add(-71*time.Hour)); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := repo.BlacklistToken(ctx, e.db, "old-token", now.Add(-time.Minute)); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	stale := &domain.Idempotency{
		ID: "stale", ActorID: e.concierge.ID, Scope: "scope", Key: "k1", Status: 201,
		Body: []byte(`{}`), CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute),
	}
	if err := e.db.Create(stale).Error; err != nil {
		t.Fatalf("idempotency: %v", err)
	}

	before := testutil.ToFloat64(janitorPrunedTotal.WithLabelValues("permissions"))
	j := NewJanitor(e.perms, e.auth, NewIdempotencyService(e.db, e.clock, time.Hour), 24*time.Hour, time.Minute)
	rep, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep != (PruneReport{Permissions: 1, Tokens: 1, Idempotency: 1}) {
		t.Fatalf("report = %+v", rep)
	}
	if got := testutil.ToFloat64(janitorPrunedTotal.WithLabelValues("permissions")); got != before+1 {
		t.Fatalf("counter = %v; want %v", got, before+1)
	}

	rep, _ = j.RunOnce(ctx)
	if rep != (PruneReport{}) {
		t.Fatalf("second pass must be empty, got %+v", rep)
	}
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewJanitor(e.perms, e.auth, NewIdempotencyService(e.db, e.clock, time.Hour), time.Hour, time.Millisecond).Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestJanitor_RunOnceReportsStoreFailure(t *testing.T) {
	e := newEnv(t)
	sqlDB, err := e.db.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	_ = sqlDB.Close()

	j := NewJanitor(e.perms, e.auth, NewIdempotencyService(e.db, e.clock, time.Hour), time.Hour, time.Minute)
	rep, err := j.RunOnce(context.Background())
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("want ErrInternal, got %v", err)
	}
	if rep != (PruneReport{}) {
		t.Fatalf("nothing can be pruned on a closed store, got %+v", rep)
	}
}
