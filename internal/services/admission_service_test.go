package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/room-access-backend/internal/domain"
)

func TestPropose_EntitledStagesTake(t *testing.T) {
	e := newEnv(t)
	e.permit(t, e.room.ID)
	s := e.open(t)

	before := testutil.ToFloat64(proposalsTotal.WithLabelValues("staged"))
	res, err := e.admission.Propose(context.Background(), "KEY-101", s.ID, false)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if res.Cancelled || res.Operation.OperationType != domain.OperationTake || !res.Operation.Entitled {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.Operation.Timestamp.Equal(e.clock.Now()) {
		t.Fatalf("pending timestamp = %v; want %v", res.Operation.Timestamp, e.clock.Now())
	}
	if got := testutil.ToFloat64(proposalsTotal.WithLabelValues("staged")); got != before+1 {
		t.Fatalf("staged counter = %v; want %v", got, before+1)
	}

	// The projection is untouched until approval.
	d, _ := e.registry.GetDevice(context.Background(), "KEY-101")
	if d.IsTaken {
		t.Fatalf("device must not be taken before approval")
	}
}

func TestPropose_PermissionGating(t *testing.T) {
	e := newEnv(t)
	s := e.open(t)
	ctx := context.Background()

	_, err := e.admission.Propose(ctx, "KEY-101", s.ID, false)
	if !errors.Is(err, ErrNotEntitled) || !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden take, got %v", err)
	}
	if n := e.pendingCount(t, s.ID); n != 0 {
		t.Fatalf("denied scan must not stage, got %d rows", n)
	}

	res, err := e.admission.Propose(ctx, "KEY-101", s.ID, true)
	if err != nil {
		t.Fatalf("forced Propose: %v", err)
	}
	if res.Operation.Entitled {
		t.Fatalf("forced operation must be recorded as not entitled")
	}
}

func TestPropose_RescanIsRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.permit(t, e.room.ID)
	s := e.open(t)
	ctx := context.Background()

	first, err := e.admission.Propose(ctx, "KEY-101", s.ID, false)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := e.admission.Propose(ctx, "KEY-101", s.ID, false)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if !second.Cancelled || second.Operation.ID != first.Operation.ID {
		t.Fatalf("rescan must cancel the staged row, got %+v", second)
	}
	if n := e.pendingCount(t, s.ID); n != 0 {
		t.Fatalf("ledger must be back to empty, got %d rows", n)
	}
}

func TestPropose_RescanCancelsEvenWhenNoLongerEntitled(t *testing.T) {
	e := newEnv(t)
	s := e.open(t)
	ctx := context.Background()

	if _, err := e.admission.Propose(ctx, "KEY-101", s.ID, true); err != nil {
		t.Fatalf("forced scan: %v", err)
	}
	res, err := e.admission.Propose(ctx, "KEY-101", s.ID, false)
	if err != nil || !res.Cancelled {
		t.Fatalf("cancel must bypass entitlement, got res=%+v err=%v", res, err)
	}
}

func TestPropose_ReturnAdmissionIsAsymmetricByDefault(t *testing.T) {
	e := newEnv(t)
	e.permit(t, e.room.ID)
	ctx := context.Background()

	s1 := e.open(t)
	if _, err := e.admission.Propose(ctx, "KEY-101", s1.ID, false); err != nil {
		t.Fatalf("take: %v", err)
	}
	if _, err := e.approval.Approve(ctx, s1.ID, e.conciergeCreds()); err != nil {
		t.Fatalf("approve take: %v", err)
	}

	// Permission window is over; the borrower still brings the key back.
	e.clock.Advance(2 * time.Hour)
	s2 := e.open(t)
	res, err := e.admission.Propose(ctx, "KEY-101", s2.ID, false)
	if err != nil {
		t.Fatalf("unentitled return must be admitted: %v", err)
	}
	if res.Operation.OperationType != domain.OperationReturn || res.Operation.Entitled {
		t.Fatalf("unexpected return staging: %+v", res.Operation)
	}

	if _, err := e.admission.Propose(ctx, "KEY-101", s2.ID, false); err != nil {
		t.Fatalf("cancel return: %v", err)
	}
	e.admission.DenyReturns = true
	if _, err := e.admission.Propose(ctx, "KEY-101", s2.ID, false); !errors.Is(err, ErrNotEntitled) {
		t.Fatalf("symmetric mode must deny unentitled returns, got %v", err)
	}
}

func TestPropose_Preconditions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.open(t)

	if _, err := e.admission.Propose(ctx, "NOPE", s.ID, true); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if _, err := e.admission.Propose(ctx, "KEY-101", 9999, true); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if _, err := e.approval.Reject(ctx, s.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := e.admission.Propose(ctx, "KEY-101", s.ID, true); !errors.Is(err, ErrConflict) {
		t.Fatalf("closed session must be a conflict, got %v", err)
	}
}

func TestPropose_ConcurrentScansKeepOneRow(t *testing.T) {
	e := newEnv(t)
	s := e.open(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.admission.Propose(ctx, "KEY-101", s.ID, true)
		}()
	}
	wg.Wait()

	if n := e.pendingCount(t, s.ID); n > 1 {
		t.Fatalf("at most one pending row per (device, session), got %d", n)
	}
}

func TestListPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.open(t)
	e.addDevice(t, "MIC-101", domain.DeviceMicrophone)

	if _, err := e.admission.Propose(ctx, "KEY-101", s.ID, true); err != nil {
		t.Fatalf("scan key: %v", err)
	}
	e.clock.Advance(time.Second)
	if _, err := e.admission.Propose(ctx, "MIC-101", s.ID, true); err != nil {
		t.Fatalf("scan mic: %v", err)
	}

	ops, err := e.admission.ListPending(ctx, s.ID)
	if err != nil || len(ops) != 2 || ops[0].DeviceID != e.device.ID {
		t.Fatalf("ListPending: %+v err=%v", ops, err)
	}
	if _, err := e.admission.ListPending(ctx, 4242); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
