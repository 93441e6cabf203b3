package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(store StoreAPI) *Service {
	svc := NewService(store, nil)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc
}

func TestAppendChainsMarks(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	first, err := svc.Append(ctx, "s1", KindIn, t0, nil)
	if err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if first.ChainLink != GenesisLink {
		t.Fatalf("first mark must link to genesis, got %q", first.ChainLink)
	}

	second, err := svc.Append(ctx, "s1", KindOut, t0.Add(8*time.Hour), nil)
	if err != nil {
		t.Fatalf("second append failed: %v", err)
	}
	if second.ChainLink != first.SelfHash {
		t.Fatalf("chain link mismatch: want %s, got %s", first.SelfHash, second.ChainLink)
	}
	if Recompute(second) != second.SelfHash {
		t.Fatal("stored self hash does not match recomputation")
	}
}

func TestAppendRejectsOutOfOrderEvent(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	if _, err := svc.Append(ctx, "s1", KindIn, t0, nil); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	_, err := svc.Append(ctx, "s1", KindOut, t0.Add(-time.Minute), nil)
	if !errors.Is(err, ErrOutOfOrderEvent) {
		t.Fatalf("expected ErrOutOfOrderEvent, got %v", err)
	}

	history, err := svc.History(ctx, "s1", nil, nil)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("rejected append must not alter the ledger, have %d marks", len(history))
	}
}

func TestAppendIndependentSubjects(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	if _, err := svc.Append(ctx, "s1", KindIn, t0, nil); err != nil {
		t.Fatalf("append s1 failed: %v", err)
	}
	// An earlier event time for a different subject is fine.
	mark, err := svc.Append(ctx, "s2", KindIn, t0.Add(-time.Hour), nil)
	if err != nil {
		t.Fatalf("append s2 failed: %v", err)
	}
	if mark.ChainLink != GenesisLink {
		t.Fatal("independent subject must start its own chain")
	}
}

func TestAppendRejectsInvalidKind(t *testing.T) {
	svc := newTestService(&fakeStore{})
	if _, err := svc.Append(context.Background(), "s1", KindCorrection, time.Now(), nil); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("corrections must not enter through Append, got %v", err)
	}
	if _, err := svc.Append(context.Background(), "s1", Kind("bogus"), time.Now(), nil); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestAppendRejectsBlankSubject(t *testing.T) {
	svc := newTestService(&fakeStore{})
	if _, err := svc.Append(context.Background(), "  ", KindIn, time.Now(), nil); !errors.Is(err, ErrInvalidSubject) {
		t.Fatalf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestAppendCorrectionAllowsBackdatedEvent(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	target, err := svc.Append(ctx, "s1", KindIn, t0, nil)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := svc.Append(ctx, "s1", KindOut, t0.Add(8*time.Hour), nil); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	correction, err := svc.AppendCorrection(ctx, target.ID, t0.Add(-30*time.Minute), nil)
	if err != nil {
		t.Fatalf("correction append failed: %v", err)
	}
	if correction.Kind != KindCorrection {
		t.Fatalf("expected correction kind, got %s", correction.Kind)
	}
	if correction.CorrectsMarkID == nil || *correction.CorrectsMarkID != target.ID {
		t.Fatal("correction must reference the target mark")
	}

	// The original mark is untouched and the chain stays verifiable.
	stored, err := svc.GetMark(ctx, target.ID)
	if err != nil {
		t.Fatalf("get mark failed: %v", err)
	}
	if stored.SelfHash != target.SelfHash || !stored.EventTS.Equal(target.EventTS) {
		t.Fatal("correction mutated the original mark")
	}

	report, err := NewVerifier(store).Verify(ctx, strPtr("s1"), nil, nil)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if report.Status != StatusVerified {
		t.Fatalf("chain with correction must verify, got %s", report.Status)
	}
	if report.TotalChecked != 3 {
		t.Fatalf("expected 3 checked marks, got %d", report.TotalChecked)
	}
}

func TestAppendEnqueuesReceipt(t *testing.T) {
	store := &fakeStore{}
	enq := &captureEnqueuer{}
	svc := NewService(store, enq)

	mark, err := svc.Append(context.Background(), "s1", KindIn, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if len(enq.marks) != 1 || enq.marks[0].ID != mark.ID {
		t.Fatalf("expected one enqueued receipt for %s, got %+v", mark.ID, enq.marks)
	}
}

func TestAppendSurvivesEnqueueFailure(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, &captureEnqueuer{err: errors.New("queue down")})

	mark, err := svc.Append(context.Background(), "s1", KindIn, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("append must not fail on enqueue error: %v", err)
	}
	if _, err := store.GetMark(context.Background(), mark.ID); err != nil {
		t.Fatalf("mark must be persisted despite enqueue failure: %v", err)
	}
}

type captureEnqueuer struct {
	marks []Mark
	err   error
}

func (c *captureEnqueuer) EnqueueForMark(ctx context.Context, m Mark) error {
	if c.err != nil {
		return c.err
	}
	c.marks = append(c.marks, m)
	return nil
}

func strPtr(s string) *string { return &s }
