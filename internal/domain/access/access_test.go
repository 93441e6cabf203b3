package access

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"asistencia/internal/domain/ledger"
)

const testSecret = "test-dt-secret"

func testScope() Scope {
	return Scope{
		From:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC),
		PersonIDs: []string{"person-a"},
	}
}

type scopedMarksFake struct {
	marks []ledger.Mark
}

func (f *scopedMarksFake) ListScoped(ctx context.Context, from, to time.Time, subjectIDs, siteIDs []string) ([]ledger.Mark, error) {
	var out []ledger.Mark
	for _, m := range f.marks {
		if m.EventTS.Before(from) || m.EventTS.After(to) {
			continue
		}
		if len(subjectIDs) > 0 && !member(subjectIDs, m.SubjectID) {
			continue
		}
		if len(siteIDs) > 0 && (m.SiteID == nil || !member(siteIDs, *m.SiteID)) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func member(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func mark(subject string, ts time.Time) ledger.Mark {
	return ledger.Mark{ID: subject + ts.Format("150405"), SubjectID: subject, Kind: ledger.KindIn, EventTS: ts}
}

func newTestServiceAt(now time.Time, marks MarksReader) *Service {
	svc := NewService(testSecret, "http://localhost:8080", marks)
	svc.now = func() time.Time { return now }
	return svc
}

func TestIssueValidatesScopeAndTTL(t *testing.T) {
	svc := NewService(testSecret, "http://localhost:8080", nil)

	if _, err := svc.Issue(Scope{}, time.Hour); !errors.Is(err, ErrBadScope) {
		t.Fatalf("expected ErrBadScope, got %v", err)
	}

	inverted := testScope()
	inverted.From, inverted.To = inverted.To, inverted.From
	if _, err := svc.Issue(inverted, time.Hour); !errors.Is(err, ErrBadScope) {
		t.Fatalf("expected ErrBadScope for inverted range, got %v", err)
	}

	if _, err := svc.Issue(testScope(), 2*time.Minute); !errors.Is(err, ErrTTLTooShort) {
		t.Fatalf("expected ErrTTLTooShort, got %v", err)
	}

	grant, err := svc.Issue(testScope(), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if grant.Token == "" || !strings.Contains(grant.URL, "token=") {
		t.Fatalf("grant missing token or url: %+v", grant)
	}
}

func TestRedeemScopeContainment(t *testing.T) {
	jan15 := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store := &scopedMarksFake{marks: []ledger.Mark{
		mark("person-a", jan15),
		mark("person-b", jan15),
		mark("person-a", time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)),
	}}
	svc := NewService(testSecret, "http://localhost:8080", store)

	grant, err := svc.Issue(testScope(), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	marks, err := svc.Redeem(context.Background(), grant.Token, Filters{})
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if len(marks) != 1 {
		t.Fatalf("expected only person-a marks inside january, got %d", len(marks))
	}
	if marks[0].SubjectID != "person-a" {
		t.Fatalf("scope leaked subject %s", marks[0].SubjectID)
	}
}

func TestRedeemFiltersOnlyNarrow(t *testing.T) {
	jan15 := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store := &scopedMarksFake{marks: []ledger.Mark{
		mark("person-a", jan15),
		mark("person-b", jan15),
	}}
	svc := NewService(testSecret, "http://localhost:8080", store)

	grant, err := svc.Issue(testScope(), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// Asking for person-b cannot widen a grant scoped to person-a.
	marks, err := svc.Redeem(context.Background(), grant.Token, Filters{PersonIDs: []string{"person-b"}})
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if len(marks) != 0 {
		t.Fatalf("disjoint filter must return nothing, got %d marks", len(marks))
	}

	// A wider date filter cannot stretch the embedded range.
	wideFrom := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	marks, err = svc.Redeem(context.Background(), grant.Token, Filters{From: &wideFrom})
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	for _, m := range marks {
		if m.EventTS.Before(testScope().From) {
			t.Fatal("filter widened the granted date range")
		}
	}
}

func TestRedeemExpiredToken(t *testing.T) {
	// jwt validates exp against the real clock, so craft an already-expired
	// grant by issuing in the past.
	pastSvc := newTestServiceAt(time.Now().Add(-time.Hour), &scopedMarksFake{})
	expired, err := pastSvc.Issue(testScope(), 10*time.Minute)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	svc := NewService(testSecret, "http://localhost:8080", &scopedMarksFake{})
	if _, err := svc.Redeem(context.Background(), expired.Token, Filters{}); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRedeemInvalidToken(t *testing.T) {
	svc := NewService(testSecret, "http://localhost:8080", &scopedMarksFake{})

	if _, err := svc.Redeem(context.Background(), "not-a-token", Filters{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	otherSvc := NewService("other-secret", "http://localhost:8080", &scopedMarksFake{})
	grant, err := otherSvc.Issue(testScope(), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := svc.Redeem(context.Background(), grant.Token, Filters{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("token signed with another secret must be invalid, got %v", err)
	}
}

func TestIntersectSets(t *testing.T) {
	if got := intersectSets(nil, []string{"a"}); len(got) != 1 || got[0] != "a" {
		t.Fatalf("unrestricted scope takes the filter, got %v", got)
	}
	if got := intersectSets([]string{"a", "b"}, nil); len(got) != 2 {
		t.Fatalf("empty filter keeps the scope, got %v", got)
	}
	if got := intersectSets([]string{"a", "b"}, []string{"b", "c"}); len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected common members only, got %v", got)
	}
	got := intersectSets([]string{"a"}, []string{"z"})
	if len(got) != 1 || got[0] != noMatchSentinel {
		t.Fatalf("disjoint sets must yield the no-match sentinel, got %v", got)
	}
}
