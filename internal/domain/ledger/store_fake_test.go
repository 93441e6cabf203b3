package ledger

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory StoreAPI with the same single-writer-per-subject
// guarantee the Postgres store enforces with advisory locks.
type fakeStore struct {
	mu    sync.Mutex
	marks []Mark
}

func (f *fakeStore) Append(ctx context.Context, subjectID string, build BuildFunc) (Mark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var tail *Mark
	for i := len(f.marks) - 1; i >= 0; i-- {
		if f.marks[i].SubjectID == subjectID {
			m := f.marks[i]
			tail = &m
			break
		}
	}

	mark, err := build(tail)
	if err != nil {
		return Mark{}, err
	}
	f.marks = append(f.marks, mark)
	return mark, nil
}

func (f *fakeStore) GetMark(ctx context.Context, markID string) (Mark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.marks {
		if m.ID == markID {
			return m, nil
		}
	}
	return Mark{}, ErrMarkNotFound
}

func (f *fakeStore) History(ctx context.Context, subjectID string, from, to *time.Time) ([]Mark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var marks []Mark
	for _, m := range f.marks {
		if m.SubjectID != subjectID {
			continue
		}
		if from != nil && m.EventTS.Before(*from) {
			continue
		}
		if to != nil && m.EventTS.After(*to) {
			continue
		}
		marks = append(marks, m)
	}
	for i := 1; i < len(marks); i++ {
		for j := i; j > 0 && marks[j].EventTS.Before(marks[j-1].EventTS); j-- {
			marks[j], marks[j-1] = marks[j-1], marks[j]
		}
	}
	return marks, nil
}

func (f *fakeStore) Chain(ctx context.Context, subjectID string) ([]Mark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Mark
	for _, m := range f.marks {
		if m.SubjectID == subjectID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) Subjects(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, m := range f.marks {
		if !seen[m.SubjectID] {
			seen[m.SubjectID] = true
			out = append(out, m.SubjectID)
		}
	}
	return out, nil
}

func (f *fakeStore) SetReceiptPath(ctx context.Context, markID, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.marks {
		if f.marks[i].ID == markID {
			p := path
			f.marks[i].ReceiptPath = &p
			return nil
		}
	}
	return ErrMarkNotFound
}

func (f *fakeStore) ListScoped(ctx context.Context, from, to time.Time, subjectIDs, siteIDs []string) ([]Mark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Mark
	for _, m := range f.marks {
		if m.EventTS.Before(from) || m.EventTS.After(to) {
			continue
		}
		if len(subjectIDs) > 0 && !contains(subjectIDs, m.SubjectID) {
			continue
		}
		if len(siteIDs) > 0 && (m.SiteID == nil || !contains(siteIDs, *m.SiteID)) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// tamper mutates a stored mark's field in place, simulating direct storage
// manipulation.
func (f *fakeStore) tamper(markID string, mutate func(*Mark)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.marks {
		if f.marks[i].ID == markID {
			mutate(&f.marks[i])
			return
		}
	}
}
