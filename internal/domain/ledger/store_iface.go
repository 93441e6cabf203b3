package ledger

import (
	"context"
	"time"
)

// BuildFunc receives the subject's current chain tail (nil when the chain is
// empty) and returns the fully formed mark to persist. The store guarantees
// that between reading the tail and inserting the result no other append for
// the same subject can interleave.
type BuildFunc func(tail *Mark) (Mark, error)

type StoreAPI interface {
	Append(ctx context.Context, subjectID string, build BuildFunc) (Mark, error)
	GetMark(ctx context.Context, markID string) (Mark, error)
	History(ctx context.Context, subjectID string, from, to *time.Time) ([]Mark, error)
	Chain(ctx context.Context, subjectID string) ([]Mark, error)
	Subjects(ctx context.Context) ([]string, error)
	SetReceiptPath(ctx context.Context, markID, path string) error
	ListScoped(ctx context.Context, from, to time.Time, subjectIDs, siteIDs []string) ([]Mark, error)
}
