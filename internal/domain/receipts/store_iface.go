package receipts

import (
	"context"
	"time"
)

type StoreAPI interface {
	Insert(ctx context.Context, snap Snapshot) (Item, error)
	// SelectEligible returns up to limit items eligible for processing,
	// oldest first.
	SelectEligible(ctx context.Context, now time.Time, maxAttempts int, cooldown time.Duration, limit int) ([]Item, error)
	// Claim atomically flips an item into the current worker's hands by
	// incrementing attempts, conditional on the attempts value the worker
	// observed. A false return means another worker won the race.
	Claim(ctx context.Context, id string, observedAttempts int, now time.Time) (bool, error)
	MarkSent(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id string, errLog string, now time.Time) error
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]Item, error)
}
