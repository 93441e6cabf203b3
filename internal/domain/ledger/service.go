package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enqueuer is the receipt side effect of an append. Failures here never
// unwind the mark: the ledger is the legal record, the receipt is a
// courtesy on top of it.
type Enqueuer interface {
	EnqueueForMark(ctx context.Context, m Mark) error
}

type Service struct {
	store    StoreAPI
	receipts Enqueuer
	now      func() time.Time
}

func NewService(store StoreAPI, receipts Enqueuer) *Service {
	return &Service{store: store, receipts: receipts, now: time.Now}
}

// Append records a clock-in or clock-out. Event time must not run backwards
// within a subject's chain; backfills go through the corrections workflow.
func (s *Service) Append(ctx context.Context, subjectID string, kind Kind, eventTS time.Time, siteID *string) (Mark, error) {
	if kind != KindIn && kind != KindOut {
		return Mark{}, ErrInvalidKind
	}
	if strings.TrimSpace(subjectID) == "" {
		return Mark{}, ErrInvalidSubject
	}
	if eventTS.IsZero() {
		eventTS = s.now()
	}

	mark, err := s.store.Append(ctx, subjectID, func(tail *Mark) (Mark, error) {
		if tail != nil && eventTS.Before(tail.EventTS) {
			return Mark{}, ErrOutOfOrderEvent
		}
		return s.buildMark(subjectID, kind, eventTS, siteID, nil, tail), nil
	})
	if err != nil {
		return Mark{}, err
	}

	if s.receipts != nil {
		if err := s.receipts.EnqueueForMark(ctx, mark); err != nil {
			slog.Warn("receipt enqueue failed", "markId", mark.ID, "err", err)
		}
	}
	return mark, nil
}

// AppendCorrection appends an approved correction at the chain tail. The
// corrected event time may lie behind the tail: chain order is append order,
// and the target mark stays untouched.
func (s *Service) AppendCorrection(ctx context.Context, targetMarkID string, eventTS time.Time, siteID *string) (Mark, error) {
	target, err := s.store.GetMark(ctx, targetMarkID)
	if err != nil {
		return Mark{}, err
	}
	return s.store.Append(ctx, target.SubjectID, func(tail *Mark) (Mark, error) {
		return s.buildMark(target.SubjectID, KindCorrection, eventTS, siteID, &target.ID, tail), nil
	})
}

func (s *Service) buildMark(subjectID string, kind Kind, eventTS time.Time, siteID *string, corrects *string, tail *Mark) Mark {
	link := GenesisLink
	if tail != nil {
		link = tail.SelfHash
	}
	return Mark{
		ID:             uuid.NewString(),
		SubjectID:      subjectID,
		Kind:           kind,
		EventTS:        eventTS.UTC(),
		SiteID:         siteID,
		ChainLink:      link,
		SelfHash:       ComputeSelfHash(subjectID, kind, eventTS, siteID, link),
		CorrectsMarkID: corrects,
		CreatedAt:      s.now().UTC(),
	}
}

func (s *Service) History(ctx context.Context, subjectID string, from, to *time.Time) ([]Mark, error) {
	return s.store.History(ctx, subjectID, from, to)
}

func (s *Service) GetMark(ctx context.Context, markID string) (Mark, error) {
	return s.store.GetMark(ctx, markID)
}
