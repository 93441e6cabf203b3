package corrections

import (
	"context"
	"strings"
	"time"

	"asistencia/internal/domain/ledger"
)

// Ledger is what the approval path needs from the attendance chain.
type Ledger interface {
	GetMark(ctx context.Context, markID string) (ledger.Mark, error)
	AppendCorrection(ctx context.Context, targetMarkID string, eventTS time.Time, siteID *string) (ledger.Mark, error)
}

type Service struct {
	store  StoreAPI
	ledger Ledger
	now    func() time.Time
}

func NewService(store StoreAPI, l Ledger) *Service {
	return &Service{store: store, ledger: l, now: time.Now}
}

func (s *Service) Create(ctx context.Context, markID, requesterID, reason string, requestedTS time.Time, requestedSiteID *string) (Request, error) {
	if strings.TrimSpace(reason) == "" {
		return Request{}, ErrReasonRequired
	}
	// The target must exist before a correction can be requested against it.
	if _, err := s.ledger.GetMark(ctx, markID); err != nil {
		return Request{}, err
	}
	return s.store.Insert(ctx, Request{
		MarkID:          markID,
		RequesterID:     requesterID,
		Reason:          reason,
		RequestedTS:     requestedTS,
		RequestedSiteID: requestedSiteID,
	})
}

func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Request, error) {
	return s.store.List(ctx, filter, limit, offset)
}

// Approve decides the request and applies it as a new chained correction
// event. The decision is a compare-and-set on the pending status, so two
// racing approvers cannot both apply it.
func (s *Service) Approve(ctx context.Context, id, reviewerID string) (Request, ledger.Mark, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return Request{}, ledger.Mark{}, err
	}

	decided, err := s.store.Transition(ctx, id, StatusApproved, reviewerID, s.now())
	if err != nil {
		return Request{}, ledger.Mark{}, err
	}
	if !decided {
		return Request{}, ledger.Mark{}, ErrAlreadyDecided
	}

	mark, err := s.ledger.AppendCorrection(ctx, req.MarkID, req.RequestedTS, req.RequestedSiteID)
	if err != nil {
		// The decision stands; the correction append is surfaced for retry by
		// an operator rather than silently rolled back.
		return Request{}, ledger.Mark{}, err
	}

	req, err = s.store.Get(ctx, id)
	if err != nil {
		return Request{}, ledger.Mark{}, err
	}
	return req, mark, nil
}

func (s *Service) Reject(ctx context.Context, id, reviewerID string) (Request, error) {
	decided, err := s.store.Transition(ctx, id, StatusRejected, reviewerID, s.now())
	if err != nil {
		return Request{}, err
	}
	if !decided {
		return Request{}, ErrAlreadyDecided
	}
	return s.store.Get(ctx, id)
}
