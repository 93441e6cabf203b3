package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"asistencia/internal/domain/ledger"
)

// Mailer is the external mail transport. Failures are opaque and treated as
// retryable by default.
type Mailer interface {
	Send(ctx context.Context, from, to, subject, htmlBody string) error
}

// Directory resolves the denormalized snapshot fields at enqueue time.
type Directory interface {
	PersonContact(ctx context.Context, personID string) (name, email string, err error)
	SiteName(ctx context.Context, siteID string) (string, error)
}

// MarkWriter records the archived receipt path back onto the mark.
type MarkWriter interface {
	SetReceiptPath(ctx context.Context, markID, path string) error
}

type Service struct {
	store       StoreAPI
	mailer      Mailer
	renderer    *Renderer
	directory   Directory
	marks       MarkWriter
	from        string
	maxAttempts int
	cooldown    time.Duration
	sendTimeout time.Duration
	concurrency int
	now         func() time.Time
}

func NewService(store StoreAPI, mailer Mailer, renderer *Renderer, directory Directory, marks MarkWriter, from string, maxAttempts int, cooldown time.Duration) *Service {
	return &Service{
		store:       store,
		mailer:      mailer,
		renderer:    renderer,
		directory:   directory,
		marks:       marks,
		from:        from,
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
		sendTimeout: 30 * time.Second,
		concurrency: 5,
		now:         time.Now,
	}
}

// EnqueueForMark captures the snapshot, inserts the queue row, and makes one
// inline best-effort send. The insert must land even when the send attempt
// does not; the sweep picks up whatever the inline attempt left behind.
func (s *Service) EnqueueForMark(ctx context.Context, m ledger.Mark) error {
	name, email, err := s.directory.PersonContact(ctx, m.SubjectID)
	if err != nil {
		return fmt.Errorf("resolve recipient for %s: %w", m.SubjectID, err)
	}
	siteName := ""
	if m.SiteID != nil {
		siteName, err = s.directory.SiteName(ctx, *m.SiteID)
		if err != nil {
			slog.Warn("receipt site lookup failed", "siteId", *m.SiteID, "err", err)
		}
	}

	item, err := s.store.Insert(ctx, Snapshot{
		MarkID:      m.ID,
		Email:       email,
		DisplayName: name,
		Kind:        string(m.Kind),
		EventTS:     m.EventTS,
		SiteName:    siteName,
		SelfHash:    m.SelfHash,
	})
	if err != nil {
		return err
	}

	s.AttemptImmediate(ctx, item)
	return nil
}

// AttemptImmediate is the latency optimization for the common case. It goes
// through the same claim path as the sweep so a concurrent sweep cannot
// double-send.
func (s *Service) AttemptImmediate(ctx context.Context, item Item) {
	if err := s.processItem(ctx, item); err != nil {
		slog.Warn("immediate receipt send failed, left for sweep", "itemId", item.ID, "markId", item.MarkID, "err", err)
	}
}

// Sweep processes one batch of eligible queue items. Items are independent:
// one failure never aborts the rest of the batch.
func (s *Service) Sweep(ctx context.Context, batchLimit int) (Result, error) {
	items, err := s.store.SelectEligible(ctx, s.now(), s.maxAttempts, s.cooldown, batchLimit)
	if err != nil {
		return Result{}, err
	}

	var (
		mu     sync.Mutex
		result Result
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			err := s.processItem(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.ID, err))
			} else {
				result.Succeeded++
			}
			return nil
		})
	}
	_ = g.Wait()

	if result.Processed > 0 {
		slog.Info("receipt sweep done", "processed", result.Processed, "succeeded", result.Succeeded, "failed", result.Failed)
	}
	return result, nil
}

// processItem claims the item, renders, sends, and settles its state. A lost
// claim is not an error: another worker owns the attempt.
func (s *Service) processItem(ctx context.Context, item Item) error {
	claimed, err := s.store.Claim(ctx, item.ID, item.Attempts, s.now())
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return nil
	}

	if err := s.deliver(ctx, item); err != nil {
		if settleErr := s.store.MarkFailed(ctx, item.ID, err.Error(), s.now()); settleErr != nil {
			slog.Warn("receipt settle failed", "itemId", item.ID, "err", settleErr)
		}
		return err
	}

	if err := s.store.MarkSent(ctx, item.ID, s.now()); err != nil {
		return fmt.Errorf("settle sent: %w", err)
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, item Item) error {
	htmlBody := s.renderer.RenderHTML(item)

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	if err := s.mailer.Send(sendCtx, s.from, item.Email, s.renderer.Subject(item), htmlBody); err != nil {
		return fmt.Errorf("mail transport: %w", err)
	}

	// The archived PDF is best-effort once the email is out: the receipt
	// obligation is satisfied by delivery.
	path, err := s.renderer.RenderPDF(item)
	if err != nil {
		slog.Warn("receipt pdf render failed", "markId", item.MarkID, "err", err)
		return nil
	}
	if s.marks != nil {
		if err := s.marks.SetReceiptPath(ctx, item.MarkID, path); err != nil {
			slog.Warn("receipt path update failed", "markId", item.MarkID, "err", err)
		}
	}
	return nil
}

// ListByStatus exposes queue state for manual intervention on terminally
// failed items.
func (s *Service) ListByStatus(ctx context.Context, status string, limit, offset int) ([]Item, error) {
	return s.store.ListByStatus(ctx, status, limit, offset)
}
