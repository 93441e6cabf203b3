package receipts

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const itemColumns = "id, mark_id, email, display_name, kind, event_ts, site_name, self_hash, status, attempts, last_attempt_at, error_log, created_at"

func (s *Store) Insert(ctx context.Context, snap Snapshot) (Item, error) {
	row := s.DB.QueryRow(ctx, `
    INSERT INTO receipt_queue (mark_id, email, display_name, kind, event_ts, site_name, self_hash, status, attempts)
    VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0)
    RETURNING `+itemColumns,
		snap.MarkID, snap.Email, snap.DisplayName, snap.Kind, snap.EventTS, snap.SiteName, snap.SelfHash)
	var item Item
	if err := scanItem(row, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (s *Store) SelectEligible(ctx context.Context, now time.Time, maxAttempts int, cooldown time.Duration, limit int) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+itemColumns+`
    FROM receipt_queue
    WHERE status IN ('pending','failed')
      AND attempts < $1
      AND (last_attempt_at IS NULL OR last_attempt_at <= $2)
    ORDER BY created_at ASC
    LIMIT $3
  `, maxAttempts, now.Add(-cooldown), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *Store) Claim(ctx context.Context, id string, observedAttempts int, now time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE receipt_queue
    SET attempts = attempts + 1, last_attempt_at = $1
    WHERE id = $2 AND status IN ('pending','failed') AND attempts = $3
  `, now, id, observedAttempts)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkSent(ctx context.Context, id string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE receipt_queue
    SET status = 'sent', last_attempt_at = $1, error_log = NULL
    WHERE id = $2 AND status <> 'sent'
  `, now, id)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id string, errLog string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE receipt_queue
    SET status = 'failed', last_attempt_at = $1, error_log = $2
    WHERE id = $3 AND status <> 'sent'
  `, now, errLog, id)
	return err
}

func (s *Store) ListByStatus(ctx context.Context, status string, limit, offset int) ([]Item, error) {
	query := "SELECT " + itemColumns + " FROM receipt_queue"
	args := []any{}
	if status != "" {
		args = append(args, status)
		query += " WHERE status = $1"
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	var out []Item
	for rows.Next() {
		var item Item
		if err := scanItem(rows, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanItem(row pgx.Row, item *Item) error {
	return row.Scan(&item.ID, &item.MarkID, &item.Email, &item.DisplayName, &item.Kind, &item.EventTS, &item.SiteName, &item.SelfHash, &item.Status, &item.Attempts, &item.LastAttemptAt, &item.ErrorLog, &item.CreatedAt)
}
