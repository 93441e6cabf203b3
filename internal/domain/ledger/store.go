package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
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

// advisoryKey maps a subject id onto the bigint keyspace of Postgres
// advisory locks.
func advisoryKey(subjectID string) int64 {
	sum := sha256.Sum256([]byte(subjectID))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Append serializes chain writes per subject with a transaction-scoped
// advisory lock: two concurrent appends for the same subject cannot both
// read the same tail, so the chain can never fork.
func (s *Store) Append(ctx context.Context, subjectID string, build BuildFunc) (Mark, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Mark{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryKey(subjectID)); err != nil {
		return Mark{}, fmt.Errorf("chain lock: %w", err)
	}

	var tail *Mark
	row := tx.QueryRow(ctx, `
    SELECT id, subject_id, kind, event_ts, site_id, chain_link, self_hash, corrects_mark_id, receipt_path, created_at
    FROM attendance_marks
    WHERE subject_id = $1
    ORDER BY created_at DESC, id DESC
    LIMIT 1
  `, subjectID)
	var m Mark
	err = scanMark(row, &m)
	switch {
	case err == nil:
		tail = &m
	case errors.Is(err, pgx.ErrNoRows):
		tail = nil
	default:
		return Mark{}, err
	}

	mark, err := build(tail)
	if err != nil {
		return Mark{}, err
	}

	if _, err := tx.Exec(ctx, `
    INSERT INTO attendance_marks (id, subject_id, kind, event_ts, site_id, chain_link, self_hash, corrects_mark_id, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, mark.ID, mark.SubjectID, mark.Kind, mark.EventTS, mark.SiteID, mark.ChainLink, mark.SelfHash, mark.CorrectsMarkID, mark.CreatedAt); err != nil {
		return Mark{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Mark{}, err
	}
	return mark, nil
}

func (s *Store) GetMark(ctx context.Context, markID string) (Mark, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT id, subject_id, kind, event_ts, site_id, chain_link, self_hash, corrects_mark_id, receipt_path, created_at
    FROM attendance_marks
    WHERE id = $1
  `, markID)
	var m Mark
	if err := scanMark(row, &m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Mark{}, ErrMarkNotFound
		}
		return Mark{}, err
	}
	return m, nil
}

// History returns a subject's marks ordered by event time, the order a
// person reads their own attendance in.
func (s *Store) History(ctx context.Context, subjectID string, from, to *time.Time) ([]Mark, error) {
	query, args := rangeQuery(subjectID, from, to, "event_ts ASC, created_at ASC")
	return s.queryMarks(ctx, query, args)
}

// Chain returns a subject's full chain in append order, the order the hash
// chain was built in. Verification must walk this order from the genesis
// link without gaps: correction marks carry event times behind the chain
// tail, so an event-time window would cut rows out of the middle and make
// an intact chain look broken.
func (s *Store) Chain(ctx context.Context, subjectID string) ([]Mark, error) {
	query, args := rangeQuery(subjectID, nil, nil, "created_at ASC, id ASC")
	return s.queryMarks(ctx, query, args)
}

func rangeQuery(subjectID string, from, to *time.Time, order string) (string, []any) {
	query := `
    SELECT id, subject_id, kind, event_ts, site_id, chain_link, self_hash, corrects_mark_id, receipt_path, created_at
    FROM attendance_marks
    WHERE subject_id = $1`
	args := []any{subjectID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND event_ts >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND event_ts <= $%d", len(args))
	}
	return query + " ORDER BY " + order, args
}

func (s *Store) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, "SELECT DISTINCT subject_id FROM attendance_marks ORDER BY subject_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) SetReceiptPath(ctx context.Context, markID, path string) error {
	_, err := s.DB.Exec(ctx, "UPDATE attendance_marks SET receipt_path = $1 WHERE id = $2", path, markID)
	return err
}

// ListScoped serves DT access redemption: marks inside the date range,
// optionally narrowed to subject and site sets.
func (s *Store) ListScoped(ctx context.Context, from, to time.Time, subjectIDs, siteIDs []string) ([]Mark, error) {
	query := `
    SELECT id, subject_id, kind, event_ts, site_id, chain_link, self_hash, corrects_mark_id, receipt_path, created_at
    FROM attendance_marks
    WHERE event_ts >= $1 AND event_ts <= $2`
	args := []any{from, to}
	if len(subjectIDs) > 0 {
		args = append(args, subjectIDs)
		query += fmt.Sprintf(" AND subject_id = ANY($%d)", len(args))
	}
	if len(siteIDs) > 0 {
		args = append(args, siteIDs)
		query += fmt.Sprintf(" AND site_id = ANY($%d)", len(args))
	}
	query += " ORDER BY subject_id, event_ts ASC"
	return s.queryMarks(ctx, query, args)
}

func (s *Store) queryMarks(ctx context.Context, query string, args []any) ([]Mark, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mark
	for rows.Next() {
		var m Mark
		if err := scanMark(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMark(row pgx.Row, m *Mark) error {
	return row.Scan(&m.ID, &m.SubjectID, &m.Kind, &m.EventTS, &m.SiteID, &m.ChainLink, &m.SelfHash, &m.CorrectsMarkID, &m.ReceiptPath, &m.CreatedAt)
}
