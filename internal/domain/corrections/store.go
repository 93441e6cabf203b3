package corrections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StoreAPI interface {
	Insert(ctx context.Context, req Request) (Request, error)
	Get(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]Request, error)
	// Transition moves a pending request to a terminal status exactly once.
	// A false return means the request was not pending anymore.
	Transition(ctx context.Context, id, toStatus, reviewerID string, now time.Time) (bool, error)
}

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const requestColumns = "id, mark_id, requester_id, reason, requested_ts, requested_site_id, status, reviewer_id, created_at, reviewed_at"

func (s *Store) Insert(ctx context.Context, req Request) (Request, error) {
	row := s.DB.QueryRow(ctx, `
    INSERT INTO modification_requests (mark_id, requester_id, reason, requested_ts, requested_site_id, status)
    VALUES ($1,$2,$3,$4,$5,'pending')
    RETURNING `+requestColumns,
		req.MarkID, req.RequesterID, req.Reason, req.RequestedTS, req.RequestedSiteID)
	var out Request
	if err := scanRequest(row, &out); err != nil {
		return Request{}, err
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (Request, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+requestColumns+" FROM modification_requests WHERE id = $1", id)
	var out Request
	if err := scanRequest(row, &out); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, err
	}
	return out, nil
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]Request, error) {
	query := "SELECT " + requestColumns + " FROM modification_requests"
	var args []any
	var where []string
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		where = append(where, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var req Request
		if err := scanRequest(rows, &req); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *Store) Transition(ctx context.Context, id, toStatus, reviewerID string, now time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE modification_requests
    SET status = $1, reviewer_id = $2, reviewed_at = $3
    WHERE id = $4 AND status = 'pending'
  `, toStatus, reviewerID, now, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanRequest(row pgx.Row, req *Request) error {
	return row.Scan(&req.ID, &req.MarkID, &req.RequesterID, &req.Reason, &req.RequestedTS, &req.RequestedSiteID, &req.Status, &req.ReviewerID, &req.CreatedAt, &req.ReviewedAt)
}
