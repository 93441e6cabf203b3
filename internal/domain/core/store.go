package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrSiteNotFound   = errors.New("site not found")
	ErrPersonNotFound = errors.New("person not found")
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := s.DB.Query(ctx, "SELECT id, name, address, timezone, created_at FROM sites ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Site
	for rows.Next() {
		var site Site
		if err := rows.Scan(&site.ID, &site.Name, &site.Address, &site.Timezone, &site.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) CreateSite(ctx context.Context, site Site) (string, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO sites (name, address, timezone)
    VALUES ($1,$2,$3)
    RETURNING id
  `, site.Name, site.Address, site.Timezone).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateSite(ctx context.Context, siteID string, site Site) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE sites SET name = $1, address = $2, timezone = $3 WHERE id = $4
  `, site.Name, site.Address, site.Timezone, siteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSiteNotFound
	}
	return nil
}

func (s *Store) SiteName(ctx context.Context, siteID string) (string, error) {
	var name string
	err := s.DB.QueryRow(ctx, "SELECT name FROM sites WHERE id = $1", siteID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSiteNotFound
	}
	return name, err
}

func (s *Store) ListPeople(ctx context.Context, activeOnly bool, limit, offset int) ([]Person, error) {
	query := "SELECT id, first_name, last_name, email, site_id, active, created_at FROM people"
	var args []any
	if activeOnly {
		query += " WHERE active"
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY last_name, first_name LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.SiteID, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePerson(ctx context.Context, p Person) (string, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO people (first_name, last_name, email, site_id, active)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id
  `, p.FirstName, p.LastName, p.Email, p.SiteID, p.Active).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdatePerson(ctx context.Context, personID string, p Person) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE people SET first_name = $1, last_name = $2, email = $3, site_id = $4, active = $5 WHERE id = $6
  `, p.FirstName, p.LastName, p.Email, p.SiteID, p.Active, personID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPersonNotFound
	}
	return nil
}

// PersonContact resolves the receipt recipient for a subject.
func (s *Store) PersonContact(ctx context.Context, personID string) (string, string, error) {
	var first, last, email string
	err := s.DB.QueryRow(ctx, "SELECT first_name, last_name, email FROM people WHERE id = $1", personID).Scan(&first, &last, &email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrPersonNotFound
	}
	if err != nil {
		return "", "", err
	}
	return first + " " + last, email, nil
}
