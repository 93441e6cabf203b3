package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"asistencia/internal/domain/auth"
	"asistencia/internal/platform/config"
)

// Seed makes sure a usable admin account exists so a fresh deployment can be
// logged into. It is idempotent and safe to run on every boot.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	email := strings.TrimSpace(cfg.SeedAdminEmail)
	if email == "" {
		return nil
	}
	return ensureUser(ctx, pool, email, cfg.SeedAdminPassword, auth.RoleAdmin, "Administrator")
}

func ensureUser(ctx context.Context, pool *pgxpool.Pool, email, password, role, displayName string) error {
	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
    INSERT INTO users (email, password_hash, role, display_name, active)
    VALUES ($1, $2, $3, $4, TRUE)
  `, email, hash, role, displayName)
	return err
}
