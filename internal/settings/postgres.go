package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProvider reads gateway settings from a single-row Postgres table so
// multiple gateway replicas observe operator changes immediately. Every
// Settings call issues a fresh query; nothing is cached in process.
type PostgresProvider struct {
	pool *pgxpool.Pool
}

// NewPostgresProvider opens a Postgres-backed settings source using the
// provided DSN.
func NewPostgresProvider(ctx context.Context, dsn string) (*PostgresProvider, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres settings dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres settings config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres settings pool: %w", err)
	}
	return &PostgresProvider{pool: pool}, nil
}

// EnsureSchema creates the settings table when it does not exist.
func (p *PostgresProvider) EnsureSchema(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("postgres settings pool not configured")
	}
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS stream_settings (
    id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    account_id TEXT NOT NULL DEFAULT '',
    api_token TEXT NOT NULL DEFAULT '',
    enabled BOOLEAN NOT NULL DEFAULT FALSE,
    max_duration_seconds INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)
`)
	return err
}

// Settings fetches the current row. A missing row yields zero settings so the
// services report the gateway as misconfigured rather than failing the query.
func (p *PostgresProvider) Settings(ctx context.Context) (Settings, error) {
	if p == nil || p.pool == nil {
		return Settings{}, fmt.Errorf("postgres settings pool not configured")
	}
	row := p.pool.QueryRow(ctx, `
SELECT account_id, api_token, enabled, max_duration_seconds
FROM stream_settings
WHERE id = 1
`)
	var out Settings
	if err := row.Scan(&out.AccountID, &out.APIToken, &out.Enabled, &out.MaxDurationSeconds); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, nil
		}
		return Settings{}, err
	}
	return out, nil
}

// Save upserts the settings row.
func (p *PostgresProvider) Save(ctx context.Context, values Settings) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("postgres settings pool not configured")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO stream_settings (id, account_id, api_token, enabled, max_duration_seconds, updated_at)
VALUES (1, $1, $2, $3, $4, NOW())
ON CONFLICT (id) DO UPDATE SET
    account_id = EXCLUDED.account_id,
    api_token = EXCLUDED.api_token,
    enabled = EXCLUDED.enabled,
    max_duration_seconds = EXCLUDED.max_duration_seconds,
    updated_at = NOW()
`, values.AccountID, values.APIToken, values.Enabled, values.MaxDurationSeconds)
	return err
}

// Ping verifies the backing pool is reachable.
func (p *PostgresProvider) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("postgres settings pool not configured")
	}
	return p.pool.Ping(ctx)
}

// Close releases the pool, bounded by the provided context.
func (p *PostgresProvider) Close(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
