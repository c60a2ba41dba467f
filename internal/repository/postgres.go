package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tedymoisa/micro-link-shortener/internal/models"
)

// PostgresRepo is the store adapter for the urls table. Every call acquires
// a pooled connection, runs exactly one statement and releases it; the pool
// size bounds concurrent store operations.
type PostgresRepo struct {
	pool *pgxpool.Pool
	l    *slog.Logger
}

func NewPostgresRepo(pool *pgxpool.Pool, l *slog.Logger) *PostgresRepo {
	return &PostgresRepo{pool: pool, l: l}
}

// qr_code is nullable in the schema; the empty string is the single
// "pending" sentinel everywhere above the store.
const urlColumns = `id, short_code, long_url, created_at, COALESCE(qr_code, '')`

// UpsertURL inserts a mapping, or overwrites long_url when the short code
// already exists (last writer wins), and returns the merged row.
func (r *PostgresRepo) UpsertURL(ctx context.Context, shortCode, longURL string) (*models.ShortURL, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO urls (short_code, long_url)
		VALUES ($1, $2)
		ON CONFLICT (short_code)
		DO UPDATE SET long_url = EXCLUDED.long_url
		RETURNING `+urlColumns,
		shortCode, longURL,
	)
	return scanURL(row)
}

// GetByShortCode returns the record for shortCode, or models.ErrNotFound.
func (r *PostgresRepo) GetByShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+urlColumns+` FROM urls
		WHERE short_code = $1`,
		shortCode,
	)
	return scanURL(row)
}

// UpdateQRCode sets the rendered artifact on the matching record and
// returns the updated row, or models.ErrNotFound when the code is unknown.
func (r *PostgresRepo) UpdateQRCode(ctx context.Context, shortCode, qrCode string) (*models.ShortURL, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE urls SET qr_code = $1
		WHERE short_code = $2
		RETURNING `+urlColumns,
		qrCode, shortCode,
	)
	return scanURL(row)
}

func scanURL(row pgx.Row) (*models.ShortURL, error) {
	var u models.ShortURL
	err := row.Scan(&u.ID, &u.ShortCode, &u.LongURL, &u.CreatedAt, &u.QRCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
