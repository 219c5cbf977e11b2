package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/shorty/internal/entity"
)

const uniqueViolationErrCode = "23505"

func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode
}

const urlColumns = `short_code, original_url, clicks, created_at`

type urlDB struct {
	ShortCode   string    `db:"short_code"`
	OriginalURL string    `db:"original_url"`
	Clicks      int64     `db:"clicks"`
	CreatedAt   time.Time `db:"created_at"`
}

func (u *urlDB) toEntity() *entity.URL {
	return &entity.URL{
		ShortCode:   u.ShortCode,
		OriginalURL: u.OriginalURL,
		Clicks:      u.Clicks,
		CreatedAt:   u.CreatedAt.UTC(),
	}
}

type Option func(*URLRepository)

// WithTTL sets how long saved URLs stay visible.
func WithTTL(ttl time.Duration) Option {
	return func(r *URLRepository) {
		r.ttl = ttl
	}
}

// WithClock replaces the time source used for creation timestamps and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(r *URLRepository) {
		r.now = now
	}
}

// URLRepository stores URLs in the urls table. Postgres has no per-row TTL,
// so every read filters out rows created at or before now - ttl and
// RemoveExpired deletes them.
type URLRepository struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

func NewURLRepository(db *sqlx.DB, opts ...Option) *URLRepository {
	r := &URLRepository{
		db:  db,
		ttl: entity.DefaultTTL,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *URLRepository) cutoff() time.Time {
	return entity.Cutoff(r.now().UTC(), r.ttl)
}

func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.Save"
	const query = `INSERT INTO urls (short_code, original_url, created_at) VALUES ($1, $2, $3) RETURNING ` + urlColumns

	var url urlDB

	createdAt := r.now().UTC().Truncate(time.Microsecond)

	if err := r.db.GetContext(ctx, &url, query, shortCode, originalURL, createdAt); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: %w: failed to insert into urls table: %w", op, entity.ErrStorage, err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) RetrieveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveByOriginalURL"
	const query = `SELECT ` + urlColumns + ` FROM urls WHERE original_url = $1 AND created_at > $2 ORDER BY created_at DESC, id DESC LIMIT 1`

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, originalURL, r.cutoff()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: %w: failed to get row from urls table: %w", op, entity.ErrStorage, err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveByShortCode"
	const query = `SELECT ` + urlColumns + ` FROM urls WHERE short_code = $1 AND created_at > $2`

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, shortCode, r.cutoff()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: %w: failed to get row from urls table: %w", op, entity.ErrStorage, err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveAndUpdateStats"
	const query = `UPDATE urls SET clicks = clicks + 1 WHERE short_code = $1 AND created_at > $2 RETURNING ` + urlColumns

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, shortCode, r.cutoff()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: %w: failed to get and update urls table row: %w", op, entity.ErrStorage, err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) RetrieveAll(ctx context.Context) ([]entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveAll"
	const query = `SELECT ` + urlColumns + ` FROM urls WHERE created_at > $1 ORDER BY created_at DESC, id DESC`

	var rows []urlDB

	if err := r.db.SelectContext(ctx, &rows, query, r.cutoff()); err != nil {
		return nil, fmt.Errorf("%s: %w: failed to select from urls table: %w", op, entity.ErrStorage, err)
	}

	urls := make([]entity.URL, 0, len(rows))
	for i := range rows {
		urls = append(urls, *rows[i].toEntity())
	}

	return urls, nil
}

func (r *URLRepository) RemoveExpired(ctx context.Context) (int64, error) {
	const op = "adapter.repository.postgres.URLRepository.RemoveExpired"
	const query = `DELETE FROM urls WHERE created_at <= $1`

	res, err := r.db.ExecContext(ctx, query, r.cutoff())
	if err != nil {
		return 0, fmt.Errorf("%s: %w: failed to delete from urls table: %w", op, entity.ErrStorage, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w: failed to get number of affected rows: %w", op, entity.ErrStorage, err)
	}

	return rowsAffected, nil
}
