package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/jmoiron/sqlx"
)

// SQL stores bindings in the media_bindings table (SQLite or Postgres).
// It has no native expiry; the sweeper removes stale rows.
type SQL struct {
	db *sqlx.DB
}

func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) Create(ctx context.Context, b *models.MediaBinding) error {
	query := `INSERT INTO media_bindings (code, external_media_id, mime_type, extension, original_name, sender_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (code) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		b.Code,
		b.ExternalMediaID,
		b.MimeType,
		b.Extension,
		b.OriginalName,
		b.SenderID,
		b.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert binding: %w", err)
	}
	if n == 0 {
		return ErrCodeTaken
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, code string) (*models.MediaBinding, error) {
	b := &models.MediaBinding{}
	query := `SELECT * FROM media_bindings WHERE code = $1`

	err := s.db.GetContext(ctx, b, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get binding: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (s *SQL) Delete(ctx context.Context, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media_bindings WHERE code = $1`, code)
	if err != nil {
		return false, fmt.Errorf("delete binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete binding: %w", err)
	}
	return n > 0, nil
}

func (s *SQL) DeleteIfCreatedAt(ctx context.Context, code string, createdAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media_bindings WHERE code = $1 AND created_at = $2`, code, createdAt.UTC())
	if err != nil {
		return false, fmt.Errorf("delete binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete binding: %w", err)
	}
	return n > 0, nil
}

func (s *SQL) List(ctx context.Context, limit int, createdAfter time.Time) ([]*models.MediaBinding, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	// The zero time sorts before every stored row, so it doubles as "no floor".
	floor := createdAfter.UTC()

	var bindings []*models.MediaBinding
	query := `SELECT * FROM media_bindings WHERE created_at > $1 ORDER BY created_at DESC LIMIT $2`
	if err := s.db.SelectContext(ctx, &bindings, query, floor, limit); err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	for _, b := range bindings {
		b.CreatedAt = b.CreatedAt.UTC()
	}
	return bindings, nil
}

func (s *SQL) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media_bindings WHERE created_at <= $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep bindings: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQL) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM media_bindings`); err != nil {
		return fmt.Errorf("clear bindings: %w", err)
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQL) Close() error {
	return s.db.Close()
}
