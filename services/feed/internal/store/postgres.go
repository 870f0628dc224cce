package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// The conflict arm is a no-op update so RETURNING yields the existing row
// under the row lock; xmax = 0 only for a freshly inserted tuple.
const upsertSQL = `
INSERT INTO videos (file_id, message_id, caption, posted_at)
VALUES ($1, $2, $3, COALESCE($4, now()))
ON CONFLICT (message_id) DO UPDATE SET message_id = videos.message_id
RETURNING id, file_id, caption, message_id, posted_at, (xmax = 0) AS inserted`

func (s *Postgres) Upsert(ctx context.Context, v NewVideo) (Video, bool, error) {
	var postedAt any
	if !v.PostedAt.IsZero() {
		postedAt = v.PostedAt.UTC()
	}

	var (
		rec      Video
		inserted bool
	)
	err := s.pool.QueryRow(ctx, upsertSQL, v.FileID, v.MessageID, v.Caption, postedAt).
		Scan(&rec.ID, &rec.FileID, &rec.Caption, &rec.MessageID, &rec.PostedAt, &inserted)
	if err != nil {
		return Video{}, false, fmt.Errorf("store: upsert message %d: %w", v.MessageID, err)
	}
	rec.PostedAt = rec.PostedAt.UTC()
	return rec, inserted, nil
}

const (
	boundarySQL = `SELECT posted_at, id FROM videos WHERE id = $1`

	firstPageSQL = `
SELECT id, file_id, caption, message_id, posted_at
FROM videos
ORDER BY posted_at DESC, id DESC
LIMIT $1`

	nextPageSQL = `
SELECT id, file_id, caption, message_id, posted_at
FROM videos
WHERE (posted_at, id) < ($1, $2)
ORDER BY posted_at DESC, id DESC
LIMIT $3`
)

// List holds one pooled connection for the boundary lookup and the scan.
func (s *Postgres) List(ctx context.Context, cursor *int64, limit int) ([]Video, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquire: %w", err)
	}
	defer conn.Release()

	var rows pgx.Rows
	if cursor == nil {
		rows, err = conn.Query(ctx, firstPageSQL, limit)
	} else {
		var b Video
		err = conn.QueryRow(ctx, boundarySQL, *cursor).Scan(&b.PostedAt, &b.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCursorNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("store: cursor %d: %w", *cursor, err)
		}
		rows, err = conn.Query(ctx, nextPageSQL, b.PostedAt, b.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Video, error) {
		var v Video
		err := row.Scan(&v.ID, &v.FileID, &v.Caption, &v.MessageID, &v.PostedAt)
		v.PostedAt = v.PostedAt.UTC()
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
