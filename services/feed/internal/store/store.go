// Package store persists video records keyed by their upstream message id.
//
// Primary backend: Postgres (env DATABASE_URL).
// If DATABASE_URL is empty, an in-memory store is used (development only).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrCursorNotFound is returned by List when the cursor names no stored row.
var ErrCursorNotFound = errors.New("store: cursor row not found")

// Video is a stored record. It is never mutated after insert.
type Video struct {
	ID        int64
	FileID    string
	Caption   *string
	MessageID int64
	PostedAt  time.Time
}

// NewVideo is an accepted, normalized event ready to be stored.
type NewVideo struct {
	FileID    string
	MessageID int64
	Caption   *string
	// PostedAt zero means "now".
	PostedAt time.Time
}

// VideoStore is implemented by the Postgres and in-memory backends.
type VideoStore interface {
	// Upsert inserts v unless a row with the same MessageID exists, in which
	// case the existing row is returned unchanged and inserted is false.
	Upsert(ctx context.Context, v NewVideo) (rec Video, inserted bool, err error)
	// List returns up to limit rows ordered by (PostedAt DESC, ID DESC),
	// strictly after the row named by cursor when cursor is non-nil.
	List(ctx context.Context, cursor *int64, limit int) ([]Video, error)
	Ping(ctx context.Context) error
}

// less reports whether a sorts before b in feed order.
func less(a, b Video) bool {
	if !a.PostedAt.Equal(b.PostedAt) {
		return a.PostedAt.After(b.PostedAt)
	}
	return a.ID > b.ID
}
