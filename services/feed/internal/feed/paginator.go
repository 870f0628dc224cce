// Package feed serves stored videos as keyset-paginated pages, newest first.
package feed

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/example/reelfeed/services/feed/internal/store"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

var (
	ErrInvalidPageSize = errors.New("feed: page size must be a positive integer")
	ErrInvalidCursor   = errors.New("feed: invalid cursor")
)

// Page is one slice of the feed. NextCursor is nil on the last page.
type Page struct {
	Items      []store.Video
	NextCursor *int64
}

func (p Page) HasMore() bool { return p.NextCursor != nil }

type Paginator struct {
	store store.VideoStore
}

func NewPaginator(s store.VideoStore) *Paginator {
	return &Paginator{store: s}
}

// Page returns up to pageSize videos after cursor. The cursor is a row id;
// it is resolved to that row's (posted_at, id) position, so traversal stays
// complete when id order and posted_at order disagree.
func (p *Paginator) Page(ctx context.Context, cursor *int64, pageSize int) (Page, error) {
	if pageSize <= 0 {
		return Page{}, ErrInvalidPageSize
	}
	pageSize = min(pageSize, MaxPageSize)
	if cursor != nil && *cursor <= 0 {
		return Page{}, ErrInvalidCursor
	}

	rows, err := p.store.List(ctx, cursor, pageSize+1)
	if errors.Is(err, store.ErrCursorNotFound) {
		return Page{}, ErrInvalidCursor
	}
	if err != nil {
		return Page{}, err
	}

	if len(rows) <= pageSize {
		return Page{Items: rows}, nil
	}
	items := rows[:pageSize]
	next := items[pageSize-1].ID
	return Page{Items: items, NextCursor: &next}, nil
}

// ParseCursor parses the cursor query parameter. Empty means first page.
func ParseCursor(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return nil, ErrInvalidCursor
	}
	return &n, nil
}

// ParseLimit parses the limit query parameter. Empty means DefaultPageSize;
// values above MaxPageSize are clamped.
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultPageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, ErrInvalidPageSize
	}
	return min(n, MaxPageSize), nil
}
