package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a development-only store.
// WARNING: not suitable for production, state is lost on restart and it
// does not work across multiple instances.
type Memory struct {
	mu        sync.RWMutex
	nextID    int64
	byID      map[int64]Video
	byMessage map[int64]int64
	// ordered is kept sorted in feed order.
	ordered []Video
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byID:      make(map[int64]Video),
		byMessage: make(map[int64]int64),
		now:       time.Now,
	}
}

func (m *Memory) Upsert(_ context.Context, v NewVideo) (Video, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byMessage[v.MessageID]; ok {
		return m.byID[id], false, nil
	}

	m.nextID++
	rec := Video{
		ID:        m.nextID,
		FileID:    v.FileID,
		Caption:   cloneString(v.Caption),
		MessageID: v.MessageID,
		PostedAt:  v.PostedAt,
	}
	if rec.PostedAt.IsZero() {
		rec.PostedAt = m.now()
	}
	rec.PostedAt = rec.PostedAt.UTC().Truncate(time.Microsecond)

	m.byID[rec.ID] = rec
	m.byMessage[rec.MessageID] = rec.ID
	i := sort.Search(len(m.ordered), func(i int) bool { return less(rec, m.ordered[i]) })
	m.ordered = append(m.ordered, Video{})
	copy(m.ordered[i+1:], m.ordered[i:])
	m.ordered[i] = rec
	return rec, true, nil
}

func (m *Memory) List(_ context.Context, cursor *int64, limit int) ([]Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if cursor != nil {
		boundary, ok := m.byID[*cursor]
		if !ok {
			return nil, ErrCursorNotFound
		}
		start = sort.Search(len(m.ordered), func(i int) bool { return less(boundary, m.ordered[i]) })
	}
	end := min(start+limit, len(m.ordered))
	if limit <= 0 || start >= end {
		return []Video{}, nil
	}
	out := make([]Video, end-start)
	copy(out, m.ordered[start:end])
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
