package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory keeps the most recent entries in process. It backs the ledger when
// no database is configured.
type Memory struct {
	mu      sync.Mutex
	max     int
	nextID  int64
	entries []Entry
	now     func() time.Time
}

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 500
	}
	return &Memory{max: max, now: time.Now}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	m.entries = append(m.entries, e)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *Memory) Unacknowledged(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acked := map[int64]bool{}
	var out []Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.entries[i]
		if e.Acknowledged {
			acked[e.EventID] = true
			continue
		}
		if e.NeedsReconciliation() && !acked[e.EventID] {
			out = append(out, e)
		}
	}
	return out, nil
}
