package history

import (
	"context"
	"sort"
	"sync"

	"github.com/toricodesthings/transcript-import-service/internal/types"
)

const (
	StatusImported = "imported"
	StatusFailed   = "failed"
)

// Recorder keeps an audit trail of processed images.
type Recorder interface {
	Record(ctx context.Context, e types.HistoryEntry) error
	List(ctx context.Context, sessionID string, limit int) ([]types.HistoryEntry, error)
}

// Memory is a bounded in-process Recorder used when no database is configured.
type Memory struct {
	mu      sync.Mutex
	max     int
	nextID  int64
	entries []types.HistoryEntry
}

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 1000
	}
	return &Memory{max: max}
}

func (m *Memory) Record(_ context.Context, e types.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.entries = append(m.entries, e)
	if len(m.entries) > m.max {
		m.entries = append([]types.HistoryEntry(nil), m.entries[len(m.entries)-m.max:]...)
	}
	return nil
}

// List returns the newest entries of sessionID first.
func (m *Memory) List(_ context.Context, sessionID string, limit int) ([]types.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.HistoryEntry{}
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
