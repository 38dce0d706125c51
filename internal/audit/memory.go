package audit

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemorySink keeps a hash-chained log in process.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) AppendEntry(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var prev Entry
	if n := len(m.entries); n > 0 {
		prev = m.entries[n-1]
	}
	linked, err := Link(prev, e)
	if err != nil {
		return err
	}
	linked.ID = strconv.FormatInt(linked.Seq, 10)
	m.entries = append(m.entries, linked)
	return nil
}

func (m *MemorySink) ListEntries(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for _, e := range m.entries {
		if f.UserID == "" || e.UserID == f.UserID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Seq > out[j].Seq
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemorySink) Verify(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var v ChainVerifier
	for _, e := range m.entries {
		if err := v.Check(e); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a copy in append order.
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
