package journal

import "sync"

// Memory is a Store that keeps everything in memory.
type Memory struct {
	lock    sync.Mutex
	entries []Entry
}

func (m *Memory) Append(es []Entry) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.entries = append(m.entries, es...)
	return nil
}

func (m *Memory) Since(seq uint64, limit int) ([]Entry, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := []Entry{}
	for _, e := range m.entries {
		if e.Seq <= seq {
			continue
		}
		if limit > 0 && len(res) >= limit {
			break
		}
		res = append(res, e)
	}
	return res, nil
}

func (m *Memory) Close() error { return nil }
