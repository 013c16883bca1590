package checkpoint

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process memory. Data is lost when the
// process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]stored // workflowID -> nodeID -> snapshot
	seq    map[string]int
	closed bool
}

type stored struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]stored),
		seq:  make(map[string]int),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(workflowID, nodeID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if m.data[workflowID] == nil {
		m.data[workflowID] = make(map[string]stored)
	}
	m.seq[workflowID]++

	m.data[workflowID][nodeID] = stored{
		data:      append([]byte(nil), data...),
		sequence:  m.seq[workflowID],
		timestamp: time.Now().UTC(),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(workflowID, nodeID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	s, ok := m.data[workflowID][nodeID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

// List implements Store.
func (m *MemoryStore) List(workflowID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	wf := m.data[workflowID]
	infos := make([]Info, 0, len(wf))
	for nodeID, s := range wf {
		infos = append(infos, Info{
			WorkflowID: workflowID,
			NodeID:     nodeID,
			Sequence:   s.sequence,
			Timestamp:  s.timestamp,
			Size:       int64(len(s.data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(workflowID, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data[workflowID], nodeID)
	return nil
}

// DeleteWorkflow implements Store.
func (m *MemoryStore) DeleteWorkflow(workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data, workflowID)
	delete(m.seq, workflowID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	m.seq = nil
	return nil
}

// Len returns the number of snapshots across all workflows.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, wf := range m.data {
		count += len(wf)
	}
	return count
}
