// Package logstore provides durable append/replay backends for collector
// persistence. The engine only ever appends records and replays them in
// commit order; it never interprets the storage format.
package logstore

import "sync"

// Record is one durably appended collector insertion.
type Record struct {
	ID      string // unique record id, assigned by the producer
	Payload []byte // opaque encoded value
}

// Log is the persistence contract: Append must commit before returning, and
// Replay yields records in append order.
type Log interface {
	Append(rec Record) error
	Replay(fn func(Record) error) error
	Close() error
}

// Memory is an in-process Log, for tests and ephemeral collectors that still
// want replay semantics.
type Memory struct {
	mu      sync.Mutex
	records []Record

	// FailAppend and FailReplay inject faults for testing.
	FailAppend error
	FailReplay error
}

// NewMemory returns an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend != nil {
		return m.FailAppend
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) Replay(fn func(Record) error) error {
	m.mu.Lock()
	recs := make([]Record, len(m.records))
	copy(recs, m.records)
	failure := m.FailReplay
	m.mu.Unlock()

	if failure != nil {
		return failure
	}
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Len reports how many records have been appended.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
