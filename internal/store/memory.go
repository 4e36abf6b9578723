package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is the in-process store used by tests and database-less runs.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
	events   map[string]map[uint64]EventRecord
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]SessionRecord),
		events:   make(map[string]map[uint64]EventRecord),
	}
}

func (m *Memory) SaveSession(_ context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[rec.SessionID]; ok && len(rec.Initial) == 0 {
		rec.Initial = prev.Initial
	}
	m.sessions[rec.SessionID] = rec
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) AppendEntries(_ context.Context, recs []EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		bySeq, ok := m.events[rec.SessionID]
		if !ok {
			bySeq = make(map[uint64]EventRecord)
			m.events[rec.SessionID] = bySeq
		}
		// idempotent replay: an existing seq wins
		if _, exists := bySeq[rec.Seq]; exists {
			continue
		}
		bySeq[rec.Seq] = rec
	}
	return nil
}

func (m *Memory) ListEntries(_ context.Context, sessionID string, fromSeq uint64, limit int) ([]EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bySeq := m.events[sessionID]
	recs := make([]EventRecord, 0, len(bySeq))
	for seq, rec := range bySeq {
		if seq >= fromSeq {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}
