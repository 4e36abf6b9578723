// Package store persists session snapshots and the append-only event log.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/necpgame/combat-session-engine/internal/engine"
)

var ErrNotFound = errors.New("session not found")

// SessionRecord is the durable per-session row: the initial snapshot (the
// replay base) plus the current snapshot kept as a cache.
type SessionRecord struct {
	SessionID string
	State     string
	Initial   []byte
	Snapshot  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventRecord is one row of the append-only log, keyed (session_id, seq).
type EventRecord struct {
	SessionID string
	Seq       uint64
	Kind      string
	Payload   []byte
	Timestamp time.Time
}

type Store interface {
	// SaveSession upserts the session row.
	SaveSession(ctx context.Context, rec SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	// AppendEntries is idempotent on (session_id, seq): replaying a batch
	// that was already written is a no-op, never a double apply.
	AppendEntries(ctx context.Context, recs []EventRecord) error
	// ListEntries returns entries with seq >= fromSeq in seq order, up to limit.
	ListEntries(ctx context.Context, sessionID string, fromSeq uint64, limit int) ([]EventRecord, error)
}

// RecordSession encodes a snapshot pair into its durable row.
func RecordSession(initial, current engine.Snapshot) (SessionRecord, error) {
	init, err := json.Marshal(initial)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("encode initial snapshot: %w", err)
	}
	cur, err := json.Marshal(current)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return SessionRecord{
		SessionID: current.SessionID,
		State:     string(current.State),
		Initial:   init,
		Snapshot:  cur,
		CreatedAt: current.CreatedAt,
	}, nil
}

// RecordEntries encodes log entries into durable rows.
func RecordEntries(sessionID string, entries []engine.Entry) ([]EventRecord, error) {
	recs := make([]EventRecord, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode entry %d: %w", e.Seq, err)
		}
		recs = append(recs, EventRecord{
			SessionID: sessionID,
			Seq:       e.Seq,
			Kind:      string(e.Kind),
			Payload:   payload,
			Timestamp: e.Timestamp,
		})
	}
	return recs, nil
}

// DecodeSnapshot decodes a stored snapshot blob.
func DecodeSnapshot(blob []byte) (engine.Snapshot, error) {
	var s engine.Snapshot
	if err := json.Unmarshal(blob, &s); err != nil {
		return engine.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// DecodeEntries decodes stored log rows back into entries.
func DecodeEntries(recs []EventRecord) ([]engine.Entry, error) {
	entries := make([]engine.Entry, 0, len(recs))
	for _, rec := range recs {
		var e engine.Entry
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", rec.Seq, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
