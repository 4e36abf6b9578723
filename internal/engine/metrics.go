package engine

import "time"

// SessionMetrics is derived purely from the event log, never from live
// in-memory state, so it can be computed from the durable store at any time.
type SessionMetrics struct {
	SessionID    string         `json:"session_id"`
	Entries      int            `json:"entries"`
	Actions      int            `json:"actions"`
	Compensated  int            `json:"compensated"`
	TurnsSkipped int            `json:"turns_skipped"`
	Deaths       int            `json:"deaths"`
	DamageDealt  map[string]int `json:"damage_dealt,omitempty"`
	DamageTaken  map[string]int `json:"damage_taken,omitempty"`
	HealingDone  map[string]int `json:"healing_done,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// Summarize folds a session log into its derived metrics.
func Summarize(sessionID string, entries []Entry) SessionMetrics {
	m := SessionMetrics{
		SessionID:   sessionID,
		Entries:     len(entries),
		DamageDealt: make(map[string]int),
		DamageTaken: make(map[string]int),
		HealingDone: make(map[string]int),
	}
	var first, last time.Time
	for _, e := range entries {
		if first.IsZero() {
			first = e.Timestamp
		}
		last = e.Timestamp
		switch e.Kind {
		case EntryActionResolved:
			m.Actions++
			if e.Compensated {
				m.Compensated++
			}
			for _, eff := range e.Effects {
				if eff.Damage > 0 {
					m.DamageDealt[e.ActorID] += eff.Damage
					m.DamageTaken[eff.TargetID] += eff.Damage
				}
				if eff.Healing > 0 {
					m.HealingDone[e.ActorID] += eff.Healing
				}
				if eff.Died {
					m.Deaths++
				}
			}
		case EntryTurnSkipped:
			m.TurnsSkipped++
		}
	}
	if !first.IsZero() {
		m.Duration = last.Sub(first)
	}
	return m
}
