package engine

import "time"

type EntryKind string

const (
	EntrySessionStarted     EntryKind = "session.started"
	EntryParticipantJoined  EntryKind = "participant.joined"
	EntryActionResolved     EntryKind = "action.resolved"
	EntryTurnAdvanced       EntryKind = "turn.advanced"
	EntryTurnSkipped        EntryKind = "turn.skipped"
	EntryParticipantRevived EntryKind = "participant.revived"
	EntrySideSurrendered    EntryKind = "side.surrendered"
	EntrySessionPaused      EntryKind = "session.paused"
	EntrySessionResumed     EntryKind = "session.resumed"
	EntrySessionCompleting  EntryKind = "session.completing"
	EntrySessionCompleted   EntryKind = "session.completed"
	EntrySessionAborted     EntryKind = "session.aborted"
)

// Effect is the structured result of an entry against one participant.
type Effect struct {
	TargetID       string               `json:"target_id"`
	Damage         int                  `json:"damage,omitempty"`
	Healing        int                  `json:"healing,omitempty"`
	Critical       bool                 `json:"critical,omitempty"`
	Missed         bool                 `json:"missed,omitempty"`
	ResourceDeltas map[ResourceKind]int `json:"resource_deltas,omitempty"`
	Statuses       []StatusEffect       `json:"statuses,omitempty"`
	Died           bool                 `json:"died,omitempty"`
}

// Entry is one immutable record in the append-only session log. Seq is
// monotonic and gap-free per session starting at 0; the log is the single
// source of truth and a snapshot is rebuilt from it by Reduce.
type Entry struct {
	Seq                uint64        `json:"seq"`
	Tick               int64         `json:"tick"`
	Timestamp          time.Time     `json:"timestamp"`
	Kind               EntryKind     `json:"kind"`
	ActorID            string        `json:"actor_id,omitempty"`
	Action             ActionKind    `json:"action,omitempty"`
	TurnIndex          int           `json:"turn_index,omitempty"`
	Effects            []Effect      `json:"effects,omitempty"`
	Joined             *Participant  `json:"joined,omitempty"`
	Side               Side          `json:"side,omitempty"`
	Winner             Side          `json:"winner,omitempty"`
	Reason             string        `json:"reason,omitempty"`
	Compensated        bool          `json:"compensated,omitempty"`
	CompensationOffset time.Duration `json:"compensation_offset,omitempty"`
}

// Reduce replays entries over a base snapshot. Replaying the full log over
// the initial snapshot reproduces the live state exactly, which is what makes
// recovery and simulation deterministic.
func Reduce(base Snapshot, entries []Entry) Snapshot {
	s := base.Clone()
	for _, e := range entries {
		applyEntry(&s, e)
	}
	return s
}

func applyEntry(s *Snapshot, e Entry) {
	s.NextSeq = e.Seq + 1
	if e.Tick > s.Tick {
		s.Tick = e.Tick
	}
	switch e.Kind {
	case EntrySessionStarted:
		s.State = StateActive
		if idx, ok := FirstAlive(s.Participants); ok {
			s.TurnIndex = idx
		}
	case EntryParticipantJoined:
		if e.Joined != nil {
			s.Participants = append(s.Participants, e.Joined.clone())
		}
	case EntryActionResolved, EntryParticipantRevived:
		applyEffects(s, e.Effects)
	case EntryTurnAdvanced, EntryTurnSkipped:
		s.TurnIndex = e.TurnIndex
	case EntrySideSurrendered:
		for i := range s.Participants {
			if s.Participants[i].Side == e.Side {
				s.Participants[i].Conceded = true
			}
		}
	case EntrySessionPaused:
		s.State = StatePaused
	case EntrySessionResumed:
		s.State = StateActive
	case EntrySessionCompleting:
		s.State = StateCompleting
	case EntrySessionCompleted:
		s.State = StateCompleted
		s.CompletedAt = e.Timestamp
	case EntrySessionAborted:
		s.State = StateAborted
		s.CompletedAt = e.Timestamp
	}
}

func applyEffects(s *Snapshot, effects []Effect) {
	for _, eff := range effects {
		idx, ok := s.participantIndex(eff.TargetID)
		if !ok {
			continue
		}
		p := &s.Participants[idx]
		p.HP -= eff.Damage
		if p.HP < 0 {
			p.HP = 0
		}
		p.HP += eff.Healing
		if p.HP > p.MaxHP {
			p.HP = p.MaxHP
		}
		for kind, delta := range eff.ResourceDeltas {
			if p.Resources == nil {
				p.Resources = make(map[ResourceKind]int)
			}
			p.Resources[kind] += delta
		}
		p.Statuses = append(p.Statuses, eff.Statuses...)
	}
	expireStatuses(s)
}

func expireStatuses(s *Snapshot) {
	for i := range s.Participants {
		p := &s.Participants[i]
		kept := p.Statuses[:0]
		for _, st := range p.Statuses {
			if st.ExpiresTick > s.Tick {
				kept = append(kept, st)
			}
		}
		if len(kept) == 0 {
			p.Statuses = nil
		} else {
			p.Statuses = kept
		}
	}
}
