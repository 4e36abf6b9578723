package engine

import (
	"math"
	"time"
)

// Lifecycle transitions share the shape of Apply: pure functions returning
// the entries to append and the next snapshot, never touching the input.

func Start(s Snapshot, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	if s.State != StateForming {
		return nil, s, ErrInvalidTransition
	}
	e := Entry{Seq: s.NextSeq, Tick: s.Tick + 1, Timestamp: now, Kind: EntrySessionStarted}
	next := s.Clone()
	applyEntry(&next, e)
	return []Entry{e}, next, nil
}

func Join(s Snapshot, p Participant, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	if s.State == StateActive && !s.Rules.AllowLateJoin {
		return nil, s, ErrLateJoinDisabled
	}
	if s.State != StateForming && s.State != StateActive {
		return nil, s, ErrInvalidTransition
	}
	if p.ID == "" || p.MaxHP <= 0 || p.HP <= 0 || p.HP > p.MaxHP {
		return nil, s, ErrInvalidConfig
	}
	if _, dup := s.participantIndex(p.ID); dup {
		return nil, s, ErrDuplicateParticipant
	}
	if len(s.Participants) >= s.Rules.MaxParticipants {
		return nil, s, ErrInvalidConfig
	}
	joined := p.clone()
	e := Entry{Seq: s.NextSeq, Tick: s.Tick + 1, Timestamp: now, Kind: EntryParticipantJoined, ActorID: p.ID, Joined: &joined}
	next := s.Clone()
	applyEntry(&next, e)
	return []Entry{e}, next, nil
}

// Revive brings a dead participant back at half max HP.
func Revive(s Snapshot, participantID string, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	if s.State != StateActive {
		return nil, s, ErrSessionNotActive
	}
	idx, ok := s.participantIndex(participantID)
	if !ok {
		return nil, s, ErrUnknownParticipant
	}
	if s.Participants[idx].Alive() {
		return nil, s, ErrAlreadyAlive
	}
	healing := int(math.Ceil(float64(s.Participants[idx].MaxHP) / reviveDivisor))
	e := Entry{
		Seq:       s.NextSeq,
		Tick:      s.Tick + 1,
		Timestamp: now,
		Kind:      EntryParticipantRevived,
		ActorID:   participantID,
		Effects:   []Effect{{TargetID: participantID, Healing: healing}},
	}
	next := s.Clone()
	applyEntry(&next, e)
	return []Entry{e}, next, nil
}

// Surrender marks every participant on the side as conceding. When only one
// side remains the session moves to completing.
func Surrender(s Snapshot, side Side, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	if s.State != StateActive {
		return nil, s, ErrSessionNotActive
	}
	found := false
	for _, p := range s.Participants {
		if p.Side == side {
			found = true
			break
		}
	}
	if !found {
		return nil, s, ErrUnknownSide
	}

	tick := s.Tick + 1
	entries := []Entry{{Seq: s.NextSeq, Tick: tick, Timestamp: now, Kind: EntrySideSurrendered, Side: side}}
	next := s.Clone()
	applyEntry(&next, entries[0])

	if battleOver(next.Participants) {
		e := Entry{Seq: next.NextSeq, Tick: tick, Timestamp: now, Kind: EntrySessionCompleting}
		if sides := AliveSides(next.Participants); len(sides) == 1 {
			e.Winner = sides[0]
		}
		entries = append(entries, e)
		applyEntry(&next, e)
	} else if next.TurnIndex < len(next.Participants) && !next.Participants[next.TurnIndex].Alive() {
		if idx, ok := NextAlive(next.Participants, next.TurnIndex); ok {
			e := Entry{Seq: next.NextSeq, Tick: tick, Timestamp: now, Kind: EntryTurnAdvanced, TurnIndex: idx}
			entries = append(entries, e)
			applyEntry(&next, e)
		}
	}
	return entries, next, nil
}

func Abort(s Snapshot, reason string, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	e := Entry{Seq: s.NextSeq, Tick: s.Tick + 1, Timestamp: now, Kind: EntrySessionAborted, Reason: reason}
	next := s.Clone()
	applyEntry(&next, e)
	return []Entry{e}, next, nil
}

// Complete freezes the log. Winner defaults to the single remaining side.
func Complete(s Snapshot, winner Side, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	if s.State != StateActive && s.State != StateCompleting {
		return nil, s, ErrInvalidTransition
	}
	if winner == "" {
		if sides := AliveSides(s.Participants); len(sides) == 1 {
			winner = sides[0]
		}
	}
	e := Entry{Seq: s.NextSeq, Tick: s.Tick + 1, Timestamp: now, Kind: EntrySessionCompleted, Winner: winner}
	next := s.Clone()
	applyEntry(&next, e)
	return []Entry{e}, next, nil
}

func Pause(s Snapshot, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	if s.State != StateActive {
		return nil, s, ErrInvalidTransition
	}
	e := Entry{Seq: s.NextSeq, Tick: s.Tick + 1, Timestamp: now, Kind: EntrySessionPaused}
	next := s.Clone()
	applyEntry(&next, e)
	return []Entry{e}, next, nil
}

func Resume(s Snapshot, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	if s.State != StatePaused {
		return nil, s, ErrInvalidTransition
	}
	e := Entry{Seq: s.NextSeq, Tick: s.Tick + 1, Timestamp: now, Kind: EntrySessionResumed}
	next := s.Clone()
	applyEntry(&next, e)
	return []Entry{e}, next, nil
}
