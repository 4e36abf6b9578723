package engine

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

type ActionKind string

const (
	ActionAttack  ActionKind = "attack"
	ActionAbility ActionKind = "ability"
	ActionItem    ActionKind = "item"
	ActionPass    ActionKind = "pass"
	ActionBlock   ActionKind = "block"
	ActionDodge   ActionKind = "dodge"
)

// Reactive kinds may be submitted out of turn and are the only kinds
// eligible for lag compensation.
func (k ActionKind) Reactive() bool { return k == ActionBlock || k == ActionDodge }

// ConsumesTurn reports whether resolving the action advances the turn.
func (k ActionKind) ConsumesTurn() bool { return !k.Reactive() }

// Payload carries kind-specific parameters.
type Payload struct {
	Ability   string               `json:"ability,omitempty"`
	BasePower int                  `json:"base_power,omitempty"`
	Cost      map[ResourceKind]int `json:"cost,omitempty"`
	Status    *StatusEffect        `json:"status,omitempty"`
}

type Action struct {
	ActorID         string     `json:"actor_id"`
	Kind            ActionKind `json:"kind"`
	TargetIDs       []string   `json:"target_ids,omitempty"`
	ClientTimestamp time.Time  `json:"client_timestamp,omitempty"`
	Payload         Payload    `json:"payload,omitempty"`
}

// Guard statuses applied by reactive actions.
const (
	blockModifier = 0.5
	blockDuration = 2
	dodgeDuration = 1
	reviveDivisor = 2
	maxArmorSoak  = 0.9
	minimumDamage = 1
)

// rngFor seeds resolution randomness per (sessionID, seq) so replay and
// simulation reproduce the same rolls, and parallel sessions never share a
// generator.
func rngFor(sessionID string, seq uint64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	h.Write(b[:])
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// Apply resolves one action against a snapshot and returns the log entries
// plus the next snapshot. It is a pure function of its inputs: all timing
// comes from the logical tick, the wall timestamp is recorded but never
// consulted.
func Apply(s Snapshot, act Action, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	if s.State != StateActive {
		return nil, s, ErrSessionNotActive
	}
	actorIdx, ok := s.participantIndex(act.ActorID)
	if !ok {
		return nil, s, ErrUnknownParticipant
	}
	if !s.Participants[actorIdx].Alive() {
		return nil, s, ErrDeadActor
	}
	if !act.Kind.Reactive() && s.TurnIndex != actorIdx {
		return nil, s, ErrNotYourTurn
	}

	tick := s.Tick + 1
	rng := rngFor(s.SessionID, s.NextSeq)

	var effects []Effect
	var err error
	switch act.Kind {
	case ActionAttack:
		effects, err = resolveAttack(s, actorIdx, act, tick, rng)
	case ActionAbility:
		effects, err = resolveAbility(s, actorIdx, act, tick, rng)
	case ActionItem:
		effects, err = resolveItem(s, actorIdx, act)
	case ActionPass:
		// nothing to resolve, the turn advance below is the whole effect
	case ActionBlock:
		effects = []Effect{{
			TargetID: act.ActorID,
			Statuses: []StatusEffect{{Kind: StatusGuard, Modifier: blockModifier, ExpiresTick: tick + blockDuration}},
		}}
	case ActionDodge:
		effects = []Effect{{
			TargetID: act.ActorID,
			Statuses: []StatusEffect{{Kind: StatusEvasion, Modifier: 0, ExpiresTick: tick + dodgeDuration}},
		}}
	default:
		return nil, s, ErrUnsupportedAction
	}
	if err != nil {
		return nil, s, err
	}

	entries := []Entry{{
		Seq:       s.NextSeq,
		Tick:      tick,
		Timestamp: now,
		Kind:      EntryActionResolved,
		ActorID:   act.ActorID,
		Action:    act.Kind,
		Effects:   effects,
	}}

	next := s.Clone()
	applyEntry(&next, entries[0])

	if act.Kind.ConsumesTurn() {
		entries = append(entries, advanceEntries(next, tick, now)...)
		for _, e := range entries[1:] {
			applyEntry(&next, e)
		}
	}
	return entries, next, nil
}

// SkipTurn passes on behalf of the turn owner once the deadline lapses. A
// roster that cannot continue moves to completing, same as a played-out pass,
// so a lone side never skips itself forever.
func SkipTurn(s Snapshot, now time.Time) ([]Entry, Snapshot, error) {
	if s.State.Terminal() {
		return nil, s, ErrSessionClosed
	}
	if s.State != StateActive {
		return nil, s, ErrSessionNotActive
	}
	tick := s.Tick + 1
	next := s.Clone()
	if battleOver(next.Participants) {
		entries := advanceEntries(next, tick, now)
		for _, e := range entries {
			applyEntry(&next, e)
		}
		return entries, next, nil
	}
	idx, ok := NextAlive(next.Participants, next.TurnIndex)
	if !ok {
		return nil, next, nil
	}
	entries := []Entry{{
		Seq:       s.NextSeq,
		Tick:      tick,
		Timestamp: now,
		Kind:      EntryTurnSkipped,
		ActorID:   s.Participants[s.TurnIndex].ID,
		TurnIndex: idx,
	}}
	applyEntry(&next, entries[0])
	return entries, next, nil
}

// advanceEntries emits the turn advance, or the completion transition when
// at most one side is left standing.
func advanceEntries(s Snapshot, tick int64, now time.Time) []Entry {
	if battleOver(s.Participants) {
		e := Entry{Seq: s.NextSeq, Tick: tick, Timestamp: now, Kind: EntrySessionCompleting}
		if sides := AliveSides(s.Participants); len(sides) == 1 {
			e.Winner = sides[0]
		}
		return []Entry{e}
	}
	if idx, ok := NextAlive(s.Participants, s.TurnIndex); ok {
		return []Entry{{Seq: s.NextSeq, Tick: tick, Timestamp: now, Kind: EntryTurnAdvanced, TurnIndex: idx}}
	}
	return nil
}

func resolveAttack(s Snapshot, actorIdx int, act Action, tick int64, rng *rand.Rand) ([]Effect, error) {
	if len(act.TargetIDs) != 1 {
		return nil, ErrInvalidTarget
	}
	targetIdx, ok := s.participantIndex(act.TargetIDs[0])
	if !ok {
		return nil, ErrInvalidTarget
	}
	actor := s.Participants[actorIdx]
	target := s.Participants[targetIdx]
	if !target.Alive() || target.Side == actor.Side {
		return nil, ErrInvalidTarget
	}
	eff := damageEffect(s.Rules, actor, target, actor.Attack, tick, rng)
	return []Effect{eff}, nil
}

func resolveAbility(s Snapshot, actorIdx int, act Action, tick int64, rng *rand.Rand) ([]Effect, error) {
	if len(act.TargetIDs) == 0 {
		return nil, ErrInvalidTarget
	}
	actor := s.Participants[actorIdx]
	for kind, cost := range act.Payload.Cost {
		if actor.Resources[kind] < cost {
			return nil, ErrResourceExhausted
		}
	}

	var effects []Effect
	for _, id := range act.TargetIDs {
		targetIdx, ok := s.participantIndex(id)
		if !ok {
			return nil, ErrInvalidTarget
		}
		target := s.Participants[targetIdx]
		if !target.Alive() {
			return nil, ErrInvalidTarget
		}
		var eff Effect
		if target.Side == actor.Side {
			healing := int(math.Round(float64(act.Payload.BasePower) * s.Rules.HealingMultiplier))
			eff = Effect{TargetID: id, Healing: healing}
		} else {
			eff = damageEffect(s.Rules, actor, target, act.Payload.BasePower, tick, rng)
		}
		if act.Payload.Status != nil {
			st := *act.Payload.Status
			st.ExpiresTick += tick
			eff.Statuses = append(eff.Statuses, st)
		}
		effects = append(effects, eff)
	}

	if len(act.Payload.Cost) > 0 {
		deltas := make(map[ResourceKind]int, len(act.Payload.Cost))
		for kind, cost := range act.Payload.Cost {
			deltas[kind] = -cost
		}
		effects = append(effects, Effect{TargetID: act.ActorID, ResourceDeltas: deltas})
	}
	return effects, nil
}

func resolveItem(s Snapshot, actorIdx int, act Action) ([]Effect, error) {
	actor := s.Participants[actorIdx]
	targetID := act.ActorID
	if len(act.TargetIDs) == 1 {
		targetID = act.TargetIDs[0]
	} else if len(act.TargetIDs) > 1 {
		return nil, ErrInvalidTarget
	}
	targetIdx, ok := s.participantIndex(targetID)
	if !ok {
		return nil, ErrInvalidTarget
	}
	target := s.Participants[targetIdx]
	if target.Side != actor.Side || !target.Alive() {
		return nil, ErrInvalidTarget
	}
	for kind, cost := range act.Payload.Cost {
		if actor.Resources[kind] < cost {
			return nil, ErrResourceExhausted
		}
	}
	healing := int(math.Round(float64(act.Payload.BasePower) * s.Rules.HealingMultiplier))
	effects := []Effect{{TargetID: targetID, Healing: healing}}
	if len(act.Payload.Cost) > 0 {
		deltas := make(map[ResourceKind]int, len(act.Payload.Cost))
		for kind, cost := range act.Payload.Cost {
			deltas[kind] = -cost
		}
		effects = append(effects, Effect{TargetID: act.ActorID, ResourceDeltas: deltas})
	}
	return effects, nil
}

// damageEffect runs the damage pipeline: base power scaled by the global
// multiplier, critical roll, armor soak capped at 90%, floor of 1. Guard
// statuses on the target scale the result; an evasion status negates it.
func damageEffect(rules Rules, actor, target Participant, base int, tick int64, rng *rand.Rand) Effect {
	eff := Effect{TargetID: target.ID}

	mod := incomingModifier(target, tick)
	if mod == 0 {
		eff.Missed = true
		return eff
	}

	dmg := float64(base) * rules.DamageMultiplier
	if actor.CritChance > 0 && rng.Float64() < actor.CritChance {
		dmg *= rules.CritMultiplier
		eff.Critical = true
	}
	soak := float64(target.Armor) * rules.ArmorReductionFactor
	if limit := dmg * maxArmorSoak; soak > limit {
		soak = limit
	}
	dmg = (dmg - soak) * mod
	if dmg < minimumDamage {
		dmg = minimumDamage
	}
	eff.Damage = int(math.Round(dmg))
	if eff.Damage >= target.HP {
		eff.Died = true
	}
	return eff
}

// incomingModifier folds the target's active guard statuses into one damage
// multiplier, taking the strongest (lowest) one.
func incomingModifier(target Participant, tick int64) float64 {
	mod := 1.0
	for _, st := range target.Statuses {
		if st.ExpiresTick >= tick && st.Modifier < mod {
			mod = st.Modifier
		}
	}
	return mod
}
