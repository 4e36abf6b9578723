package engine

import "time"

type State string

const (
	StateForming    State = "forming"
	StateActive     State = "active"
	StatePaused     State = "paused"
	StateCompleting State = "completing"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

// Terminal states never accept another mutation.
func (s State) Terminal() bool { return s == StateCompleted || s == StateAborted }

type Side string

type ResourceKind string

// StatusEffect is a timed modifier on a participant. Modifier scales incoming
// damage (0 negates, 1 is neutral) and the effect lapses once the session tick
// passes ExpiresTick.
type StatusEffect struct {
	Kind        string  `json:"kind"`
	Modifier    float64 `json:"modifier"`
	ExpiresTick int64   `json:"expires_tick"`
}

const (
	StatusGuard   = "guard"
	StatusEvasion = "evasion"
)

type Participant struct {
	ID         string               `json:"id"`
	Side       Side                 `json:"side"`
	HP         int                  `json:"hp"`
	MaxHP      int                  `json:"max_hp"`
	Attack     int                  `json:"attack"`
	Armor      int                  `json:"armor"`
	CritChance float64              `json:"crit_chance"`
	Resources  map[ResourceKind]int `json:"resources,omitempty"`
	Statuses   []StatusEffect       `json:"statuses,omitempty"`
	Conceded   bool                 `json:"conceded,omitempty"`
}

func (p Participant) Alive() bool { return p.HP > 0 && !p.Conceded }

func (p Participant) clone() Participant {
	c := p
	if p.Resources != nil {
		c.Resources = make(map[ResourceKind]int, len(p.Resources))
		for k, v := range p.Resources {
			c.Resources[k] = v
		}
	}
	if p.Statuses != nil {
		c.Statuses = append([]StatusEffect(nil), p.Statuses...)
	}
	return c
}

// Rules holds the policy values that balance left unspecified: they arrive
// from configuration, never hardcoded in the resolver.
type Rules struct {
	MaxParticipants       int           `json:"max_participants"`
	AllowLateJoin         bool          `json:"allow_late_join"`
	AutoStart             bool          `json:"auto_start"`
	TurnTimer             time.Duration `json:"turn_timer"`
	MaxCompensationWindow time.Duration `json:"max_compensation_window"`
	DamageMultiplier      float64       `json:"damage_multiplier"`
	HealingMultiplier     float64       `json:"healing_multiplier"`
	CritMultiplier        float64       `json:"crit_multiplier"`
	ArmorReductionFactor  float64       `json:"armor_reduction_factor"`
	CompensableKinds      []ActionKind  `json:"compensable_kinds"`
}

func DefaultRules() Rules {
	return Rules{
		MaxParticipants:       8,
		AutoStart:             true,
		TurnTimer:             30 * time.Second,
		MaxCompensationWindow: 250 * time.Millisecond,
		DamageMultiplier:      1.0,
		HealingMultiplier:     1.0,
		CritMultiplier:        1.5,
		ArmorReductionFactor:  0.5,
		CompensableKinds:      []ActionKind{ActionBlock, ActionDodge},
	}
}

func (r Rules) Compensable(k ActionKind) bool {
	for _, c := range r.CompensableKinds {
		if c == k {
			return true
		}
	}
	return false
}

// Snapshot is the derived in-memory view of one combat session. The event log
// is the source of truth; a snapshot is always rebuildable via Reduce.
type Snapshot struct {
	SessionID    string        `json:"session_id"`
	State        State         `json:"state"`
	Participants []Participant `json:"participants"`
	TurnIndex    int           `json:"turn_index"`
	Tick         int64         `json:"tick"`
	NextSeq      uint64        `json:"next_seq"`
	TurnDeadline time.Time     `json:"turn_deadline,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	CompletedAt  time.Time     `json:"completed_at,omitempty"`
	Rules        Rules         `json:"rules"`
}

func (s Snapshot) Clone() Snapshot {
	c := s
	c.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		c.Participants[i] = p.clone()
	}
	if s.Rules.CompensableKinds != nil {
		c.Rules.CompensableKinds = append([]ActionKind(nil), s.Rules.CompensableKinds...)
	}
	return c
}

func (s Snapshot) participantIndex(id string) (int, bool) {
	for i, p := range s.Participants {
		if p.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (s Snapshot) Participant(id string) (Participant, bool) {
	if i, ok := s.participantIndex(id); ok {
		return s.Participants[i], true
	}
	return Participant{}, false
}

// TurnOwner returns the participant whose turn it is. Only meaningful while
// the session is active.
func (s Snapshot) TurnOwner() (Participant, bool) {
	if s.State != StateActive || s.TurnIndex < 0 || s.TurnIndex >= len(s.Participants) {
		return Participant{}, false
	}
	return s.Participants[s.TurnIndex], true
}

// NewSession validates the roster and produces the initial snapshot. With
// AutoStart the session opens active with the first alive participant on
// turn; otherwise it stays forming until an explicit Start.
func NewSession(sessionID string, participants []Participant, rules Rules, now time.Time) (Snapshot, error) {
	if rules.MaxParticipants <= 0 {
		return Snapshot{}, ErrInvalidConfig
	}
	if len(participants) < 1 || len(participants) > rules.MaxParticipants {
		return Snapshot{}, ErrInvalidConfig
	}
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if p.ID == "" || p.MaxHP <= 0 || p.HP <= 0 || p.HP > p.MaxHP {
			return Snapshot{}, ErrInvalidConfig
		}
		if _, dup := seen[p.ID]; dup {
			return Snapshot{}, ErrDuplicateParticipant
		}
		seen[p.ID] = struct{}{}
	}

	s := Snapshot{
		SessionID: sessionID,
		State:     StateForming,
		CreatedAt: now,
		Rules:     rules,
	}
	s.Participants = make([]Participant, len(participants))
	for i, p := range participants {
		s.Participants[i] = p.clone()
	}
	if rules.AutoStart {
		s.State = StateActive
		if idx, ok := FirstAlive(s.Participants); ok {
			s.TurnIndex = idx
		}
	}
	return s, nil
}
