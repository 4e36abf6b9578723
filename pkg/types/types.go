// Package types holds the wire shapes consumed by the HTTP and websocket
// surfaces. Generated client DTO layers map onto these.
package types

import "time"

type Participant struct {
	ID         string         `json:"id"`
	Side       string         `json:"side"`
	HP         int            `json:"hp"`
	MaxHP      int            `json:"max_hp"`
	Attack     int            `json:"attack,omitempty"`
	Armor      int            `json:"armor,omitempty"`
	CritChance float64        `json:"crit_chance,omitempty"`
	Resources  map[string]int `json:"resources,omitempty"`
}

type Rules struct {
	MaxParticipants      *int     `json:"max_participants,omitempty"`
	AllowLateJoin        *bool    `json:"allow_late_join,omitempty"`
	AutoStart            *bool    `json:"auto_start,omitempty"`
	TurnTimerMs          *int64   `json:"turn_timer_ms,omitempty"`
	CompensationWindowMs *int64   `json:"compensation_window_ms,omitempty"`
	DamageMultiplier     *float64 `json:"damage_multiplier,omitempty"`
	HealingMultiplier    *float64 `json:"healing_multiplier,omitempty"`
	CritMultiplier       *float64 `json:"crit_multiplier,omitempty"`
	ArmorReductionFactor *float64 `json:"armor_reduction_factor,omitempty"`
	CompensableKinds     []string `json:"compensable_kinds,omitempty"`
}

type CreateSessionRequest struct {
	Participants []Participant `json:"participants"`
	Rules        *Rules        `json:"rules,omitempty"`
}

type JoinRequest struct {
	Participant Participant `json:"participant"`
}

type StatusPayload struct {
	Kind     string  `json:"kind"`
	Modifier float64 `json:"modifier"`
	Duration int64   `json:"duration_ticks"`
}

type ActionPayload struct {
	Ability   string         `json:"ability,omitempty"`
	BasePower int            `json:"base_power,omitempty"`
	Cost      map[string]int `json:"cost,omitempty"`
	Status    *StatusPayload `json:"status,omitempty"`
}

type ActionRequest struct {
	ActorID         string        `json:"actor_id"`
	Kind            string        `json:"kind"`
	TargetIDs       []string      `json:"target_ids,omitempty"`
	ClientTimestamp time.Time     `json:"client_timestamp,omitempty"`
	Payload         ActionPayload `json:"payload,omitempty"`
}

type SimulateRequest struct {
	Actions []ActionRequest `json:"actions"`
}

type EndTurnRequest struct {
	ActorID string `json:"actor_id"`
}

type ReviveRequest struct {
	ParticipantID string `json:"participant_id"`
}

type SurrenderRequest struct {
	Side string `json:"side"`
}

type AbortRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CompleteRequest struct {
	Winner string `json:"winner,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ClientMessage is what a websocket client sends: an action against the
// session it is attached to.
type ClientMessage struct {
	Type   string         `json:"type"` // "Action"
	Action *ActionRequest `json:"action,omitempty"`
}
