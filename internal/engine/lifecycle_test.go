package engine

import (
	"errors"
	"testing"
)

func formingDuel(t *testing.T) Snapshot {
	t.Helper()
	rules := duelRules()
	rules.AutoStart = false
	s, err := NewSession("duel-2", []Participant{
		{ID: "p1", Side: "alpha", HP: 100, MaxHP: 100, Attack: 20},
		{ID: "p2", Side: "beta", HP: 100, MaxHP: 100, Attack: 15},
	}, rules, t0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestNewSessionValidation(t *testing.T) {
	cases := []struct {
		name    string
		parts   []Participant
		rules   Rules
		wantErr error
	}{
		{
			name:    "empty roster",
			parts:   nil,
			rules:   duelRules(),
			wantErr: ErrInvalidConfig,
		},
		{
			name: "over capacity",
			parts: []Participant{
				{ID: "a", Side: "x", HP: 1, MaxHP: 1},
				{ID: "b", Side: "x", HP: 1, MaxHP: 1},
			},
			rules:   Rules{MaxParticipants: 1},
			wantErr: ErrInvalidConfig,
		},
		{
			name: "duplicate id",
			parts: []Participant{
				{ID: "a", Side: "x", HP: 1, MaxHP: 1},
				{ID: "a", Side: "y", HP: 1, MaxHP: 1},
			},
			rules:   duelRules(),
			wantErr: ErrDuplicateParticipant,
		},
		{
			name:    "hp above max",
			parts:   []Participant{{ID: "a", Side: "x", HP: 5, MaxHP: 1}},
			rules:   duelRules(),
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSession("s", tc.parts, tc.rules, t0)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestStartOpensFormingSession(t *testing.T) {
	s := formingDuel(t)
	if s.State != StateForming {
		t.Fatalf("setup state: %s", s.State)
	}

	entries, next, err := Start(s, t0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != EntrySessionStarted {
		t.Fatalf("entries: %+v", entries)
	}
	if next.State != StateActive {
		t.Fatalf("state: %s", next.State)
	}
	if owner, ok := next.TurnOwner(); !ok || owner.ID != "p1" {
		t.Fatalf("owner: %q", owner.ID)
	}

	// starting twice is a transition error
	if _, _, err := Start(next, t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second start: got %v", err)
	}
}

func TestJoinRespectsLateJoinPolicy(t *testing.T) {
	joiner := Participant{ID: "p3", Side: "beta", HP: 50, MaxHP: 50}

	forming := formingDuel(t)
	_, next, err := Join(forming, joiner, t0)
	if err != nil {
		t.Fatalf("join while forming: %v", err)
	}
	if len(next.Participants) != 3 {
		t.Fatalf("roster size: %d", len(next.Participants))
	}

	active := newDuel(t)
	if _, _, err := Join(active, joiner, t0); !errors.Is(err, ErrLateJoinDisabled) {
		t.Fatalf("late join: got %v", err)
	}

	active.Rules.AllowLateJoin = true
	entries, next, err := Join(active, joiner, t0)
	if err != nil {
		t.Fatalf("allowed late join: %v", err)
	}
	if entries[0].Kind != EntryParticipantJoined || entries[0].Joined == nil {
		t.Fatalf("join entry: %+v", entries[0])
	}
	if _, ok := next.Participant("p3"); !ok {
		t.Fatalf("joiner missing from roster")
	}

	if _, _, err := Join(next, joiner, t0); !errors.Is(err, ErrDuplicateParticipant) {
		t.Fatalf("duplicate join: got %v", err)
	}
}

func TestReviveRestoresHalfMaxHP(t *testing.T) {
	s := newDuel(t)
	s.Participants[1].HP = 0

	entries, next, err := Revive(s, "p2", t0)
	if err != nil {
		t.Fatalf("Revive: %v", err)
	}
	if entries[0].Kind != EntryParticipantRevived {
		t.Fatalf("kind: %s", entries[0].Kind)
	}
	p2, _ := next.Participant("p2")
	if p2.HP != 50 {
		t.Fatalf("revived HP: got %d, want 50", p2.HP)
	}

	if _, _, err := Revive(next, "p2", t0); !errors.Is(err, ErrAlreadyAlive) {
		t.Fatalf("double revive: got %v", err)
	}
	if _, _, err := Revive(next, "ghost", t0); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("unknown revive: got %v", err)
	}
}

func TestReviveRoundsUpOddMaxHP(t *testing.T) {
	s := newDuel(t)
	s.Participants[1].HP = 0
	s.Participants[1].MaxHP = 75

	_, next, err := Revive(s, "p2", t0)
	if err != nil {
		t.Fatalf("Revive: %v", err)
	}
	p2, _ := next.Participant("p2")
	if p2.HP != 38 {
		t.Fatalf("revived HP: got %d, want 38", p2.HP)
	}
}

func TestSurrenderEndsTheSession(t *testing.T) {
	s := newDuel(t)

	entries, next, err := Surrender(s, "beta", t0)
	if err != nil {
		t.Fatalf("Surrender: %v", err)
	}
	if entries[0].Kind != EntrySideSurrendered || entries[0].Side != "beta" {
		t.Fatalf("first entry: %+v", entries[0])
	}
	last := entries[len(entries)-1]
	if last.Kind != EntrySessionCompleting || last.Winner != "alpha" {
		t.Fatalf("final entry: kind=%s winner=%s", last.Kind, last.Winner)
	}
	if next.State != StateCompleting {
		t.Fatalf("state: %s", next.State)
	}
	p2, _ := next.Participant("p2")
	if !p2.Conceded || p2.Alive() {
		t.Fatalf("conceded participant still alive: %+v", p2)
	}

	if _, _, err := Surrender(s, "gamma", t0); err == nil {
		t.Fatalf("unknown side accepted")
	}
}

func TestSurrenderWithThreeSidesAdvancesTurn(t *testing.T) {
	s, err := NewSession("ffa", []Participant{
		{ID: "a", Side: "alpha", HP: 100, MaxHP: 100},
		{ID: "b", Side: "beta", HP: 100, MaxHP: 100},
		{ID: "c", Side: "gamma", HP: 100, MaxHP: 100},
	}, duelRules(), t0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// the turn owner concedes; play continues between the other two
	entries, next, err := Surrender(s, "alpha", t0)
	if err != nil {
		t.Fatalf("Surrender: %v", err)
	}
	if next.State != StateActive {
		t.Fatalf("state: %s", next.State)
	}
	last := entries[len(entries)-1]
	if last.Kind != EntryTurnAdvanced {
		t.Fatalf("final entry: %s", last.Kind)
	}
	if owner, _ := next.TurnOwner(); owner.ID != "b" {
		t.Fatalf("owner: %q", owner.ID)
	}
}

func TestAbortFromAnyNonTerminalState(t *testing.T) {
	for _, setup := range []Snapshot{formingDuel(t), newDuel(t)} {
		entries, next, err := Abort(setup, "operator", t0)
		if err != nil {
			t.Fatalf("Abort from %s: %v", setup.State, err)
		}
		if entries[0].Kind != EntrySessionAborted || entries[0].Reason != "operator" {
			t.Fatalf("entry: %+v", entries[0])
		}
		if next.State != StateAborted || next.CompletedAt.IsZero() {
			t.Fatalf("next: state=%s completed_at=%v", next.State, next.CompletedAt)
		}

		if _, _, err := Abort(next, "again", t0); !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("abort after terminal: got %v", err)
		}
	}
}

func TestCompleteDefaultsWinnerToLastSideStanding(t *testing.T) {
	s := newDuel(t)
	s.Participants[1].HP = 0

	entries, next, err := Complete(s, "", t0)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if entries[0].Winner != "alpha" {
		t.Fatalf("winner: %q", entries[0].Winner)
	}
	if next.State != StateCompleted || next.CompletedAt.IsZero() {
		t.Fatalf("next: state=%s completed_at=%v", next.State, next.CompletedAt)
	}

	if _, _, err := Complete(next, "alpha", t0); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("complete twice: got %v", err)
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	s := newDuel(t)

	_, paused, err := Pause(s, t0)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.State != StatePaused {
		t.Fatalf("state: %s", paused.State)
	}
	// actions are rejected while paused
	if _, _, err := Apply(paused, Action{ActorID: "p1", Kind: ActionPass}, t0); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("paused apply: got %v", err)
	}
	if _, _, err := Pause(paused, t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double pause: got %v", err)
	}

	_, resumed, err := Resume(paused, t0)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.State != StateActive {
		t.Fatalf("state: %s", resumed.State)
	}
}
