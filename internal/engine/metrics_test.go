package engine

import (
	"testing"
	"time"
)

func TestSummarizeFoldsLog(t *testing.T) {
	s := newDuel(t)
	s.Participants[1].HP = 35

	var log []Entry
	now := t0
	live := s
	script := []Action{
		{ActorID: "p1", Kind: ActionAttack, TargetIDs: []string{"p2"}}, // 20 dmg
		{ActorID: "p2", Kind: ActionAttack, TargetIDs: []string{"p1"}}, // 15 dmg
		{ActorID: "p1", Kind: ActionAttack, TargetIDs: []string{"p2"}}, // kills p2
	}
	for i, act := range script {
		now = now.Add(2 * time.Second)
		entries, next, err := Apply(live, act, now)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		live = next
		log = append(log, entries...)
	}

	m := Summarize("duel-1", log)
	if m.SessionID != "duel-1" {
		t.Fatalf("session id: %q", m.SessionID)
	}
	if m.Actions != 3 {
		t.Fatalf("actions: got %d, want 3", m.Actions)
	}
	if m.Deaths != 1 {
		t.Fatalf("deaths: got %d, want 1", m.Deaths)
	}
	if m.DamageDealt["p1"] != 40 || m.DamageDealt["p2"] != 15 {
		t.Fatalf("damage dealt: %v", m.DamageDealt)
	}
	if m.DamageTaken["p2"] != 40 || m.DamageTaken["p1"] != 15 {
		t.Fatalf("damage taken: %v", m.DamageTaken)
	}
	if m.Duration != 4*time.Second {
		t.Fatalf("duration: %v", m.Duration)
	}
	if m.Entries != len(log) {
		t.Fatalf("entries: got %d, want %d", m.Entries, len(log))
	}
}

func TestSummarizeEmptyLog(t *testing.T) {
	m := Summarize("empty", nil)
	if m.Actions != 0 || m.Deaths != 0 || m.Duration != 0 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}
