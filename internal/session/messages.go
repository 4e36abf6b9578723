package session

import (
	"context"
	"errors"

	"github.com/necpgame/combat-session-engine/internal/engine"
)

var ErrSessionStopped = errors.New("session actor stopped")

type msg interface{ isSessionMsg() }

type result struct {
	entries []engine.Entry
	err     error
}

// command is a serialized mutation: run executes inside the actor loop with
// exclusive access to the snapshot and log.
type command struct {
	run   func(s *Session) ([]engine.Entry, engine.Snapshot, error)
	reply chan result
}

type stateQuery struct{ reply chan engine.Snapshot }

type logQuery struct {
	fromSeq uint64
	reply   chan []engine.Entry
}

type subscribeMsg struct {
	id string
	ch chan Update
}

type unsubscribeMsg struct{ id string }

type shutdownMsg struct{}

func (command) isSessionMsg()        {}
func (stateQuery) isSessionMsg()     {}
func (logQuery) isSessionMsg()       {}
func (subscribeMsg) isSessionMsg()   {}
func (unsubscribeMsg) isSessionMsg() {}
func (shutdownMsg) isSessionMsg()    {}

func (s *Session) send(ctx context.Context, m msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSessionStopped
	}
}

func (s *Session) exec(ctx context.Context, run func(*Session) ([]engine.Entry, engine.Snapshot, error)) ([]engine.Entry, error) {
	reply := make(chan result, 1)
	if err := s.send(ctx, command{run: run, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.entries, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Act resolves an action against the live session, lag-compensating eligible
// reactive kinds against the client-reported timestamp.
func (s *Session) Act(ctx context.Context, action engine.Action) ([]engine.Entry, error) {
	return s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.ApplyCompensated(s.initial, s.snap, s.log, action, s.deps.Clock.Now())
	})
}

// EndTurn is the explicit pass, always allowed by the current turn owner.
func (s *Session) EndTurn(ctx context.Context, actorID string) ([]engine.Entry, error) {
	return s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.Apply(s.snap, engine.Action{ActorID: actorID, Kind: engine.ActionPass}, s.deps.Clock.Now())
	})
}

func (s *Session) Start(ctx context.Context) error {
	_, err := s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.Start(s.snap, s.deps.Clock.Now())
	})
	return err
}

func (s *Session) Join(ctx context.Context, p engine.Participant) error {
	_, err := s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.Join(s.snap, p, s.deps.Clock.Now())
	})
	return err
}

func (s *Session) Revive(ctx context.Context, participantID string) ([]engine.Entry, error) {
	return s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.Revive(s.snap, participantID, s.deps.Clock.Now())
	})
}

func (s *Session) Surrender(ctx context.Context, side engine.Side) error {
	_, err := s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.Surrender(s.snap, side, s.deps.Clock.Now())
	})
	return err
}

func (s *Session) Abort(ctx context.Context, reason string) error {
	_, err := s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.Abort(s.snap, reason, s.deps.Clock.Now())
	})
	return err
}

func (s *Session) Complete(ctx context.Context, winner engine.Side) error {
	_, err := s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.Complete(s.snap, winner, s.deps.Clock.Now())
	})
	return err
}

func (s *Session) Pause(ctx context.Context) error {
	_, err := s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.Pause(s.snap, s.deps.Clock.Now())
	})
	return err
}

func (s *Session) Resume(ctx context.Context) error {
	_, err := s.exec(ctx, func(s *Session) ([]engine.Entry, engine.Snapshot, error) {
		return engine.Resume(s.snap, s.deps.Clock.Now())
	})
	return err
}

// State returns an immutable copy of the current snapshot.
func (s *Session) State(ctx context.Context) (engine.Snapshot, error) {
	reply := make(chan engine.Snapshot, 1)
	if err := s.send(ctx, stateQuery{reply: reply}); err != nil {
		return engine.Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return engine.Snapshot{}, ctx.Err()
	}
}

// Log returns a copy of the entries with seq >= fromSeq.
func (s *Session) Log(ctx context.Context, fromSeq uint64) ([]engine.Entry, error) {
	reply := make(chan []engine.Entry, 1)
	if err := s.send(ctx, logQuery{fromSeq: fromSeq, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case entries := <-reply:
		return entries, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Metrics derives per-session metrics from a log copy.
func (s *Session) Metrics(ctx context.Context) (engine.SessionMetrics, error) {
	entries, err := s.Log(ctx, 0)
	if err != nil {
		return engine.SessionMetrics{}, err
	}
	return engine.Summarize(s.ID(), entries), nil
}

// Simulate runs scripted actions against a copy of the current state and
// returns the would-be log. It holds the actor only long enough to copy the
// snapshot; the live session is never mutated.
func (s *Session) Simulate(ctx context.Context, actions []engine.Action) ([]engine.Entry, error) {
	sim, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	now := s.deps.Clock.Now()
	var out []engine.Entry
	for _, act := range actions {
		entries, next, err := engine.Apply(sim, act, now)
		if err != nil {
			return out, err
		}
		sim = next
		out = append(out, entries...)
	}
	return out, nil
}

func (s *Session) Subscribe(ctx context.Context, id string, ch chan Update) error {
	return s.send(ctx, subscribeMsg{id: id, ch: ch})
}

func (s *Session) Unsubscribe(id string) {
	select {
	case s.inbox <- unsubscribeMsg{id: id}:
	case <-s.ctx.Done():
	}
}

func (s *Session) Shutdown() {
	select {
	case s.inbox <- shutdownMsg{}:
	case <-s.ctx.Done():
	}
}
