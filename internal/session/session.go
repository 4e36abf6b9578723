// Package session runs one actor goroutine per live combat session. Every
// mutating operation against a session id flows through its inbox, which is
// what guarantees at-most-one in-flight mutation and submission-order
// application without shared-memory locking.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/necpgame/combat-session-engine/internal/clock"
	"github.com/necpgame/combat-session-engine/internal/engine"
	"github.com/necpgame/combat-session-engine/internal/metrics"
	"github.com/necpgame/combat-session-engine/internal/rewards"
	"github.com/necpgame/combat-session-engine/internal/store"
)

const persistMaxTries = 4

// Update is pushed to subscribers after every committed mutation.
type Update struct {
	Snapshot engine.Snapshot
	Entries  []engine.Entry
}

type Deps struct {
	Store   store.Store
	Clock   clock.Clock
	Logger  *zap.Logger
	Rewards *rewards.Retrying
	Sink    metrics.Sink
}

func (d *Deps) fill() {
	if d.Clock == nil {
		d.Clock = clock.System()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Sink == nil {
		d.Sink = metrics.NopSink{}
	}
}

type Session struct {
	inbox       chan msg
	deps        Deps
	logger      *zap.Logger
	initial     engine.Snapshot
	snap        engine.Snapshot
	log         []engine.Entry
	subscribers map[string]chan Update
	turnTimer   *time.Timer
	ctx         context.Context
	cancel      context.CancelFunc
}

// New spawns the actor over the initial snapshot and any already-persisted
// log; the current state is always the reduction of the two.
func New(parent context.Context, deps Deps, initial engine.Snapshot, log []engine.Entry) *Session {
	deps.fill()
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:       make(chan msg, 64),
		deps:        deps,
		logger:      deps.Logger.Named("session").With(zap.String("session_id", initial.SessionID)),
		initial:     initial.Clone(),
		snap:        engine.Reduce(initial, log),
		log:         append([]engine.Entry(nil), log...),
		subscribers: make(map[string]chan Update),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.armTurnTimer()
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.initial.SessionID }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-s.timerC():
			s.handleDeadline()

		case m := <-s.inbox:
			switch msg := m.(type) {
			case command:
				start := time.Now()
				entries, next, err := msg.run(s)
				if err == nil {
					err = s.commit(entries, next)
				}
				s.deps.Sink.ObserveResolve(time.Since(start))
				msg.reply <- result{entries: entries, err: err}

			case stateQuery:
				msg.reply <- s.snap.Clone()

			case logQuery:
				out := make([]engine.Entry, 0, len(s.log))
				for _, e := range s.log {
					if e.Seq >= msg.fromSeq {
						out = append(out, e)
					}
				}
				msg.reply <- out

			case subscribeMsg:
				s.subscribers[msg.id] = msg.ch
				msg.ch <- Update{Snapshot: s.snap.Clone()}

			case unsubscribeMsg:
				if ch, ok := s.subscribers[msg.id]; ok {
					close(ch)
					delete(s.subscribers, msg.id)
				}

			case shutdownMsg:
				s.shutdown()
				return
			}
		}
	}
}

// commit persists the entries, then updates the derived state and fans out.
// Persistence must succeed (or be durably retried) before the actor takes
// the next message, which keeps the log linearizable.
func (s *Session) commit(entries []engine.Entry, next engine.Snapshot) error {
	now := s.deps.Clock.Now()
	if next.State == engine.StateActive && next.Rules.TurnTimer > 0 {
		// a lapsed deadline is always re-armed, so a committed skip can
		// never re-fire immediately
		if next.TurnIndex != s.snap.TurnIndex || s.snap.State != engine.StateActive || !next.TurnDeadline.After(now) {
			next.TurnDeadline = now.Add(next.Rules.TurnTimer)
		}
	}

	if len(entries) > 0 {
		recs, err := store.RecordEntries(s.snap.SessionID, entries)
		if err != nil {
			return err
		}
		if err := s.persist(recs); err != nil {
			// ambiguous durability: park the session for manual intervention
			s.snap.State = engine.StatePaused
			s.saveSnapshot(s.snap)
			s.logger.Error("event append failed, session paused", zap.Error(err))
			return fmt.Errorf("persist entries: %w", err)
		}
	}

	s.saveSnapshot(next)
	s.snap = next
	s.log = append(s.log, entries...)

	if len(entries) > 0 {
		s.deps.Sink.Record(s.snap.SessionID, entries)
		s.broadcast(Update{Snapshot: s.snap.Clone(), Entries: entries})
	}
	s.armTurnTimer()

	if s.snap.State == engine.StateCompleting {
		s.finalize(entries)
	}
	return nil
}

func (s *Session) persist(recs []store.EventRecord) error {
	op := func() (struct{}, error) {
		return struct{}{}, s.deps.Store.AppendEntries(s.ctx, recs)
	}
	_, err := backoff.Retry(s.ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(persistMaxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			s.deps.Sink.RecordRetry()
			s.logger.Warn("event append retry", zap.Error(err), zap.Duration("backoff", d))
		}),
	)
	return err
}

func (s *Session) saveSnapshot(snap engine.Snapshot) {
	rec, err := store.RecordSession(s.initial, snap)
	if err != nil {
		s.logger.Error("encode session record", zap.Error(err))
		return
	}
	// the snapshot row is a cache over the log; failure here is recoverable
	if err := s.deps.Store.SaveSession(s.ctx, rec); err != nil {
		s.logger.Warn("session snapshot save failed", zap.Error(err))
	}
}

// finalize turns a completing session into a completed one and hands the
// outcome to the reward collaborator exactly once, off the actor goroutine.
func (s *Session) finalize(prior []engine.Entry) {
	var winner engine.Side
	for _, e := range prior {
		if e.Kind == engine.EntrySessionCompleting && e.Winner != "" {
			winner = e.Winner
		}
	}
	entries, next, err := engine.Complete(s.snap, winner, s.deps.Clock.Now())
	if err != nil {
		s.logger.Error("completion transition failed", zap.Error(err))
		return
	}
	if err := s.commit(entries, next); err != nil {
		s.logger.Error("completion commit failed", zap.Error(err))
		return
	}
	outcome := rewards.Outcome{
		Winner:  entries[0].Winner,
		Metrics: engine.Summarize(s.snap.SessionID, s.log),
	}
	if s.deps.Rewards != nil {
		s.deps.Rewards.Dispatch(s.snap.SessionID, outcome)
	}
	s.logger.Info("session completed", zap.String("winner", string(outcome.Winner)))
}

func (s *Session) handleDeadline() {
	if s.snap.State != engine.StateActive {
		return
	}
	now := s.deps.Clock.Now()
	if now.Before(s.snap.TurnDeadline) {
		s.armTurnTimer()
		return
	}
	entries, next, err := engine.SkipTurn(s.snap, now)
	if err != nil {
		s.logger.Warn("deadline skip failed", zap.Error(err))
		return
	}
	if len(entries) > 0 {
		s.logger.Info("turn deadline lapsed, auto-pass", zap.String("actor_id", entries[0].ActorID))
	}
	if err := s.commit(entries, next); err != nil {
		s.logger.Error("deadline commit failed", zap.Error(err))
	}
}

func (s *Session) armTurnTimer() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
	if s.snap.State != engine.StateActive || s.snap.Rules.TurnTimer <= 0 {
		return
	}
	d := s.snap.TurnDeadline.Sub(s.deps.Clock.Now())
	if s.snap.TurnDeadline.IsZero() {
		d = s.snap.Rules.TurnTimer
	}
	if d < 0 {
		d = 0
	}
	s.turnTimer = time.NewTimer(d)
}

func (s *Session) timerC() <-chan time.Time {
	if s.turnTimer == nil {
		return nil
	}
	return s.turnTimer.C
}

func (s *Session) broadcast(u Update) {
	for id, ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// slow subscriber, drop it
			close(ch)
			delete(s.subscribers, id)
		}
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	if s.turnTimer != nil {
		s.turnTimer.Stop()
	}
	s.cancel()
}
