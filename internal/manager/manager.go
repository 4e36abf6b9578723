// Package manager owns the registry of live session actors. Lookups, creates
// and recoveries are serialized through the registry actor so a session id
// maps to exactly one running actor at a time.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/necpgame/combat-session-engine/internal/clock"
	"github.com/necpgame/combat-session-engine/internal/engine"
	"github.com/necpgame/combat-session-engine/internal/metrics"
	"github.com/necpgame/combat-session-engine/internal/session"
	"github.com/necpgame/combat-session-engine/internal/store"
)

var ErrNotFound = errors.New("session not found")
var ErrManagerStopped = errors.New("session manager stopped")

const recoveryPageSize = 200

// terminalSweepInterval bounds how long a completed or aborted session keeps
// its actor, timer and in-memory log resident.
const terminalSweepInterval = time.Minute

type msg interface{ isManagerMsg() }

type createMsg struct {
	participants []engine.Participant
	rules        engine.Rules
	reply        chan createReply
}

type createReply struct {
	sess *session.Session
	err  error
}

type getMsg struct {
	id    string
	reply chan createReply
}

type removeMsg struct{ id string }

type sweepMsg struct{}

type shutdownMsg struct{}

func (createMsg) isManagerMsg()   {}
func (getMsg) isManagerMsg()      {}
func (removeMsg) isManagerMsg()   {}
func (sweepMsg) isManagerMsg()    {}
func (shutdownMsg) isManagerMsg() {}

type Manager struct {
	inbox    chan msg
	sessions map[string]*session.Session
	deps     session.Deps
	rules    engine.Rules
	prom     *metrics.Metrics
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// New starts the registry actor. defaultRules fills in any policy values a
// create request leaves unset.
func New(parent context.Context, deps session.Deps, defaultRules engine.Rules, prom *metrics.Metrics) *Manager {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if prom != nil && deps.Sink == nil {
		deps.Sink = prom
	}
	m := &Manager{
		inbox:    make(chan msg, 64),
		sessions: make(map[string]*session.Session),
		deps:     deps,
		rules:    defaultRules,
		prom:     prom,
		logger:   deps.Logger.Named("manager"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go m.loop()
	return m
}

func (m *Manager) loop() {
	ticker := time.NewTicker(terminalSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case <-ticker.C:
			m.evictTerminal()

		case raw := <-m.inbox:
			switch msg := raw.(type) {
			case createMsg:
				sess, err := m.create(msg.participants, msg.rules)
				msg.reply <- createReply{sess: sess, err: err}

			case getMsg:
				sess, err := m.lookup(msg.id)
				msg.reply <- createReply{sess: sess, err: err}

			case removeMsg:
				if sess, ok := m.sessions[msg.id]; ok {
					sess.Shutdown()
					delete(m.sessions, msg.id)
				}

			case sweepMsg:
				m.evictTerminal()

			case shutdownMsg:
				m.shutdown()
				return
			}
		}
	}
}

// evictTerminal drops actors for sessions that reached a terminal state. The
// durable rows stay; a later Get recovers a read-only view on demand.
func (m *Manager) evictTerminal() {
	for id, sess := range m.sessions {
		ctx, cancel := context.WithTimeout(m.ctx, time.Second)
		snap, err := sess.State(ctx)
		cancel()
		if err != nil || !snap.State.Terminal() {
			continue
		}
		sess.Shutdown()
		delete(m.sessions, id)
		m.logger.Info("terminal session evicted", zap.String("session_id", id))
	}
}

func (m *Manager) create(participants []engine.Participant, rules engine.Rules) (*session.Session, error) {
	sessionID := uuid.NewString()
	snap, err := engine.NewSession(sessionID, participants, rules, m.deps.Clock.Now())
	if err != nil {
		return nil, err
	}

	rec, err := store.RecordSession(snap, snap)
	if err != nil {
		return nil, err
	}
	if err := m.deps.Store.SaveSession(m.ctx, rec); err != nil {
		return nil, fmt.Errorf("persist new session: %w", err)
	}

	sess := session.New(m.ctx, m.deps, snap, nil)
	m.sessions[sessionID] = sess
	if m.prom != nil {
		m.prom.SessionsCreated.Inc()
	}
	m.logger.Info("session created",
		zap.String("session_id", sessionID),
		zap.Int("participants", len(participants)),
		zap.String("state", string(snap.State)))
	return sess, nil
}

// lookup returns the live actor, recovering one from the durable log when
// the session exists in the store but not in memory.
func (m *Manager) lookup(id string) (*session.Session, error) {
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}

	rec, err := m.deps.Store.GetSession(m.ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	initial, err := store.DecodeSnapshot(rec.Initial)
	if err != nil {
		return nil, err
	}
	log, err := m.loadLog(id)
	if err != nil {
		return nil, err
	}

	sess := session.New(m.ctx, m.deps, initial, log)

	// A paused row whose log replays to active is the persistence-failure
	// parking: the pause never reached the log. Restore it durably now that
	// the store answers again, so a restart cannot resurrect the session.
	if rec.State == string(engine.StatePaused) {
		if err := sess.Pause(m.ctx); err != nil && !errors.Is(err, engine.ErrInvalidTransition) {
			sess.Shutdown()
			return nil, fmt.Errorf("restore paused session %s: %w", id, err)
		}
	}

	m.sessions[id] = sess
	m.logger.Info("session recovered from log",
		zap.String("session_id", id),
		zap.Int("entries", len(log)))
	return sess, nil
}

func (m *Manager) loadLog(id string) ([]engine.Entry, error) {
	var entries []engine.Entry
	var from uint64
	for {
		recs, err := m.deps.Store.ListEntries(m.ctx, id, from, recoveryPageSize)
		if err != nil {
			return nil, fmt.Errorf("load log for %s: %w", id, err)
		}
		if len(recs) == 0 {
			return entries, nil
		}
		page, err := store.DecodeEntries(recs)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		from = recs[len(recs)-1].Seq + 1
	}
}

func (m *Manager) shutdown() {
	for id, sess := range m.sessions {
		sess.Shutdown()
		delete(m.sessions, id)
	}
	m.cancel()
}

func (m *Manager) send(ctx context.Context, raw msg) error {
	select {
	case m.inbox <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrManagerStopped
	}
}

// Create validates the roster and spins up a new session actor. Unset rule
// values fall back to the manager defaults.
func (m *Manager) Create(ctx context.Context, participants []engine.Participant, rules *engine.Rules) (*session.Session, error) {
	effective := m.rules
	if rules != nil {
		effective = *rules
	}
	reply := make(chan createReply, 1)
	if err := m.send(ctx, createMsg{participants: participants, rules: effective, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.sess, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the live actor for a session id, recovering it from the store
// if needed.
func (m *Manager) Get(ctx context.Context, id string) (*session.Session, error) {
	reply := make(chan createReply, 1)
	if err := m.send(ctx, getMsg{id: id, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.sess, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Remove shuts down and forgets a live actor. The durable state stays; a
// later Get recovers it.
func (m *Manager) Remove(id string) {
	select {
	case m.inbox <- removeMsg{id: id}:
	case <-m.ctx.Done():
	}
}

func (m *Manager) Shutdown() {
	select {
	case m.inbox <- shutdownMsg{}:
	case <-m.ctx.Done():
	}
}

// DefaultRules exposes the configured policy values.
func (m *Manager) DefaultRules() engine.Rules { return m.rules }
