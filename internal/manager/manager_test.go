package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/necpgame/combat-session-engine/internal/clock"
	"github.com/necpgame/combat-session-engine/internal/engine"
	"github.com/necpgame/combat-session-engine/internal/session"
	"github.com/necpgame/combat-session-engine/internal/store"
)

var testStart = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func testRoster() []engine.Participant {
	return []engine.Participant{
		{ID: "p1", Side: "alpha", HP: 100, MaxHP: 100, Attack: 20},
		{ID: "p2", Side: "beta", HP: 100, MaxHP: 100, Attack: 15},
	}
}

func newTestManager(t *testing.T) (*Manager, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	deps := session.Deps{
		Store:  mem,
		Clock:  clock.NewFake(testStart),
		Logger: zap.NewNop(),
	}
	m := New(context.Background(), deps, engine.DefaultRules(), nil)
	t.Cleanup(m.Shutdown)
	return m, mem
}

func TestCreateAndGetReturnSameActor(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	sess, err := m.Create(ctx, testRoster(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID())

	again, err := m.Get(ctx, sess.ID())
	require.NoError(t, err)
	require.Same(t, sess, again)

	_, err = m.Get(ctx, "no-such-session")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsBadRoster(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, err := m.Create(ctx, nil, nil)
	require.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = m.Create(ctx, []engine.Participant{
		{ID: "dup", Side: "a", HP: 10, MaxHP: 10},
		{ID: "dup", Side: "b", HP: 10, MaxHP: 10},
	}, nil)
	require.ErrorIs(t, err, engine.ErrDuplicateParticipant)
}

func TestGetRecoversFromDurableLog(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	sess, err := m.Create(ctx, testRoster(), nil)
	require.NoError(t, err)
	id := sess.ID()

	_, err = sess.Act(ctx, engine.Action{ActorID: "p1", Kind: engine.ActionAttack, TargetIDs: []string{"p2"}})
	require.NoError(t, err)
	_, err = sess.Act(ctx, engine.Action{ActorID: "p2", Kind: engine.ActionAttack, TargetIDs: []string{"p1"}})
	require.NoError(t, err)

	// drop the live actor; the durable log must be enough to rebuild it
	m.Remove(id)

	recovered, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NotSame(t, sess, recovered)

	snap, err := recovered.State(ctx)
	require.NoError(t, err)
	p1, _ := snap.Participant("p1")
	p2, _ := snap.Participant("p2")
	require.Equal(t, 85, p1.HP)
	require.Equal(t, 80, p2.HP)
	require.Equal(t, uint64(4), snap.NextSeq)

	// recovered actors accept new actions with continuing seq
	entries, err := recovered.Act(ctx, engine.Action{ActorID: "p1", Kind: engine.ActionAttack, TargetIDs: []string{"p2"}})
	require.NoError(t, err)
	require.Equal(t, uint64(4), entries[0].Seq)
}

func TestGetRestoresParkedPauseAfterRestart(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager(t)

	sess, err := m.Create(ctx, testRoster(), nil)
	require.NoError(t, err)
	id := sess.ID()
	_, err = sess.Act(ctx, engine.Action{ActorID: "p1", Kind: engine.ActionAttack, TargetIDs: []string{"p2"}})
	require.NoError(t, err)

	// a persistence failure parks the session: the row says paused, but the
	// pause itself never reached the log
	rec, err := mem.GetSession(ctx, id)
	require.NoError(t, err)
	rec.State = string(engine.StatePaused)
	require.NoError(t, mem.SaveSession(ctx, rec))
	m.Remove(id)

	recovered, err := m.Get(ctx, id)
	require.NoError(t, err)
	snap, err := recovered.State(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.StatePaused, snap.State)

	// the restored pause is durable now
	recs, err := mem.ListEntries(ctx, id, 0, 0)
	require.NoError(t, err)
	entries, err := store.DecodeEntries(recs)
	require.NoError(t, err)
	require.Equal(t, engine.EntrySessionPaused, entries[len(entries)-1].Kind)

	// an operator can resume and play continues
	require.NoError(t, recovered.Resume(ctx))
	snap, err = recovered.State(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.StateActive, snap.State)
}

func TestTerminalSessionsAreEvicted(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	sess, err := m.Create(ctx, testRoster(), nil)
	require.NoError(t, err)
	require.NoError(t, sess.Surrender(ctx, "beta"))

	m.inbox <- sweepMsg{}

	// the completed actor is gone; the durable state still answers reads
	recovered, err := m.Get(ctx, sess.ID())
	require.NoError(t, err)
	require.NotSame(t, sess, recovered)
	snap, err := recovered.State(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.StateCompleted, snap.State)

	// live sessions survive a sweep
	live, err := m.Create(ctx, testRoster(), nil)
	require.NoError(t, err)
	m.inbox <- sweepMsg{}
	again, err := m.Get(ctx, live.ID())
	require.NoError(t, err)
	require.Same(t, live, again)
}

func TestCreateAppliesRuleOverrides(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	rules := engine.DefaultRules()
	rules.AutoStart = false
	sess, err := m.Create(ctx, testRoster(), &rules)
	require.NoError(t, err)

	snap, err := sess.State(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.StateForming, snap.State)

	require.NoError(t, sess.Start(ctx))
	snap, err = sess.State(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.StateActive, snap.State)
}
