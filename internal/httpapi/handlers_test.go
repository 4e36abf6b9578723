package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/necpgame/combat-session-engine/internal/engine"
	"github.com/necpgame/combat-session-engine/internal/manager"
	"github.com/necpgame/combat-session-engine/internal/session"
	"github.com/necpgame/combat-session-engine/internal/store"
	"github.com/necpgame/combat-session-engine/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	deps := session.Deps{Store: store.NewMemory(), Logger: zap.NewNop()}
	mgr := manager.New(context.Background(), deps, engine.DefaultRules(), nil)
	t.Cleanup(mgr.Shutdown)

	srv := httptest.NewServer(SetupRoutes(mgr, nil, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createDuel(t *testing.T, srv *httptest.Server) engine.Snapshot {
	t.Helper()
	var snap engine.Snapshot
	resp := postJSON(t, srv.URL+"/sessions", types.CreateSessionRequest{
		Participants: []types.Participant{
			{ID: "p1", Side: "alpha", HP: 100, MaxHP: 100, Attack: 20},
			{ID: "p2", Side: "beta", HP: 100, MaxHP: 100, Attack: 15},
		},
	}, &snap)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, snap.SessionID)
	return snap
}

func TestCreateActAndReadBack(t *testing.T) {
	srv := newTestServer(t)
	snap := createDuel(t, srv)
	base := fmt.Sprintf("%s/sessions/%s", srv.URL, snap.SessionID)

	var entries []engine.Entry
	resp := postJSON(t, base+"/actions", types.ActionRequest{
		ActorID:   "p1",
		Kind:      "attack",
		TargetIDs: []string{"p2"},
	}, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(0), entries[0].Seq)

	getResp, err := http.Get(base + "/")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var cur engine.Snapshot
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&cur))
	p2, _ := cur.Participant("p2")
	require.Equal(t, 80, p2.HP)

	logResp, err := http.Get(base + "/log?from_seq=1")
	require.NoError(t, err)
	defer logResp.Body.Close()
	var tail []engine.Entry
	require.NoError(t, json.NewDecoder(logResp.Body).Decode(&tail))
	require.Len(t, tail, 1)
	require.Equal(t, engine.EntryTurnAdvanced, tail[0].Kind)
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	snap := createDuel(t, srv)
	base := fmt.Sprintf("%s/sessions/%s", srv.URL, snap.SessionID)

	// out-of-turn action conflicts
	var errResp types.ErrorResponse
	resp := postJSON(t, base+"/actions", types.ActionRequest{
		ActorID:   "p2",
		Kind:      "attack",
		TargetIDs: []string{"p1"},
	}, &errResp)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotEmpty(t, errResp.Error)

	// unknown target is a validation error
	resp = postJSON(t, base+"/actions", types.ActionRequest{
		ActorID:   "p1",
		Kind:      "attack",
		TargetIDs: []string{"ghost"},
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// unknown session is a 404
	resp = postJSON(t, srv.URL+"/sessions/nope/actions", types.ActionRequest{ActorID: "p1", Kind: "pass"}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSurrenderThenFrozen(t *testing.T) {
	srv := newTestServer(t)
	snap := createDuel(t, srv)
	base := fmt.Sprintf("%s/sessions/%s", srv.URL, snap.SessionID)

	var cur engine.Snapshot
	resp := postJSON(t, base+"/surrender", types.SurrenderRequest{Side: "beta"}, &cur)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, engine.StateCompleted, cur.State)

	resp = postJSON(t, base+"/actions", types.ActionRequest{ActorID: "p1", Kind: "pass"}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSimulateDoesNotCommit(t *testing.T) {
	srv := newTestServer(t)
	snap := createDuel(t, srv)
	base := fmt.Sprintf("%s/sessions/%s", srv.URL, snap.SessionID)

	var entries []engine.Entry
	resp := postJSON(t, base+"/simulate", types.SimulateRequest{
		Actions: []types.ActionRequest{
			{ActorID: "p1", Kind: "attack", TargetIDs: []string{"p2"}},
			{ActorID: "p2", Kind: "attack", TargetIDs: []string{"p1"}},
		},
	}, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, entries)

	getResp, err := http.Get(base + "/")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var cur engine.Snapshot
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&cur))
	p2, _ := cur.Participant("p2")
	require.Equal(t, 100, p2.HP)
}

func TestSessionMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	snap := createDuel(t, srv)
	base := fmt.Sprintf("%s/sessions/%s", srv.URL, snap.SessionID)

	postJSON(t, base+"/actions", types.ActionRequest{ActorID: "p1", Kind: "attack", TargetIDs: []string{"p2"}}, nil)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var m engine.SessionMetrics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	require.Equal(t, 1, m.Actions)
	require.Equal(t, 20, m.DamageDealt["p1"])
}
