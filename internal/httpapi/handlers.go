package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/necpgame/combat-session-engine/internal/engine"
	"github.com/necpgame/combat-session-engine/internal/manager"
	"github.com/necpgame/combat-session-engine/internal/session"
	"github.com/necpgame/combat-session-engine/pkg/types"
)

type API struct {
	mgr    *manager.Manager
	logger *zap.Logger
}

func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	participants := make([]engine.Participant, 0, len(req.Participants))
	for _, p := range req.Participants {
		participants = append(participants, toParticipant(p))
	}
	rules := mergeRules(a.mgr.DefaultRules(), req.Rules)

	sess, err := a.mgr.Create(r.Context(), participants, &rules)
	if err != nil {
		a.fail(w, err)
		return
	}
	snap, err := sess.State(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) GetState(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.State(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) GetLog(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var fromSeq uint64
	if raw := r.URL.Query().Get("from_seq"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("bad from_seq"))
			return
		}
		fromSeq = v
	}
	entries, err := sess.Log(r.Context(), fromSeq)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) GetMetrics(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	m, err := sess.Metrics(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) Start(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, func(sess *session.Session) error {
		return sess.Start(r.Context())
	})
}

func (a *API) Join(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req types.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	if err := sess.Join(r.Context(), toParticipant(req.Participant)); err != nil {
		a.fail(w, err)
		return
	}
	a.respondState(w, r, sess)
}

func (a *API) Act(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req types.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	entries, err := sess.Act(r.Context(), toAction(req))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) EndTurn(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req types.EndTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	entries, err := sess.EndTurn(r.Context(), req.ActorID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) Revive(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req types.ReviveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	entries, err := sess.Revive(r.Context(), req.ParticipantID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) Surrender(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req types.SurrenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	if err := sess.Surrender(r.Context(), engine.Side(req.Side)); err != nil {
		a.fail(w, err)
		return
	}
	a.respondState(w, r, sess)
}

func (a *API) Abort(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req types.AbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	if err := sess.Abort(r.Context(), req.Reason); err != nil {
		a.fail(w, err)
		return
	}
	a.respondState(w, r, sess)
}

func (a *API) Complete(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req types.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	if err := sess.Complete(r.Context(), engine.Side(req.Winner)); err != nil {
		a.fail(w, err)
		return
	}
	a.respondState(w, r, sess)
}

func (a *API) Pause(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, func(sess *session.Session) error {
		return sess.Pause(r.Context())
	})
}

func (a *API) Resume(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, func(sess *session.Session) error {
		return sess.Resume(r.Context())
	})
}

func (a *API) Simulate(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req types.SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad json"))
		return
	}
	actions := make([]engine.Action, 0, len(req.Actions))
	for _, raw := range req.Actions {
		actions = append(actions, toAction(raw))
	}
	entries, err := sess.Simulate(r.Context(), actions)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) lifecycle(w http.ResponseWriter, r *http.Request, op func(*session.Session) error) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := op(sess); err != nil {
		a.fail(w, err)
		return
	}
	a.respondState(w, r, sess)
}

func (a *API) respondState(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	snap, err := sess.State(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := a.mgr.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return nil, false
	}
	return sess, true
}

func (a *API) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err)
}

// statusFor maps engine sentinels onto HTTP statuses: validation errors are
// 400s, state conflicts are 409s, unknown ids are 404s.
func statusFor(err error) int {
	switch {
	case errors.Is(err, manager.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidConfig),
		errors.Is(err, engine.ErrInvalidTarget),
		errors.Is(err, engine.ErrUnsupportedAction),
		errors.Is(err, engine.ErrUnknownSide),
		errors.Is(err, engine.ErrUnknownParticipant):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrDuplicateParticipant),
		errors.Is(err, engine.ErrSessionClosed),
		errors.Is(err, engine.ErrSessionNotActive),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrNotYourTurn),
		errors.Is(err, engine.ErrDeadActor),
		errors.Is(err, engine.ErrAlreadyAlive),
		errors.Is(err, engine.ErrLateJoinDisabled),
		errors.Is(err, engine.ErrResourceExhausted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, types.ErrorResponse{Error: err.Error()})
}

func toParticipant(p types.Participant) engine.Participant {
	out := engine.Participant{
		ID:         p.ID,
		Side:       engine.Side(p.Side),
		HP:         p.HP,
		MaxHP:      p.MaxHP,
		Attack:     p.Attack,
		Armor:      p.Armor,
		CritChance: p.CritChance,
	}
	if len(p.Resources) > 0 {
		out.Resources = make(map[engine.ResourceKind]int, len(p.Resources))
		for k, v := range p.Resources {
			out.Resources[engine.ResourceKind(k)] = v
		}
	}
	return out
}

func toAction(req types.ActionRequest) engine.Action {
	act := engine.Action{
		ActorID:         req.ActorID,
		Kind:            engine.ActionKind(req.Kind),
		TargetIDs:       req.TargetIDs,
		ClientTimestamp: req.ClientTimestamp,
		Payload: engine.Payload{
			Ability:   req.Payload.Ability,
			BasePower: req.Payload.BasePower,
		},
	}
	if len(req.Payload.Cost) > 0 {
		act.Payload.Cost = make(map[engine.ResourceKind]int, len(req.Payload.Cost))
		for k, v := range req.Payload.Cost {
			act.Payload.Cost[engine.ResourceKind(k)] = v
		}
	}
	if st := req.Payload.Status; st != nil {
		act.Payload.Status = &engine.StatusEffect{
			Kind:        st.Kind,
			Modifier:    st.Modifier,
			ExpiresTick: st.Duration,
		}
	}
	return act
}

func msToDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

func mergeRules(base engine.Rules, req *types.Rules) engine.Rules {
	if req == nil {
		return base
	}
	if req.MaxParticipants != nil {
		base.MaxParticipants = *req.MaxParticipants
	}
	if req.AllowLateJoin != nil {
		base.AllowLateJoin = *req.AllowLateJoin
	}
	if req.AutoStart != nil {
		base.AutoStart = *req.AutoStart
	}
	if req.TurnTimerMs != nil {
		base.TurnTimer = msToDuration(*req.TurnTimerMs)
	}
	if req.CompensationWindowMs != nil {
		base.MaxCompensationWindow = msToDuration(*req.CompensationWindowMs)
	}
	if req.DamageMultiplier != nil {
		base.DamageMultiplier = *req.DamageMultiplier
	}
	if req.HealingMultiplier != nil {
		base.HealingMultiplier = *req.HealingMultiplier
	}
	if req.CritMultiplier != nil {
		base.CritMultiplier = *req.CritMultiplier
	}
	if req.ArmorReductionFactor != nil {
		base.ArmorReductionFactor = *req.ArmorReductionFactor
	}
	if len(req.CompensableKinds) > 0 {
		kinds := make([]engine.ActionKind, 0, len(req.CompensableKinds))
		for _, k := range req.CompensableKinds {
			kinds = append(kinds, engine.ActionKind(k))
		}
		base.CompensableKinds = kinds
	}
	return base
}
