package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/necpgame/combat-session-engine/internal/engine"
	"github.com/necpgame/combat-session-engine/internal/manager"
	"github.com/necpgame/combat-session-engine/internal/session"
	"github.com/necpgame/combat-session-engine/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 60 * time.Second
)

// serverMessage mirrors the session Update plus an error variant.
type serverMessage struct {
	Type     string           `json:"type"` // "Update" | "Error"
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
	Entries  []engine.Entry   `json:"entries,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Handler attaches a websocket client to a session: every committed mutation
// is pushed as an update, and the client may submit actions back.
func Handler(m *manager.Manager, logger *zap.Logger) http.HandlerFunc {
	log := logger.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			http.Error(w, "missing session_id", http.StatusBadRequest)
			return
		}
		sess, err := m.Get(r.Context(), sessionID)
		if err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := randID(8)
		out := make(chan session.Update, 16)
		if err := sess.Subscribe(r.Context(), clientID, out); err != nil {
			return
		}
		defer sess.Unsubscribe(clientID)

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for u := range out {
				snap := u.Snapshot
				payload, _ := json.Marshal(serverMessage{Type: "Update", Snapshot: &snap, Entries: u.Entries})
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeErr(r.Context(), conn, "bad json")
				continue
			}
			if cm.Type != "Action" || cm.Action == nil {
				writeErr(r.Context(), conn, "unknown type")
				continue
			}

			if _, err := sess.Act(r.Context(), toAction(*cm.Action)); err != nil {
				log.Debug("ws action rejected",
					zap.String("session_id", sessionID),
					zap.Error(err))
				writeErr(r.Context(), conn, err.Error())
			}
		}
	}
}

func writeErr(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(serverMessage{Type: "Error", Error: msg})
	_ = conn.Write(ctx, websocket.MessageText, payload)
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
		act.Payload.Status = &engine.StatusEffect{Kind: st.Kind, Modifier: st.Modifier, ExpiresTick: st.Duration}
	}
	return act
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
