package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/board"
	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/hub"
	"github.com/whnb773/catan-scoreboard/internal/lobby"
	"github.com/whnb773/catan-scoreboard/internal/types"
)

type LobbyMessage struct {
	Type   string         `json:"type"` // "LobbyUpdate" | "Error"
	View   lobby.View     `json:"view,omitempty"`
	Lobby  *lobby.Session `json:"lobby,omitempty"`
	Notice string         `json:"notice,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// LobbyHandler drives one signed-in device through host/join/start/cancel.
// Closing the socket tears down the lobby subscription.
func LobbyHandler(svc *lobby.Service, h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	ka := currentKeepalive()
	return func(w http.ResponseWriter, r *http.Request) {
		who := types.IdentityFromHeader(r.Header)
		if who.Anonymous() {
			http.Error(w, "sign in required", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		client := lobby.NewClient(svc, who)
		defer client.Close()
		log := log.With(zap.String("user", who.UID))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go ka.run(writeCtx, conn, log)
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case ev := <-client.Events():
					if ev.View == lobby.ViewBoard {
						if err := SeatRoster(writeCtx, h, who.UID, ev.Session); err != nil {
							log.Warn("seating lobby roster failed", zap.String("lobby", ev.Session.ID), zap.Error(err))
						}
					}
					sess := ev.Session
					writeJSON(writeCtx, conn, LobbyMessage{Type: "LobbyUpdate", View: ev.View, Lobby: &sess, Notice: ev.Notice})
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}

			var cm types.LobbyClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeJSON(r.Context(), conn, LobbyMessage{Type: "Error", Error: "bad json"})
				continue
			}
			if err := dispatchLobby(r.Context(), client, cm); err != nil {
				writeJSON(r.Context(), conn, LobbyMessage{Type: "Error", Error: err.Error()})
			}
		}
	}
}

func dispatchLobby(ctx context.Context, c *lobby.Client, cm types.LobbyClientMessage) error {
	switch cm.Type {
	case "Host":
		_, err := c.Host(ctx)
		return err
	case "Join":
		_, err := c.JoinByPin(ctx, cm.Pin)
		return err
	case "Start":
		return c.Start(ctx)
	case "Cancel":
		return c.Cancel(ctx)
	default:
		return ErrUnknownType
	}
}

// SeatRoster fills the host's board seats from the started lobby.
func SeatRoster(ctx context.Context, h *hub.Hub, hostID string, sess lobby.Session) error {
	reply := make(chan *board.Board, 1)
	h.Inbox() <- hub.EnsureBoard{Owner: hostID, Reply: reply}
	b := <-reply
	if b == nil {
		return errors.New("no board for host")
	}
	return b.Do(ctx, engine.Command{Type: engine.CmdApplyRoster, Seats: sess.Roster()})
}
