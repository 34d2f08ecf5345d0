package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/board"
	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/hub"
	"github.com/whnb773/catan-scoreboard/internal/types"
)

var ErrReadOnly = errors.New("read-only view")
var ErrUnknownType = errors.New("unknown type")
var ErrNothingToUndo = errors.New("nothing to undo")
var ErrNothingToRedo = errors.New("nothing to redo")

const writeTimeout = 3 * time.Second

// Idle sockets are kept open with pings; a ping that is not answered within
// pingTimeout closes the connection.
var (
	pingInterval = 20 * time.Second
	pingTimeout  = 10 * time.Second
)

type keepalive struct {
	every   time.Duration
	timeout time.Duration
}

func currentKeepalive() keepalive {
	return keepalive{every: pingInterval, timeout: pingTimeout}
}

// run pings conn until ctx ends or a ping goes unanswered. Pongs are only
// processed while the reader loop is inside conn.Read.
func (k keepalive) run(ctx context.Context, conn *websocket.Conn, log *zap.Logger) {
	ticker := time.NewTicker(k.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, k.timeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Debug("ping unanswered, closing socket", zap.Error(err))
					conn.Close(websocket.StatusGoingAway, "ping timeout")
				}
				return
			}
		}
	}
}

// BoardHandler streams the caller's board. ?host=<uid> attaches read-only to
// another user's live board instead.
func BoardHandler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	ka := currentKeepalive()
	return func(w http.ResponseWriter, r *http.Request) {
		who := types.IdentityFromHeader(r.Header)
		owner, readOnly := who.UID, false
		if host := r.URL.Query().Get("host"); host != "" && host != who.UID {
			owner, readOnly = host, true
		}

		reply := make(chan *board.Board, 1)
		if readOnly {
			h.Inbox() <- hub.GetBoard{Owner: owner, Reply: reply}
		} else {
			h.Inbox() <- hub.EnsureBoard{Owner: owner, Reply: reply}
		}
		b := <-reply
		if b == nil {
			http.Error(w, "board not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan board.Snapshot, 16)
		clientID := uuid.NewString()
		log := log.With(zap.String("client", clientID), zap.Bool("readOnly", readOnly))

		b.Inbox() <- board.Join{ClientID: clientID, Outbox: out}
		defer b.Leave(clientID)

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go ka.run(writeCtx, conn, log)
		go func() {
			for snap := range out {
				msg := ToServerMessage(snap, readOnly)
				writeJSON(writeCtx, conn, msg)
			}
			if writeCtx.Err() == nil {
				log.Debug("board stopped streaming, closing socket")
				conn.Close(websocket.StatusGoingAway, "board closed")
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("board socket read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, errors.New("bad json"))
				continue
			}
			if readOnly {
				writeError(r.Context(), conn, ErrReadOnly)
				continue
			}
			if err := Dispatch(r.Context(), b, cm); err != nil {
				writeError(r.Context(), conn, err)
			}
		}
	}
}

// Dispatch runs one client message against b.
func Dispatch(ctx context.Context, b *board.Board, cm types.ClientMessage) error {
	switch cm.Type {
	case "Undo":
		res, err := b.UndoLast(ctx)
		if err != nil {
			return err
		}
		if !res.OK {
			return ErrNothingToUndo
		}
		return nil
	case "Redo":
		res, err := b.RedoLast(ctx)
		if err != nil {
			return err
		}
		if !res.OK {
			return ErrNothingToRedo
		}
		return nil
	}

	cmd, ok := ToCommand(cm)
	if !ok {
		return ErrUnknownType
	}
	return b.Do(ctx, cmd)
}

func ToServerMessage(snap board.Snapshot, readOnly bool) types.ServerMessage {
	doc := engine.Export(snap.State)
	msg := types.ServerMessage{
		Type:      "StateSnapshot",
		Version:   snap.Version,
		State:     &doc,
		CanUndo:   snap.CanUndo && !readOnly,
		CanRedo:   snap.CanRedo && !readOnly,
		UndoLabel: snap.UndoLabel,
		Notice:    snap.Notice,
		ReadOnly:  readOnly,
	}
	for _, ev := range snap.Events {
		msg.Events = append(msg.Events, string(ev.Type))
	}
	return msg
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	_ = conn.Write(ctx, websocket.MessageText, payload)
	cancel()
}

func writeError(ctx context.Context, conn *websocket.Conn, err error) {
	writeJSON(ctx, conn, types.ServerMessage{Type: "Error", Error: err.Error()})
}
