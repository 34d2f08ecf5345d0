package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/board"
	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/hub"
	"github.com/whnb773/catan-scoreboard/internal/lobby"
	"github.com/whnb773/catan-scoreboard/internal/store"
	"github.com/whnb773/catan-scoreboard/internal/types"
)

func TestToCommand(t *testing.T) {
	cases := []struct {
		name string
		in   types.ClientMessage
		want engine.Command
		ok   bool
	}{
		{
			name: "score change",
			in:   types.ClientMessage{Type: "AdjustScore", Seat: 2, Field: "cities", Delta: -1},
			want: engine.Command{Type: engine.CmdAdjustScore, Seat: 2, Field: engine.FieldCities, Delta: -1},
			ok:   true,
		},
		{
			name: "client dice are ignored",
			in:   types.ClientMessage{Type: "RollDice", Die1: 6, Die2: 6},
			want: engine.Command{Type: engine.CmdRollDice},
			ok:   true,
		},
		{
			name: "roster seats",
			in:   types.ClientMessage{Type: "SetupPlayers", Seats: []types.SeatMessage{{UserID: "u1", DisplayName: "Ana", Colour: "red"}}},
			want: engine.Command{Type: engine.CmdSetupPlayers, Seats: []engine.Seat{{UserID: "u1", DisplayName: "Ana", Colour: "red"}}},
			ok:   true,
		},
		{name: "ticks are internal", in: types.ClientMessage{Type: "Tick", Value: 1000}},
		{name: "unknown", in: types.ClientMessage{Type: "FlipTable"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ToCommand(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func newTestHub(t *testing.T) *hub.Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return hub.NewHub(ctx, hub.NewFactory(hub.BoardDeps{KV: store.NewMemoryKV(), TickInterval: time.Hour}))
}

func dial(t *testing.T, srv *httptest.Server, path, uid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if uid != "" {
		opts.HTTPHeader.Set(types.HeaderUserID, uid)
		opts.HTTPHeader.Set(types.HeaderUserName, strings.ToUpper(uid))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

// readUntil decodes messages into a fresh T until match accepts one.
func readUntil[T any](t *testing.T, conn *websocket.Conn, match func(T) bool) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg T
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func TestBoardSocketAppliesCommands(t *testing.T) {
	h := newTestHub(t)
	srv := httptest.NewServer(BoardHandler(h, zap.NewNop()))
	defer srv.Close()

	conn := dial(t, srv, "/", "u1")
	first := readUntil(t, conn, func(m types.ServerMessage) bool { return m.Type == "StateSnapshot" })
	assert.Equal(t, 0, first.Version)
	assert.False(t, first.ReadOnly)

	send(t, conn, types.ClientMessage{Type: "AdjustScore", Seat: 0, Field: "settlements", Delta: 1})
	snap := readUntil(t, conn, func(m types.ServerMessage) bool { return m.Version == 1 })
	require.NotNil(t, snap.State)
	assert.Equal(t, 1, snap.State.PlayerState[0].Settlements)
	assert.True(t, snap.CanUndo)
	assert.Equal(t, []string{string(engine.EvtScoreChanged)}, snap.Events)

	send(t, conn, types.ClientMessage{Type: "Bogus"})
	e := readUntil(t, conn, func(m types.ServerMessage) bool { return m.Type == "Error" })
	assert.Equal(t, ErrUnknownType.Error(), e.Error)

	send(t, conn, types.ClientMessage{Type: "Undo"})
	snap = readUntil(t, conn, func(m types.ServerMessage) bool { return m.Version == 2 })
	assert.Equal(t, 0, snap.State.PlayerState[0].Settlements)
}

func TestBoardSocketReadOnlyViewer(t *testing.T) {
	h := newTestHub(t)
	srv := httptest.NewServer(BoardHandler(h, zap.NewNop()))
	defer srv.Close()

	owner := dial(t, srv, "/", "host-1")
	readUntil(t, owner, func(m types.ServerMessage) bool { return m.Type == "StateSnapshot" })

	viewer := dial(t, srv, "/?host=host-1", "guest-1")
	snap := readUntil(t, viewer, func(m types.ServerMessage) bool { return m.Type == "StateSnapshot" })
	assert.True(t, snap.ReadOnly)

	send(t, viewer, types.ClientMessage{Type: "ResetScores"})
	e := readUntil(t, viewer, func(m types.ServerMessage) bool { return m.Type == "Error" })
	assert.Equal(t, ErrReadOnly.Error(), e.Error)

	send(t, owner, types.ClientMessage{Type: "SetTitle", Text: "Shared"})
	snap = readUntil(t, viewer, func(m types.ServerMessage) bool { return m.Version == 1 })
	assert.Equal(t, "Shared", snap.State.Title)
	assert.False(t, snap.CanUndo)
}

func TestBoardSocketUnknownHost(t *testing.T) {
	h := newTestHub(t)
	srv := httptest.NewServer(BoardHandler(h, zap.NewNop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?host=nobody")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLobbySocketRequiresSignIn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := lobby.NewService(lobby.NewMemoryStore(ctx), nil)
	srv := httptest.NewServer(LobbyHandler(svc, newTestHub(t), zap.NewNop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLobbySocketHostJoinStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newTestHub(t)
	svc := lobby.NewService(lobby.NewMemoryStore(ctx), nil)
	srv := httptest.NewServer(LobbyHandler(svc, h, zap.NewNop()))
	defer srv.Close()

	hostConn := dial(t, srv, "/", "host-1")
	send(t, hostConn, types.LobbyClientMessage{Type: "Host"})
	hosting := readUntil(t, hostConn, func(m LobbyMessage) bool { return m.View == lobby.ViewHosting })
	require.NotNil(t, hosting.Lobby)
	pin := hosting.Lobby.Pin

	guestConn := dial(t, srv, "/", "guest-1")
	send(t, guestConn, types.LobbyClientMessage{Type: "Join", Pin: "12"})
	e := readUntil(t, guestConn, func(m LobbyMessage) bool { return m.Type == "Error" })
	assert.Equal(t, lobby.ErrInvalidPin.Error(), e.Error)

	send(t, guestConn, types.LobbyClientMessage{Type: "Join", Pin: pin})
	readUntil(t, guestConn, func(m LobbyMessage) bool { return m.View == lobby.ViewWaiting })
	readUntil(t, hostConn, func(m LobbyMessage) bool { return m.Lobby != nil && len(m.Lobby.Players) == 2 })

	send(t, hostConn, types.LobbyClientMessage{Type: "Start"})
	readUntil(t, hostConn, func(m LobbyMessage) bool { return m.View == lobby.ViewBoard })
	readUntil(t, guestConn, func(m LobbyMessage) bool { return m.View == lobby.ViewPlayer })

	reply := make(chan *board.Board, 1)
	h.Inbox() <- hub.GetBoard{Owner: "host-1", Reply: reply}
	b := <-reply
	require.NotNil(t, b)
	v, err := b.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "host-1", v.State.Players[0].UserID)
	assert.Equal(t, "guest-1", v.State.Players[1].UserID)
	assert.Equal(t, "GUEST-1", v.State.Players[1].Name)
}

// listen reads conn in the background so pings are answered while a test idles.
func listen[T any](t *testing.T, conn *websocket.Conn) <-chan T {
	t.Helper()
	ch := make(chan T, 32)
	go func() {
		defer close(ch)
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			var msg T
			if json.Unmarshal(data, &msg) == nil {
				ch <- msg
			}
		}
	}()
	return ch
}

func waitFor[T any](t *testing.T, ch <-chan T, match func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			require.True(t, ok, "socket closed")
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for message")
			var zero T
			return zero
		}
	}
}

func TestLobbySocketSurvivesIdleGuest(t *testing.T) {
	prevEvery, prevTimeout := pingInterval, pingTimeout
	pingInterval, pingTimeout = 10*time.Millisecond, 50*time.Millisecond
	t.Cleanup(func() { pingInterval, pingTimeout = prevEvery, prevTimeout })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := lobby.NewService(lobby.NewMemoryStore(ctx), nil)
	srv := httptest.NewServer(LobbyHandler(svc, newTestHub(t), zap.NewNop()))
	defer srv.Close()

	hostConn := dial(t, srv, "/", "host-1")
	hostMsgs := listen[LobbyMessage](t, hostConn)
	send(t, hostConn, types.LobbyClientMessage{Type: "Host"})
	hosting := waitFor(t, hostMsgs, func(m LobbyMessage) bool { return m.View == lobby.ViewHosting })

	guestConn := dial(t, srv, "/", "guest-1")
	guestMsgs := listen[LobbyMessage](t, guestConn)
	send(t, guestConn, types.LobbyClientMessage{Type: "Join", Pin: hosting.Lobby.Pin})
	waitFor(t, guestMsgs, func(m LobbyMessage) bool { return m.View == lobby.ViewWaiting })

	// The guest sends nothing for many ping periods.
	time.Sleep(300 * time.Millisecond)

	send(t, hostConn, types.LobbyClientMessage{Type: "Start"})
	waitFor(t, hostMsgs, func(m LobbyMessage) bool { return m.View == lobby.ViewBoard })
	player := waitFor(t, guestMsgs, func(m LobbyMessage) bool { return m.View == lobby.ViewPlayer })
	require.NotNil(t, player.Lobby)
	assert.Equal(t, lobby.StatusActive, player.Lobby.Status)
}

func TestBoardSocketViewerSurvivesIdle(t *testing.T) {
	prevEvery, prevTimeout := pingInterval, pingTimeout
	pingInterval, pingTimeout = 10*time.Millisecond, 50*time.Millisecond
	t.Cleanup(func() { pingInterval, pingTimeout = prevEvery, prevTimeout })

	h := newTestHub(t)
	srv := httptest.NewServer(BoardHandler(h, zap.NewNop()))
	defer srv.Close()

	owner := dial(t, srv, "/", "host-1")
	ownerMsgs := listen[types.ServerMessage](t, owner)
	waitFor(t, ownerMsgs, func(m types.ServerMessage) bool { return m.Type == "StateSnapshot" })

	viewer := dial(t, srv, "/?host=host-1", "guest-1")
	viewerMsgs := listen[types.ServerMessage](t, viewer)
	waitFor(t, viewerMsgs, func(m types.ServerMessage) bool { return m.Type == "StateSnapshot" })

	time.Sleep(300 * time.Millisecond)

	send(t, owner, types.ClientMessage{Type: "SetTitle", Text: "Still here"})
	snap := waitFor(t, viewerMsgs, func(m types.ServerMessage) bool { return m.Version == 1 })
	assert.Equal(t, "Still here", snap.State.Title)
}
