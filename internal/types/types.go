package types

import "github.com/whnb773/catan-scoreboard/internal/engine"

type SeatMessage struct {
	UserID      string `json:"uid,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Colour      string `json:"colour,omitempty"`
}

// ClientMessage is one board action sent over the websocket or posted to
// /board/commands. Type is an engine command name, or "Undo"/"Redo".
type ClientMessage struct {
	Type    string        `json:"type"`
	Seat    int           `json:"seat,omitempty"`
	Field   string        `json:"field,omitempty"`
	Delta   int           `json:"delta,omitempty"`
	Value   int           `json:"value,omitempty"`
	Text    string        `json:"text,omitempty"`
	Flag    bool          `json:"flag,omitempty"`
	Ruleset string        `json:"ruleset,omitempty"`
	Die1    int           `json:"d1,omitempty"`
	Die2    int           `json:"d2,omitempty"`
	Seats   []SeatMessage `json:"seats,omitempty"`
}

type ServerMessage struct {
	Type      string           `json:"type"` // "StateSnapshot" | "Error"
	Version   int              `json:"version,omitempty"`
	State     *engine.Document `json:"state,omitempty"`
	CanUndo   bool             `json:"canUndo,omitempty"`
	CanRedo   bool             `json:"canRedo,omitempty"`
	UndoLabel string           `json:"undoLabel,omitempty"`
	Events    []string         `json:"events,omitempty"`
	Notice    string           `json:"notice,omitempty"`
	ReadOnly  bool             `json:"readOnly,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// LobbyClientMessage drives the lobby socket: "Host", "Join" (with Pin),
// "Start" or "Cancel".
type LobbyClientMessage struct {
	Type string `json:"type"`
	Pin  string `json:"pin,omitempty"`
}
