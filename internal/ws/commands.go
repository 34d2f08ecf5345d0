package ws

import (
	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/types"
)

// Ticks come only from the board's own timer, never from clients.
var clientCommands = map[string]engine.CommandType{}

func init() {
	for _, t := range []engine.CommandType{
		engine.CmdSetTitle, engine.CmdStepWinPoints, engine.CmdSetWinPoints,
		engine.CmdSetAutoWin, engine.CmdSetRuleset, engine.CmdSetAutoSnapshot,
		engine.CmdSetMaxSnapshots, engine.CmdSetRoundEnabled,
		engine.CmdAdjustScore, engine.CmdSetScore, engine.CmdToggleScore, engine.CmdResetScores,
		engine.CmdRollDice, engine.CmdManualRoll, engine.CmdUndoRoll, engine.CmdResetDice,
		engine.CmdStartTimer, engine.CmdTogglePause, engine.CmdResetTimer,
		engine.CmdEndGame, engine.CmdClearHistory,
		engine.CmdSetupPlayers, engine.CmdApplyRoster,
		engine.CmdRenamePlayer, engine.CmdSetPlayerColor, engine.CmdSetPlayerPhoto,
	} {
		clientCommands[string(t)] = t
	}
}

func ToCommand(m types.ClientMessage) (engine.Command, bool) {
	t, ok := clientCommands[m.Type]
	if !ok {
		return engine.Command{}, false
	}
	cmd := engine.Command{
		Type:    t,
		Seat:    m.Seat,
		Field:   engine.Field(m.Field),
		Delta:   m.Delta,
		Value:   m.Value,
		Text:    m.Text,
		Flag:    m.Flag,
		Ruleset: engine.Ruleset(m.Ruleset),
		Die1:    m.Die1,
		Die2:    m.Die2,
	}
	if t == engine.CmdRollDice {
		// The board rolls; physical dice go through ManualRoll.
		cmd.Die1, cmd.Die2 = 0, 0
	}
	for _, s := range m.Seats {
		cmd.Seats = append(cmd.Seats, engine.Seat{
			UserID:      s.UserID,
			DisplayName: s.DisplayName,
			AvatarURL:   s.AvatarURL,
			Colour:      s.Colour,
		})
	}
	return cmd, true
}
