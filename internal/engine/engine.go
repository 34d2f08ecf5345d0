package engine

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrPaused = errors.New("game is paused")
var ErrInvalidSeat = errors.New("invalid seat")
var ErrInvalidField = errors.New("invalid score field")
var ErrInvalidRoll = errors.New("invalid roll")
var ErrNoRolls = errors.New("no rolls to undo")
var ErrTimerRunning = errors.New("timer already running")
var ErrUnsupportedCommand = errors.New("unsupported command")

const NumPlayers = 4

type Ruleset string

const (
	RulesetBase Ruleset = "base"
	RulesetEAP  Ruleset = "eap"
)

type Player struct {
	Name     string
	ColorKey string
	UserID   string
	Photo    string
	PhotoH   int
	PanX     float64
	PanY     float64
	Zoom     float64
	NatW     int
	NatH     int
}

// Score holds both rulesets' counters; only the active ruleset's group is totalled.
type Score struct {
	Settlements        int
	Cities             int
	VPCards            int
	LongestRoad        int
	LargestArmy        int
	HarbourSettlements int
	HarbourCities      int
	PirateLairs        int
	VPTokens           int
	SpecialVP          int
}

type Round struct {
	Enabled bool
	Count   int
}

type PlayerRolls struct {
	Counts [13]int
	Total  int
}

// Roll is one roll log entry. D1 and D2 are zero for manually entered totals.
type Roll struct {
	Total        int
	D1           int
	D2           int
	PlayerBefore int
	RoundBefore  int
	DidRoundInc  bool
	TS           int64
}

type Dice struct {
	Counts      [13]int
	TotalRolls  int
	PlayerRolls [NumPlayers]PlayerRolls
	RollLog     []Roll
}

type Timer struct {
	Paused    bool
	Running   bool
	ElapsedMs int64
}

type HistoryEntry struct {
	Date       string
	WinnerIdx  int
	Margin     int
	Scores     [NumPlayers]int
	Rolls      int
	DurationMs int64
}

type BackupSettings struct {
	AutoSnapshotOnEnd bool
	MaxSnapshots      int
}

type State struct {
	Title     string
	WinPoints int
	AutoWin   bool
	Ruleset   Ruleset
	Players   [NumPlayers]Player
	Scores    [NumPlayers]Score
	TurnIndex int
	Round     Round
	Dice      Dice
	Timer     Timer
	History   []HistoryEntry
	Backup    BackupSettings
}

type CommandType string

const (
	CmdSetTitle        CommandType = "SetTitle"
	CmdStepWinPoints   CommandType = "StepWinPoints"
	CmdSetWinPoints    CommandType = "SetWinPoints"
	CmdSetAutoWin      CommandType = "SetAutoWin"
	CmdSetRuleset      CommandType = "SetRuleset"
	CmdSetAutoSnapshot CommandType = "SetAutoSnapshot"
	CmdSetMaxSnapshots CommandType = "SetMaxSnapshots"
	CmdSetRoundEnabled CommandType = "SetRoundEnabled"
	CmdAdjustScore     CommandType = "AdjustScore"
	CmdSetScore        CommandType = "SetScore"
	CmdToggleScore     CommandType = "ToggleScore"
	CmdResetScores     CommandType = "ResetScores"
	CmdRollDice        CommandType = "RollDice"
	CmdManualRoll      CommandType = "ManualRoll"
	CmdUndoRoll        CommandType = "UndoRoll"
	CmdResetDice       CommandType = "ResetDice"
	CmdStartTimer      CommandType = "StartTimer"
	CmdTogglePause     CommandType = "TogglePause"
	CmdResetTimer      CommandType = "ResetTimer"
	CmdTick            CommandType = "Tick"
	CmdEndGame         CommandType = "EndGame"
	CmdClearHistory    CommandType = "ClearHistory"
	CmdSetupPlayers    CommandType = "SetupPlayers"
	CmdApplyRoster     CommandType = "ApplyRoster"
	CmdRenamePlayer    CommandType = "RenamePlayer"
	CmdSetPlayerColor  CommandType = "SetPlayerColor"
	CmdSetPlayerPhoto  CommandType = "SetPlayerPhoto"
)

// Seat fills one player slot from a signed-in profile or a lobby roster entry.
// A seat with neither a user id nor a display name leaves the slot untouched.
type Seat struct {
	UserID      string
	DisplayName string
	AvatarURL   string
	Colour      string
}

func (s Seat) empty() bool { return s.UserID == "" && s.DisplayName == "" }

type Command struct {
	Type    CommandType
	Seat    int
	Field   Field
	Delta   int
	Value   int
	Text    string
	Flag    bool
	Ruleset Ruleset
	Die1    int
	Die2    int
	Seats   []Seat
	At      time.Time
}

type EventType string

const (
	EvtScoreChanged        EventType = "ScoreChanged"
	EvtSettingsChanged     EventType = "SettingsChanged"
	EvtDiceRolled          EventType = "DiceRolled"
	EvtRollUndone          EventType = "RollUndone"
	EvtTurnAdvanced        EventType = "TurnAdvanced"
	EvtRoundAdvanced       EventType = "RoundAdvanced"
	EvtTimerStarted        EventType = "TimerStarted"
	EvtTimerPaused         EventType = "TimerPaused"
	EvtTimerResumed        EventType = "TimerResumed"
	EvtTimerReset          EventType = "TimerReset"
	EvtWinThresholdReached EventType = "WinThresholdReached"
	EvtGameCompleted       EventType = "GameCompleted"
	EvtPlayersSeated       EventType = "PlayersSeated"
	EvtHistoryCleared      EventType = "HistoryCleared"
)

type Event struct {
	Type   EventType
	Seat   int
	Total  int
	Result *GameResult
}

// GameResult is the finalized outcome handed to the profile service.
type GameResult struct {
	Players    [NumPlayers]Player
	Scores     [NumPlayers]int
	WinnerIdx  int
	Margin     int
	TotalRolls int
	DurationMs int64
	Ruleset    Ruleset
	WinPoints  int
	EndedAt    time.Time
}

// Describe returns the undo label for cmd and whether the board snapshots before applying it.
func Describe(s State, cmd Command) (string, bool) {
	switch cmd.Type {
	case CmdSetTitle:
		return "Edit title", true
	case CmdStepWinPoints, CmdSetWinPoints:
		return "Change win points", true
	case CmdSetAutoWin, CmdSetRuleset:
		return "Toggle setting", true
	case CmdSetAutoSnapshot:
		return "Toggle auto snapshot", true
	case CmdSetMaxSnapshots:
		return "Change snapshot limit", true
	case CmdSetRoundEnabled:
		return "Toggle round counter", true
	case CmdAdjustScore:
		return "Score change", true
	case CmdSetScore:
		return "Score edit", true
	case CmdToggleScore:
		return "Toggle score", true
	case CmdResetScores:
		return "Reset scores", true
	case CmdRollDice:
		return "Roll dice", true
	case CmdManualRoll:
		return "Manual roll", true
	case CmdResetDice:
		return "Reset dice", true
	case CmdStartTimer:
		return "Start", true
	case CmdTogglePause:
		if s.Timer.Paused {
			return "Resume", true
		}
		return "Pause", true
	case CmdResetTimer:
		return "Reset timer", true
	case CmdEndGame:
		return "End game", true
	case CmdClearHistory:
		return "Clear history", true
	case CmdSetupPlayers:
		return "Game setup", true
	case CmdApplyRoster:
		return "Lobby roster", true
	case CmdRenamePlayer:
		return "Rename player", true
	case CmdSetPlayerColor:
		return "Change colour", true
	case CmdSetPlayerPhoto:
		return "Change photo", true
	}
	// UndoRoll has its own rollback path; ticks are not user actions.
	return "", false
}

// AllowedWhilePaused reports whether cmd may run while the game is paused.
func AllowedWhilePaused(t CommandType) bool {
	return t == CmdTogglePause || t == CmdTick
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Timer.Paused && !AllowedWhilePaused(cmd.Type) {
		return nil, s, ErrPaused
	}

	newState := s.Clone()

	switch cmd.Type {
	case CmdSetTitle:
		newState.Title = truncate(cmd.Text, MaxTitleLen)
		return []Event{{Type: EvtSettingsChanged}}, newState, nil

	case CmdStepWinPoints:
		newState.WinPoints = clamp(s.WinPoints+cmd.Delta, MinWinPoints, MaxWinPoints)
		return winCheck(s, newState, []Event{{Type: EvtSettingsChanged}}), newState, nil

	case CmdSetWinPoints:
		newState.WinPoints = clamp(cmd.Value, MinWinPoints, MaxWinPoints)
		return winCheck(s, newState, []Event{{Type: EvtSettingsChanged}}), newState, nil

	case CmdSetAutoWin:
		newState.AutoWin = cmd.Flag
		return []Event{{Type: EvtSettingsChanged}}, newState, nil

	case CmdSetRuleset:
		newState.Ruleset = ParseRuleset(string(cmd.Ruleset))
		return winCheck(s, newState, []Event{{Type: EvtSettingsChanged}}), newState, nil

	case CmdSetAutoSnapshot:
		newState.Backup.AutoSnapshotOnEnd = cmd.Flag
		return []Event{{Type: EvtSettingsChanged}}, newState, nil

	case CmdSetMaxSnapshots:
		newState.Backup.MaxSnapshots = clamp(cmd.Value, MinSnapshots, MaxSnapshots)
		return []Event{{Type: EvtSettingsChanged}}, newState, nil

	case CmdSetRoundEnabled:
		newState.Round.Enabled = cmd.Flag
		if newState.Round.Count < 1 {
			newState.Round.Count = 1
		}
		return []Event{{Type: EvtSettingsChanged}}, newState, nil

	case CmdAdjustScore, CmdSetScore, CmdToggleScore:
		if !validSeat(cmd.Seat) {
			return nil, s, ErrInvalidSeat
		}
		if !cmd.Field.Valid() {
			return nil, s, ErrInvalidField
		}
		cur := newState.Scores[cmd.Seat].Get(cmd.Field)
		next := cur
		switch cmd.Type {
		case CmdAdjustScore:
			next = cur + cmd.Delta
		case CmdSetScore:
			next = cmd.Value
		case CmdToggleScore:
			next = 0
			if cmd.Flag {
				next = 1
			}
		}
		newState.Scores[cmd.Seat].Set(cmd.Field, next)
		events := []Event{{Type: EvtScoreChanged, Seat: cmd.Seat, Total: Total(newState, cmd.Seat)}}
		return winCheck(s, newState, events), newState, nil

	case CmdResetScores:
		for i := range newState.Scores {
			newState.Scores[i] = Score{}
		}
		return []Event{{Type: EvtScoreChanged, Seat: -1}}, newState, nil

	case CmdRollDice:
		if cmd.Die1 < 1 || cmd.Die1 > 6 || cmd.Die2 < 1 || cmd.Die2 > 6 {
			return nil, s, ErrInvalidRoll
		}
		events := applyRoll(&newState, cmd.Die1+cmd.Die2, cmd.Die1, cmd.Die2, cmd.At)
		return events, newState, nil

	case CmdManualRoll:
		if cmd.Value < 2 || cmd.Value > 12 {
			return nil, s, ErrInvalidRoll
		}
		events := applyRoll(&newState, cmd.Value, 0, 0, cmd.At)
		return events, newState, nil

	case CmdUndoRoll:
		if len(newState.Dice.RollLog) == 0 {
			return nil, s, ErrNoRolls
		}
		last := undoLastRoll(&newState)
		return []Event{{Type: EvtRollUndone, Seat: last.PlayerBefore, Total: last.Total}}, newState, nil

	case CmdResetDice:
		newState.Dice = Dice{}
		return []Event{{Type: EvtDiceRolled, Seat: -1}}, newState, nil

	case CmdStartTimer:
		if s.Timer.Running {
			return nil, s, ErrTimerRunning
		}
		newState.Timer.Running = true
		return []Event{{Type: EvtTimerStarted}}, newState, nil

	case CmdTogglePause:
		if s.Timer.Paused {
			newState.Timer.Paused = false
			return []Event{{Type: EvtTimerResumed}}, newState, nil
		}
		newState.Timer.Paused = true
		newState.Timer.Running = false
		return []Event{{Type: EvtTimerPaused}}, newState, nil

	case CmdResetTimer:
		newState.Timer.Running = false
		newState.Timer.ElapsedMs = 0
		return []Event{{Type: EvtTimerReset}}, newState, nil

	case CmdTick:
		if s.Timer.Paused || !s.Timer.Running || cmd.Value <= 0 {
			return nil, s, nil
		}
		newState.Timer.ElapsedMs += int64(cmd.Value)
		return nil, newState, nil

	case CmdEndGame:
		res := Finalize(s, cmd.At)
		newState.History = append([]HistoryEntry{{
			Date:       cmd.At.UTC().Format(time.RFC3339Nano),
			WinnerIdx:  res.WinnerIdx,
			Margin:     res.Margin,
			Scores:     res.Scores,
			Rolls:      res.TotalRolls,
			DurationMs: res.DurationMs,
		}}, newState.History...)
		return []Event{{Type: EvtGameCompleted, Seat: res.WinnerIdx, Total: res.Scores[res.WinnerIdx], Result: &res}}, newState, nil

	case CmdClearHistory:
		newState.History = nil
		return []Event{{Type: EvtHistoryCleared}}, newState, nil

	case CmdSetupPlayers, CmdApplyRoster:
		seated := seatPlayers(&newState, cmd.Seats, cmd.Type == CmdSetupPlayers)
		events := []Event{{Type: EvtPlayersSeated, Total: seated}}
		if !newState.Timer.Running {
			newState.Timer.Running = true
			events = append(events, Event{Type: EvtTimerStarted})
		}
		return events, newState, nil

	case CmdRenamePlayer:
		if !validSeat(cmd.Seat) {
			return nil, s, ErrInvalidSeat
		}
		newState.Players[cmd.Seat].Name = truncate(strings.TrimSpace(cmd.Text), MaxNameLen)
		return []Event{{Type: EvtSettingsChanged, Seat: cmd.Seat}}, newState, nil

	case CmdSetPlayerColor:
		if !validSeat(cmd.Seat) {
			return nil, s, ErrInvalidSeat
		}
		newState.Players[cmd.Seat].ColorKey = NormalizeColorKey(cmd.Text)
		return []Event{{Type: EvtSettingsChanged, Seat: cmd.Seat}}, newState, nil

	case CmdSetPlayerPhoto:
		if !validSeat(cmd.Seat) {
			return nil, s, ErrInvalidSeat
		}
		newState.Players[cmd.Seat].Photo = cmd.Text
		return []Event{{Type: EvtSettingsChanged, Seat: cmd.Seat}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyRoll(s *State, total, d1, d2 int, at time.Time) []Event {
	playerBefore := s.TurnIndex
	roundBefore := s.Round.Count

	s.Dice.TotalRolls++
	s.Dice.Counts[total]++
	s.Dice.PlayerRolls[playerBefore].Total++
	s.Dice.PlayerRolls[playerBefore].Counts[total]++

	didRoundInc := advanceTurn(s)

	s.Dice.RollLog = append(s.Dice.RollLog, Roll{
		Total:        total,
		D1:           d1,
		D2:           d2,
		PlayerBefore: playerBefore,
		RoundBefore:  roundBefore,
		DidRoundInc:  didRoundInc,
		TS:           at.UnixMilli(),
	})

	events := []Event{
		{Type: EvtDiceRolled, Seat: playerBefore, Total: total},
		{Type: EvtTurnAdvanced, Seat: s.TurnIndex},
	}
	if didRoundInc {
		events = append(events, Event{Type: EvtRoundAdvanced, Total: s.Round.Count})
	}
	return events
}

// undoLastRoll reverses the newest roll log entry using its recorded pre-roll values.
func undoLastRoll(s *State) Roll {
	n := len(s.Dice.RollLog)
	last := s.Dice.RollLog[n-1]
	s.Dice.RollLog = s.Dice.RollLog[:n-1]

	t := last.Total
	s.Dice.TotalRolls = max(0, s.Dice.TotalRolls-1)
	if t >= 2 && t <= 12 {
		s.Dice.Counts[t] = max(0, s.Dice.Counts[t]-1)
	}

	p := last.PlayerBefore
	if validSeat(p) {
		s.Dice.PlayerRolls[p].Total = max(0, s.Dice.PlayerRolls[p].Total-1)
		if t >= 2 && t <= 12 {
			s.Dice.PlayerRolls[p].Counts[t] = max(0, s.Dice.PlayerRolls[p].Counts[t]-1)
		}
		s.TurnIndex = p
	}

	rewindRound(s, last)
	return last
}

func seatPlayers(s *State, seats []Seat, setup bool) int {
	seated := 0
	for i := 0; i < len(seats) && i < NumPlayers; i++ {
		seat := seats[i]
		if seat.empty() {
			continue
		}
		p := &s.Players[i]
		if seat.DisplayName != "" {
			p.Name = truncate(seat.DisplayName, MaxNameLen)
		}
		p.UserID = seat.UserID
		if setup && seat.Colour != "" {
			if key, ok := ColorKeyFor(seat.Colour); ok {
				p.ColorKey = key
			}
		}
		if p.Photo == "" && seat.AvatarURL != "" {
			p.Photo = seat.AvatarURL
		}
		seated++
	}
	return seated
}

// winCheck appends a WinThresholdReached event for every seat that crossed winPoints.
func winCheck(before, after State, events []Event) []Event {
	if !after.AutoWin {
		return events
	}
	for i := 0; i < NumPlayers; i++ {
		was := Total(before, i) >= before.WinPoints
		now := Total(after, i) >= after.WinPoints
		if now && (!was || !before.AutoWin) {
			events = append(events, Event{Type: EvtWinThresholdReached, Seat: i, Total: Total(after, i)})
		}
	}
	return events
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
