package engine

import "strings"

const (
	DefaultTitle     = "Catan Scoreboard"
	MaxTitleLen      = 100
	MaxNameLen       = 60
	DefaultWinPoints = 10
	MinWinPoints     = 1
	MaxWinPoints     = 50
	MaxRoundCount    = 9999
	DefaultSnapshots = 10
	MinSnapshots     = 1
	MaxSnapshots     = 50

	DefaultPhotoH = 180
	MinPhotoH     = 140
	MaxPhotoH     = 420
	DefaultZoom   = 1.25
	MinZoom       = 1.0
	MaxZoom       = 2.5
)

type ColorOption struct {
	Key   string
	Label string
	Hex   string
}

var ColorOptions = []ColorOption{
	{Key: "blue", Label: "Blue", Hex: "#1f6bd6"},
	{Key: "orange", Label: "Orange", Hex: "#f59e0b"},
	{Key: "red", Label: "Red", Hex: "#d73c2c"},
	{Key: "white", Label: "White", Hex: "#f8fafc"},
}

var defaultColorKeys = [NumPlayers]string{"red", "blue", "orange", "white"}

func NewEmptyState() State {
	s := State{
		Title:     DefaultTitle,
		WinPoints: DefaultWinPoints,
		Ruleset:   RulesetBase,
		Round:     Round{Count: 1},
		Backup:    BackupSettings{AutoSnapshotOnEnd: true, MaxSnapshots: DefaultSnapshots},
	}
	for i := range s.Players {
		s.Players[i] = DefaultPlayer(i)
	}
	return s
}

func DefaultPlayer(i int) Player {
	return Player{
		Name:     "Player " + string(rune('1'+i)),
		ColorKey: defaultColorKeys[i],
		PhotoH:   DefaultPhotoH,
		Zoom:     DefaultZoom,
	}
}

// Clone returns a deep copy; the board stores clones on its undo stacks.
func (s State) Clone() State {
	c := s
	if s.Dice.RollLog != nil {
		c.Dice.RollLog = append(make([]Roll, 0, len(s.Dice.RollLog)), s.Dice.RollLog...)
	}
	if s.History != nil {
		c.History = append(make([]HistoryEntry, 0, len(s.History)), s.History...)
	}
	return c
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}

func ParseRuleset(v string) Ruleset {
	if Ruleset(v) == RulesetEAP {
		return RulesetEAP
	}
	return RulesetBase
}

func ColorHex(key string) string {
	for _, o := range ColorOptions {
		if o.Key == key {
			return o.Hex
		}
	}
	return "#d73c2c"
}

// ColorKeyFor resolves either a colour key or its hex value.
func ColorKeyFor(v string) (string, bool) {
	for _, o := range ColorOptions {
		if o.Key == v || strings.EqualFold(o.Hex, v) {
			return o.Key, true
		}
	}
	return "", false
}

func NormalizeColorKey(v string) string {
	if key, ok := ColorKeyFor(v); ok {
		return key
	}
	return "red"
}

func validSeat(i int) bool { return i >= 0 && i < NumPlayers }

func clamp(n, lo, hi int) int {
	return min(hi, max(lo, n))
}

func clampf(n, lo, hi float64) float64 {
	return min(hi, max(lo, n))
}
