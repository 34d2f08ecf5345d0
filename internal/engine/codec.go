package engine

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

const AppVersion = "v12"

var ErrInvalidBackup = errors.New("invalid backup file")

type Document struct {
	AppVersion     string       `json:"appVersion"`
	Title          string       `json:"title"`
	WinPoints      int          `json:"winPoints"`
	AutoWin        bool         `json:"autoWin"`
	Ruleset        Ruleset      `json:"ruleset"`
	Players        []PlayerDoc  `json:"players"`
	PlayerState    []ScoreDoc   `json:"playerState"`
	TurnIndex      int          `json:"turnIndex"`
	Round          RoundDoc     `json:"round"`
	Dice           DiceDoc      `json:"dice"`
	Timer          TimerDoc     `json:"timer"`
	History        []HistoryDoc `json:"history"`
	BackupSettings BackupDoc    `json:"backupSettings"`
}

type PlayerDoc struct {
	Name     string  `json:"name"`
	Color    string  `json:"color"`
	ColorKey string  `json:"colorKey"`
	UID      string  `json:"uid,omitempty"`
	Photo    string  `json:"photo"`
	PhotoH   int     `json:"photoH"`
	PanX     float64 `json:"panX"`
	PanY     float64 `json:"panY"`
	Zoom     float64 `json:"zoom"`
	NatW     int     `json:"natW"`
	NatH     int     `json:"natH"`
}

type ScoreDoc struct {
	Settlements        int `json:"settlements"`
	Cities             int `json:"cities"`
	VPCards            int `json:"vpCards"`
	LongestRoad        int `json:"longestRoad"`
	LargestArmy        int `json:"largestArmy"`
	HarbourSettlements int `json:"harbourSettlements"`
	HarbourCities      int `json:"harbourCities"`
	PirateLairs        int `json:"pirateLairs"`
	VPTokens           int `json:"vpTokens"`
	SpecialVP          int `json:"specialVP"`
}

type RoundDoc struct {
	Enabled bool `json:"enabled"`
	Count   int  `json:"count"`
}

type PlayerRollsDoc struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

type RollDoc struct {
	Total        int   `json:"total"`
	D1           *int  `json:"d1"`
	D2           *int  `json:"d2"`
	PlayerBefore int   `json:"playerBefore"`
	RoundBefore  int   `json:"roundBefore"`
	DidRoundInc  bool  `json:"didRoundInc"`
	TS           int64 `json:"ts"`
}

type DiceDoc struct {
	Counts      map[string]int   `json:"counts"`
	TotalRolls  int              `json:"totalRolls"`
	PlayerRolls []PlayerRollsDoc `json:"playerRolls"`
	RollLog     []RollDoc        `json:"rollLog"`
}

type TimerDoc struct {
	Paused    bool  `json:"paused"`
	Running   bool  `json:"running"`
	ElapsedMs int64 `json:"elapsedMs"`
}

type HistoryDoc struct {
	Date       string `json:"date"`
	WinnerIdx  int    `json:"winnerIdx"`
	Margin     int    `json:"margin"`
	Scores     []int  `json:"scores"`
	Rolls      int    `json:"rolls"`
	DurationMs int64  `json:"durationMs"`
}

type BackupDoc struct {
	AutoSnapshotOnEnd bool `json:"autoSnapshotOnEnd"`
	MaxSnapshots      int  `json:"maxSnapshots"`
}

// Export converts s into its persisted document form.
func Export(s State) Document {
	d := Document{
		AppVersion:     AppVersion,
		Title:          s.Title,
		WinPoints:      s.WinPoints,
		AutoWin:        s.AutoWin,
		Ruleset:        s.Ruleset,
		Players:        make([]PlayerDoc, 0, NumPlayers),
		PlayerState:    make([]ScoreDoc, 0, NumPlayers),
		TurnIndex:      s.TurnIndex,
		Round:          RoundDoc{Enabled: s.Round.Enabled, Count: s.Round.Count},
		Timer:          TimerDoc{Paused: s.Timer.Paused, Running: s.Timer.Running, ElapsedMs: s.Timer.ElapsedMs},
		History:        make([]HistoryDoc, 0, len(s.History)),
		BackupSettings: BackupDoc{AutoSnapshotOnEnd: s.Backup.AutoSnapshotOnEnd, MaxSnapshots: s.Backup.MaxSnapshots},
	}

	for _, p := range s.Players {
		d.Players = append(d.Players, PlayerDoc{
			Name:     p.Name,
			Color:    ColorHex(p.ColorKey),
			ColorKey: p.ColorKey,
			UID:      p.UserID,
			Photo:    p.Photo,
			PhotoH:   p.PhotoH,
			PanX:     p.PanX,
			PanY:     p.PanY,
			Zoom:     p.Zoom,
			NatW:     p.NatW,
			NatH:     p.NatH,
		})
	}
	for _, sc := range s.Scores {
		d.PlayerState = append(d.PlayerState, ScoreDoc(sc))
	}

	d.Dice = DiceDoc{
		Counts:      countsDoc(s.Dice.Counts),
		TotalRolls:  s.Dice.TotalRolls,
		PlayerRolls: make([]PlayerRollsDoc, 0, NumPlayers),
		RollLog:     make([]RollDoc, 0, len(s.Dice.RollLog)),
	}
	for _, pr := range s.Dice.PlayerRolls {
		d.Dice.PlayerRolls = append(d.Dice.PlayerRolls, PlayerRollsDoc{Counts: countsDoc(pr.Counts), Total: pr.Total})
	}
	for _, r := range s.Dice.RollLog {
		rd := RollDoc{
			Total:        r.Total,
			PlayerBefore: r.PlayerBefore,
			RoundBefore:  r.RoundBefore,
			DidRoundInc:  r.DidRoundInc,
			TS:           r.TS,
		}
		if r.D1 != 0 && r.D2 != 0 {
			d1, d2 := r.D1, r.D2
			rd.D1, rd.D2 = &d1, &d2
		}
		d.Dice.RollLog = append(d.Dice.RollLog, rd)
	}

	for _, h := range s.History {
		d.History = append(d.History, HistoryDoc{
			Date:       h.Date,
			WinnerIdx:  h.WinnerIdx,
			Margin:     h.Margin,
			Scores:     append([]int(nil), h.Scores[:]...),
			Rolls:      h.Rolls,
			DurationMs: h.DurationMs,
		})
	}
	return d
}

func Marshal(s State) ([]byte, error) {
	return json.Marshal(Export(s))
}

func countsDoc(c [13]int) map[string]int {
	m := make(map[string]int, 11)
	for t := 2; t <= 12; t++ {
		m[strconv.Itoa(t)] = c[t]
	}
	return m
}

// ValidateBackup is the gate for user-supplied backup files: a JSON object with a players array.
func ValidateBackup(raw []byte) error {
	o, ok := parseObject(raw)
	if !ok {
		return ErrInvalidBackup
	}
	if _, ok := o.array("players"); !ok {
		return ErrInvalidBackup
	}
	return nil
}

// Import overlays a persisted document onto base. Every field is read on its own:
// missing, mistyped or out-of-range values fall back to defaults or to base, so
// Import never fails. Input that is not a JSON object returns base unchanged.
func Import(base State, raw []byte) State {
	o, ok := parseObject(raw)
	if !ok {
		return base
	}
	s := base.Clone()

	if v, ok := o.str("title"); ok {
		s.Title = truncate(v, MaxTitleLen)
	}
	if v, ok := o.num("winPoints"); ok {
		s.WinPoints = clamp(toInt(v), MinWinPoints, MaxWinPoints)
	}
	if v, ok := o.boolean("autoWin"); ok {
		s.AutoWin = v
	}
	if v, ok := o.str("ruleset"); ok {
		s.Ruleset = ParseRuleset(v)
	}

	if r, ok := o.object("round"); ok {
		s.Round.Enabled = r.truthy("enabled")
		s.Round.Count = clamp(orOne(r.intOr("count", 1)), 1, MaxRoundCount)
	} else {
		s.Round = Round{Count: 1}
	}

	if b, ok := o.object("backupSettings"); ok {
		if v, ok := b.boolean("autoSnapshotOnEnd"); ok {
			s.Backup.AutoSnapshotOnEnd = v
		}
		if v, ok := b.num("maxSnapshots"); ok {
			s.Backup.MaxSnapshots = clamp(toInt(v), MinSnapshots, MaxSnapshots)
		}
	}

	if arr, ok := o.array("players"); ok && len(arr) == NumPlayers {
		for i, raw := range arr {
			p, _ := parseObject(raw)
			importPlayer(&s.Players[i], p)
		}
	}
	for i := range s.Players {
		s.Players[i].ColorKey = NormalizeColorKey(s.Players[i].ColorKey)
	}

	if arr, ok := o.array("playerState"); ok && len(arr) == NumPlayers {
		for i, raw := range arr {
			sc, _ := parseObject(raw)
			s.Scores[i] = Score{}
			for _, f := range Fields {
				s.Scores[i].Set(f, sc.intOr(string(f), 0))
			}
		}
	}

	if v, ok := o.num("turnIndex"); ok {
		s.TurnIndex = clamp(toInt(v), 0, NumPlayers-1)
	}

	if d, ok := o.object("dice"); ok {
		importDice(&s.Dice, d)
	}

	if t, ok := o.object("timer"); ok {
		s.Timer.Paused = t.truthy("paused")
		s.Timer.Running = t.truthy("running")
		s.Timer.ElapsedMs = max(0, int64(math.Round(t.numOr("elapsedMs", 0))))
	}

	if arr, ok := o.array("history"); ok {
		s.History = make([]HistoryEntry, 0, len(arr))
		for _, raw := range arr {
			if h, ok := parseObject(raw); ok {
				s.History = append(s.History, importHistory(h))
			}
		}
	}
	return s
}

func importPlayer(p *Player, o object) {
	if v, ok := o.str("name"); ok {
		p.Name = v
	}
	if v, ok := o.str("colorKey"); ok {
		if key, ok := ColorKeyFor(v); ok && key == v {
			p.ColorKey = key
		} else if c, ok := o.str("color"); ok {
			if key, ok := ColorKeyFor(c); ok {
				p.ColorKey = key
			}
		}
	} else if c, ok := o.str("color"); ok {
		if key, ok := ColorKeyFor(c); ok {
			p.ColorKey = key
		}
	}
	p.UserID, _ = o.str("uid")
	if v, ok := o.str("photo"); ok {
		p.Photo = v
	}
	if v, ok := o.num("photoH"); ok {
		p.PhotoH = clamp(toInt(v), MinPhotoH, MaxPhotoH)
	}
	p.PanX = o.numOr("panX", 0)
	p.PanY = o.numOr("panY", 0)
	if v, ok := o.num("zoom"); ok {
		p.Zoom = clampf(v, MinZoom, MaxZoom)
	}
	if v, ok := o.num("natW"); ok {
		p.NatW = toInt(v)
	}
	if v, ok := o.num("natH"); ok {
		p.NatH = toInt(v)
	}
}

func importDice(dst *Dice, d object) {
	if c, ok := d.object("counts"); ok {
		for t := 2; t <= 12; t++ {
			dst.Counts[t] = max(0, c.intOr(strconv.Itoa(t), 0))
		}
	}
	dst.TotalRolls = max(0, d.intOr("totalRolls", 0))

	if arr, ok := d.array("playerRolls"); ok && len(arr) == NumPlayers {
		for i, raw := range arr {
			pr, _ := parseObject(raw)
			dst.PlayerRolls[i].Total = max(0, pr.intOr("total", 0))
			c, _ := pr.object("counts")
			for t := 2; t <= 12; t++ {
				dst.PlayerRolls[i].Counts[t] = max(0, c.intOr(strconv.Itoa(t), 0))
			}
		}
	}

	dst.RollLog = nil
	arr, _ := d.array("rollLog")
	for _, raw := range arr {
		r, ok := parseObject(raw)
		if !ok {
			continue
		}
		total := r.intOr("total", 0)
		if total < 2 || total > 12 {
			continue
		}
		roll := Roll{
			Total:        total,
			PlayerBefore: clamp(r.intOr("playerBefore", 0), 0, NumPlayers-1),
			RoundBefore:  r.intOr("roundBefore", 0),
			DidRoundInc:  r.truthy("didRoundInc"),
			TS:           int64(math.Round(r.numOr("ts", 0))),
		}
		d1, ok1 := r.num("d1")
		d2, ok2 := r.num("d2")
		if ok1 && ok2 {
			roll.D1, roll.D2 = clamp(toInt(d1), 1, 6), clamp(toInt(d2), 1, 6)
		}
		dst.RollLog = append(dst.RollLog, roll)
	}
}

func importHistory(h object) HistoryEntry {
	e := HistoryEntry{
		WinnerIdx:  clamp(h.intOr("winnerIdx", 0), 0, NumPlayers-1),
		Margin:     max(0, h.intOr("margin", 0)),
		Rolls:      max(0, h.intOr("rolls", 0)),
		DurationMs: max(0, int64(math.Round(h.numOr("durationMs", 0)))),
	}
	e.Date, _ = h.str("date")
	scores, _ := h.array("scores")
	for i := 0; i < len(scores) && i < NumPlayers; i++ {
		var f float64
		if json.Unmarshal(scores[i], &f) == nil {
			e.Scores[i] = toInt(f)
		}
	}
	return e
}

type object map[string]json.RawMessage

func parseObject(raw []byte) (object, bool) {
	var o object
	if err := json.Unmarshal(raw, &o); err != nil || o == nil {
		return nil, false
	}
	return o, true
}

func (o object) present(key string) (json.RawMessage, bool) {
	raw, ok := o[key]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func (o object) num(key string) (float64, bool) {
	raw, ok := o.present(key)
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (o object) numOr(key string, def float64) float64 {
	if v, ok := o.num(key); ok {
		return v
	}
	return def
}

func (o object) intOr(key string, def int) int {
	if v, ok := o.num(key); ok {
		return toInt(v)
	}
	return def
}

func (o object) str(key string) (string, bool) {
	raw, ok := o.present(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (o object) boolean(key string) (bool, bool) {
	raw, ok := o.present(key)
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

// truthy treats only a JSON true as set.
func (o object) truthy(key string) bool {
	b, _ := o.boolean(key)
	return b
}

func (o object) array(key string) ([]json.RawMessage, bool) {
	raw, ok := o.present(key)
	if !ok {
		return nil, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, false
	}
	return arr, true
}

func (o object) object(key string) (object, bool) {
	raw, ok := o.present(key)
	if !ok {
		return nil, false
	}
	return parseObject(raw)
}

func toInt(f float64) int {
	const limit = 1 << 53
	return int(math.Round(clampf(f, -limit, limit)))
}

func orOne(n int) int {
	if n == 0 {
		return 1
	}
	return n
}
