package profile

import (
	"errors"
	"math"
	"time"

	"github.com/whnb773/catan-scoreboard/internal/engine"
)

var ErrNotFound = errors.New("profile not found")
var ErrInvalidName = errors.New("display name is required")
var ErrInvalidColour = errors.New("unknown colour")

const (
	LeaderboardSize = 20
	SearchLimit     = 8
	RecentGames     = 20
	DefaultColour   = "#1f6bd6"
)

type Profile struct {
	UID              string    `json:"uid"`
	DisplayName      string    `json:"displayName"`
	Email            string    `json:"email"`
	AvatarURL        string    `json:"avatarUrl"`
	ColourPref       string    `json:"colourPref"`
	CreatedAt        time.Time `json:"createdAt"`
	LastSeen         time.Time `json:"lastSeen"`
	TotalGames       int       `json:"totalGames"`
	TotalWins        int       `json:"totalWins"`
	WinStreakCurrent int       `json:"winStreakCurrent"`
	WinStreakLongest int       `json:"winStreakLongest"`
	AvgMargin        int       `json:"avgMargin"`
	TotalVP          int       `json:"totalVP"`
	TotalRolls       int       `json:"totalRolls"`
}

type PlayerResult struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Colour      string `json:"colour"`
	FinalScore  int    `json:"finalScore"`
	IsWinner    bool   `json:"isWinner"`
	IsGuest     bool   `json:"isGuest"`
}

// GameRecord is the immutable result document written once per finished game.
type GameRecord struct {
	ID            string         `json:"id"`
	HostID        string         `json:"hostId"`
	StartedAt     time.Time      `json:"startedAt"`
	EndedAt       time.Time      `json:"endedAt"`
	DurationMs    int64          `json:"durationMs"`
	TotalRolls    int            `json:"totalRolls"`
	Ruleset       string         `json:"ruleset"`
	WinningPoints int            `json:"winningPoints"`
	Margin        int            `json:"margin"`
	WinnerID      string         `json:"winnerId"`
	Players       []PlayerResult `json:"players"`
}

// StatDelta is one player's contribution from a finished game.
type StatDelta struct {
	IsWinner   bool
	FinalScore int
	Margin     int
	Rolls      int
}

// ApplyResult folds one finished game into p. The average margin only moves on
// wins: the first win sets it, later wins blend it in over the new win count.
func ApplyResult(p Profile, d StatDelta) Profile {
	p.TotalGames++
	if d.IsWinner {
		p.TotalWins++
		p.WinStreakCurrent++
		prevWins := p.TotalWins - 1
		if prevWins == 0 {
			p.AvgMargin = d.Margin
		} else {
			p.AvgMargin = int(math.Round(float64(p.AvgMargin*prevWins+d.Margin) / float64(p.TotalWins)))
		}
	} else {
		p.WinStreakCurrent = 0
	}
	p.WinStreakLongest = max(p.WinStreakLongest, p.WinStreakCurrent)
	p.TotalVP += d.FinalScore
	p.TotalRolls += d.Rolls
	return p
}

// NewRecord converts a finalized board result into a game record. Seats
// without a user id are recorded as guests.
func NewRecord(id, hostID string, res engine.GameResult) GameRecord {
	rec := GameRecord{
		ID:            id,
		HostID:        hostID,
		StartedAt:     res.EndedAt.Add(-time.Duration(res.DurationMs) * time.Millisecond).UTC(),
		EndedAt:       res.EndedAt.UTC(),
		DurationMs:    res.DurationMs,
		TotalRolls:    res.TotalRolls,
		Ruleset:       string(res.Ruleset),
		WinningPoints: res.WinPoints,
		Margin:        res.Margin,
		WinnerID:      res.Players[res.WinnerIdx].UserID,
		Players:       make([]PlayerResult, 0, engine.NumPlayers),
	}
	for i, p := range res.Players {
		rec.Players = append(rec.Players, PlayerResult{
			ID:          p.UserID,
			DisplayName: p.Name,
			Colour:      engine.ColorHex(p.ColorKey),
			FinalScore:  res.Scores[i],
			IsWinner:    i == res.WinnerIdx,
			IsGuest:     p.UserID == "",
		})
	}
	return rec
}

// Deltas returns the stat update for every registered player in rec. A user
// seated twice is counted once, using the first seat.
func Deltas(rec GameRecord) map[string]StatDelta {
	out := make(map[string]StatDelta)
	for _, p := range rec.Players {
		if p.IsGuest || p.ID == "" {
			continue
		}
		if _, seen := out[p.ID]; seen {
			continue
		}
		out[p.ID] = StatDelta{
			IsWinner:   p.IsWinner,
			FinalScore: p.FinalScore,
			Margin:     rec.Margin,
			Rolls:      rec.TotalRolls,
		}
	}
	return out
}
