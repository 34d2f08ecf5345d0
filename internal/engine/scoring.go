package engine

import (
	"sort"
	"time"
)

type Field string

const (
	FieldSettlements        Field = "settlements"
	FieldCities             Field = "cities"
	FieldVPCards            Field = "vpCards"
	FieldLongestRoad        Field = "longestRoad"
	FieldLargestArmy        Field = "largestArmy"
	FieldHarbourSettlements Field = "harbourSettlements"
	FieldHarbourCities      Field = "harbourCities"
	FieldPirateLairs        Field = "pirateLairs"
	FieldVPTokens           Field = "vpTokens"
	FieldSpecialVP          Field = "specialVP"
)

// Fields lists every score counter in export order.
var Fields = []Field{
	FieldSettlements, FieldCities, FieldVPCards, FieldLongestRoad, FieldLargestArmy,
	FieldHarbourSettlements, FieldHarbourCities, FieldPirateLairs, FieldVPTokens, FieldSpecialVP,
}

const maxCounter = 999

func (f Field) Valid() bool {
	for _, x := range Fields {
		if x == f {
			return true
		}
	}
	return false
}

// Max is the upper bound for the field; the award fields are 0/1 toggles.
func (f Field) Max() int {
	if f == FieldLongestRoad || f == FieldLargestArmy {
		return 1
	}
	return maxCounter
}

func (s *Score) ptr(f Field) *int {
	switch f {
	case FieldSettlements:
		return &s.Settlements
	case FieldCities:
		return &s.Cities
	case FieldVPCards:
		return &s.VPCards
	case FieldLongestRoad:
		return &s.LongestRoad
	case FieldLargestArmy:
		return &s.LargestArmy
	case FieldHarbourSettlements:
		return &s.HarbourSettlements
	case FieldHarbourCities:
		return &s.HarbourCities
	case FieldPirateLairs:
		return &s.PirateLairs
	case FieldVPTokens:
		return &s.VPTokens
	case FieldSpecialVP:
		return &s.SpecialVP
	}
	return nil
}

func (s Score) Get(f Field) int {
	if p := s.ptr(f); p != nil {
		return *p
	}
	return 0
}

// Set stores v clamped to the field's range. Unknown fields are ignored.
func (s *Score) Set(f Field, v int) {
	if p := s.ptr(f); p != nil {
		*p = clamp(v, 0, f.Max())
	}
}

// Total returns seat i's victory points under the active ruleset.
func Total(s State, i int) int {
	sc := s.Scores[i]
	if s.Ruleset == RulesetEAP {
		return sc.HarbourSettlements +
			sc.HarbourCities*2 +
			sc.PirateLairs +
			sc.VPTokens +
			sc.SpecialVP
	}
	return sc.Settlements +
		sc.Cities*2 +
		sc.VPCards +
		sc.LongestRoad*2 +
		sc.LargestArmy*2 +
		sc.SpecialVP
}

// Finalize computes the end-of-game result. Ties go to the lowest seat.
func Finalize(s State, at time.Time) GameResult {
	res := GameResult{
		Players:    s.Players,
		TotalRolls: s.Dice.TotalRolls,
		DurationMs: s.Timer.ElapsedMs,
		Ruleset:    s.Ruleset,
		WinPoints:  s.WinPoints,
		EndedAt:    at,
	}
	order := make([]int, NumPlayers)
	for i := range order {
		order[i] = i
		res.Scores[i] = Total(s, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return res.Scores[order[a]] > res.Scores[order[b]]
	})
	res.WinnerIdx = order[0]
	res.Margin = res.Scores[order[0]] - res.Scores[order[1]]
	return res
}
