package engine

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

func mustApply(t *testing.T, s State, cmd Command) ([]Event, State) {
	t.Helper()
	events, next, err := Apply(s, cmd)
	if err != nil {
		t.Fatalf("Apply(%s): unexpected err %v", cmd.Type, err)
	}
	return events, next
}

func TestScoreCommandsClampToFieldRange(t *testing.T) {
	cases := []struct {
		name  string
		cmd   Command
		field Field
		want  int
	}{
		{
			name:  "adjust below zero clamps",
			cmd:   Command{Type: CmdAdjustScore, Seat: 1, Field: FieldSettlements, Delta: -1},
			field: FieldSettlements,
			want:  0,
		},
		{
			name:  "set above max clamps",
			cmd:   Command{Type: CmdSetScore, Seat: 2, Field: FieldCities, Value: 5000},
			field: FieldCities,
			want:  999,
		},
		{
			name:  "award fields are toggles",
			cmd:   Command{Type: CmdSetScore, Seat: 0, Field: FieldLongestRoad, Value: 3},
			field: FieldLongestRoad,
			want:  1,
		},
		{
			name:  "toggle on",
			cmd:   Command{Type: CmdToggleScore, Seat: 3, Field: FieldLargestArmy, Flag: true},
			field: FieldLargestArmy,
			want:  1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, next := mustApply(t, NewEmptyState(), tc.cmd)
			if got := next.Scores[tc.cmd.Seat].Get(tc.field); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestApplyRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"seat out of range", Command{Type: CmdAdjustScore, Seat: 4, Field: FieldCities, Delta: 1}, ErrInvalidSeat},
		{"unknown field", Command{Type: CmdAdjustScore, Seat: 0, Field: "ships", Delta: 1}, ErrInvalidField},
		{"die out of range", Command{Type: CmdRollDice, Die1: 7, Die2: 1}, ErrInvalidRoll},
		{"manual total too low", Command{Type: CmdManualRoll, Value: 1}, ErrInvalidRoll},
		{"undo roll with empty log", Command{Type: CmdUndoRoll}, ErrNoRolls},
		{"unknown command", Command{Type: "Teleport"}, ErrUnsupportedCommand},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Apply(NewEmptyState(), tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPausedBoardRejectsMutations(t *testing.T) {
	_, s := mustApply(t, NewEmptyState(), Command{Type: CmdTogglePause})
	if !s.Timer.Paused || s.Timer.Running {
		t.Fatalf("pause should freeze timer, got %+v", s.Timer)
	}

	_, _, err := Apply(s, Command{Type: CmdAdjustScore, Seat: 0, Field: FieldCities, Delta: 1})
	if !errors.Is(err, ErrPaused) {
		t.Fatalf("want ErrPaused, got %v", err)
	}

	_, s = mustApply(t, s, Command{Type: CmdTogglePause})
	if s.Timer.Paused {
		t.Fatalf("toggle should resume")
	}
}

func TestRulesetSelectsScoringGroup(t *testing.T) {
	s := NewEmptyState()
	s.Scores[0] = Score{Settlements: 2, Cities: 1, LongestRoad: 1, HarbourSettlements: 3, HarbourCities: 1, SpecialVP: 1}

	if got := Total(s, 0); got != 2+2+2+1 {
		t.Fatalf("base total: got %d", got)
	}

	_, s = mustApply(t, s, Command{Type: CmdSetRuleset, Ruleset: RulesetEAP})
	if got := Total(s, 0); got != 3+2+1 {
		t.Fatalf("eap total: got %d", got)
	}
	if s.Scores[0].Settlements != 2 {
		t.Fatalf("unused group must be preserved")
	}

	_, s = mustApply(t, s, Command{Type: CmdSetRuleset, Ruleset: "seafarers"})
	if s.Ruleset != RulesetBase {
		t.Fatalf("unknown ruleset should fall back to base, got %q", s.Ruleset)
	}
}

func TestRollAdvancesTurnAndRound(t *testing.T) {
	s := NewEmptyState()
	s.Round.Enabled = true
	s.TurnIndex = 3

	events, s := mustApply(t, s, Command{Type: CmdRollDice, Die1: 3, Die2: 4, At: t0})
	if s.TurnIndex != 0 || s.Round.Count != 2 {
		t.Fatalf("want turn 0 round 2, got turn %d round %d", s.TurnIndex, s.Round.Count)
	}
	if !ContainsEvent(events, EvtRoundAdvanced) {
		t.Fatalf("expected EvtRoundAdvanced")
	}
	last := s.Dice.RollLog[0]
	if last.Total != 7 || last.PlayerBefore != 3 || last.RoundBefore != 1 || !last.DidRoundInc {
		t.Fatalf("unexpected roll entry %+v", last)
	}
	if s.Dice.PlayerRolls[3].Counts[7] != 1 {
		t.Fatalf("roll should be attributed to the player before the turn advanced")
	}
}

func TestUndoRollRestoresExactCounters(t *testing.T) {
	s := NewEmptyState()
	s.Round.Enabled = true
	start := s.Clone()

	for _, total := range []int{7, 7, 2} {
		_, s = mustApply(t, s, Command{Type: CmdManualRoll, Value: total, At: t0})
	}
	if s.Dice.TotalRolls != 3 || s.Dice.Counts[7] != 2 || s.Dice.Counts[2] != 1 {
		t.Fatalf("unexpected counters after rolls: %+v", s.Dice)
	}

	for range 3 {
		_, s = mustApply(t, s, Command{Type: CmdUndoRoll})
	}
	if s.Dice.TotalRolls != 0 || s.TurnIndex != start.TurnIndex || s.Round.Count != start.Round.Count {
		t.Fatalf("rollback incomplete: rolls=%d turn=%d round=%d", s.Dice.TotalRolls, s.TurnIndex, s.Round.Count)
	}
	if s.Dice.Counts != start.Dice.Counts || s.Dice.PlayerRolls != start.Dice.PlayerRolls {
		t.Fatalf("counters not restored: %+v", s.Dice)
	}
}

func TestUndoRollAcrossRoundBoundary(t *testing.T) {
	s := NewEmptyState()
	s.Round.Enabled = true
	for range 5 {
		_, s = mustApply(t, s, Command{Type: CmdManualRoll, Value: 8, At: t0})
	}
	if s.Round.Count != 2 || s.TurnIndex != 1 {
		t.Fatalf("want round 2 turn 1, got round %d turn %d", s.Round.Count, s.TurnIndex)
	}
	for range 2 {
		_, s = mustApply(t, s, Command{Type: CmdUndoRoll})
	}
	if s.Round.Count != 1 || s.TurnIndex != 3 {
		t.Fatalf("want round 1 turn 3, got round %d turn %d", s.Round.Count, s.TurnIndex)
	}
}

func TestUndoRollClampsInconsistentCounters(t *testing.T) {
	s := NewEmptyState()
	s.Dice.RollLog = []Roll{{Total: 9, PlayerBefore: 2, RoundBefore: 1}}

	_, s = mustApply(t, s, Command{Type: CmdUndoRoll})
	if s.Dice.TotalRolls != 0 || s.Dice.Counts[9] != 0 || s.Dice.PlayerRolls[2].Total != 0 {
		t.Fatalf("counters must clamp at zero: %+v", s.Dice)
	}
	if s.TurnIndex != 2 {
		t.Fatalf("turn should return to playerBefore, got %d", s.TurnIndex)
	}
}

func TestEndGamePrependsHistoryAndEmitsResult(t *testing.T) {
	s := NewEmptyState()
	s.Scores[1] = Score{Settlements: 4, Cities: 3}
	s.Scores[2] = Score{Settlements: 5}
	s.Timer.ElapsedMs = 90_000
	s.History = []HistoryEntry{{Date: "2025-01-01T00:00:00Z"}}

	events, s := mustApply(t, s, Command{Type: CmdEndGame, At: t0})

	ev, ok := FindEvent(events, EvtGameCompleted)
	if !ok || ev.Result == nil {
		t.Fatalf("expected EvtGameCompleted with result")
	}
	if ev.Result.WinnerIdx != 1 || ev.Result.Margin != 5 || ev.Result.DurationMs != 90_000 {
		t.Fatalf("unexpected result %+v", ev.Result)
	}
	if len(s.History) != 2 || s.History[0].WinnerIdx != 1 {
		t.Fatalf("new entry should be first: %+v", s.History)
	}
}

func TestFinalizeTieGoesToLowestSeat(t *testing.T) {
	s := NewEmptyState()
	s.Scores[2] = Score{Settlements: 3}
	s.Scores[1] = Score{Settlements: 3}

	res := Finalize(s, t0)
	if res.WinnerIdx != 1 || res.Margin != 0 {
		t.Fatalf("want seat 1 with margin 0, got %d / %d", res.WinnerIdx, res.Margin)
	}
}

func TestAutoWinEmitsThresholdOnce(t *testing.T) {
	s := NewEmptyState()
	s.AutoWin = true
	s.WinPoints = 3
	s.Scores[0].Settlements = 2

	events, s := mustApply(t, s, Command{Type: CmdAdjustScore, Seat: 0, Field: FieldSettlements, Delta: 1})
	if !ContainsEvent(events, EvtWinThresholdReached) {
		t.Fatalf("expected threshold event")
	}

	events, _ = mustApply(t, s, Command{Type: CmdAdjustScore, Seat: 0, Field: FieldVPCards, Delta: 1})
	if ContainsEvent(events, EvtWinThresholdReached) {
		t.Fatalf("threshold event should fire only on crossing")
	}
}

func TestApplyRosterFillsSlotsAndKeepsPhotos(t *testing.T) {
	s := NewEmptyState()
	s.Players[1].Photo = "data:image/jpeg;base64,AAAA"

	_, s = mustApply(t, s, Command{Type: CmdApplyRoster, Seats: []Seat{
		{UserID: "u-host", DisplayName: "Ana", AvatarURL: "https://img/ana.png"},
		{UserID: "u-guest", DisplayName: "Ben", AvatarURL: "https://img/ben.png"},
	}})

	if s.Players[0].Name != "Ana" || s.Players[0].UserID != "u-host" || s.Players[0].Photo != "https://img/ana.png" {
		t.Fatalf("slot 0 not applied: %+v", s.Players[0])
	}
	if s.Players[1].Photo != "data:image/jpeg;base64,AAAA" {
		t.Fatalf("existing photo must win over avatar")
	}
	if s.Players[2].Name != "Player 3" {
		t.Fatalf("unfilled slots stay untouched")
	}
	if !s.Timer.Running {
		t.Fatalf("seating players starts the timer")
	}
}

func TestApplyDoesNotAliasInputState(t *testing.T) {
	s := NewEmptyState()
	_, s = mustApply(t, s, Command{Type: CmdManualRoll, Value: 6, At: t0})
	before := s.Clone()

	_, _ = mustApply(t, s, Command{Type: CmdManualRoll, Value: 5, At: t0})
	if len(s.Dice.RollLog) != len(before.Dice.RollLog) || s.Dice.Counts != before.Dice.Counts {
		t.Fatalf("Apply mutated its input")
	}
}
