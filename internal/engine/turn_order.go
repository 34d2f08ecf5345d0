package engine

// advanceTurn moves to the next seat and bumps the round when play wraps back to seat 0.
func advanceTurn(s *State) bool {
	before := s.TurnIndex
	s.TurnIndex = (s.TurnIndex + 1) % NumPlayers

	if s.Round.Enabled && before == NumPlayers-1 && s.TurnIndex == 0 {
		s.Round.Count = clamp(max(s.Round.Count, 1)+1, 1, MaxRoundCount)
		return true
	}
	return false
}

func rewindRound(s *State, last Roll) {
	switch {
	case last.DidRoundInc:
		s.Round.Count = clamp(max(s.Round.Count, 1)-1, 1, MaxRoundCount)
	case last.RoundBefore > 0:
		s.Round.Count = clamp(last.RoundBefore, 1, MaxRoundCount)
	}
}
