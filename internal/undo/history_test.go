package undo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whnb773/catan-scoreboard/internal/engine"
)

// apply mimics the board: snapshot first, then mutate.
func apply(t *testing.T, h *History, s engine.State, cmd engine.Command) engine.State {
	t.Helper()
	label, snap := engine.Describe(s, cmd)
	_, next, err := engine.Apply(s, cmd)
	require.NoError(t, err)
	if snap {
		h.Push(label, s)
	}
	return next
}

func TestUndoRedoAreInverse(t *testing.T) {
	h := New()
	s0 := engine.NewEmptyState()

	s1 := apply(t, h, s0, engine.Command{Type: engine.CmdAdjustScore, Seat: 0, Field: engine.FieldCities, Delta: 1})
	s2 := apply(t, h, s1, engine.Command{Type: engine.CmdManualRoll, Value: 8})

	restored, label, ok := h.Undo(s2)
	require.True(t, ok)
	assert.Equal(t, "Manual roll", label)
	assert.Equal(t, s1, restored)

	again, _, ok := h.Redo(restored)
	require.True(t, ok)
	assert.Equal(t, s2, again)

	top, _ := h.Peek()
	assert.Equal(t, RedoLabel, top)
}

func TestUndoOnEmptyIsNoop(t *testing.T) {
	h := New()
	s := engine.NewEmptyState()

	got, _, ok := h.Undo(s)
	assert.False(t, ok)
	assert.Equal(t, s, got)

	got, _, ok = h.Redo(s)
	assert.False(t, ok)
	assert.Equal(t, s, got)
}

func TestUndoStackIsBounded(t *testing.T) {
	h := New()
	s := engine.NewEmptyState()
	first := s.Clone()

	for i := 0; i < MaxEntries+1; i++ {
		s = apply(t, h, s, engine.Command{Type: engine.CmdAdjustScore, Seat: 1, Field: engine.FieldVPCards, Delta: 1})
	}
	require.Equal(t, MaxEntries, h.UndoLen())

	var ok bool
	for i := 0; i < MaxEntries; i++ {
		s, _, ok = h.Undo(s)
		require.True(t, ok)
	}
	_, _, ok = h.Undo(s)
	assert.False(t, ok)

	// The very first pre-mutation state was evicted.
	assert.NotEqual(t, first, s)
	assert.Equal(t, 1, s.Scores[1].VPCards)
}

func TestNewMutationClearsRedo(t *testing.T) {
	h := New()
	s := engine.NewEmptyState()

	s = apply(t, h, s, engine.Command{Type: engine.CmdSetTitle, Text: "Game night"})
	s, _, _ = h.Undo(s)
	require.Equal(t, 1, h.RedoLen())

	s = apply(t, h, s, engine.Command{Type: engine.CmdSetWinPoints, Value: 12})
	assert.Equal(t, 0, h.RedoLen())

	_, _, ok := h.Redo(s)
	assert.False(t, ok)
}

func TestPushStoresACopy(t *testing.T) {
	h := New()
	s := engine.NewEmptyState()
	s.History = []engine.HistoryEntry{{WinnerIdx: 2}}

	h.Push("Edit title", s)
	s.History[0].WinnerIdx = 0

	restored, _, _ := h.Undo(s)
	assert.Equal(t, 2, restored.History[0].WinnerIdx)
}
