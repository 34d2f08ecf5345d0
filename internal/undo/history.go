package undo

import "github.com/whnb773/catan-scoreboard/internal/engine"

// MaxEntries bounds the undo stack; the oldest entry is evicted first.
const MaxEntries = 150

const RedoLabel = "Redo"

type Entry struct {
	Label string
	State engine.State
}

// History is a bounded linear undo/redo stack. It is owned by a single board
// goroutine and is not safe for concurrent use.
type History struct {
	undo []Entry
	redo []Entry
}

func New() *History {
	return &History{}
}

// Push records the state as it was before a mutation and invalidates redo.
func (h *History) Push(label string, before engine.State) {
	h.undo = append(h.undo, Entry{Label: label, State: before.Clone()})
	if over := len(h.undo) - MaxEntries; over > 0 {
		h.undo = append(h.undo[:0:0], h.undo[over:]...)
	}
	h.redo = nil
}

// Undo pops the newest entry and parks current on the redo stack.
func (h *History) Undo(current engine.State) (engine.State, string, bool) {
	if len(h.undo) == 0 {
		return current, "", false
	}
	last := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, Entry{Label: last.Label, State: current.Clone()})
	return last.State.Clone(), last.Label, true
}

func (h *History) Redo(current engine.State) (engine.State, string, bool) {
	if len(h.redo) == 0 {
		return current, "", false
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, Entry{Label: RedoLabel, State: current.Clone()})
	return next.State.Clone(), next.Label, true
}

func (h *History) UndoLen() int { return len(h.undo) }
func (h *History) RedoLen() int { return len(h.redo) }

// Peek returns the label of the entry Undo would restore.
func (h *History) Peek() (string, bool) {
	if len(h.undo) == 0 {
		return "", false
	}
	return h.undo[len(h.undo)-1].Label, true
}

// Reset drops both stacks, e.g. when the board's document is swapped wholesale.
func (h *History) Reset() {
	h.undo = nil
	h.redo = nil
}
