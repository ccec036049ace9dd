package timeline

import "Mx1Studio/model"

// DefaultHistoryLimit bounds the undo stack to cap memory; the oldest
// snapshot falls off when the limit is reached.
const DefaultHistoryLimit = 50

// History holds bounded undo/redo stacks of whole-timeline snapshots.
// Pushing a new snapshot clears the redo stack.
type History struct {
	limit  int
	past   []*model.Timeline
	future []*model.Timeline
}

// NewHistory creates a history bounded to limit snapshots per stack.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push records a pre-edit snapshot and invalidates any redo entries.
func (h *History) Push(snapshot *model.Timeline) {
	h.past = append(h.past, snapshot)
	if len(h.past) > h.limit {
		h.past = h.past[len(h.past)-h.limit:]
	}
	h.future = h.future[:0]
}

// Undo pops the latest snapshot, parking the current state on the redo
// stack. Returns nil when there is nothing to undo.
func (h *History) Undo(current *model.Timeline) *model.Timeline {
	if len(h.past) == 0 {
		return nil
	}
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]

	h.future = append(h.future, current)
	if len(h.future) > h.limit {
		h.future = h.future[len(h.future)-h.limit:]
	}
	return prev
}

// Redo pops the latest undone snapshot, parking the current state back on
// the undo stack. Returns nil when there is nothing to redo.
func (h *History) Redo(current *model.Timeline) *model.Timeline {
	if len(h.future) == 0 {
		return nil
	}
	next := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, current)
	return next
}

// CanUndo reports whether an undo snapshot exists.
func (h *History) CanUndo() bool { return len(h.past) > 0 }

// CanRedo reports whether a redo snapshot exists.
func (h *History) CanRedo() bool { return len(h.future) > 0 }
