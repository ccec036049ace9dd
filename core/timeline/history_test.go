package timeline

import (
	"reflect"
	"testing"

	"Mx1Studio/model"
)

func TestUndoRedo_RestoresStatesExactly(t *testing.T) {
	e := NewEditor()
	initial := e.State()

	// Three edits.
	a := e.AddClip("video-1", videoClip(0, 4))
	e.AddClip("video-1", videoClip(4, 4))
	e.DeleteClip(a.Base().ID)
	edited := e.State()

	// Undo exactly three times restores the pre-edit state.
	for i := 0; i < 3; i++ {
		if !e.Undo() {
			t.Fatalf("undo %d failed", i+1)
		}
	}
	if !reflect.DeepEqual(e.State(), initial) {
		t.Error("state after 3 undos differs from initial state")
	}

	// Redo all the way restores the post-edit state.
	for i := 0; i < 3; i++ {
		if !e.Redo() {
			t.Fatalf("redo %d failed", i+1)
		}
	}
	if !reflect.DeepEqual(e.State(), edited) {
		t.Error("state after 3 redos differs from edited state")
	}
}

func TestUndoRedo_NoOpAtBoundaries(t *testing.T) {
	e := NewEditor()
	if e.Undo() {
		t.Error("Undo succeeded with empty history")
	}
	if e.Redo() {
		t.Error("Redo succeeded with empty future")
	}

	e.AddClip("video-1", videoClip(0, 2))
	if !e.Undo() {
		t.Fatal("undo failed")
	}
	if e.Undo() {
		t.Error("second undo succeeded past the stack boundary")
	}
}

func TestHistory_NewEditClearsRedo(t *testing.T) {
	e := NewEditor()
	e.AddClip("video-1", videoClip(0, 2))
	e.Undo()

	// A fresh edit invalidates the redo branch.
	e.AddClip("video-1", videoClip(0, 3))
	if e.Redo() {
		t.Error("Redo succeeded after a divergent edit")
	}
}

func TestHistory_BoundedStack(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Push(model.NewTimeline())
	}

	current := model.NewTimeline()
	undone := 0
	for {
		prev := h.Undo(current)
		if prev == nil {
			break
		}
		current = prev
		undone++
	}
	if undone != 3 {
		t.Errorf("undo depth = %d, want bound of 3", undone)
	}
}

func TestClipboard_SurvivesUndo(t *testing.T) {
	e := NewEditor()
	clip := e.AddClip("text-1", textClip(0, 2, "keep me"))
	e.CopyClip(clip.Base().ID)
	e.Undo() // removes the clip, not the clipboard

	pasted := e.PasteClip("text-1")
	if pasted == nil {
		t.Fatal("paste after undo failed")
	}
	if pasted.(*model.TextClip).Text != "keep me" {
		t.Error("clipboard content lost across undo")
	}
}
