package timeline

import (
	"testing"

	"Mx1Studio/model"
)

func videoClip(start, dur float64) *model.VideoClip {
	return &model.VideoClip{
		ClipBase: model.ClipBase{StartTime: start, Duration: dur},
		Volume:   1,
	}
}

func audioClip(start, dur, vol float64) *model.AudioClip {
	return &model.AudioClip{
		ClipBase: model.ClipBase{StartTime: start, Duration: dur},
		Volume:   vol,
	}
}

func textClip(start, dur float64, text string) *model.TextClip {
	return &model.TextClip{
		ClipBase: model.ClipBase{StartTime: start, Duration: dur},
		Text:     text,
		FontSize: 24,
		Color:    "#ffffff",
		Position: model.Position{X: 50, Y: 50},
		Opacity:  1,
	}
}

func TestAddClip_RecomputesDuration(t *testing.T) {
	e := NewEditor()
	added := e.AddClip("video-1", videoClip(2, 8))
	if added == nil {
		t.Fatal("AddClip returned nil")
	}
	if added.Base().ID == "" {
		t.Error("added clip has no generated id")
	}
	if got := e.State().Duration; got != 10 {
		t.Errorf("duration = %v, want 10", got)
	}
}

func TestAddClip_RejectsInvalidPlacement(t *testing.T) {
	tests := []struct {
		name string
		clip model.Clip
	}{
		{"zero duration", videoClip(0, 0)},
		{"negative duration", videoClip(0, -1)},
		{"negative start", videoClip(-1, 5)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEditor()
			if got := e.AddClip("video-1", tc.clip); got != nil {
				t.Errorf("AddClip accepted invalid clip: %+v", got)
			}
			if n := e.State().ClipCount(); n != 0 {
				t.Errorf("clip count = %d, want 0", n)
			}
		})
	}
}

func TestAddClip_LockedTrackIsNoOp(t *testing.T) {
	e := NewEditor()
	e.SetTrackLocked("video-1", true)

	if got := e.AddClip("video-1", videoClip(0, 5)); got != nil {
		t.Fatal("AddClip succeeded on a locked track")
	}
	if n := e.State().ClipCount(); n != 0 {
		t.Errorf("clip count = %d, want 0", n)
	}
}

func TestSplitClip_PartitionsWindowExactly(t *testing.T) {
	e := NewEditor()
	added := e.AddClip("video-1", videoClip(1, 9))

	if !e.SplitClip(added.Base().ID, 4) {
		t.Fatal("SplitClip failed inside clip bounds")
	}

	track := e.State().TrackByID("video-1")
	if len(track.Clips) != 2 {
		t.Fatalf("clip count after split = %d, want 2", len(track.Clips))
	}
	first, second := track.Clips[0].Base(), track.Clips[1].Base()

	if first.ID != added.Base().ID+"-1" || second.ID != added.Base().ID+"-2" {
		t.Errorf("split ids = %q, %q", first.ID, second.ID)
	}
	if first.StartTime != 1 || first.End() != 4 {
		t.Errorf("first half spans [%v,%v), want [1,4)", first.StartTime, first.End())
	}
	if second.StartTime != 4 || second.End() != 10 {
		t.Errorf("second half spans [%v,%v), want [4,10)", second.StartTime, second.End())
	}
	// Durations sum exactly to the original: no gap, no overlap.
	if first.Duration+second.Duration != 9 {
		t.Errorf("duration sum = %v, want 9", first.Duration+second.Duration)
	}
}

func TestSplitClip_OutsideBoundsIsNoOp(t *testing.T) {
	tests := []struct {
		name string
		at   float64
	}{
		{"before start", 0.5},
		{"at start", 1},
		{"at end", 10},
		{"after end", 12},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEditor()
			added := e.AddClip("video-1", videoClip(1, 9))
			if e.SplitClip(added.Base().ID, tc.at) {
				t.Errorf("SplitClip(%v) succeeded outside (1,10)", tc.at)
			}
			if n := e.State().ClipCount(); n != 1 {
				t.Errorf("clip count = %d, want 1", n)
			}
		})
	}
}

func TestDeleteClip_UnknownIsNoOp(t *testing.T) {
	e := NewEditor()
	e.AddClip("video-1", videoClip(0, 5))
	before := e.State()

	if e.DeleteClip("no-such-clip") {
		t.Error("DeleteClip reported success for unknown clip")
	}
	after := e.State()
	if after.ClipCount() != before.ClipCount() || after.Duration != before.Duration {
		t.Error("state changed by deleting an unknown clip")
	}
}

func TestUpdateClip_CrossTrackMovePreservesTotalCount(t *testing.T) {
	e := NewEditor()
	second := e.AddTrack(model.TrackTypeVideo)
	added := e.AddClip("video-1", videoClip(0, 5))

	dest := second.ID
	if !e.UpdateClip(added.Base().ID, model.ClipUpdate{TrackID: &dest}) {
		t.Fatal("cross-track move failed")
	}

	state := e.State()
	if n := len(state.TrackByID("video-1").Clips); n != 0 {
		t.Errorf("origin track still holds %d clips", n)
	}
	if n := len(state.TrackByID(dest).Clips); n != 1 {
		t.Errorf("destination track holds %d clips, want 1", n)
	}
	if state.ClipCount() != 1 {
		t.Errorf("total clip count = %d, want 1", state.ClipCount())
	}
	moved, _ := state.FindClip(added.Base().ID)
	if moved.Base().TrackID != dest {
		t.Errorf("moved clip trackId = %q, want %q", moved.Base().TrackID, dest)
	}
	if moved.Kind() != model.ClipKindVideo {
		t.Errorf("moved clip kind = %q, want video", moved.Kind())
	}
}

func TestUpdateClip_DragClampedToRightEdge(t *testing.T) {
	e := NewEditor()
	e.AddClip("video-1", videoClip(0, 10))
	short := e.AddClip("video-1", videoClip(0, 4))

	// Timeline duration is 10; dragging the 4s clip to start=9 must clamp so
	// it still ends inside the timeline as it stood before the move.
	start := 9.0
	if !e.UpdateClip(short.Base().ID, model.ClipUpdate{StartTime: &start}) {
		t.Fatal("UpdateClip failed")
	}
	got, _ := e.State().FindClip(short.Base().ID)
	if got.Base().StartTime != 6 {
		t.Errorf("clamped start = %v, want 6", got.Base().StartTime)
	}
	if got.Base().End() != 10 {
		t.Errorf("clamped end = %v, want 10", got.Base().End())
	}
}

func TestUpdateClip_TextFieldsMergeInPlace(t *testing.T) {
	e := NewEditor()
	added := e.AddClip("text-1", textClip(0, 3, "hello"))

	text := "goodbye"
	size := 48.0
	if !e.UpdateClip(added.Base().ID, model.ClipUpdate{Text: &text, FontSize: &size}) {
		t.Fatal("UpdateClip failed")
	}
	got, _ := e.State().FindClip(added.Base().ID)
	tc := got.(*model.TextClip)
	if tc.Text != "goodbye" || tc.FontSize != 48 {
		t.Errorf("merged text clip = %q/%v", tc.Text, tc.FontSize)
	}
	if tc.Color != "#ffffff" {
		t.Errorf("untouched field changed: color = %q", tc.Color)
	}
}

func TestSnapToStart_Idempotent(t *testing.T) {
	e := NewEditor()
	e.AddClip("video-1", videoClip(3, 2))
	e.AddClip("video-1", videoClip(7, 4))

	if !e.SnapToStart("video-1") {
		t.Fatal("first SnapToStart failed")
	}
	once := e.State()
	clips := once.TrackByID("video-1").Clips
	if clips[0].Base().StartTime != 0 || clips[1].Base().StartTime != 4 {
		t.Fatalf("snapped starts = %v, %v; want 0, 4",
			clips[0].Base().StartTime, clips[1].Base().StartTime)
	}

	// Second application changes nothing and pushes no edit.
	if e.SnapToStart("video-1") {
		t.Error("SnapToStart reported a change on an already-snapped track")
	}
	twice := e.State()
	for i, c := range twice.TrackByID("video-1").Clips {
		if c.Base().StartTime != clips[i].Base().StartTime {
			t.Errorf("clip %d moved on second snap", i)
		}
	}
}

func TestCopyPasteClip(t *testing.T) {
	e := NewEditor()
	added := e.AddClip("audio-1", audioClip(0, 5, 0.5))
	e.Seek(3)

	if !e.CopyClip(added.Base().ID) {
		t.Fatal("CopyClip failed")
	}

	// No target: paste lands on the first track matching the clip kind.
	pasted := e.PasteClip("")
	if pasted == nil {
		t.Fatal("PasteClip returned nil")
	}
	if pasted.Base().ID == added.Base().ID {
		t.Error("pasted clip reused the source id")
	}
	if pasted.Base().TrackID != "audio-1" {
		t.Errorf("pasted onto %q, want audio-1", pasted.Base().TrackID)
	}
	if pasted.Base().StartTime != 3 {
		t.Errorf("pasted at %v, want playhead 3", pasted.Base().StartTime)
	}
	if pasted.(*model.AudioClip).Volume != 0.5 {
		t.Error("pasted clip lost its volume")
	}
}

func TestPasteClip_EmptyClipboardIsNoOp(t *testing.T) {
	e := NewEditor()
	if got := e.PasteClip(""); got != nil {
		t.Errorf("PasteClip with empty clipboard returned %+v", got)
	}
}

func TestDeleteTrack_SeedTracksProtected(t *testing.T) {
	e := NewEditor()
	for _, id := range []string{"video-1", "audio-1", "text-1"} {
		if e.DeleteTrack(id) {
			t.Errorf("seed track %q was deleted", id)
		}
	}

	extra := e.AddTrack(model.TrackTypeAudio)
	if !e.DeleteTrack(extra.ID) {
		t.Error("added track could not be deleted")
	}
	if got := e.State().TrackByID(extra.ID); got != nil {
		t.Error("deleted track still present")
	}
}

func TestActiveClips_HalfOpenWindows(t *testing.T) {
	e := NewEditor()
	video := e.AddClip("video-1", videoClip(0, 10))
	text := e.AddClip("text-1", textClip(5, 3, "title"))

	tests := []struct {
		name string
		t    float64
		want []string
	}{
		{"both active", 6, []string{video.Base().ID, text.Base().ID}},
		{"video only", 4, []string{video.Base().ID}},
		{"boundary excluded", 10, nil},
		{"text end excluded", 8, []string{video.Base().ID}},
	}
	state := e.State()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			active := state.ActiveClips(tc.t)
			if len(active) != len(tc.want) {
				t.Fatalf("ActiveClips(%v) returned %d clips, want %d", tc.t, len(active), len(tc.want))
			}
			for i, id := range tc.want {
				if active[i].Base().ID != id {
					t.Errorf("active[%d] = %q, want %q", i, active[i].Base().ID, id)
				}
			}
		})
	}
}

func TestSeek_ClampedToDuration(t *testing.T) {
	e := NewEditor()
	e.AddClip("video-1", videoClip(0, 10))

	e.Seek(25)
	if got := e.State().CurrentTime; got != 10 {
		t.Errorf("seek past end: currentTime = %v, want 10", got)
	}
	e.Seek(-5)
	if got := e.State().CurrentTime; got != 0 {
		t.Errorf("seek before start: currentTime = %v, want 0", got)
	}
}

func TestLockedTrack_AllMutationsRejected(t *testing.T) {
	e := NewEditor()
	clip := e.AddClip("video-1", videoClip(2, 5))
	e.SetTrackLocked("video-1", true)
	before := e.State()

	start := 0.0
	ops := []struct {
		name string
		run  func() bool
	}{
		{"update", func() bool { return e.UpdateClip(clip.Base().ID, model.ClipUpdate{StartTime: &start}) }},
		{"delete", func() bool { return e.DeleteClip(clip.Base().ID) }},
		{"split", func() bool { return e.SplitClip(clip.Base().ID, 4) }},
		{"snap", func() bool { return e.SnapToStart("video-1") }},
		{"add", func() bool { return e.AddClip("video-1", videoClip(0, 1)) != nil }},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			if op.run() {
				t.Errorf("%s succeeded on a locked track", op.name)
			}
		})
	}
	after := e.State()
	if after.ClipCount() != before.ClipCount() {
		t.Error("locked track clip count changed")
	}
	got, _ := after.FindClip(clip.Base().ID)
	if got.Base().StartTime != 2 {
		t.Error("locked clip moved")
	}
}
