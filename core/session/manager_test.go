package session

import (
	"context"
	"encoding/json"
	"testing"

	"Mx1Studio/cache"
	"Mx1Studio/model"
)

// Tests here run without Redis; cache writes degrade to warnings.
func newTestManager() *Manager {
	return NewManager(nil, cache.NewSessionCache(), NewSessionHub())
}

func mustOpen(t *testing.T, m *Manager) *Session {
	t.Helper()
	sess, err := m.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return sess
}

func clipJSON(t *testing.T, c model.Clip) json.RawMessage {
	t.Helper()
	data, err := model.MarshalClip(c)
	if err != nil {
		t.Fatalf("MarshalClip failed: %v", err)
	}
	return data
}

// onlyClipID returns the id of the sole clip on the given track. The editor
// assigns fresh ids on insert, so callers never get to pick them.
func onlyClipID(t *testing.T, tl *model.Timeline, trackID string) string {
	t.Helper()
	track := tl.TrackByID(trackID)
	if track == nil || len(track.Clips) != 1 {
		t.Fatalf("track %s does not hold exactly one clip", trackID)
	}
	return track.Clips[0].Base().ID
}

func TestOpen_BlankProjectStartsWithDefaultTracks(t *testing.T) {
	m := newTestManager()
	sess := mustOpen(t, m)

	state := sess.EditState()
	if len(state.Timeline.Tracks) != 3 {
		t.Fatalf("got %d tracks, want 3 default tracks", len(state.Timeline.Tracks))
	}
	if state.Filters != model.DefaultFilters() {
		t.Errorf("filters = %+v, want neutral defaults", state.Filters)
	}
	if m.Get(sess.ID) != sess {
		t.Error("opened session not retrievable via Get")
	}
}

func TestApplyEdit_AddUpdateDeleteClip(t *testing.T) {
	m := newTestManager()
	sess := mustOpen(t, m)
	ctx := context.Background()

	clip := &model.VideoClip{
		ClipBase: model.ClipBase{StartTime: 0, Duration: 5},
		Volume:   1,
	}
	res, err := m.ApplyEdit(ctx, sess.ID, &EditRequest{
		Op:      "addClip",
		TrackID: "video-1",
		Clip:    clipJSON(t, clip),
	})
	if err != nil {
		t.Fatalf("addClip failed: %v", err)
	}
	if !res.Applied {
		t.Fatal("addClip not applied")
	}
	if res.Timeline.ClipCount() != 1 {
		t.Fatalf("clip count = %d, want 1", res.Timeline.ClipCount())
	}
	clipID := onlyClipID(t, res.Timeline, "video-1")

	start := 3.0
	res, err = m.ApplyEdit(ctx, sess.ID, &EditRequest{
		Op:     "updateClip",
		ClipID: clipID,
		Update: &model.ClipUpdate{StartTime: &start},
	})
	if err != nil || !res.Applied {
		t.Fatalf("updateClip failed: applied=%v err=%v", res != nil && res.Applied, err)
	}
	got, _ := res.Timeline.FindClip(clipID)
	if got == nil || got.Base().StartTime != 3 {
		t.Fatal("updateClip did not move the clip")
	}

	res, err = m.ApplyEdit(ctx, sess.ID, &EditRequest{Op: "deleteClip", ClipID: clipID})
	if err != nil || !res.Applied {
		t.Fatalf("deleteClip failed: err=%v", err)
	}
	if res.Timeline.ClipCount() != 0 {
		t.Errorf("clip count = %d after delete, want 0", res.Timeline.ClipCount())
	}
}

func TestApplyEdit_UndoRedoThroughSession(t *testing.T) {
	m := newTestManager()
	sess := mustOpen(t, m)
	ctx := context.Background()

	clip := &model.AudioClip{
		ClipBase: model.ClipBase{StartTime: 0, Duration: 2},
		Volume:   1,
	}
	if _, err := m.ApplyEdit(ctx, sess.ID, &EditRequest{
		Op: "addClip", TrackID: "audio-1", Clip: clipJSON(t, clip),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := m.ApplyEdit(ctx, sess.ID, &EditRequest{Op: "undo"})
	if err != nil || !res.Applied {
		t.Fatalf("undo failed: err=%v", err)
	}
	if res.Timeline.ClipCount() != 0 {
		t.Error("undo did not remove the added clip")
	}

	res, err = m.ApplyEdit(ctx, sess.ID, &EditRequest{Op: "redo"})
	if err != nil || !res.Applied {
		t.Fatalf("redo failed: err=%v", err)
	}
	if res.Timeline.ClipCount() != 1 {
		t.Error("redo did not restore the clip")
	}
}

func TestApplyEdit_Errors(t *testing.T) {
	m := newTestManager()
	sess := mustOpen(t, m)
	ctx := context.Background()

	if _, err := m.ApplyEdit(ctx, "no-such-session", &EditRequest{Op: "undo"}); err == nil {
		t.Error("edit on unknown session succeeded")
	}
	if _, err := m.ApplyEdit(ctx, sess.ID, &EditRequest{Op: "teleport"}); err == nil {
		t.Error("unknown op succeeded")
	}
	if _, err := m.ApplyEdit(ctx, sess.ID, &EditRequest{Op: "addClip", TrackID: "video-1", Clip: json.RawMessage(`{"type":"bogus"}`)}); err == nil {
		t.Error("addClip with bad payload succeeded")
	}
	if _, err := m.ApplyEdit(ctx, sess.ID, &EditRequest{Op: "updateClip", ClipID: "x"}); err == nil {
		t.Error("updateClip without payload succeeded")
	}
}

func TestApplyEdit_LockedTrackRejectsClipEdits(t *testing.T) {
	m := newTestManager()
	sess := mustOpen(t, m)
	ctx := context.Background()

	clip := &model.VideoClip{
		ClipBase: model.ClipBase{StartTime: 0, Duration: 4},
		Volume:   1,
	}
	added, err := m.ApplyEdit(ctx, sess.ID, &EditRequest{
		Op: "addClip", TrackID: "video-1", Clip: clipJSON(t, clip),
	})
	if err != nil {
		t.Fatal(err)
	}
	clipID := onlyClipID(t, added.Timeline, "video-1")
	if _, err := m.ApplyEdit(ctx, sess.ID, &EditRequest{Op: "lockTrack", TrackID: "video-1", Flag: true}); err != nil {
		t.Fatal(err)
	}

	res, err := m.ApplyEdit(ctx, sess.ID, &EditRequest{Op: "deleteClip", ClipID: clipID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied {
		t.Error("deleteClip applied on a locked track")
	}
	if res.Timeline.ClipCount() != 1 {
		t.Error("clip removed from a locked track")
	}
}

func TestClose_RemovesSession(t *testing.T) {
	m := newTestManager()
	sess := mustOpen(t, m)

	m.Close(context.Background(), sess.ID)
	if m.Get(sess.ID) != nil {
		t.Error("session still retrievable after Close")
	}
}
