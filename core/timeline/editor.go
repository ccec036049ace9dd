package timeline

import (
	"fmt"
	"sync"

	"Mx1Studio/logger"
	"Mx1Studio/model"

	"github.com/google/uuid"
)

// Editor owns a timeline document and is the only writer to it. Every
// mutating operation snapshots the prior state onto the history stack first,
// so Undo/Redo restore whole states.
//
// Locked tracks reject every mutating clip operation uniformly: add, update,
// delete, split, paste and snap are all no-ops against a locked track.
type Editor struct {
	mu        sync.RWMutex
	state     *model.Timeline
	history   *History
	clipboard model.Clip
}

// Seed track ids created at editor mount. These tracks cannot be deleted.
var seedTracks = map[string]bool{
	"video-1": true,
	"audio-1": true,
	"text-1":  true,
}

// NewEditor creates an editor seeded with the default video/audio/text tracks.
func NewEditor() *Editor {
	return &Editor{
		state:   model.NewTimeline(),
		history: NewHistory(DefaultHistoryLimit),
	}
}

// NewEditorFromState creates an editor over an existing timeline, e.g. a
// loaded project. The timeline is cloned so the caller's copy stays frozen.
func NewEditorFromState(tl *model.Timeline) *Editor {
	return &Editor{
		state:   tl.Clone(),
		history: NewHistory(DefaultHistoryLimit),
	}
}

// State returns a deep copy of the current timeline. Consumers (playback,
// compositor, export) read clones so edits never tear under them.
func (e *Editor) State() *model.Timeline {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// push snapshots the current state before a mutation. Callers hold e.mu.
func (e *Editor) push() {
	e.history.Push(e.state.Clone())
}

// AddTrack appends a track of the given type with a fresh id and default
// name. Audio tracks default to volume 1, unmuted.
func (e *Editor) AddTrack(trackType model.TrackType) *model.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.push()

	n := 1
	for _, tr := range e.state.Tracks {
		if tr.Type == trackType {
			n++
		}
	}
	track := &model.Track{
		ID:    fmt.Sprintf("%s-%s", trackType, uuid.NewString()[:8]),
		Type:  trackType,
		Name:  fmt.Sprintf("%s %d", trackTitle(trackType), n),
		Clips: []model.Clip{},
	}
	if trackType == model.TrackTypeAudio {
		track.Volume = 1
	}
	e.state.Tracks = append(e.state.Tracks, track)
	logger.Debug("track added", logger.String("trackId", track.ID), logger.String("type", string(trackType)))
	return track
}

func trackTitle(t model.TrackType) string {
	switch t {
	case model.TrackTypeVideo:
		return "Video"
	case model.TrackTypeAudio:
		return "Audio"
	case model.TrackTypeText:
		return "Text"
	}
	return "Track"
}

// AddClip appends a clip to the named track, assigning a fresh id. No-op when
// the track is missing or locked. The clip's TrackID is rewritten to match.
func (e *Editor) AddClip(trackID string, clip model.Clip) model.Clip {
	e.mu.Lock()
	defer e.mu.Unlock()

	track := e.state.TrackByID(trackID)
	if track == nil || track.IsLocked {
		return nil
	}
	base := clip.Base()
	if base.Duration <= 0 || base.StartTime < 0 {
		return nil
	}

	e.push()
	added := clip.Clone()
	added.Base().ID = uuid.NewString()
	added.Base().TrackID = trackID
	track.Clips = append(track.Clips, added)
	e.state.RecomputeDuration()
	return added
}

// UpdateClip merges a partial update into the clip. A differing TrackID moves
// the clip atomically from its origin track to the destination, preserving
// the clip's own kind. No-op when the clip is missing or either track
// involved is locked.
func (e *Editor) UpdateClip(clipID string, update model.ClipUpdate) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	clip, origin := e.state.FindClip(clipID)
	if clip == nil || origin.IsLocked {
		return false
	}

	var dest *model.Track
	if update.TrackID != nil && *update.TrackID != origin.ID {
		dest = e.state.TrackByID(*update.TrackID)
		if dest == nil || dest.IsLocked {
			return false
		}
	}

	// Dragging a clip is clamped against the timeline duration as it stands
	// before the move: startTime + duration may not pass the right edge.
	if update.StartTime != nil {
		dur := clip.Base().Duration
		if update.Duration != nil && *update.Duration > 0 {
			dur = *update.Duration
		}
		maxStart := e.state.Duration - dur
		if maxStart < 0 {
			maxStart = 0
		}
		clamped := *update.StartTime
		if clamped > maxStart {
			clamped = maxStart
		}
		if clamped < 0 {
			clamped = 0
		}
		update.StartTime = &clamped
	}

	e.push()
	update.Apply(clip)
	if dest != nil {
		removeClip(origin, clipID)
		clip.Base().TrackID = dest.ID
		dest.Clips = append(dest.Clips, clip)
	}
	e.state.RecomputeDuration()
	return true
}

// DeleteClip removes the clip from whichever track holds it. Deleting an
// unknown clip is a no-op with no history push.
func (e *Editor) DeleteClip(clipID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	clip, track := e.state.FindClip(clipID)
	if clip == nil || track.IsLocked {
		return false
	}

	e.push()
	removeClip(track, clipID)
	e.state.RecomputeDuration()
	return true
}

// SplitClip replaces the clip with two clips partitioning its window at
// atTime. The halves keep the original id with -1/-2 suffixes and inherit all
// other fields. No-op unless atTime falls strictly inside the clip.
func (e *Editor) SplitClip(clipID string, atTime float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	clip, track := e.state.FindClip(clipID)
	if clip == nil || track.IsLocked {
		return false
	}
	base := clip.Base()
	if atTime <= base.StartTime || atTime >= base.End() {
		return false
	}

	e.push()
	first := clip.Clone()
	second := clip.Clone()
	first.Base().ID = base.ID + "-1"
	first.Base().Duration = atTime - base.StartTime
	second.Base().ID = base.ID + "-2"
	second.Base().StartTime = atTime
	second.Base().Duration = base.End() - atTime

	for i, c := range track.Clips {
		if c.Base().ID == clipID {
			replaced := append([]model.Clip{}, track.Clips[:i]...)
			replaced = append(replaced, first, second)
			track.Clips = append(replaced, track.Clips[i+1:]...)
			break
		}
	}
	return true
}

// CopyClip snapshots the clip onto the clipboard. The clipboard survives
// undo/redo untouched.
func (e *Editor) CopyClip(clipID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	clip, _ := e.state.FindClip(clipID)
	if clip == nil {
		return false
	}
	e.clipboard = clip.Clone()
	return true
}

// PasteClip creates a new clip from the clipboard at the playhead on the
// target track, or on the first track matching the clipboard clip's kind when
// no target is given. Returns the pasted clip or nil.
func (e *Editor) PasteClip(targetTrackID string) model.Clip {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.clipboard == nil {
		return nil
	}

	var track *model.Track
	if targetTrackID != "" {
		track = e.state.TrackByID(targetTrackID)
	} else {
		for _, tr := range e.state.Tracks {
			if string(tr.Type) == string(e.clipboard.Kind()) {
				track = tr
				break
			}
		}
	}
	if track == nil || track.IsLocked {
		return nil
	}

	e.push()
	pasted := e.clipboard.Clone()
	pasted.Base().ID = uuid.NewString()
	pasted.Base().TrackID = track.ID
	pasted.Base().StartTime = e.state.CurrentTime
	track.Clips = append(track.Clips, pasted)
	e.state.RecomputeDuration()
	return pasted
}

// SnapToStart shifts every clip on the track by a constant offset so the
// earliest clip starts at 0. Idempotent; never produces negative starts.
func (e *Editor) SnapToStart(trackID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	track := e.state.TrackByID(trackID)
	if track == nil || track.IsLocked || len(track.Clips) == 0 {
		return false
	}

	earliest := track.Clips[0].Base().StartTime
	for _, c := range track.Clips {
		if c.Base().StartTime < earliest {
			earliest = c.Base().StartTime
		}
	}
	if earliest == 0 {
		return false
	}

	e.push()
	for _, c := range track.Clips {
		c.Base().StartTime -= earliest
	}
	e.state.RecomputeDuration()
	return true
}

// DeleteTrack removes the track and all its clips. The three seed tracks are
// protected and cannot be removed.
func (e *Editor) DeleteTrack(trackID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seedTracks[trackID] {
		return false
	}
	for i, tr := range e.state.Tracks {
		if tr.ID == trackID {
			e.push()
			e.state.Tracks = append(e.state.Tracks[:i], e.state.Tracks[i+1:]...)
			e.state.RecomputeDuration()
			return true
		}
	}
	return false
}

// SetTrackMuted toggles a track's mute flag.
func (e *Editor) SetTrackMuted(trackID string, muted bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	track := e.state.TrackByID(trackID)
	if track == nil {
		return false
	}
	e.push()
	track.IsMuted = muted
	return true
}

// SetTrackLocked toggles a track's lock flag. Locking itself is always
// allowed; it is clip mutations against a locked track that are rejected.
func (e *Editor) SetTrackLocked(trackID string, locked bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	track := e.state.TrackByID(trackID)
	if track == nil {
		return false
	}
	e.push()
	track.IsLocked = locked
	return true
}

// SetTrackVolume sets an audio track's volume, clamped to [0,1].
func (e *Editor) SetTrackVolume(trackID string, volume float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	track := e.state.TrackByID(trackID)
	if track == nil || track.Type != model.TrackTypeAudio {
		return false
	}
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	e.push()
	track.Volume = volume
	return true
}

// Seek moves the playhead, clamped to [0, duration]. Seeks are not edits and
// do not push history.
func (e *Editor) Seek(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t < 0 {
		t = 0
	} else if t > e.state.Duration {
		t = e.state.Duration
	}
	e.state.CurrentTime = t
}

// SetZoom adjusts the view zoom. Not an edit; no history push.
func (e *Editor) SetZoom(zoom float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if zoom <= 0 {
		return
	}
	e.state.Zoom = zoom
}

// Undo restores the previous snapshot, moving the current state to the redo
// stack. No-op at the stack boundary.
func (e *Editor) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.history.Undo(e.state)
	if prev == nil {
		return false
	}
	e.state = prev
	return true
}

// Redo reapplies an undone snapshot. No-op at the stack boundary.
func (e *Editor) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.history.Redo(e.state)
	if next == nil {
		return false
	}
	e.state = next
	return true
}

func removeClip(track *model.Track, clipID string) {
	for i, c := range track.Clips {
		if c.Base().ID == clipID {
			track.Clips = append(track.Clips[:i], track.Clips[i+1:]...)
			return
		}
	}
}
