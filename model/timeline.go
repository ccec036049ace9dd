package model

import "encoding/json"

// TrackType constrains (by convention) which clip kinds a track hosts.
type TrackType string

const (
	TrackTypeVideo TrackType = "video"
	TrackTypeAudio TrackType = "audio"
	TrackTypeText  TrackType = "text"
)

// Track is an ordered lane of clips of one media kind. Clips within a track
// are not required to be non-overlapping; where they overlap, later list
// order wins (drawn on top, mixed last).
type Track struct {
	ID       string    `json:"id"`
	Type     TrackType `json:"type"`
	Name     string    `json:"name"`
	Clips    []Clip    `json:"clips"`
	IsLocked bool      `json:"isLocked"`
	IsMuted  bool      `json:"isMuted"`
	Volume   float64   `json:"volume"` // audio tracks, 0..1
}

// Clone deep-copies the track and all its clips.
func (t *Track) Clone() *Track {
	cp := *t
	cp.Clips = make([]Clip, len(t.Clips))
	for i, c := range t.Clips {
		cp.Clips[i] = c.Clone()
	}
	return &cp
}

// MarshalJSON emits clips through the tagged envelope.
func (t *Track) MarshalJSON() ([]byte, error) {
	clips := make([]json.RawMessage, len(t.Clips))
	for i, c := range t.Clips {
		data, err := MarshalClip(c)
		if err != nil {
			return nil, err
		}
		clips[i] = data
	}
	type alias Track
	return json.Marshal(&struct {
		*alias
		Clips []json.RawMessage `json:"clips"`
	}{alias: (*alias)(t), Clips: clips})
}

// UnmarshalJSON dispatches each clip to its variant by tag.
func (t *Track) UnmarshalJSON(data []byte) error {
	type alias Track
	aux := &struct {
		*alias
		Clips []json.RawMessage `json:"clips"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	t.Clips = make([]Clip, 0, len(aux.Clips))
	for _, raw := range aux.Clips {
		c, err := UnmarshalClip(raw)
		if err != nil {
			return err
		}
		t.Clips = append(t.Clips, c)
	}
	return nil
}

// Timeline is the complete editable document: tracks plus the virtual
// playhead. Duration is derived from the clips but stored, and must be
// recomputed whenever clips change or playback/seek ranges silently truncate.
type Timeline struct {
	Tracks      []*Track `json:"tracks"`
	Duration    float64  `json:"duration"`
	CurrentTime float64  `json:"currentTime"`
	Zoom        float64  `json:"zoom"`
}

// NewTimeline returns an empty timeline with the three seed tracks the editor
// mounts with.
func NewTimeline() *Timeline {
	return &Timeline{
		Tracks: []*Track{
			{ID: "video-1", Type: TrackTypeVideo, Name: "Video 1", Clips: []Clip{}},
			{ID: "audio-1", Type: TrackTypeAudio, Name: "Audio 1", Clips: []Clip{}, Volume: 1},
			{ID: "text-1", Type: TrackTypeText, Name: "Text 1", Clips: []Clip{}},
		},
		Zoom: 1,
	}
}

// Clone deep-copies the whole timeline. Exports and history snapshots operate
// on clones so live edits never tear a running consumer.
func (tl *Timeline) Clone() *Timeline {
	cp := *tl
	cp.Tracks = make([]*Track, len(tl.Tracks))
	for i, tr := range tl.Tracks {
		cp.Tracks[i] = tr.Clone()
	}
	return &cp
}

// RecomputeDuration re-derives the stored duration as the max clip end across
// all tracks and clamps the playhead back into range.
func (tl *Timeline) RecomputeDuration() {
	max := 0.0
	for _, tr := range tl.Tracks {
		for _, c := range tr.Clips {
			if end := c.Base().End(); end > max {
				max = end
			}
		}
	}
	tl.Duration = max
	if tl.CurrentTime > tl.Duration {
		tl.CurrentTime = tl.Duration
	}
}

// TrackByID returns the track with the given id, or nil.
func (tl *Timeline) TrackByID(id string) *Track {
	for _, tr := range tl.Tracks {
		if tr.ID == id {
			return tr
		}
	}
	return nil
}

// FindClip returns the clip with the given id and its owning track, or nils.
func (tl *Timeline) FindClip(clipID string) (Clip, *Track) {
	for _, tr := range tl.Tracks {
		for _, c := range tr.Clips {
			if c.Base().ID == clipID {
				return c, tr
			}
		}
	}
	return nil, nil
}

// ActiveClips returns every clip whose active window contains t, in track
// order then list order. Callers needing a compositing order (video before
// text) filter and layer on top of this.
func (tl *Timeline) ActiveClips(t float64) []Clip {
	var active []Clip
	for _, tr := range tl.Tracks {
		for _, c := range tr.Clips {
			if c.Base().ActiveAt(t) {
				active = append(active, c)
			}
		}
	}
	return active
}

// ActiveClipsOfKind restricts ActiveClips to one variant.
func (tl *Timeline) ActiveClipsOfKind(t float64, kind ClipKind) []Clip {
	var active []Clip
	for _, c := range tl.ActiveClips(t) {
		if c.Kind() == kind {
			active = append(active, c)
		}
	}
	return active
}

// ClipCount returns the total number of clips across all tracks.
func (tl *Timeline) ClipCount() int {
	n := 0
	for _, tr := range tl.Tracks {
		n += len(tr.Clips)
	}
	return n
}
