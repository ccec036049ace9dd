package model

import (
	"encoding/json"
	"fmt"
)

// ClipKind identifies which media variant a clip carries.
type ClipKind string

const (
	ClipKindVideo ClipKind = "video"
	ClipKindAudio ClipKind = "audio"
	ClipKindText  ClipKind = "text"
)

// ClipBase carries the temporal placement shared by every clip variant.
// A clip is active over the half-open window [StartTime, StartTime+Duration),
// so two adjacent clips may share a boundary instant without both counting.
type ClipBase struct {
	ID        string  `json:"id"`
	TrackID   string  `json:"trackId"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
}

// End returns the exclusive end of the clip's active window.
func (b *ClipBase) End() float64 {
	return b.StartTime + b.Duration
}

// ActiveAt reports whether t falls inside the clip's active window.
func (b *ClipBase) ActiveAt(t float64) bool {
	return t >= b.StartTime && t < b.StartTime+b.Duration
}

// Clip is the tagged union over the three clip variants.
type Clip interface {
	Kind() ClipKind
	Base() *ClipBase
	Clone() Clip
}

// Position locates a text clip on the canvas as percentages of its dimensions.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// VideoClip places a video media file on a track.
type VideoClip struct {
	ClipBase
	MediaFileID   string  `json:"mediaFileId,omitempty"`
	ThumbnailURL  string  `json:"thumbnailUrl,omitempty"`
	Volume        float64 `json:"volume"`
	TransitionIn  string  `json:"transitionIn,omitempty"`
	TransitionOut string  `json:"transitionOut,omitempty"`
}

func (c *VideoClip) Kind() ClipKind  { return ClipKindVideo }
func (c *VideoClip) Base() *ClipBase { return &c.ClipBase }

func (c *VideoClip) Clone() Clip {
	cp := *c
	return &cp
}

// AudioClip places an audio media file on a track.
type AudioClip struct {
	ClipBase
	MediaFileID string  `json:"mediaFileId,omitempty"`
	Volume      float64 `json:"volume"`
}

func (c *AudioClip) Kind() ClipKind  { return ClipKindAudio }
func (c *AudioClip) Base() *ClipBase { return &c.ClipBase }

func (c *AudioClip) Clone() Clip {
	cp := *c
	return &cp
}

// TextClip places styled text on a track.
type TextClip struct {
	ClipBase
	Text            string   `json:"text"`
	FontSize        float64  `json:"fontSize"`
	FontFamily      string   `json:"fontFamily,omitempty"`
	Color           string   `json:"color"`
	BackgroundColor string   `json:"backgroundColor,omitempty"`
	Position        Position `json:"position"`
	Opacity         float64  `json:"opacity"`
	TextAlign       string   `json:"textAlign,omitempty"`
}

func (c *TextClip) Kind() ClipKind  { return ClipKindText }
func (c *TextClip) Base() *ClipBase { return &c.ClipBase }

func (c *TextClip) Clone() Clip {
	cp := *c
	return &cp
}

// clipEnvelope wraps a serialized clip with its variant tag so project files
// can round-trip through JSON.
type clipEnvelope struct {
	Type ClipKind `json:"type"`
}

// MarshalClip serializes a clip with its variant tag injected.
func MarshalClip(c Clip) ([]byte, error) {
	var body []byte
	var err error
	switch v := c.(type) {
	case *VideoClip:
		body, err = json.Marshal(*v)
	case *AudioClip:
		body, err = json.Marshal(*v)
	case *TextClip:
		body, err = json.Marshal(*v)
	default:
		return nil, fmt.Errorf("unknown clip variant %T", c)
	}
	if err != nil {
		return nil, err
	}

	// Splice the tag into the object.
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(c.Kind())
	m["type"] = tag
	return json.Marshal(m)
}

// UnmarshalClip deserializes a tagged clip back into its variant.
func UnmarshalClip(data []byte) (Clip, error) {
	var env clipEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to read clip envelope: %w", err)
	}

	switch env.Type {
	case ClipKindVideo:
		c := &VideoClip{}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, err
		}
		return c, nil
	case ClipKindAudio:
		c := &AudioClip{}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, err
		}
		return c, nil
	case ClipKindText:
		c := &TextClip{}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown clip type %q", env.Type)
	}
}

// ClipUpdate is a partial update merged into an existing clip. Nil fields are
// left untouched. Fields that do not apply to the target variant are ignored.
// A non-nil TrackID that differs from the clip's current track requests a
// cross-track move.
type ClipUpdate struct {
	TrackID         *string   `json:"trackId,omitempty"`
	StartTime       *float64  `json:"startTime,omitempty"`
	Duration        *float64  `json:"duration,omitempty"`
	MediaFileID     *string   `json:"mediaFileId,omitempty"`
	ThumbnailURL    *string   `json:"thumbnailUrl,omitempty"`
	Volume          *float64  `json:"volume,omitempty"`
	Text            *string   `json:"text,omitempty"`
	FontSize        *float64  `json:"fontSize,omitempty"`
	FontFamily      *string   `json:"fontFamily,omitempty"`
	Color           *string   `json:"color,omitempty"`
	BackgroundColor *string   `json:"backgroundColor,omitempty"`
	Position        *Position `json:"position,omitempty"`
	Opacity         *float64  `json:"opacity,omitempty"`
	TextAlign       *string   `json:"textAlign,omitempty"`
}

// Apply merges the update into the clip in place. The TrackID field is NOT
// applied here; cross-track moves are an editor concern.
func (u *ClipUpdate) Apply(c Clip) {
	base := c.Base()
	if u.StartTime != nil {
		base.StartTime = *u.StartTime
	}
	if u.Duration != nil && *u.Duration > 0 {
		base.Duration = *u.Duration
	}

	switch v := c.(type) {
	case *VideoClip:
		if u.MediaFileID != nil {
			v.MediaFileID = *u.MediaFileID
		}
		if u.ThumbnailURL != nil {
			v.ThumbnailURL = *u.ThumbnailURL
		}
		if u.Volume != nil {
			v.Volume = *u.Volume
		}
	case *AudioClip:
		if u.MediaFileID != nil {
			v.MediaFileID = *u.MediaFileID
		}
		if u.Volume != nil {
			v.Volume = *u.Volume
		}
	case *TextClip:
		if u.Text != nil {
			v.Text = *u.Text
		}
		if u.FontSize != nil {
			v.FontSize = *u.FontSize
		}
		if u.FontFamily != nil {
			v.FontFamily = *u.FontFamily
		}
		if u.Color != nil {
			v.Color = *u.Color
		}
		if u.BackgroundColor != nil {
			v.BackgroundColor = *u.BackgroundColor
		}
		if u.Position != nil {
			v.Position = *u.Position
		}
		if u.Opacity != nil {
			v.Opacity = *u.Opacity
		}
		if u.TextAlign != nil {
			v.TextAlign = *u.TextAlign
		}
	}
}
