package model

import (
	"strings"
	"testing"
	"time"
)

func validProjectFile() *ProjectFile {
	return &ProjectFile{
		Version:   ProjectFileVersion,
		VideoURL:  "/media/assets/source.mp4",
		EditState: &EditState{Timeline: NewTimeline(), Filters: DefaultFilters()},
		Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Metadata:  ProjectMetadata{Duration: 42.5, Resolution: "1920x1080"},
	}
}

func TestParseProjectFile_RoundTrip(t *testing.T) {
	orig := validProjectFile()
	orig.EditState.TrimStart = 1.5
	orig.EditState.TrimEnd = 30
	orig.EditState.Filters.Grayscale = true

	data, err := orig.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	pf, err := ParseProjectFile(data)
	if err != nil {
		t.Fatalf("ParseProjectFile failed: %v", err)
	}
	if pf.Version != ProjectFileVersion {
		t.Errorf("version = %q, want %q", pf.Version, ProjectFileVersion)
	}
	if pf.EditState.TrimStart != 1.5 || pf.EditState.TrimEnd != 30 {
		t.Errorf("trim = [%v, %v], want [1.5, 30]", pf.EditState.TrimStart, pf.EditState.TrimEnd)
	}
	if !pf.EditState.Filters.Grayscale {
		t.Error("grayscale filter lost in round trip")
	}
	if pf.Metadata.Resolution != "1920x1080" {
		t.Errorf("resolution = %q, want 1920x1080", pf.Metadata.Resolution)
	}
}

func TestParseProjectFile_AbsentFiltersDefaultToNeutral(t *testing.T) {
	data := `{"version": "1.0", "editState": {"timeline": {"tracks": [], "duration": 0}}}`

	pf, err := ParseProjectFile([]byte(data))
	if err != nil {
		t.Fatalf("ParseProjectFile failed: %v", err)
	}
	if pf.EditState.Filters != DefaultFilters() {
		t.Errorf("filters = %+v, want neutral defaults for a document without filters", pf.EditState.Filters)
	}
}

func TestParseProjectFile_RejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed json", `{"version": "1.0", `},
		{"missing version", `{"editState": {"timeline": {"tracks": [], "duration": 0}}}`},
		{"missing editState", `{"version": "1.0", "videoUrl": "/media/a.mp4"}`},
		{"editState without timeline", `{"version": "1.0", "editState": {"filters": {}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf, err := ParseProjectFile([]byte(tt.data))
			if err == nil {
				t.Fatal("ParseProjectFile accepted an invalid document")
			}
			if pf != nil {
				t.Error("ParseProjectFile returned a partial document alongside the error")
			}
			if !strings.Contains(err.Error(), "not a valid project file") {
				t.Errorf("error = %q, want it to identify an invalid project file", err)
			}
		})
	}
}

func TestClipEnvelope_RoundTripPreservesVariant(t *testing.T) {
	clips := []Clip{
		&VideoClip{
			ClipBase:     ClipBase{ID: "c1", TrackID: "video-1", StartTime: 0, Duration: 5},
			MediaFileID:  "asset-1",
			Volume:       0.8,
			TransitionIn: "fade",
		},
		&AudioClip{
			ClipBase:    ClipBase{ID: "c2", TrackID: "audio-1", StartTime: 2, Duration: 3},
			MediaFileID: "asset-2",
			Volume:      1,
		},
		&TextClip{
			ClipBase: ClipBase{ID: "c3", TrackID: "text-1", StartTime: 1, Duration: 4},
			Text:     "字幕",
			FontSize: 32,
			Color:    "#ffffff",
			Position: Position{X: 50, Y: 80},
			Opacity:  1,
		},
	}

	for _, c := range clips {
		data, err := MarshalClip(c)
		if err != nil {
			t.Fatalf("MarshalClip(%s) failed: %v", c.Kind(), err)
		}
		got, err := UnmarshalClip(data)
		if err != nil {
			t.Fatalf("UnmarshalClip(%s) failed: %v", c.Kind(), err)
		}
		if got.Kind() != c.Kind() {
			t.Errorf("round trip changed kind: %s -> %s", c.Kind(), got.Kind())
		}
		if got.Base().ID != c.Base().ID {
			t.Errorf("round trip changed clip id: %s -> %s", c.Base().ID, got.Base().ID)
		}
	}
}

func TestUnmarshalClip_UnknownTag(t *testing.T) {
	if _, err := UnmarshalClip([]byte(`{"type": "hologram", "id": "x"}`)); err == nil {
		t.Fatal("UnmarshalClip accepted an unknown clip type")
	}
}

func TestClipUpdate_AppliesOnlySetFields(t *testing.T) {
	c := &TextClip{
		ClipBase: ClipBase{ID: "c1", TrackID: "text-1", StartTime: 2, Duration: 4},
		Text:     "before",
		FontSize: 24,
		Color:    "#000000",
		Opacity:  1,
	}

	text := "after"
	start := 5.0
	u := &ClipUpdate{Text: &text, StartTime: &start}
	u.Apply(c)

	if c.Text != "after" {
		t.Errorf("text = %q, want %q", c.Text, "after")
	}
	if c.StartTime != 5 {
		t.Errorf("startTime = %v, want 5", c.StartTime)
	}
	if c.FontSize != 24 || c.Color != "#000000" || c.Duration != 4 {
		t.Error("unset fields were modified by a partial update")
	}
}

func TestClipUpdate_RejectsNonPositiveDuration(t *testing.T) {
	c := &VideoClip{ClipBase: ClipBase{ID: "c1", StartTime: 0, Duration: 6}}
	zero := 0.0
	(&ClipUpdate{Duration: &zero}).Apply(c)
	if c.Duration != 6 {
		t.Errorf("duration = %v after zero-duration update, want 6 unchanged", c.Duration)
	}
}

func TestClipBase_ActiveWindowIsHalfOpen(t *testing.T) {
	b := &ClipBase{StartTime: 2, Duration: 3}
	if !b.ActiveAt(2) {
		t.Error("clip inactive at its own start instant")
	}
	if b.ActiveAt(5) {
		t.Error("clip active at its exclusive end instant")
	}
	if b.End() != 5 {
		t.Errorf("End() = %v, want 5", b.End())
	}
}
