package compose

import (
	"image"
	"image/color"
	"testing"

	"Mx1Studio/model"
)

// solidSource returns a fixed-color frame for every clip, and a different
// color thumbnail, so tests can tell which path rendered.
type solidSource struct {
	frame image.Image
	thumb image.Image
}

func (s *solidSource) FrameAt(_ *model.VideoClip, _ float64) image.Image { return s.frame }
func (s *solidSource) Thumbnail(_ *model.VideoClip) image.Image          { return s.thumb }

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func timelineWith(clips ...model.Clip) *model.Timeline {
	tl := model.NewTimeline()
	for _, c := range clips {
		track := tl.TrackByID(c.Base().TrackID)
		track.Clips = append(track.Clips, c)
	}
	tl.RecomputeDuration()
	return tl
}

func TestRender_VideoFrameLetterboxed(t *testing.T) {
	tl := timelineWith(&model.VideoClip{
		ClipBase: model.ClipBase{ID: "v", TrackID: "video-1", StartTime: 0, Duration: 10},
	})
	// 2:1 source into a square canvas: pillarbox top and bottom.
	src := &solidSource{frame: solid(200, 100, color.RGBA{255, 0, 0, 255})}
	c := NewCompositor(100, 100, nil)

	out := c.Render(tl, 5, src)

	if got := out.RGBAAt(50, 50); got.R != 255 {
		t.Errorf("canvas center = %v, want red frame pixel", got)
	}
	if got := out.RGBAAt(50, 10); got.R != 0 || got.G != 0 || got.B != 0 {
		t.Errorf("letterbox band = %v, want black", got)
	}
}

func TestRender_ThumbnailFallbackWhenNotReady(t *testing.T) {
	tl := timelineWith(&model.VideoClip{
		ClipBase: model.ClipBase{ID: "v", TrackID: "video-1", StartTime: 0, Duration: 10},
	})
	src := &solidSource{frame: nil, thumb: solid(100, 100, color.RGBA{0, 0, 200, 255})}
	c := NewCompositor(100, 100, nil)

	out := c.Render(tl, 5, src)

	got := out.RGBAAt(50, 50)
	if got.B == 0 {
		t.Fatal("thumbnail fallback not drawn")
	}
	// Thumbnail draws dimmed, never at full strength.
	if got.B > 150 {
		t.Errorf("thumbnail drawn at full opacity: %v", got)
	}
}

func TestRender_InactiveClipsSkipped(t *testing.T) {
	tl := timelineWith(&model.VideoClip{
		ClipBase: model.ClipBase{ID: "v", TrackID: "video-1", StartTime: 5, Duration: 5},
	})
	src := &solidSource{frame: solid(100, 100, color.RGBA{255, 0, 0, 255})}
	c := NewCompositor(100, 100, nil)

	out := c.Render(tl, 2, src) // before the clip's window

	if got := out.RGBAAt(50, 50); got.R != 0 {
		t.Errorf("inactive clip rendered: %v", got)
	}
}

func TestRender_TextDrawsOverVideo(t *testing.T) {
	tl := timelineWith(
		&model.VideoClip{ClipBase: model.ClipBase{ID: "v", TrackID: "video-1", StartTime: 0, Duration: 10}},
		&model.TextClip{
			ClipBase:        model.ClipBase{ID: "t", TrackID: "text-1", StartTime: 0, Duration: 10},
			Text:            "HELLO",
			Color:           "#00ff00",
			BackgroundColor: "#000000",
			Position:        model.Position{X: 50, Y: 50},
			Opacity:         1,
		},
	)
	src := &solidSource{frame: solid(100, 100, color.RGBA{255, 0, 0, 255})}
	c := NewCompositor(200, 200, nil)

	out := c.Render(tl, 1, src)

	// The background rectangle sits over the video at the text position.
	if got := out.RGBAAt(100, 100); got.R == 255 {
		t.Errorf("text background did not draw over video: %v", got)
	}
}

func TestApplyFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters model.FilterSettings
		check   func(t *testing.T, px color.RGBA)
	}{
		{
			name:    "neutral untouched",
			filters: model.DefaultFilters(),
			check: func(t *testing.T, px color.RGBA) {
				if px != (color.RGBA{200, 100, 50, 255}) {
					t.Errorf("neutral filters changed pixel: %v", px)
				}
			},
		},
		{
			name:    "grayscale equalizes channels",
			filters: model.FilterSettings{Brightness: 1, Contrast: 1, Saturation: 1, Grayscale: true},
			check: func(t *testing.T, px color.RGBA) {
				if px.R != px.G || px.G != px.B {
					t.Errorf("grayscale pixel has color: %v", px)
				}
			},
		},
		{
			name:    "brightness zero blacks out",
			filters: model.FilterSettings{Brightness: 0, Contrast: 1, Saturation: 1},
			check: func(t *testing.T, px color.RGBA) {
				if px.R != 0 || px.G != 0 || px.B != 0 {
					t.Errorf("zero brightness pixel = %v", px)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img := solid(4, 4, color.RGBA{200, 100, 50, 255})
			ApplyFilters(img, tc.filters)
			tc.check(t, img.RGBAAt(2, 2))
		})
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"#ff0000", color.RGBA{255, 0, 0, 255}, true},
		{"#fff", color.RGBA{255, 255, 255, 255}, true},
		{"#00000080", color.RGBA{0, 0, 0, 128}, true},
		{"ff8800", color.RGBA{255, 136, 0, 255}, true},
		{"", color.RGBA{}, false},
		{"#zzz", color.RGBA{}, false},
	}
	for _, tc := range tests {
		got, ok := ParseHexColor(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseHexColor(%q) = %v,%v; want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
