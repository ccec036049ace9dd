package compose

import (
	"image"
	"image/color"

	"Mx1Studio/model"

	xdraw "golang.org/x/image/draw"
)

// thumbnailOpacity dims the fallback thumbnail drawn while a video frame is
// not yet decodable.
const thumbnailOpacity = 0.5

// FrameSource supplies decoded pixels for video clips. Preview feeds
// thumbnails; export feeds frames pulled from the source stream. A nil
// return means "not ready yet" and is never an error.
type FrameSource interface {
	FrameAt(clip *model.VideoClip, localTime float64) image.Image
	Thumbnail(clip *model.VideoClip) image.Image
}

// Compositor renders one instant of a timeline onto an RGBA canvas. It is
// stateless per frame: video clips draw first (scale-to-fit, centered),
// text clips draw on top. Within a layer, later list order wins.
type Compositor struct {
	width  int
	height int
	text   *TextRenderer
}

// NewCompositor creates a compositor for the given canvas dimensions.
func NewCompositor(width, height int, text *TextRenderer) *Compositor {
	if text == nil {
		text = NewTextRenderer()
	}
	return &Compositor{width: width, height: height, text: text}
}

// Render composites every active video and text clip at time t onto a fresh
// canvas. Audio clips are ignored here; they exist only for the mixer.
func (c *Compositor) Render(tl *model.Timeline, t float64, src FrameSource) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	fill(canvas, color.RGBA{A: 255})
	c.RenderOver(canvas, tl, t, src)
	return canvas
}

// RenderOver composites the active clips over an existing canvas. Export
// uses this to layer timeline clips on top of the decoded source frame.
func (c *Compositor) RenderOver(canvas *image.RGBA, tl *model.Timeline, t float64, src FrameSource) {
	// Video layer, then text layer: compositing order, not track order.
	for _, clip := range tl.ActiveClipsOfKind(t, model.ClipKindVideo) {
		video := clip.(*model.VideoClip)
		local := t - video.StartTime

		var frame image.Image
		if src != nil {
			frame = src.FrameAt(video, local)
		}
		if frame != nil {
			drawFitted(canvas, frame, 1)
			continue
		}
		// Not decodable yet: fall back to the thumbnail, dimmed.
		if src != nil {
			if thumb := src.Thumbnail(video); thumb != nil {
				drawFitted(canvas, thumb, thumbnailOpacity)
			}
		}
	}

	for _, clip := range tl.ActiveClipsOfKind(t, model.ClipKindText) {
		c.text.Draw(canvas, clip.(*model.TextClip))
	}
}

func fill(dst *image.RGBA, c color.RGBA) {
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetRGBA(x, y, c)
		}
	}
}

// drawFitted letterboxes/pillarboxes src into dst preserving aspect ratio,
// centered, optionally dimmed by opacity.
func drawFitted(dst *image.RGBA, src image.Image, opacity float64) {
	sb := src.Bounds()
	db := dst.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 || opacity <= 0 {
		return
	}

	scaleX := float64(db.Dx()) / float64(sb.Dx())
	scaleY := float64(db.Dy()) / float64(sb.Dy())
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}

	w := int(float64(sb.Dx()) * scale)
	h := int(float64(sb.Dy()) * scale)
	offX := db.Min.X + (db.Dx()-w)/2
	offY := db.Min.Y + (db.Dy()-h)/2
	rect := image.Rect(offX, offY, offX+w, offY+h)

	if opacity >= 1 {
		xdraw.ApproxBiLinear.Scale(dst, rect, src, sb, xdraw.Src, nil)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	xdraw.ApproxBiLinear.Scale(dst, rect, src, sb, xdraw.Over, &xdraw.Options{SrcMask: mask})
}

// ApplyFilters applies the project's color filters to a frame in place.
// All factors are neutral at 1.
func ApplyFilters(img *image.RGBA, f model.FilterSettings) {
	if f.Brightness == 1 && f.Contrast == 1 && f.Saturation == 1 && !f.Grayscale {
		return
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := img.RGBAAt(x, y)
			r := float64(px.R)
			g := float64(px.G)
			bl := float64(px.B)

			// Brightness scales, contrast pivots around mid-gray.
			r = (r-128)*f.Contrast + 128
			g = (g-128)*f.Contrast + 128
			bl = (bl-128)*f.Contrast + 128
			r *= f.Brightness
			g *= f.Brightness
			bl *= f.Brightness

			if f.Grayscale {
				gray := 0.299*r + 0.587*g + 0.114*bl
				r, g, bl = gray, gray, gray
			} else if f.Saturation != 1 {
				gray := 0.299*r + 0.587*g + 0.114*bl
				r = gray + (r-gray)*f.Saturation
				g = gray + (g-gray)*f.Saturation
				bl = gray + (bl-gray)*f.Saturation
			}

			img.SetRGBA(x, y, color.RGBA{
				R: clamp8(r), G: clamp8(g), B: clamp8(bl), A: px.A,
			})
		}
	}
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
