package compose

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"Mx1Studio/model"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// textPadding is the background rectangle padding around measured text, in
// pixels at font size 24, scaled with the font.
const textPadding = 8.0

// TextRenderer draws text clips onto a canvas. With no font file configured
// it falls back to the built-in fixed face, which keeps the renderer usable
// in tests and headless environments.
type TextRenderer struct {
	fontData *opentype.Font
	faces    map[float64]font.Face
}

// NewTextRenderer creates a renderer using the built-in fallback face.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{faces: make(map[float64]font.Face)}
}

// NewTextRendererFromFile loads a TTF/OTF font for rendering.
func NewTextRendererFromFile(path string) (*TextRenderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &TextRenderer{fontData: parsed, faces: make(map[float64]font.Face)}, nil
}

// face returns a cached face for the requested size.
func (r *TextRenderer) face(size float64) font.Face {
	if r.fontData == nil {
		return basicfont.Face7x13
	}
	if f, ok := r.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(r.fontData, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	r.faces[size] = f
	return f
}

// Draw renders one text clip: a measured background rectangle plus the text
// itself, horizontally centered at (x%, y%) of the canvas.
func (r *TextRenderer) Draw(dst *image.RGBA, clip *model.TextClip) {
	if clip.Text == "" || clip.Opacity <= 0 {
		return
	}
	size := clip.FontSize
	if size <= 0 {
		size = 24
	}
	face := r.face(size)

	width := font.MeasureString(face, clip.Text).Ceil()
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := ascent + metrics.Descent.Ceil()

	db := dst.Bounds()
	cx := int(clip.Position.X / 100 * float64(db.Dx()))
	cy := int(clip.Position.Y / 100 * float64(db.Dy()))
	left := cx - width/2
	top := cy - height/2

	pad := int(textPadding * size / 24)
	if pad < 2 {
		pad = 2
	}

	if bg, ok := ParseHexColor(clip.BackgroundColor); ok && bg.A > 0 {
		fillRectOver(dst, image.Rect(left-pad, top-pad, left+width+pad, top+height+pad),
			withAlpha(bg, clip.Opacity))
	}

	fg, ok := ParseHexColor(clip.Color)
	if !ok {
		fg = color.RGBA{255, 255, 255, 255}
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(withAlpha(fg, clip.Opacity)),
		Face: face,
		Dot:  fixed.P(left, top+ascent),
	}
	d.DrawString(clip.Text)
}

func withAlpha(c color.RGBA, opacity float64) color.RGBA {
	if opacity >= 1 {
		return c
	}
	if opacity < 0 {
		opacity = 0
	}
	c.A = uint8(float64(c.A) * opacity)
	return c
}

// fillRectOver alpha-blends a solid rectangle onto the canvas.
func fillRectOver(dst *image.RGBA, rect image.Rectangle, c color.RGBA) {
	rect = rect.Intersect(dst.Bounds())
	a := uint32(c.A)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if a == 255 {
				dst.SetRGBA(x, y, c)
				continue
			}
			d := dst.RGBAAt(x, y)
			dst.SetRGBA(x, y, color.RGBA{
				R: uint8((uint32(c.R)*a + uint32(d.R)*(255-a)) / 255),
				G: uint8((uint32(c.G)*a + uint32(d.G)*(255-a)) / 255),
				B: uint8((uint32(c.B)*a + uint32(d.B)*(255-a)) / 255),
				A: 255,
			})
		}
	}
}

// ParseHexColor parses #rgb, #rrggbb and #rrggbbaa color strings.
func ParseHexColor(s string) (color.RGBA, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	hex := func(b byte) (uint8, bool) {
		switch {
		case b >= '0' && b <= '9':
			return b - '0', true
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10, true
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10, true
		}
		return 0, false
	}
	pair := func(i int) (uint8, bool) {
		hi, ok1 := hex(s[i])
		lo, ok2 := hex(s[i+1])
		return hi<<4 | lo, ok1 && ok2
	}

	switch len(s) {
	case 3:
		r, ok1 := hex(s[0])
		g, ok2 := hex(s[1])
		b, ok3 := hex(s[2])
		if !ok1 || !ok2 || !ok3 {
			return color.RGBA{}, false
		}
		return color.RGBA{R: r * 17, G: g * 17, B: b * 17, A: 255}, true
	case 6:
		r, ok1 := pair(0)
		g, ok2 := pair(2)
		b, ok3 := pair(4)
		if !ok1 || !ok2 || !ok3 {
			return color.RGBA{}, false
		}
		return color.RGBA{R: r, G: g, B: b, A: 255}, true
	case 8:
		r, ok1 := pair(0)
		g, ok2 := pair(2)
		b, ok3 := pair(4)
		a, ok4 := pair(6)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return color.RGBA{}, false
		}
		return color.RGBA{R: r, G: g, B: b, A: a}, true
	}
	return color.RGBA{}, false
}
