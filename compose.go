package main

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"unicode"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Layout in pixels for a 1080px square; scaled for other sizes.
const (
	referenceSize   = 1080
	titlePointSize  = 80
	attribPointSize = 24
	pageMargin      = 60
	lineSpacing     = 20
	panelPadding    = 10
	panelRadius     = 20
)

var (
	panelColor       = color.NRGBA{R: 255, G: 255, B: 255, A: 200}
	attribPanelColor = color.NRGBA{A: 200}
	attribTextColor  = color.NRGBA{R: 200, G: 200, B: 200, A: 255}
)

// Composer lays the hook and photo credit over a square background
type Composer struct {
	size       int
	scale      float64
	titleFont  *opentype.Font
	attribFont *opentype.Font
	titleFace  font.Face
	attribFace font.Face
}

// NewComposer creates a composer producing size×size images
func NewComposer(size int) (*Composer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid image size %d", size)
	}
	scale := float64(size) / referenceSize

	titleFont, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing title font: %w", err)
	}
	attribFont, err := opentype.Parse(goitalic.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing attribution font: %w", err)
	}

	titleFace, err := opentype.NewFace(titleFont, &opentype.FaceOptions{
		Size:    titlePointSize * scale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating title face: %w", err)
	}
	attribFace, err := opentype.NewFace(attribFont, &opentype.FaceOptions{
		Size:    attribPointSize * scale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating attribution face: %w", err)
	}

	return &Composer{
		size:       size,
		scale:      scale,
		titleFont:  titleFont,
		attribFont: attribFont,
		titleFace:  titleFace,
		attribFace: attribFace,
	}, nil
}

func (c *Composer) px(v int) int {
	return int(float64(v)*c.scale + 0.5)
}

// Compose crops background to a square, then draws the wrapped hook on a
// rounded translucent panel and the photo credit in the bottom-right corner
func (c *Composer) Compose(background image.Image, hook, photographer string) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, c.size, c.size))
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), background, centerSquare(background.Bounds()), draw.Src, nil)

	c.drawHook(canvas, supportedText(c.titleFont, hook))

	if photographer = supportedText(c.attribFont, photographer); photographer != "" {
		c.drawAttribution(canvas, fmt.Sprintf("Photo: %s | Source: Pexels", photographer))
	}

	return canvas
}

func (c *Composer) drawHook(canvas *image.RGBA, hook string) {
	margin := c.px(pageMargin)
	lines := wrapText(c.titleFace, hook, c.size-2*margin)
	if len(lines) == 0 {
		return
	}

	metrics := c.titleFace.Metrics()
	lineHeight := (metrics.Ascent + metrics.Descent).Ceil()
	spacing := c.px(lineSpacing)
	blockHeight := len(lines)*(lineHeight+spacing) - spacing

	padding := c.px(panelPadding)
	panel := image.Rect(margin-padding, margin-padding, c.size-margin+padding, margin+blockHeight+padding)
	draw.DrawMask(canvas, panel, image.NewUniform(panelColor), image.Point{},
		roundedRect{rect: panel, radius: c.px(panelRadius)}, panel.Min, draw.Over)

	drawer := &font.Drawer{Dst: canvas, Src: image.Black, Face: c.titleFace}
	y := margin
	for _, line := range lines {
		drawer.Dot = fixed.P(margin, y+metrics.Ascent.Ceil())
		drawer.DrawString(line)
		y += lineHeight + spacing
	}
}

func (c *Composer) drawAttribution(canvas *image.RGBA, text string) {
	width := font.MeasureString(c.attribFace, text).Ceil()
	inset := c.px(20)
	padding := c.px(panelPadding)

	strip := image.Rect(c.size-width-inset-2*padding, c.size-c.px(50), c.size-inset, c.size-inset)
	draw.Draw(canvas, strip, image.NewUniform(attribPanelColor), image.Point{}, draw.Over)

	metrics := c.attribFace.Metrics()
	baseline := strip.Min.Y + (strip.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(attribTextColor),
		Face: c.attribFace,
		Dot:  fixed.P(strip.Min.X+padding, baseline),
	}
	drawer.DrawString(text)
}

// centerSquare returns the largest centred square inside r
func centerSquare(r image.Rectangle) image.Rectangle {
	side := min(r.Dx(), r.Dy())
	x0 := r.Min.X + (r.Dx()-side)/2
	y0 := r.Min.Y + (r.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// wrapText breaks text into lines no wider than maxWidth. A single word
// wider than maxWidth gets a line of its own.
func wrapText(face font.Face, text string, maxWidth int) []string {
	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		candidate := strings.TrimSpace(current + " " + word)
		if current != "" && font.MeasureString(face, candidate).Ceil() > maxWidth {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// supportedText drops runes the font has no glyph for (emoji, mostly) and
// collapses the whitespace left behind
func supportedText(f *opentype.Font, text string) string {
	var buf sfnt.Buffer
	var b strings.Builder
	for _, r := range text {
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		if !unicode.IsPrint(r) {
			continue
		}
		if idx, err := f.GlyphIndex(&buf, r); err != nil || idx == 0 {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// roundedRect is an alpha mask for a rectangle with rounded corners
type roundedRect struct {
	rect   image.Rectangle
	radius int
}

func (m roundedRect) ColorModel() color.Model { return color.AlphaModel }

func (m roundedRect) Bounds() image.Rectangle { return m.rect }

func (m roundedRect) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(m.rect) {
		return color.Alpha{}
	}

	left, right := m.rect.Min.X+m.radius, m.rect.Max.X-1-m.radius
	top, bottom := m.rect.Min.Y+m.radius, m.rect.Max.Y-1-m.radius
	cx := min(max(x, left), right)
	cy := min(max(y, top), bottom)

	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy > m.radius*m.radius {
		return color.Alpha{}
	}
	return color.Alpha{A: 255}
}
