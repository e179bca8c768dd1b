// Package sprites renders scene images locally by compositing static sprite
// assets onto a fixed laboratory backdrop.
package sprites

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"milgramgo/pkg/scene"
)

type point struct{ x, y int }

// Sprite placement, matching the layout of the reference scene.
var (
	professorPos   = point{700, 780}
	learnerPos     = point{710, 390}
	participantPos = point{400, 780}
	shockPos       = learnerPos
)

const (
	professorScale   = 0.70
	learnerScale     = 1.05
	participantScale = 0.17
	shockScale       = 0.075
	bubbleScale      = 0.15

	bubblePadding      = 20
	bubbleBottomOffset = 20
)

// bubble anchor presets per speaking role
type anchor struct {
	x, y           int
	fromRight      bool // x is the right edge
	fromBottom     bool // y is the bottom edge
	flipHorizontal bool
}

var (
	professorAnchor   = anchor{x: 650, y: 650, fromRight: true, fromBottom: true, flipHorizontal: true}
	participantAnchor = anchor{x: 440, y: 650, fromBottom: true}
	learnerAnchor     = anchor{x: 520, y: 160, flipHorizontal: true}
)

// Compositor implements scene.Renderer with pre-loaded sprite assets.
type Compositor struct {
	background  image.Image
	professor   image.Image
	learner     image.Image
	participant image.Image
	shock       image.Image
	bubble      image.Image
}

// NewCompositor loads all sprite assets from assetsDir.
func NewCompositor(assetsDir string) (*Compositor, error) {
	c := &Compositor{}

	load := func(name string, scaleFactor float64) (image.Image, error) {
		img, err := loadImage(filepath.Join(assetsDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load sprite %s: %w", name, err)
		}
		if scaleFactor != 1.0 {
			img = scaleImage(img, scaleFactor)
		}
		return img, nil
	}

	var err error
	if c.professor, err = load("professor_w.png", professorScale); err != nil {
		return nil, err
	}
	if c.learner, err = load("learner.png", learnerScale); err != nil {
		return nil, err
	}
	if c.participant, err = load("student.png", participantScale); err != nil {
		return nil, err
	}
	if c.shock, err = load("electricity.png", shockScale); err != nil {
		return nil, err
	}
	if c.bubble, err = load("speech_bubble.png", bubbleScale); err != nil {
		return nil, err
	}

	// Backdrop is stretched to the full canvas, missing file is tolerated
	if bg, err := loadImage(filepath.Join(assetsDir, "background.jpg")); err == nil {
		c.background = scaleTo(bg, scene.CanvasSize, scene.CanvasSize)
	}

	return c, nil
}

// Render composites the scene onto a fresh canvas and writes a PNG.
func (c *Compositor) Render(ctx context.Context, params scene.Params, outputPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, scene.CanvasSize, scene.CanvasSize))

	if c.background != nil {
		xdraw.Draw(canvas, canvas.Bounds(), c.background, image.Point{}, xdraw.Src)
	} else {
		fill(canvas, color.RGBA{0xF0, 0xF0, 0xF0, 0xFF})
	}

	drawCentered(canvas, c.professor, professorPos)
	drawCentered(canvas, c.learner, learnerPos)
	drawCentered(canvas, c.participant, participantPos)

	if params.ProfessorMessage != "" {
		c.drawSpeechBubble(canvas, params.ProfessorMessage, professorAnchor)
	}
	if params.ParticipantMessage != "" {
		c.drawSpeechBubble(canvas, params.ParticipantMessage, participantAnchor)
	}
	if params.LearnerMessage != "" {
		c.drawSpeechBubble(canvas, params.LearnerMessage, learnerAnchor)
	}

	if params.DisplayShock {
		drawCentered(canvas, c.shock, shockPos)
	}

	if filepath.Ext(outputPath) != ".png" {
		outputPath += ".png"
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, canvas); err != nil {
		return "", fmt.Errorf("failed to encode scene: %w", err)
	}
	return "png", nil
}

func (c *Compositor) drawSpeechBubble(canvas *image.RGBA, text string, a anchor) {
	face := basicfont.Face7x13
	charWidth := face.Advance
	lineHeight := face.Height + 2

	// Pick a wrap width that yields a roughly 3:2 bubble
	desiredAspect := 3.0 / 2.0
	optimal := math.Sqrt(float64(len(text)) * desiredAspect * float64(lineHeight) / float64(charWidth))
	wrapWidth := int(optimal)
	if wrapWidth < 20 {
		wrapWidth = 20
	}

	lines := wrapText(text, wrapWidth)

	textWidth := 0
	for _, line := range lines {
		if w := len(line) * charWidth; w > textWidth {
			textWidth = w
		}
	}
	textHeight := len(lines) * lineHeight

	base := c.bubble.Bounds()
	targetW := textWidth + 2*bubblePadding
	if base.Dx() > targetW {
		targetW = base.Dx()
	}
	targetH := textHeight + 2*bubblePadding + bubbleBottomOffset
	if base.Dy() > targetH {
		targetH = base.Dy()
	}

	bubble := scaleTo(c.bubble, targetW, targetH)
	if a.flipHorizontal {
		bubble = flipX(bubble)
	}

	left := a.x
	if a.fromRight {
		left = a.x - targetW
	}
	top := a.y
	if a.fromBottom {
		top = a.y - targetH
	}

	rect := image.Rect(left, top, left+targetW, top+targetH)
	xdraw.Draw(canvas, rect, bubble, bubble.Bounds().Min, xdraw.Over)

	// Center each line horizontally inside the bubble
	drawer := font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	for i, line := range lines {
		lineW := drawer.MeasureString(line).Ceil()
		x := left + (targetW-lineW)/2
		y := top + bubblePadding + (i+1)*lineHeight - 2
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(line)
	}
}

// wrapText splits text into lines of at most maxChars characters, breaking
// oversized words mid-word.
func wrapText(text string, maxChars int) []string {
	var lines []string
	current := ""

	for _, word := range strings.Fields(text) {
		test := word
		if current != "" {
			test = current + " " + word
		}
		if len(test) <= maxChars {
			current = test
			continue
		}
		if current != "" {
			lines = append(lines, current)
		}
		current = word
		for len(current) > maxChars {
			lines = append(lines, current[:maxChars])
			current = current[maxChars:]
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func scaleImage(img image.Image, factor float64) image.Image {
	b := img.Bounds()
	return scaleTo(img, int(float64(b.Dx())*factor), int(float64(b.Dy())*factor))
}

func scaleTo(img image.Image, w, h int) image.Image {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

func flipX(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Set(b.Dx()-1-x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func drawCentered(canvas *image.RGBA, sprite image.Image, at point) {
	if sprite == nil {
		return
	}
	b := sprite.Bounds()
	left := at.x - b.Dx()/2
	top := at.y - b.Dy()/2
	rect := image.Rect(left, top, left+b.Dx(), top+b.Dy())
	xdraw.Draw(canvas, rect, sprite, b.Min, xdraw.Over)
}

func fill(canvas *image.RGBA, c color.RGBA) {
	for i := 0; i < len(canvas.Pix); i += 4 {
		canvas.Pix[i] = c.R
		canvas.Pix[i+1] = c.G
		canvas.Pix[i+2] = c.B
		canvas.Pix[i+3] = c.A
	}
}
