// Package overlay annotates frames with detection boxes, labels and a status line.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/facewatch/internal/facematch"
)

const boxThickness = 2

var (
	// ErrNoFrame is reported when there is nothing to draw on.
	ErrNoFrame = errors.New("no frame to render")

	matchColor   = color.RGBA{0, 200, 0, 255}
	unknownColor = color.RGBA{220, 0, 0, 255}
	textColor    = color.RGBA{255, 255, 255, 255}
	bandColor    = color.RGBA{0, 0, 0, 160}
	alertColor   = color.RGBA{255, 170, 0, 255}
)

// Status is the pipeline state shown in the top-left corner.
type Status struct {
	FPS      float64
	Users    int
	Recovery bool
	Stable   bool
}

// Render is the outcome of annotating a frame. When annotation fails, Frame is
// the unannotated input, Fallback is true and Err says why.
type Render struct {
	Frame    image.Image
	Err      error
	Fallback bool
}

// Draw returns a copy of frame with one box per detection, green for matches
// and red for unknown faces, labelled "name (0.87)", plus a status line.
// boxes and results must be index-aligned; results may be empty for frames that
// were skipped or failed.
func Draw(frame image.Image, boxes []facematch.Box, results []facematch.Result, st Status) (r Render) {
	if frame == nil || frame.Bounds().Empty() {
		return Render{Frame: frame, Err: ErrNoFrame, Fallback: true}
	}
	if len(results) != 0 && len(results) != len(boxes) {
		return Render{
			Frame:    frame,
			Err:      fmt.Errorf("%d results for %d boxes", len(results), len(boxes)),
			Fallback: true,
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r = Render{Frame: frame, Err: fmt.Errorf("rendering overlay: %v", p), Fallback: true}
		}
	}()

	b := frame.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, frame, b.Min, draw.Src)

	for i, box := range boxes {
		c, label := unknownColor, ""
		if i < len(results) {
			res := results[i]
			label = fmt.Sprintf("%s (%.2f)", res.Label, res.Confidence)
			if res.IsMatch {
				c = matchColor
			}
		}
		rect := box.Rect().Intersect(b)
		if rect.Empty() {
			continue
		}
		strokeRect(dst, rect, c)
		if label != "" {
			drawLabel(dst, rect, label, c)
		}
	}

	drawStatus(dst, st)
	return Render{Frame: dst}
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	t := min(boxThickness, r.Dx(), r.Dy())
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text on a filled tag above the box, or inside it when the
// box touches the top edge.
func drawLabel(dst *image.RGBA, box image.Rectangle, text string, bg color.Color) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil() + 4
	h := face.Height + 2

	top := box.Min.Y - h
	if top < dst.Bounds().Min.Y {
		top = box.Min.Y
	}
	tag := image.Rect(box.Min.X, top, box.Min.X+w, top+h).Intersect(dst.Bounds())
	draw.Draw(dst, tag, image.NewUniform(bg), image.Point{}, draw.Src)
	writeText(dst, tag.Min.X+2, tag.Min.Y+face.Ascent+1, text, textColor)
}

func drawStatus(dst *image.RGBA, st Status) {
	parts := []string{fmt.Sprintf("FPS: %.1f", st.FPS), fmt.Sprintf("Users: %d", st.Users)}
	fg := color.Color(textColor)
	if st.Recovery {
		parts = append(parts, "RECOVERY")
		fg = alertColor
	}
	if !st.Stable {
		parts = append(parts, "UNSTABLE")
		fg = alertColor
	}
	text := strings.Join(parts, " | ")

	face := basicfont.Face7x13
	b := dst.Bounds()
	band := image.Rect(b.Min.X, b.Min.Y, b.Min.X+font.MeasureString(face, text).Ceil()+8, b.Min.Y+face.Height+6).Intersect(b)
	draw.Draw(dst, band, image.NewUniform(bandColor), image.Point{}, draw.Over)
	writeText(dst, band.Min.X+4, band.Min.Y+face.Ascent+3, text, fg)
}

func writeText(dst *image.RGBA, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
