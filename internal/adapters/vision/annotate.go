package vision

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/okian/platecount/internal/domain/model"
)

var (
	boxColor       = color.RGBA{G: 255, A: 255}
	labelColor     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	conditionColor = color.RGBA{R: 255, G: 255, A: 255}
)

const boxThickness = 2

// Annotate draws every detection box with its text and writes extra in the
// top-left corner. The input is not modified.
func Annotate(img image.Image, dets []model.Detection, extra string) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	for _, d := range dets {
		r := image.Rect(d.X1, d.Y1, d.X2, d.Y2).Intersect(b)
		if r.Empty() {
			continue
		}
		strokeRect(out, r, boxColor)
		label(out, d.Text, r.Min.X, r.Min.Y-4, labelColor)
	}
	if extra != "" {
		label(out, extra, b.Min.X+10, b.Min.Y+20, conditionColor)
	}
	return out
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	u := image.NewUniform(c)
	for i := 0; i < boxThickness; i++ {
		draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y+i, r.Max.X, r.Min.Y+i+1), u, image.Point{}, draw.Src)
		draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-i-1, r.Max.X, r.Max.Y-i), u, image.Point{}, draw.Src)
		draw.Draw(dst, image.Rect(r.Min.X+i, r.Min.Y, r.Min.X+i+1, r.Max.Y), u, image.Point{}, draw.Src)
		draw.Draw(dst, image.Rect(r.Max.X-i-1, r.Min.Y, r.Max.X-i, r.Max.Y), u, image.Point{}, draw.Src)
	}
}

func label(dst *image.RGBA, text string, x, y int, c color.RGBA) {
	face := basicfont.Face7x13
	if y < face.Ascent {
		y = face.Ascent
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
