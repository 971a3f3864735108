// Package enhance measures frame exposure, classifies the scene condition and
// applies the matching adjustment before detection.
package enhance

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/platecount/internal/domain/model"
)

// Classification thresholds on the 0-255 grayscale range.
const (
	LowlightBrightness = 80
	FoggyContrast      = 30
	RainyBrightness    = 200
	RainyContrast      = 40
)

// Adjustment factors used by Apply.
const (
	lowlightBrightness = 1.5
	lowlightContrast   = 1.3
	foggyContrast      = 1.5

	// Rain: bilateral smoothing over a 9-pixel window, then a 3x3 sharpen
	// blended back at 30%.
	rainRadius     = 4
	rainSigmaColor = 75.0
	rainSigmaSpace = 75.0
	rainSmoothMix  = 0.7
)

// Stats are the grayscale mean (brightness) and population standard
// deviation (contrast) of a frame.
type Stats struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
}

// Classify maps frame statistics to a scene condition.
func Classify(s Stats) model.Condition {
	switch {
	case s.Brightness < LowlightBrightness:
		return model.Lowlight
	case s.Contrast < FoggyContrast:
		return model.Foggy
	case s.Brightness > RainyBrightness && s.Contrast < RainyContrast:
		return model.Rainy
	default:
		return model.Clear
	}
}

// Measure computes Stats over every pixel of img using BT.601 luma.
func Measure(img image.Image) Stats {
	b := img.Bounds()
	if b.Empty() {
		return Stats{}
	}
	luma := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			luma = append(luma, gray(img.At(x, y)))
		}
	}
	mean, std := stat.PopMeanStdDev(luma, nil)
	return Stats{Brightness: mean, Contrast: std}
}

// Analyze measures and classifies img in one step.
func Analyze(img image.Image) (Stats, model.Condition) {
	s := Measure(img)
	return s, Classify(s)
}

// Apply returns a copy of img adjusted for the given condition.
// Lowlight frames are brightened then contrast-stretched, foggy frames are
// contrast-stretched, rainy frames are smoothed edge-preservingly and
// re-sharpened. Clear frames are returned unchanged.
func Apply(img image.Image, c model.Condition) image.Image {
	switch c {
	case model.Lowlight:
		return contrast(brightness(img, lowlightBrightness), lowlightContrast)
	case model.Foggy:
		return contrast(img, foggyContrast)
	case model.Rainy:
		return derain(img)
	default:
		return img
	}
}

func gray(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
}

func brightness(img image.Image, factor float64) *image.RGBA {
	return mapPixels(img, func(v float64) float64 { return v * factor })
}

// contrast pushes every channel away from the mean gray level.
func contrast(img image.Image, factor float64) *image.RGBA {
	mean := math.Round(Measure(img).Brightness)
	return mapPixels(img, func(v float64) float64 { return mean + (v-mean)*factor })
}

func mapPixels(img image.Image, f func(float64) float64) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			out.SetRGBA(x, y, color.RGBA{
				R: clamp(f(float64(c.R))),
				G: clamp(f(float64(c.G))),
				B: clamp(f(float64(c.B))),
				A: c.A,
			})
		}
	}
	return out
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}

// derain blends a bilateral-filtered copy of img with a sharpened version of
// that copy.
func derain(img image.Image) *image.RGBA {
	smooth := bilateral(toRGBA(img), rainRadius, rainSigmaColor, rainSigmaSpace)
	sharp := sharpen(smooth)
	b := smooth.Bounds()
	out := image.NewRGBA(b)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			out.Pix[i+c] = clamp(rainSmoothMix*float64(smooth.Pix[i+c]) + (1-rainSmoothMix)*float64(sharp.Pix[i+c]))
		}
		out.Pix[i+3] = smooth.Pix[i+3]
	}
	return out
}

// bilateral averages each pixel with the neighbors inside a disc of the
// given radius, weighting them by distance and by the summed per-channel
// color difference. Borders replicate the edge pixels.
func bilateral(src *image.RGBA, radius int, sigmaColor, sigmaSpace float64) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)

	colorWeight := make([]float64, 3*255+1)
	for d := range colorWeight {
		colorWeight[d] = math.Exp(-float64(d*d) / (2 * sigmaColor * sigmaColor))
	}
	type tap struct {
		dx, dy int
		w      float64
	}
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r2 := dx*dx + dy*dy
			if r2 > radius*radius {
				continue
			}
			taps = append(taps, tap{dx, dy, math.Exp(-float64(r2) / (2 * sigmaSpace * sigmaSpace))})
		}
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			ci := src.PixOffset(x, y)
			center := src.Pix[ci : ci+3 : ci+3]
			var sum [3]float64
			var norm float64
			for _, t := range taps {
				ni := src.PixOffset(clampInt(x+t.dx, b.Min.X, b.Max.X-1), clampInt(y+t.dy, b.Min.Y, b.Max.Y-1))
				n := src.Pix[ni : ni+3 : ni+3]
				diff := absDiff(n[0], center[0]) + absDiff(n[1], center[1]) + absDiff(n[2], center[2])
				w := t.w * colorWeight[diff]
				for c := 0; c < 3; c++ {
					sum[c] += w * float64(n[c])
				}
				norm += w
			}
			oi := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				out.Pix[oi+c] = clamp(sum[c] / norm)
			}
			out.Pix[oi+3] = src.Pix[ci+3]
		}
	}
	return out
}

// sharpen applies the 3x3 kernel with 9 at the center and -1 around it.
func sharpen(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var acc [3]float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					k := -1.0
					if dx == 0 && dy == 0 {
						k = 9
					}
					ni := src.PixOffset(clampInt(x+dx, b.Min.X, b.Max.X-1), clampInt(y+dy, b.Min.Y, b.Max.Y-1))
					for c := 0; c < 3; c++ {
						acc[c] += k * float64(src.Pix[ni+c])
					}
				}
			}
			oi := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				out.Pix[oi+c] = clamp(acc[c])
			}
			out.Pix[oi+3] = src.Pix[src.PixOffset(x, y)+3]
		}
	}
	return out
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func clampInt(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
