package vision

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// Preview bounds and encoding.
const (
	PreviewMaxWidth  = 800
	PreviewMaxHeight = 600
	previewQuality   = 85
)

// Thumbnail shrinks img to fit within maxW x maxH keeping its aspect ratio.
// Images that already fit are returned as is.
func Thumbnail(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH || w == 0 || h == 0 {
		return img
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	nw, nh := max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// PreviewDataURL renders a JPEG thumbnail of img as a data URL.
func PreviewDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Thumbnail(img, PreviewMaxWidth, PreviewMaxHeight), &jpeg.Options{Quality: previewQuality}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
