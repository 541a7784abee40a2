// File: internal/imaging/preprocess.go
package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

// Letterbox scales src to fit a size x size black RGB canvas, keeping the
// aspect ratio and centering the result.
func Letterbox(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return dst
	}
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	ox, oy := (size-nw)/2, (size-nh)/2

	draw.CatmullRom.Scale(dst, image.Rect(ox, oy, ox+nw, oy+nh), src, b, draw.Over, nil)
	return dst
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
