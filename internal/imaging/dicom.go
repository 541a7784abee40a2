// File: internal/imaging/dicom.go
package imaging

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// grayWindow carries the display attributes read from a grayscale dataset.
type grayWindow struct {
	slope     float64
	intercept float64
	center    float64
	width     float64
	hasWindow bool
	invert    bool
}

// renderDICOM parses a DICOM file and renders its middle frame to an 8-bit
// raster. check sees the frame size before any pixel data is decoded.
func renderDICOM(data []byte, check func(w, h int) error) (image.Image, error) {
	header, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil, dicom.SkipPixelData())
	if err != nil {
		return nil, &DecodeError{Format: FormatDICOM, Message: "parse dataset", Cause: err}
	}
	rows, okR := firstInt(header, tag.Rows)
	cols, okC := firstInt(header, tag.Columns)
	if okR && okC {
		if err := check(cols, rows); err != nil {
			return nil, err
		}
	}

	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, &DecodeError{Format: FormatDICOM, Message: "parse dataset", Cause: err}
	}

	pixEl, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, &DecodeError{Format: FormatDICOM, Message: "dataset has no pixel data", Cause: err}
	}
	if pixEl.Value == nil || pixEl.Value.ValueType() != dicom.PixelData {
		return nil, &DecodeError{Format: FormatDICOM, Message: "pixel data element has unexpected type"}
	}
	info := dicom.MustGetPixelDataInfo(pixEl.Value)
	if len(info.Frames) == 0 {
		return nil, &DecodeError{Format: FormatDICOM, Message: "pixel data has no frames"}
	}
	fr := info.Frames[len(info.Frames)/2]

	if fr.Encapsulated {
		raw := fr.EncapsulatedData.Data
		cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return nil, &DecodeError{Format: FormatDICOM, Message: "read encapsulated frame header", Cause: err}
		}
		if err := check(cfg.Width, cfg.Height); err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, &DecodeError{Format: FormatDICOM, Message: "decode encapsulated frame", Cause: err}
		}
		return img, nil
	}

	native := fr.NativeData
	rows, cols = native.Rows, native.Cols
	if rows <= 0 || cols <= 0 || len(native.Data) < rows*cols {
		return nil, &DecodeError{Format: FormatDICOM, Message: "native frame is empty or truncated"}
	}

	if len(native.Data[0]) >= 3 {
		return renderRGB(native.Data, rows, cols), nil
	}

	values := make([]float64, rows*cols)
	for i := range values {
		values[i] = float64(native.Data[i][0])
	}
	return renderGray(values, rows, cols, readWindow(ds)), nil
}

func readWindow(ds dicom.Dataset) grayWindow {
	w := grayWindow{slope: 1}
	if v, ok := firstFloat(ds, tag.RescaleSlope); ok && v != 0 {
		w.slope = v
	}
	if v, ok := firstFloat(ds, tag.RescaleIntercept); ok {
		w.intercept = v
	}
	c, okC := firstFloat(ds, tag.WindowCenter)
	width, okW := firstFloat(ds, tag.WindowWidth)
	if okC && okW && width > 0 {
		w.center, w.width, w.hasWindow = c, width, true
	}
	if s, ok := firstString(ds, tag.PhotometricInterpretation); ok {
		w.invert = strings.EqualFold(s, "MONOCHROME1")
	}
	return w
}

func firstInt(ds dicom.Dataset, t tag.Tag) (int, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return 0, false
	}
	ints, ok := el.Value.GetValue().([]int)
	if !ok || len(ints) == 0 {
		return 0, false
	}
	return ints[0], true
}

func firstString(ds dicom.Dataset, t tag.Tag) (string, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return "", false
	}
	strs, ok := el.Value.GetValue().([]string)
	if !ok || len(strs) == 0 {
		return "", false
	}
	return strings.TrimSpace(strs[0]), true
}

// firstFloat reads the first value of a decimal string element. Multi-valued
// window attributes use their first entry.
func firstFloat(ds dicom.Dataset, t tag.Tag) (float64, bool) {
	s, ok := firstString(ds, t)
	if !ok {
		return 0, false
	}
	if i := strings.IndexByte(s, '\\'); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimRight(s, "\x00")), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// renderGray applies the modality rescale, then the VOI window or a
// percentile range, and maps the result onto 0..255.
func renderGray(values []float64, rows, cols int, w grayWindow) *image.Gray {
	for i, v := range values {
		values[i] = v*w.slope + w.intercept
	}

	lo, hi := displayRange(values, w)
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	span := hi - lo
	for i, v := range values {
		var n float64
		if span > 0 {
			n = (math.Min(math.Max(v, lo), hi) - lo) / span
		}
		if w.invert {
			n = 1 - n
		}
		img.Pix[(i/cols)*img.Stride+i%cols] = uint8(math.Round(n * 255))
	}
	return img
}

// displayRange picks the value range mapped to black..white.
func displayRange(values []float64, w grayWindow) (float64, float64) {
	if w.hasWindow {
		return w.center - w.width/2, w.center + w.width/2
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	lo, hi := percentile(sorted, 1), percentile(sorted, 99)
	if hi > lo {
		return lo, hi
	}
	lo, hi = sorted[0], sorted[len(sorted)-1]
	if hi > lo {
		return lo, hi
	}
	return 0, 1
}

// percentile uses linear interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := p / 100 * float64(len(sorted)-1)
	i := int(math.Floor(pos))
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(i)
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

// renderRGB min-max normalizes color samples across all channels.
func renderRGB(samples [][]int, rows, cols int) *image.RGBA {
	lo, hi := math.MaxInt, math.MinInt
	for _, px := range samples[:rows*cols] {
		for _, c := range px[:3] {
			lo = min(lo, c)
			hi = max(hi, c)
		}
	}
	span := float64(hi - lo)
	scale := func(c int) uint8 {
		if span <= 0 {
			return 0
		}
		return uint8(math.Round(float64(c-lo) / span * 255))
	}

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for i, px := range samples[:rows*cols] {
		img.SetRGBA(i%cols, i/cols, color.RGBA{R: scale(px[0]), G: scale(px[1]), B: scale(px[2]), A: 255})
	}
	return img
}
