package admission

import (
	"math"

	"github.com/example/skin-check/internal/imaging"
)

const hsvShift = 12

// Reciprocal tables in hsvShift fixed point, indexed by value and by
// max-min spread. Entry zero stays zero so black and grey map to 0.
var sdiv, hdiv = func() (s, h [256]int) {
	for i := 1; i < 256; i++ {
		s[i] = int(math.RoundToEven(float64(255<<hsvShift) / float64(i)))
		h[i] = int(math.RoundToEven(float64(180<<hsvShift) / (6 * float64(i))))
	}
	return s, h
}()

// RGBToHSV converts an 8-bit RGB triple to HSV on the 8-bit OpenCV scale:
// hue in [0,180), saturation and value in [0,255]. The arithmetic follows
// OpenCV's fixed point path so results match cv2 exactly.
func RGBToHSV(r, g, b uint8) (h, s, v uint8) {
	ri, gi, bi := int(r), int(g), int(b)
	maxc := max(ri, gi, bi)
	diff := maxc - min(ri, gi, bi)
	const half = 1 << (hsvShift - 1)

	sat := (diff*sdiv[maxc] + half) >> hsvShift

	var hue int
	switch maxc {
	case ri:
		hue = gi - bi
	case gi:
		hue = bi - ri + 2*diff
	default:
		hue = ri - gi + 4*diff
	}
	hue = (hue*hdiv[diff] + half) >> hsvShift
	if hue < 0 {
		hue += 180
	}
	return uint8(hue), uint8(sat), uint8(maxc)
}

// Luma converts RGB to BT.601 luminance using the same fixed point weights
// as OpenCV's grey conversion.
func Luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*4899 + uint32(g)*9617 + uint32(b)*1868 + 8192) >> 14)
}

// Grayscale returns the single-channel luminance plane of img.
func Grayscale(img *imaging.DecodedImage) []uint8 {
	gray := make([]uint8, img.Pixels())
	for i, j := 0, 0; i < len(gray); i, j = i+1, j+3 {
		gray[i] = Luma(img.Pix[j], img.Pix[j+1], img.Pix[j+2])
	}
	return gray
}
