package compressor

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// fitDimensions scales width x height down to fit maxWidth/maxHeight while
// keeping the aspect ratio. The width bound is applied first and the height
// bound is then applied to the possibly updated size, so a height overflow
// left by the width step is still corrected. A zero bound is ignored.
func fitDimensions(width, height, maxWidth, maxHeight int) (int, int, bool) {
	w, h := width, height
	changed := false

	if maxWidth > 0 && w > maxWidth {
		h = scaleSide(h, maxWidth, w)
		w = maxWidth
		changed = true
	}
	if maxHeight > 0 && h > maxHeight {
		w = scaleSide(w, maxHeight, h)
		h = maxHeight
		changed = true
	}
	return w, h, changed
}

// scaleSide returns round(side * target / reference), at least 1.
func scaleSide(side, target, reference int) int {
	v := int(math.Round(float64(side) * float64(target) / float64(reference)))
	if v < 1 {
		return 1
	}
	return v
}

// resizeToFit shrinks img with a Lanczos filter when it exceeds the bounds.
func resizeToFit(img image.Image, maxWidth, maxHeight int) (image.Image, bool) {
	b := img.Bounds()
	w, h, changed := fitDimensions(b.Dx(), b.Dy(), maxWidth, maxHeight)
	if !changed {
		return img, false
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), true
}

// flattenOpaque returns an opaque copy of img with the alpha channel
// dropped. Color values are kept as stored, so fully transparent pixels keep
// whatever color they carried.
func flattenOpaque(img image.Image) image.Image {
	switch img.(type) {
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		return img
	}
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xFF
	}
	return dst
}
