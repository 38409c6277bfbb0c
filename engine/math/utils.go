package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// FitCentered scales a srcW x srcH rectangle to fit inside dstW x dstH, keeping its
// aspect ratio, and centres it. It returns the offset and size of the fitted rectangle.
func FitCentered(srcW, srcH, dstW, dstH uint32) (x, y int32, w, h uint32) {
	if srcW == 0 || srcH == 0 || dstW == 0 || dstH == 0 {
		return 0, 0, 0, 0
	}
	scale := min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w = Clamp(uint32(float64(srcW)*scale+0.5), 1, dstW)
	h = Clamp(uint32(float64(srcH)*scale+0.5), 1, dstH)
	return int32((dstW - w) / 2), int32((dstH - h) / 2), w, h
}
