package color

import (
	"errors"
	"math"
)

// ErrDivisionByZero is returned when the input range of a rescale is empty.
var ErrDivisionByZero = errors.New("rescale: input range is empty")

// Rescale maps v from [inLo, inHi] onto [outLo, outHi].
//
// The product is formed before the division and nothing is clamped, so values
// outside the input range extrapolate linearly.
func Rescale(v, inLo, inHi, outLo, outHi float32) (float32, error) {
	if inHi == inLo {
		return 0, ErrDivisionByZero
	}
	return outLo + (v-inLo)*(outHi-outLo)/(inHi-inLo), nil
}

// RescaleInt is the integer form of Rescale. The division truncates toward zero.
func RescaleInt(v, inLo, inHi, outLo, outHi int32) (int32, error) {
	if inHi == inLo {
		return 0, ErrDivisionByZero
	}
	num := int64(v-inLo) * int64(outHi-outLo)
	return outLo + int32(num/int64(inHi-inLo)), nil
}

// TruncU16 converts v to uint16 the way a saturating cast does: truncate toward
// zero, clamp to [0, 0xFFFF], NaN becomes 0.
func TruncU16(v float32) uint16 {
	switch {
	case v != v, v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}
