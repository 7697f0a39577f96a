// numeric/kernels.go
package numeric

import (
	"errors"
	"math"

	"golang.org/x/exp/constraints"
)

// Feature magnitude limits. Squared values below X2Min are floored so that
// normalizers never divide by zero; values above X2Max cannot be represented.
const (
	XMin  = 1.084202e-19
	X2Min = XMin * XMin
	X2Max = math.MaxFloat32
)

// ErrFeatureMagnitude reports a feature whose square overflows float32.
var ErrFeatureMagnitude = errors.New("your features have too much magnitude")

// Truncate soft-thresholds w by gravity: 0 when |w| <= gravity,
// otherwise w moved gravity units towards zero.
func Truncate[F constraints.Float](w, gravity F) F {
	if gravity < abs(w) {
		if w < 0 {
			return w + gravity
		}
		return w - gravity
	}
	return 0
}

// ClampPrediction bounds raw to [lo, hi]. A NaN is replaced by 0 before
// clamping; the second result reports that the replacement happened.
func ClampPrediction[F constraints.Float](raw, lo, hi F) (F, bool) {
	nan := raw != raw
	if nan {
		raw = 0
	}
	if raw > hi {
		raw = hi
	}
	if raw < lo {
		raw = lo
	}
	return raw, nan
}

// ClipSquared returns x and x*x with x*x floored at X2Min (x is replaced by
// ±XMin in that case). Overflowing magnitudes are an error.
func ClipSquared(x float32) (float32, float32, error) {
	x2 := x * x
	if x2 < X2Min {
		if x > 0 {
			x = XMin
		} else {
			x = -XMin
		}
		x2 = X2Min
	}
	if x2 > X2Max {
		return x, x2, ErrFeatureMagnitude
	}
	return x, x2, nil
}

// QuakeInvSqrt approximates 1/sqrt(x) with the bit-level initial guess and
// one Newton step.
func QuakeInvSqrt(x float32) float32 {
	xhalf := 0.5 * x
	i := math.Float32bits(x)
	i = 0x5f3759d5 - (i >> 1)
	x = math.Float32frombits(i)
	return x * (1.5 - xhalf*x*x)
}

// Pow32 is math.Pow for float32 operands.
func Pow32(x, y float32) float32 {
	return float32(math.Pow(float64(x), float64(y)))
}

// Abs32 is math.Abs for float32.
func Abs32(x float32) float32 {
	return math.Float32frombits(math.Float32bits(x) &^ (1 << 31))
}

func abs[F constraints.Float](x F) F {
	if x < 0 {
		return -x
	}
	return x
}
