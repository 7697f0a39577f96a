//go:build amd64 || arm64

// Hardware square root path. Both architectures lower math.Sqrt to a
// single instruction, which beats the bit trick and is exact.

package numeric

import "math"

// InvSqrt returns 1/sqrt(x).
func InvSqrt(x float32) float32 {
	return float32(1 / math.Sqrt(float64(x)))
}
