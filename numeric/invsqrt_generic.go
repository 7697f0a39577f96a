//go:build !amd64 && !arm64

// Scalar fallback for platforms without a native square root instruction
// wired into the compiler (e.g., 386 softfloat builds, mips, riscv64 without D).

package numeric

// InvSqrt returns an approximation of 1/sqrt(x).
func InvSqrt(x float32) float32 {
	return QuakeInvSqrt(x)
}
