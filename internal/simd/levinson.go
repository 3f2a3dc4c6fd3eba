package simd

import "math/cmplx"

// LevinsonDurbin solves the Hermitian Toeplitz system whose first column
// is m (length N) against right-hand side y, returning the solution taps
// x. It reports ok=false when |m[0]| < eps^2 or the recursion's
// forward/backward reflection coefficient drives the determinant to
// collapse (the same failure modes the source's levinson.cpp guards).
func LevinsonDurbin(m []complex128, y []complex128, eps float64) (x []complex128, ok bool) {
	n := len(m)
	if n == 0 || len(y) != n {
		return nil, false
	}
	if cmplx.Abs(m[0]) < eps*eps {
		return nil, false
	}

	f := make([]complex128, n) // forward predictor
	b := make([]complex128, n) // backward predictor
	x = make([]complex128, n)

	f[0] = 1 / m[0]
	b[0] = 1 / m[0]
	x[0] = y[0] / m[0]

	for k := 1; k < n; k++ {
		// Forward/backward errors.
		var efPrev, ebPrev complex128
		for j := 0; j < k; j++ {
			efPrev += m[j+1] * f[j]
			ebPrev += cmplx.Conj(m[k-j]) * b[j]
		}

		denom := 1 - efPrev*ebPrev
		if cmplx.Abs(denom) < eps*eps {
			return nil, false
		}

		newF := make([]complex128, k+1)
		newB := make([]complex128, k+1)
		for j := 0; j < k; j++ {
			newF[j] = (f[j] - efPrev*b[k-1-j]) / denom
			newB[j+1] = (b[j] - ebPrev*f[k-1-j]) / denom
		}
		newF[k] = -efPrev * b[0] / denom
		newB[0] = -ebPrev * f[0] / denom
		copy(f[:k+1], newF)
		copy(b[:k+1], newB)

		// Update the solution with the new RHS entry.
		var ex complex128
		for j := 0; j < k; j++ {
			ex += m[j+1] * x[j]
		}
		newX := make([]complex128, k+1)
		for j := 0; j < k; j++ {
			newX[j] = x[j] + (y[k]-ex)*b[k-1-j]
		}
		newX[k] = (y[k] - ex) * b[0]
		copy(x[:k+1], newX)
	}
	return x, true
}
