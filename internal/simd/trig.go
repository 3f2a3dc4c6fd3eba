package simd

import "math"

// atan2Magic is the constant b from the first-quadrant rational
// approximation atan(z) ~= b*z / (z^2 - b*|z| + 1)... expressed here in
// the source's bxy-over-sum form.
const atan2Magic = 0.596227

// NormalizedAtan2 returns the angle of (y, x) in units of pi/2, in the
// range (-2, 2]. This mirrors the source's normalized_atan2: a
// first-quadrant rational approximation atan_1q = num/denom with
// num = |bxy|+y^2, denom = x^2+|bxy|+num, then a per-quadrant sign/offset
// translation from the x/y sign bits, max absolute error <= 0.002 over
// the plane.
func NormalizedAtan2(y, x float64) float64 {
	if x == 0 && y == 0 {
		return 0
	}
	bxy := atan2Magic * x * y
	if bxy < 0 {
		bxy = -bxy
	}
	num := bxy + y*y
	denom := x*x + bxy + num
	atan1q := num / denom

	switch {
	case x >= 0 && y >= 0:
		return atan1q
	case x < 0 && y >= 0:
		return 2 - atan1q
	case x < 0 && y < 0:
		return -2 + atan1q
	default: // x >= 0, y < 0
		return -atan1q
	}
}

// Atan2 is NormalizedAtan2 scaled back to radians, provided for callers
// that want the conventional range rather than the pi/2-normalized one
// the FM discriminator consumes directly.
func Atan2(y, x float64) float64 {
	return NormalizedAtan2(y, x) * math.Pi / 2
}

// ApproxCos is the source's minimax polynomial approximation of cosine,
// valid over [-pi, pi], max error <= 1.5e-4.
func ApproxCos(x float64) float64 {
	x2 := x * x
	return ((((1.90652668840074246305e-05*x2-
		1.34410769349285321733e-03)*x2+
		4.15223086250910767516e-02)*x2-
		4.99837602272995734437e-01)*x2 +
		9.99971094606182687341e-01)
}

// ApproxSin is the source's minimax polynomial approximation of sine,
// valid over [-pi, pi], max error <= 2e-5.
func ApproxSin(x float64) float64 {
	x2 := x * x
	return ((((2.17326217498596729611e-06*x2-
		1.93162796407356830500e-04)*x2+
		8.31238887417884598346e-03)*x2-
		1.66632595072086745320e-01)*x2 +
		9.99984594193494365437e-01) * x
}
