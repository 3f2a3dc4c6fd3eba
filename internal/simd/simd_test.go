package simd

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRealVectorArithmeticMatchesScalar(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(rt, "n")
		a := make([]float32, n)
		b := make([]float32, n)
		for i := range a {
			a[i] = float32(rapid.Float64Range(-100, 100).Draw(rt, "a"))
			b[i] = float32(rapid.Float64Range(-100, 100).Draw(rt, "b"))
		}
		va := RealVector[float32]{Data: append([]float32{}, a...)}
		vb := RealVector[float32]{Data: append([]float32{}, b...)}

		sum := va.Add(vb)
		for i := range a {
			require.InDelta(rt, float64(a[i]+b[i]), float64(sum.Data[i]), 1e-4)
		}

		prod := va.Mul(vb)
		for i := range a {
			require.InDelta(rt, float64(a[i]*b[i]), float64(prod.Data[i]), 1e-2)
		}
	})
}

func TestComplexMulConj(t *testing.T) {
	a := ComplexVector[complex64]{Data: []complex64{complex(1, 2), complex(-3, 4)}}
	b := ComplexVector[complex64]{Data: []complex64{complex(2, -1), complex(1, 1)}}
	got := a.MulConj(b)
	want0 := a.Data[0] * complex64(complex(real(b.Data[0]), -imag(b.Data[0])))
	require.InDelta(t, real(want0), real(got.Data[0]), 1e-5)
	require.InDelta(t, imag(want0), imag(got.Data[0]), 1e-5)
}

func TestNormalizedAtan2AgreesWithMath(t *testing.T) {
	var maxErr float64
	for i := -256; i <= 256; i++ {
		for j := -256; j <= 256; j++ {
			x := float64(i) / 16
			y := float64(j) / 16
			if x == 0 && y == 0 {
				continue
			}
			got := NormalizedAtan2(y, x) * math.Pi / 2
			want := math.Atan2(y, x)
			diff := math.Abs(got - want)
			if diff > math.Pi {
				diff = 2*math.Pi - diff
			}
			if diff > maxErr {
				maxErr = diff
			}
		}
	}
	require.Less(t, maxErr, 0.01, "normalized atan2 max error should stay within the documented bound")
}

func TestApproxSinCos(t *testing.T) {
	for i := -1024; i <= 1024; i++ {
		x := float64(i) / 1024 * math.Pi
		require.InDelta(t, math.Cos(x), ApproxCos(x), 1.5e-4)
		require.InDelta(t, math.Sin(x), ApproxSin(x), 2e-5)
	}
}

func TestRunningSumClosedForm(t *testing.T) {
	rs, err := NewRunningSum(1024, 1e-6)
	require.NoError(t, err)
	for i := 1; i <= int(1e5); i++ {
		rs.Add(math.Pi * float64(i))
	}
	// Window holds the most recent 1024 values; closed form for the sum
	// of the last 1024 integers times pi.
	last := 1e5
	first := last - 1024 + 1
	want := math.Pi * (first + last) * 1024 / 2
	require.InDelta(t, want, rs.Sum(), 50)
}

func TestRunningSumRejectsZeroWindow(t *testing.T) {
	_, err := NewRunningSum(0, 1e-6)
	require.Error(t, err)
}

func TestPolyEncodeDecodeRoundTrip(t *testing.T) {
	const generator = 0x5B9
	const genDegree = 10
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		info := uint32(r.Intn(1 << 16))
		code := PolyEncode(info, 16, generator, genDegree)
		rem := PolyRemainder(code, 26, generator, genDegree)
		require.Zero(t, rem)
	}
}
