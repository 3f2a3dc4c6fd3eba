package dspfilters

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfmrx/hvylya/internal/pipeline"
)

func buildFIRChain(taps []float64, decim int, compensateDelay bool) (*pipeline.RingBuffer[float32], *FIR[float32], *pipeline.RingBuffer[float32]) {
	src := pipeline.NewRingBuffer[float32](4096, 0, len(taps), decim, 1)
	reader := pipeline.Connect[float32](src, len(taps)-1, decim*64)
	dst := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	f := NewFIR[float32](reader, dst, taps, decim, compensateDelay)
	return src, f, dst
}

func TestFIRPassesDCGainThroughUnitImpulse(t *testing.T) {
	taps := []float64{0.25, 0.5, 0.25}
	src, f, dst := buildFIRChain(taps, 1, true)
	dstReader := dst.AddReader(0, 1)

	src.Reset()
	room := src.AvailableWriteRoom()
	require.Greater(t, room, 10)
	w := src.WriteSlice()
	for i := range w[:10] {
		w[i] = 0
	}
	w[4] = 1 // unit impulse somewhere safely inside history+available
	src.Advance(10)
	src.SetEOF()

	require.NoError(t, f.Process())

	// The taps sum to 1, so the impulse response sums to the DC gain.
	var sum float64
	for _, v := range dstReader.ReadSlice() {
		sum += float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestFMDiscriminatorRecoversConstantFrequency(t *testing.T) {
	const n = 2000
	const sampleRate = 48000.0
	const toneFreq = 3000.0
	const bandwidth = 75000.0

	src := pipeline.NewRingBuffer[complex64](n+16, 0, 1, 8, 1)
	reader := pipeline.Connect[complex64](src, 1, 256)
	dst := pipeline.NewRingBuffer[float32](n+16, 0, 0, 1, 1)
	disc := NewFMDiscriminator(reader, dst, sampleRate, bandwidth)

	src.Reset()
	w := src.WriteSlice()
	step := cmplx.Exp(complex(0, 2*math.Pi*toneFreq/sampleRate))
	phase := complex(1, 0)
	for i := 0; i < n; i++ {
		w[i] = complex64(phase)
		phase *= step
	}
	src.Advance(n)
	src.SetEOF()

	require.NoError(t, disc.Process())

	dstReader := dst.AddReader(0, 1)
	out := dstReader.ReadSlice()
	require.GreaterOrEqual(t, len(out), n-2)

	var mean float64
	for _, v := range out[n/2 : n-2] {
		mean += float64(v)
	}
	mean /= float64(len(out[n/2 : n-2]))

	expectedGain := sampleRate / (4 * bandwidth)
	// Phase step per sample in units of pi/2, the range NormalizedAtan2 reports in.
	expectedOutput := expectedGain * (4 * toneFreq / sampleRate)
	assert.InDelta(t, expectedOutput, mean, 0.05)
}

func TestResamplerProducesExpectedRateRatio(t *testing.T) {
	const interp, decim = 3, 2
	taps := make([]float64, 30)
	for i := range taps {
		taps[i] = 1.0 / float64(len(taps))
	}

	const n = 600
	src := pipeline.NewRingBuffer[float32](n+64, 0, len(taps), 1, 1)
	reader := pipeline.Connect[float32](src, (len(taps)+interp-1)/interp-1, 64)
	dst := pipeline.NewRingBuffer[float32](n*interp/decim+64, 0, 0, 1, 1)
	r := NewResampler[float32](reader, dst, taps, interp, decim)

	src.Reset()
	w := src.WriteSlice()
	for i := 0; i < n; i++ {
		w[i] = float32(math.Sin(float64(i)))
	}
	src.Advance(n)
	src.SetEOF()

	require.NoError(t, r.Process())

	dstReader := dst.AddReader(0, 1)
	produced := dstReader.AvailableSize()
	approxExpected := n * interp / decim
	assert.InDelta(t, approxExpected, produced, float64(interp+decim))
}

func TestRotatorPreservesMagnitude(t *testing.T) {
	const n = 5000
	src := pipeline.NewRingBuffer[complex64](n+8, 0, 0, 1, 1)
	reader := pipeline.Connect[complex64](src, 0, 256)
	dst := pipeline.NewRingBuffer[complex64](n+8, 0, 0, 1, 1)
	rot := NewRotator(reader, dst, 0.013)

	src.Reset()
	w := src.WriteSlice()
	for i := range w[:n] {
		w[i] = complex(1, 0)
	}
	src.Advance(n)
	src.SetEOF()

	require.NoError(t, rot.Process())

	dstReader := dst.AddReader(0, 1)
	out := dstReader.ReadSlice()
	for _, v := range out {
		assert.InDelta(t, 1.0, cmplx.Abs(complex128(v)), 1e-6)
	}
}

func TestCMAEqualizerConvergesToSingleActiveTapOnCleanChannel(t *testing.T) {
	const tapsCount = 8 // power of two, per taps_count_mask_ invariant
	const n = 20000

	src := pipeline.NewRingBuffer[complex64](n+8, 0, 0, 1, 1)
	reader := pipeline.Connect[complex64](src, 0, 256)
	dst := pipeline.NewRingBuffer[complex64](n+8, 0, 0, 1, 1)
	eq := NewCMAEqualizer(reader, dst, tapsCount)

	src.Reset()
	w := src.WriteSlice()
	for i := range w[:n] {
		angle := 0.37 * float64(i)
		w[i] = complex64(cmplx.Exp(complex(0, angle)))
	}
	src.Advance(n)
	src.SetEOF()

	require.NoError(t, eq.Process())

	// On a clean unit-modulus channel with no multipath, the equalizer
	// should keep the direct-path tap dominant and every echo tap small.
	assert.Equal(t, 1, eq.tapsEnabledCount, "expected every echo tap to stay disabled on a clean channel")
}

func TestDeemphasizerIsUnityGainAtDC(t *testing.T) {
	const n = 1000
	src := pipeline.NewRingBuffer[float32](n+8, 0, 0, 1, 1)
	reader := pipeline.Connect[float32](src, 0, 256)
	dst := pipeline.NewRingBuffer[float32](n+8, 0, 0, 1, 1)
	d := NewDeemphasizer(reader, dst, 192000, 50e-6)

	src.Reset()
	w := src.WriteSlice()
	for i := range w[:n] {
		w[i] = 1
	}
	src.Advance(n)
	src.SetEOF()

	require.NoError(t, d.Process())

	dstReader := dst.AddReader(0, 1)
	out := dstReader.ReadSlice()
	assert.InDelta(t, 1.0, float64(out[len(out)-1]), 1e-3)
}
