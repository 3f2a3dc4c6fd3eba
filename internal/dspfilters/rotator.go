package dspfilters

import (
	"math"
	"math/cmplx"

	"github.com/openfmrx/hvylya/internal/pipeline"
)

// renormalizeEvery matches the source's "every 256*SIMD_lanes samples"
// cadence; with no real SIMD lanes to multiply by, 256*8 stands in for
// the widest register class the source specialised.
const renormalizeEvery = 256 * 8

// Rotator multiplies complex samples by a constant-frequency unit
// rotation, periodically renormalising to counter phase drift from
// repeated floating-point multiplication.
type Rotator struct {
	in      *pipeline.Reader[complex64]
	out     *pipeline.RingBuffer[complex64]
	step    complex128
	phase   complex128
	since   int
	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

// NewRotator builds a rotator for a constant normalized frequency
// (cycles/sample).
func NewRotator(in *pipeline.Reader[complex64], out *pipeline.RingBuffer[complex64], freq float64) *Rotator {
	r := &Rotator{
		in:    in,
		out:   out,
		step:  cmplx.Exp(complex(0, 2*math.Pi*freq)),
		phase: complex(1, 0),
	}
	r.inPort = pipeline.InputPort{Edge: in, RequiredSize: 1, SuggestedSize: 256}
	r.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	return r
}

func (r *Rotator) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{r.inPort} }
func (r *Rotator) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{r.outPort} }
func (r *Rotator) Reset() {
	r.phase = complex(1, 0)
	r.since = 0
	r.out.Reset()
}

func (r *Rotator) Process() error {
	n := r.in.AvailableSize()
	if room := r.out.AvailableWriteRoom(); n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}
	src := r.in.ReadSlice()
	dst := r.out.WriteSlice()
	for i := 0; i < n; i++ {
		r.phase *= r.step
		r.since++
		if r.since >= renormalizeEvery {
			mag := cmplx.Abs(r.phase)
			if mag > 0 {
				r.phase /= complex(mag, 0)
			}
			r.since = 0
		}
		dst[i] = complex64(complex128(src[i]) * r.phase)
	}
	r.in.Advance(n)
	r.out.Advance(n)
	if r.in.EOF() {
		r.out.SetEOF()
	}
	return nil
}

// CreateTranslatedTaps pre-multiplies a set of real taps by a complex
// exponential at the given normalized frequency, for use by an
// FFT-translating filter that selects an off-center channel.
func CreateTranslatedTaps(taps []float64, freq float64) []complex128 {
	out := make([]complex128, len(taps))
	for n, t := range taps {
		out[n] = complex(t, 0) * cmplx.Exp(complex(0, 2*math.Pi*freq*float64(n)))
	}
	return out
}
