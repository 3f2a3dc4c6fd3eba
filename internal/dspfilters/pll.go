package dspfilters

import (
	"math"

	"github.com/openfmrx/hvylya/internal/pipeline"
	"github.com/openfmrx/hvylya/internal/simd"
)

// PLLGenerator tracks the 19kHz pilot tone with a critically-damped
// second-order loop, emitting (cos phi, sin phi) as a complex sample per
// input sample, grounded on pll_generator.cpp.
type PLLGenerator struct {
	in  *pipeline.Reader[complex64]
	out *pipeline.RingBuffer[complex64]

	sampleRate  float64
	phase       float64
	freq        float64 // current estimated frequency, rad/sample
	minFreq     float64
	maxFreq     float64
	alpha, beta float64 // loop filter coefficients (proportional + integral)

	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

// NewPLLGenerator configures a PLL with the given nominal center
// frequency and loop bandwidth (both Hz), critically damped (zeta=1).
func NewPLLGenerator(in *pipeline.Reader[complex64], out *pipeline.RingBuffer[complex64], sampleRate, centerFreq, loopBandwidthHz, freqTolHz float64) *PLLGenerator {
	wn := 2 * math.Pi * loopBandwidthHz / sampleRate
	const zeta = 1.0
	alpha := 2 * zeta * wn
	beta := wn * wn

	p := &PLLGenerator{
		in: in, out: out,
		sampleRate: sampleRate,
		freq:       2 * math.Pi * centerFreq / sampleRate,
		minFreq:    2 * math.Pi * (centerFreq - freqTolHz) / sampleRate,
		maxFreq:    2 * math.Pi * (centerFreq + freqTolHz) / sampleRate,
		alpha:      alpha,
		beta:       beta,
	}
	p.inPort = pipeline.InputPort{Edge: in, RequiredSize: 1, SuggestedSize: 256}
	p.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	return p
}

func (p *PLLGenerator) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{p.inPort} }
func (p *PLLGenerator) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{p.outPort} }
func (p *PLLGenerator) Reset()                         { p.out.Reset() }

func (p *PLLGenerator) Process() error {
	n := p.in.AvailableSize()
	if room := p.out.AvailableWriteRoom(); n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}
	src := p.in.ReadSlice()
	dst := p.out.WriteSlice()
	for i := 0; i < n; i++ {
		localOsc := complex(simd.ApproxCos(p.phase), simd.ApproxSin(p.phase))
		err := imagPart(complex128(src[i]) * conj128(localOsc))

		p.freq += p.beta * err
		if p.freq < p.minFreq {
			p.freq = p.minFreq
		}
		if p.freq > p.maxFreq {
			p.freq = p.maxFreq
		}
		p.phase += p.freq + p.alpha*err
		p.phase = wrapPhase(p.phase)

		dst[i] = complex64(localOsc)
	}
	p.in.Advance(n)
	p.out.Advance(n)
	if p.in.EOF() {
		p.out.SetEOF()
	}
	return nil
}

func imagPart(c complex128) float64 { return imag(c) }
func conj128(c complex128) complex128 { return complex(real(c), -imag(c)) }

func wrapPhase(phase float64) float64 {
	for phase > math.Pi {
		phase -= 2 * math.Pi
	}
	for phase < -math.Pi {
		phase += 2 * math.Pi
	}
	return phase
}
