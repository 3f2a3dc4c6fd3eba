package dspfilters

import (
	"math/cmplx"

	"github.com/openfmrx/hvylya/internal/pipeline"
)

// CostasLoop is a 2nd-order suppressed-carrier tracking loop used to
// recover the phase of the RDS 57kHz subcarrier, grounded on
// costas_loop.cpp. State is a unit-magnitude rotation plus a one-pole
// lowpass (IIR) applied independently to the real and imaginary mixer
// outputs to form the phase-error discriminant.
type CostasLoop struct {
	in  *pipeline.Reader[complex64]
	out *pipeline.RingBuffer[complex64]

	rotation complex128
	gain     float64
	lpAlpha  float64
	iirReal  float64
	iirImag  float64

	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

func NewCostasLoop(in *pipeline.Reader[complex64], out *pipeline.RingBuffer[complex64], phaseErrorGain, lowpassAlpha float64) *CostasLoop {
	c := &CostasLoop{
		in: in, out: out,
		rotation: complex(1, 0),
		gain:     phaseErrorGain,
		lpAlpha:  lowpassAlpha,
	}
	c.inPort = pipeline.InputPort{Edge: in, RequiredSize: 1, SuggestedSize: 256}
	c.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	return c
}

func (c *CostasLoop) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{c.inPort} }
func (c *CostasLoop) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{c.outPort} }
func (c *CostasLoop) Reset() {
	c.rotation = complex(1, 0)
	c.iirReal, c.iirImag = 0, 0
	c.out.Reset()
}

func (c *CostasLoop) lowpass(prev *float64, sample float64) float64 {
	*prev = c.lpAlpha*sample + (1-c.lpAlpha)*(*prev)
	return *prev
}

func (c *CostasLoop) Process() error {
	n := c.in.AvailableSize()
	if room := c.out.AvailableWriteRoom(); n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}
	src := c.in.ReadSlice()
	dst := c.out.WriteSlice()
	for i := 0; i < n; i++ {
		x := complex128(src[i])
		rotated := x * c.rotation

		re := c.lowpass(&c.iirReal, real(rotated)*real(rotated))
		im := c.lowpass(&c.iirImag, -imag(rotated)*imag(rotated))
		phaseError := re * im

		c.rotation *= cmplx.Exp(complex(0, -c.gain*phaseError))
		if mag := cmplx.Abs(c.rotation); mag > 0 {
			c.rotation /= complex(mag, 0)
		}

		dst[i] = complex64(rotated)
	}
	c.in.Advance(n)
	c.out.Advance(n)
	if c.in.EOF() {
		c.out.SetEOF()
	}
	return nil
}
