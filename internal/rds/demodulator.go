package rds

import (
	"math"

	"github.com/openfmrx/hvylya/internal/pipeline"
	"github.com/openfmrx/hvylya/internal/simd"
)

// demodAveragingWindow matches the source's 50000-sample running-sum
// window used to pick the I/Q phase that actually carries the RDS
// baseband (the Costas/PLL recovery has a 180-degree ambiguity the
// demodulator resolves by comparing long-run amplitude).
const demodAveragingWindow = 50000

// demodSkipRate amortises the phase re-evaluation once a phase has been
// locked onto, matching ADJUST_RDS_CARRIER_PHASE-disabled path's SkipRate.
const demodSkipRate = 10

// Demodulator multiplies the RDS subcarrier band by the recovered
// 57kHz carrier (real or imaginary branch, whichever historically
// carries more energy) to produce a baseband BPSK waveform, grounded on
// rds_demodulator.{h,cpp}.
type Demodulator struct {
	rds     *pipeline.Reader[float32]
	carrier *pipeline.Reader[complex64]
	out     *pipeline.RingBuffer[float32]

	amplitude       [2]*simd.RunningSum
	bestPhase       int
	bestPhaseFound  bool
	skippedSamples  int

	rdsPort     pipeline.InputPort
	carrierPort pipeline.InputPort
	outPort     pipeline.OutputPort
}

func NewDemodulator(rds *pipeline.Reader[float32], carrier *pipeline.Reader[complex64], out *pipeline.RingBuffer[float32]) *Demodulator {
	sumReal, _ := simd.NewRunningSum(demodAveragingWindow, 1e-12)
	sumImag, _ := simd.NewRunningSum(demodAveragingWindow, 1e-12)
	d := &Demodulator{rds: rds, carrier: carrier, out: out, amplitude: [2]*simd.RunningSum{sumReal, sumImag}}
	d.rdsPort = pipeline.InputPort{Edge: rds, RequiredSize: 1, SuggestedSize: 256}
	d.carrierPort = pipeline.InputPort{Edge: carrier, RequiredSize: 1, SuggestedSize: 256}
	d.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	return d
}

func (d *Demodulator) Inputs() []pipeline.InputPort {
	return []pipeline.InputPort{d.rdsPort, d.carrierPort}
}
func (d *Demodulator) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{d.outPort} }

func (d *Demodulator) Reset() {
	d.skippedSamples = 0
	d.bestPhaseFound = false
	sumReal, _ := simd.NewRunningSum(demodAveragingWindow, 1e-12)
	sumImag, _ := simd.NewRunningSum(demodAveragingWindow, 1e-12)
	d.amplitude = [2]*simd.RunningSum{sumReal, sumImag}
	d.out.Reset()
}

func (d *Demodulator) Process() error {
	n := d.rds.AvailableSize()
	if m := d.carrier.AvailableSize(); m < n {
		n = m
	}
	if room := d.out.AvailableWriteRoom(); n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}

	rdsSrc := d.rds.ReadSlice()
	carrierSrc := d.carrier.ReadSlice()
	dst := d.out.WriteSlice()

	for i := 0; i < n; i++ {
		rdsValue := rdsSrc[i]
		carrier := carrierSrc[i]

		if d.bestPhaseFound && d.skippedSamples < demodSkipRate {
			if d.bestPhase == 0 {
				dst[i] = real(carrier) * rdsValue
			} else {
				dst[i] = imag(carrier) * rdsValue
			}
			d.skippedSamples++
			continue
		}

		demodReal := real(carrier) * rdsValue
		demodImag := imag(carrier) * rdsValue

		d.amplitude[0].Add(float64(math.Abs(float64(demodReal))))
		d.amplitude[1].Add(float64(math.Abs(float64(demodImag))))

		if d.amplitude[0].Sum() > d.amplitude[1].Sum() {
			d.bestPhase = 0
		} else {
			d.bestPhase = 1
		}
		if d.amplitude[0].Filled() >= demodAveragingWindow {
			d.bestPhaseFound = true
		}

		if d.bestPhase == 0 {
			dst[i] = demodReal
		} else {
			dst[i] = demodImag
		}
		d.skippedSamples = 0
	}

	d.rds.Advance(n)
	d.carrier.Advance(n)
	d.out.Advance(n)
	if d.rds.EOF() || d.carrier.EOF() {
		d.out.SetEOF()
	}
	return nil
}
