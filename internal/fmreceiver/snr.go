package fmreceiver

import (
	"math"

	"github.com/openfmrx/hvylya/internal/pipeline"
	"github.com/openfmrx/hvylya/internal/simd"
)

// snrStep is how many input samples the estimator consumes for every SNR
// value it emits, grounded on fm_snr_estimator.cpp's update_rate/snr_rate
// ratio.
func snrStep(updateRate, snrRate int) int {
	return updateRate / snrRate
}

// SnrEstimator compares the power of a narrowband signal sample stream
// against a co-located noise-floor sample stream, correcting for the
// differing integration bandwidths of the two, grounded on
// fm_snr_estimator.{h,cpp}.
type SnrEstimator struct {
	signal *pipeline.Reader[float32]
	noise  *pipeline.Reader[float32]
	out    *pipeline.RingBuffer[float32]

	noiseMultiplier float64
	step            int

	powerSignal *simd.RunningSum
	powerNoise  *simd.RunningSum

	signalPort pipeline.InputPort
	noisePort  pipeline.InputPort
	outPort    pipeline.OutputPort
}

// NewSnrEstimator mirrors FmSnrEstimator's constructor: pass centerFreq==0
// for a lowpass signal band (mono audio, noise floor), non-zero for a
// bandpass one (pilot, stereo subcarrier, RDS subcarrier).
func NewSnrEstimator(
	signal, noise *pipeline.Reader[float32],
	out *pipeline.RingBuffer[float32],
	centerFreq, bandwidth, stopband float64,
	noiseExtractorFreq, noiseExtractorBandwidth, noiseExtractorStopband float64,
	updateRate, snrRate int,
) *SnrEstimator {
	var freqMultiplier, effectiveBandwidth float64
	if centerFreq == 0 {
		freqMultiplier = stopband / (2 * noiseExtractorFreq)
		effectiveBandwidth = (bandwidth + stopband) / 2
	} else {
		freqMultiplier = centerFreq / noiseExtractorFreq
		effectiveBandwidth = bandwidth + stopband
	}
	bandwidthMultiplier := effectiveBandwidth / (noiseExtractorBandwidth + noiseExtractorStopband)

	step := snrStep(updateRate, snrRate)
	powerSignal, _ := simd.NewRunningSum(step, 1e-12)
	powerNoise, _ := simd.NewRunningSum(step, 1e-12)

	e := &SnrEstimator{
		signal:          signal,
		noise:           noise,
		out:             out,
		noiseMultiplier: freqMultiplier * freqMultiplier * bandwidthMultiplier,
		step:            step,
		powerSignal:     powerSignal,
		powerNoise:      powerNoise,
	}
	e.signalPort = pipeline.InputPort{Edge: signal, RequiredSize: step, SuggestedSize: step * 4}
	e.noisePort = pipeline.InputPort{Edge: noise, RequiredSize: step, SuggestedSize: step * 4}
	e.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 1}
	return e
}

func (e *SnrEstimator) Inputs() []pipeline.InputPort {
	return []pipeline.InputPort{e.signalPort, e.noisePort}
}
func (e *SnrEstimator) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{e.outPort} }

func (e *SnrEstimator) Reset() {
	powerSignal, _ := simd.NewRunningSum(e.step, 1e-12)
	powerNoise, _ := simd.NewRunningSum(e.step, 1e-12)
	e.powerSignal = powerSignal
	e.powerNoise = powerNoise
	e.out.Reset()
}

func (e *SnrEstimator) Process() error {
	n := e.signal.AvailableSize()
	if m := e.noise.AvailableSize(); m < n {
		n = m
	}
	if room := e.out.AvailableWriteRoom() * e.step; n > room {
		n = room
	}
	n -= n % e.step
	if n <= 0 {
		return nil
	}

	signalSrc := e.signal.ReadSlice()
	noiseSrc := e.noise.ReadSlice()
	dst := e.out.WriteSlice()

	outIndex := 0
	for i := 0; i < n; i++ {
		s := float64(signalSrc[i])
		no := float64(noiseSrc[i])
		e.powerSignal.Add(s * s)
		e.powerNoise.Add(no * no)

		if (i+1)%e.step == 0 {
			avgSignal, _ := e.powerSignal.Avg()
			avgNoise, _ := e.powerNoise.Avg()
			powerSignal := math.Max(math.SmallestNonzeroFloat64, avgSignal)
			powerNoise := e.noiseMultiplier * avgNoise
			dst[outIndex] = float32(10 * math.Log10(powerSignal/powerNoise))
			outIndex++
		}
	}

	e.signal.Advance(n)
	e.noise.Advance(n)
	e.out.Advance(outIndex)
	if e.signal.EOF() || e.noise.EOF() {
		e.out.SetEOF()
	}
	return nil
}
