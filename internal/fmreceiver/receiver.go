// Package fmreceiver wires the SIMD kernels, DSP filters and RDS decoder
// into the fixed ~20-block FM/RDS processing graph, grounded on
// fm_receiver.{h,cpp}.
package fmreceiver

import (
	"time"

	"github.com/openfmrx/hvylya/internal/dspfilters"
	"github.com/openfmrx/hvylya/internal/pipeline"
	"github.com/openfmrx/hvylya/internal/rds"
	"github.com/openfmrx/hvylya/internal/taps"
)

// Sampling rates and ratios the graph is built around; re-exported from
// internal/taps so callers never need to import it just to pick a ring
// buffer size.
const (
	InputSamplingRate             = taps.InputSamplingRate
	IntermediateSamplingRate      = taps.IntermediateSamplingRate
	IntermediateAudioSamplingRate = taps.IntermediateAudioSamplingRate
	OutputAudioSamplingRate       = taps.OutputAudioSamplingRate
)

const (
	fmEqualizerTapsCount = 32

	noiseSamplingRate = 5000
	snrRate           = 10

	// Hz equivalent of the source's 0.001 rad/sample pilot PLL loop bandwidth.
	pllLoopBandwidthHz = 0.001 * IntermediateSamplingRate / (2 * 3.141592653589793)

	deemphasisTauSeconds = 50e-6 // Europe/World; US receivers use 75e-6
)

var (
	noiseSamplingRatio      = IntermediateSamplingRate / noiseSamplingRate
	noiseAudioSamplingRatio = IntermediateAudioSamplingRate / noiseSamplingRate
)

// resamplerHistory returns the per-polyphase-branch tap count minus one,
// i.e. the HistorySize a Resampler built from tapsCount taps at the given
// interpolation rate declares on its input port.
func resamplerHistory(tapsCount, interpolationRate int) int {
	return (tapsCount+interpolationRate-1)/interpolationRate - 1
}

// Receiver is the composite filter that takes a 1Msps complex baseband
// stream and produces a 48kHz stereo audio pair plus a continuously
// updated RDS decode, grounded on fm_receiver.{h,cpp}'s FmReceiver.
type Receiver struct {
	pipeline *pipeline.Pipeline

	bandIn *pipeline.RingBuffer[complex64]

	audioLeft  *pipeline.Reader[float32]
	audioRight *pipeline.Reader[float32]

	stereoWeight *dspfilters.AtomicFloat

	rdsDecoder       *rds.Decoder
	rdsGroupsDecoder *rds.GroupsDecoder

	pilotSnrAtomic, monoSnrAtomic, stereoSnrAtomic, rdsSnrAtomic *dspfilters.AtomicFloat
}

// New builds the full graph and registers every block on a fresh
// pipeline, sized for the given worker count (typically
// runtime.NumCPU()).
func New(workers int) *Receiver {
	p := pipeline.New(workers)
	r := &Receiver{pipeline: p, stereoWeight: dspfilters.NewAtomicFloat(0.5)}

	// --- FM front end: band-select, equalize, discriminate, decimate. ---
	bandTapsHistory := len(taps.FmBasebandTaps) - 1
	r.bandIn = pipeline.NewRingBuffer[complex64](4096, 0, bandTapsHistory, 1, 1)
	bandInReader := pipeline.Connect[complex64](r.bandIn, bandTapsHistory, 1024)

	bandOut := pipeline.NewRingBuffer[complex64](4096, 0, 0, 8, 1)
	p.Add("fm_band_filter", dspfilters.NewFFTFilter[complex64](bandInReader, bandOut, taps.FmBasebandTaps, 1, true))

	eqOut := pipeline.NewRingBuffer[complex64](4096, 0, 1, 8, 1)
	p.Add("fm_equalizer", dspfilters.NewCMAEqualizer(pipeline.Connect[complex64](bandOut, 0, 1024), eqOut, fmEqualizerTapsCount))

	discOut := pipeline.NewRingBuffer[float32](4096, 0, 0, 8, 1)
	p.Add("fm_discriminator", dspfilters.NewFMDiscriminator(pipeline.Connect[complex64](eqOut, 1, 1024), discOut, InputSamplingRate, taps.FmChannelBandwidth))

	decimTapsHistory := len(taps.FmDemodDecimatorTaps) - 1
	intermOverlap := maxInt(len(taps.MonoDecimatorTaps)-1, len(taps.StereoPilotBandpassTaps)-1, len(taps.StereoBandpassTaps)-1, len(taps.RdsBandpassTaps)-1, len(taps.NoiseExtractorTaps)-1)
	intermOut := pipeline.NewRingBuffer[float32](8192, 0, intermOverlap, 1, 1)
	p.Add("decimator_interm", dspfilters.NewFIR[float32](pipeline.Connect[float32](discOut, decimTapsHistory, 1024), intermOut, taps.FmDemodDecimatorTaps, taps.IntermediateDecimationRatio, false))

	// --- Five consumers fan out from the intermediate-rate stream. ---
	monoOut := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	p.Add("audio_mono_decimator", dspfilters.NewFFTFilter[float32](intermOut.AddReader(len(taps.MonoDecimatorTaps)-1, 1024), monoOut, taps.MonoDecimatorTaps, taps.AudioDecimationRatio, true))

	pilotOut := pipeline.NewRingBuffer[complex64](4096, 0, 0, 1, 1)
	p.Add("stereo_pilot_filter", dspfilters.NewFFTTranslatingFilter[float32](intermOut.AddReader(len(taps.StereoPilotBandpassTaps)-1, 1024), pilotOut, taps.StereoPilotBandpassTaps, taps.StereoPilotFrequency, 1, true))

	stereoBpOut := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	p.Add("stereo_bandpass_filter", dspfilters.NewFFTFilter[float32](intermOut.AddReader(len(taps.StereoBandpassTaps)-1, 1024), stereoBpOut, taps.StereoBandpassTaps, 1, true))

	rdsBpOut := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	p.Add("rds_bandpass_filter", dspfilters.NewFFTFilter[float32](intermOut.AddReader(len(taps.RdsBandpassTaps)-1, 1024), rdsBpOut, taps.RdsBandpassTaps, 1, true))

	noiseOut := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	p.Add("noise_extractor_filter", dspfilters.NewFFTFilter[float32](intermOut.AddReader(len(taps.NoiseExtractorTaps)-1, 1024), noiseOut, taps.NoiseExtractorTaps, 1, true))

	// --- Pilot PLL, tripled to recover the 57kHz RDS carrier. ---
	pllOut := pipeline.NewRingBuffer[complex64](4096, 0, 0, 1, 1)
	p.Add("pll_generator", dspfilters.NewPLLGenerator(pipeline.Connect[complex64](pilotOut, 0, 1024), pllOut, IntermediateSamplingRate, taps.StereoPilotFrequency, pllLoopBandwidthHz, taps.StereoPilotBandwidth))

	// --- Stereo path. ---
	sideDecHistory := len(taps.StereoDecimatorTaps) - 1
	sideOut := pipeline.NewRingBuffer[float32](4096, 0, sideDecHistory, 1, 1)
	p.Add("fm_stereo_extractor", dspfilters.NewStereoExtractor(pllOut.AddReader(0, 1024), pipeline.Connect[float32](stereoBpOut, 0, 1024), sideOut))

	sideDecOut := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	p.Add("audio_stereo_decimator", dspfilters.NewFIR[float32](pipeline.Connect[float32](sideOut, sideDecHistory, 1024), sideDecOut, taps.StereoDecimatorTaps, taps.AudioDecimationRatio, true))

	leftSumOut := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	rightDiffOut := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	p.Add("fm_stereo_demultiplexer", dspfilters.NewStereoDemultiplexer(monoOut.AddReader(0, 1024), sideDecOut.AddReader(0, 1024), leftSumOut, rightDiffOut, r.stereoWeight))

	leftDeemph := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	rightDeemph := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	p.Add("deemphasizer_left", dspfilters.NewDeemphasizer(pipeline.Connect[float32](leftSumOut, 0, 1024), leftDeemph, IntermediateAudioSamplingRate, deemphasisTauSeconds))
	p.Add("deemphasizer_right", dspfilters.NewDeemphasizer(pipeline.Connect[float32](rightDiffOut, 0, 1024), rightDeemph, IntermediateAudioSamplingRate, deemphasisTauSeconds))

	resamplerTapsHistory := resamplerHistory(len(taps.AudioResamplerTaps), taps.AudioResamplerInterpolationRatio)
	leftAudio := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	rightAudio := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	p.Add("resampler_left", dspfilters.NewResampler[float32](pipeline.Connect[float32](leftDeemph, resamplerTapsHistory, 1024), leftAudio, taps.AudioResamplerTaps, taps.AudioResamplerInterpolationRatio, taps.AudioResamplerDecimationRatio))
	p.Add("resampler_right", dspfilters.NewResampler[float32](pipeline.Connect[float32](rightDeemph, resamplerTapsHistory, 1024), rightAudio, taps.AudioResamplerTaps, taps.AudioResamplerInterpolationRatio, taps.AudioResamplerDecimationRatio))

	r.audioLeft = leftAudio.AddReader(0, 1024)
	r.audioRight = rightAudio.AddReader(0, 1024)

	// --- RDS path: carrier recovery from the tripled pilot, demodulate, shape, decode. ---
	pilotCarrierOut := pipeline.NewRingBuffer[complex64](4096, 0, 0, 1, 1)
	p.Add("pilot_trippler", pipeline.NewMapperFilter[complex64, complex64](pllOut.AddReader(0, 1024), pilotCarrierOut, 1024, func(c complex64) complex64 { return c * c * c }))

	rdsDemodOut := pipeline.NewRingBuffer[float32](4096, 0, len(taps.RdsDemodulatedTaps)-1, 1, 1)
	p.Add("rds_demodulator", rds.NewDemodulator(pipeline.Connect[float32](rdsBpOut, 0, 1024), pilotCarrierOut.AddReader(0, 1024), rdsDemodOut))

	rdsShapedOut := pipeline.NewRingBuffer[float32](4096, 0, len(taps.RdsSymbolShapeTaps)-1, 1, 1)
	p.Add("rds_demodulated_filter", dspfilters.NewFFTFilter[float32](pipeline.Connect[float32](rdsDemodOut, len(taps.RdsDemodulatedTaps)-1, 1024), rdsShapedOut, taps.RdsDemodulatedTaps, 1, true))

	rdsSymbolOut := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	// Symbol shape matching deliberately skips delay compensation, per the source: it must match at the symbol's end, not its center.
	p.Add("rds_symbol_shape_filter", dspfilters.NewFFTFilter[float32](pipeline.Connect[float32](rdsShapedOut, len(taps.RdsSymbolShapeTaps)-1, 1024), rdsSymbolOut, taps.RdsSymbolShapeTaps, 1, false))

	rdsBitsOut := pipeline.NewRingBuffer[int8](4096, 0, 0, 1, 1)
	p.Add("rds_bits_decoder", rds.NewBitsDecoder(pipeline.Connect[float32](rdsSymbolOut, 0, 1024), pllOut.AddReader(0, 1024), rdsBitsOut))

	rdsGroupsOut := pipeline.NewRingBuffer[rds.Group](256, 0, 0, 1, 1)
	r.rdsGroupsDecoder = rds.NewGroupsDecoder(pipeline.Connect[int8](rdsBitsOut, 0, 1024), rdsGroupsOut)
	p.Add("rds_groups_decoder", r.rdsGroupsDecoder)

	r.rdsDecoder = rds.NewDecoder(rdsGroupsOut.AddReader(0, 1))
	p.Add("rds_messages_decoder", r.rdsDecoder)

	// --- SNR estimation: sample signal + noise taps down to a common rate, compare power. ---
	noiseSampled := pipeline.NewRingBuffer[float32](256, 0, 0, 1, 1)
	p.Add("noise_sampler", NewSampler(pipeline.Connect[float32](noiseOut, 0, 1024), noiseSampled, noiseSamplingRatio))

	pilotReal := pipeline.NewRingBuffer[float32](4096, 0, 0, 1, 1)
	p.Add("pilot_real_extractor", pipeline.NewMapperFilter[complex64, float32](pilotOut.AddReader(0, 1024), pilotReal, 1024, func(c complex64) float32 { return real(c) }))

	r.pilotSnrAtomic = dspfilters.NewAtomicFloat(0)
	r.wireSnr(p, "pilot", pilotReal.AddReader(0, 1024), noiseSamplingRatio, noiseSampled, taps.StereoPilotFrequency, taps.StereoPilotBandwidth, taps.StereoPilotStopband, r.pilotSnrAtomic)

	r.monoSnrAtomic = dspfilters.NewAtomicFloat(0)
	r.wireSnr(p, "mono", monoOut.AddReader(0, 1024), noiseAudioSamplingRatio, noiseSampled, 0, taps.AudioBandwidth, taps.AudioStopband, r.monoSnrAtomic)

	r.stereoSnrAtomic = dspfilters.NewAtomicFloat(0)
	r.wireSnr(p, "stereo", stereoBpOut.AddReader(0, 1024), noiseSamplingRatio, noiseSampled, 2*taps.StereoPilotFrequency, taps.AudioBandwidth, taps.AudioStopband, r.stereoSnrAtomic)

	r.rdsSnrAtomic = dspfilters.NewAtomicFloat(0)
	r.wireSnr(p, "rds", rdsBpOut.AddReader(0, 1024), noiseSamplingRatio, noiseSampled, 3*taps.StereoPilotFrequency, taps.RdsBandwidth, taps.RdsStopband, r.rdsSnrAtomic)

	return r
}

func maxInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// wireSnr samples signal down to the common noise rate, compares it
// against the already-sampled noise floor and stores the resulting SNR
// (in dB) into target, matching one {Sampler, FmSnrEstimator, SnrRecorder}
// chain from fm_receiver.cpp.
func (r *Receiver) wireSnr(
	p *pipeline.Pipeline,
	name string,
	signal *pipeline.Reader[float32],
	signalRatio int,
	noiseSampled *pipeline.RingBuffer[float32],
	centerFreq, bandwidth, stopband float64,
	target *dspfilters.AtomicFloat,
) {
	sampled := pipeline.NewRingBuffer[float32](256, 0, 0, 1, 1)
	p.Add(name+"_sampler", NewSampler(signal, sampled, signalRatio))

	snrOut := pipeline.NewRingBuffer[float32](64, 0, 0, 1, 1)
	estimator := NewSnrEstimator(
		sampled.AddReader(0, 256), noiseSampled.AddReader(0, 256), snrOut,
		centerFreq, bandwidth, stopband,
		taps.NoiseExtractorFrequency, taps.NoiseExtractorBandwidth, taps.NoiseExtractorStopband,
		noiseSamplingRate, snrRate,
	)
	p.Add(name+"_snr_estimator", estimator)
	p.Add(name+"_snr_recorder", newSnrRecorder(snrOut.AddReader(0, 1), target))
}

// Pipeline exposes the underlying scheduler for Start/Wait/Pause/Resume/Stop.
func (r *Receiver) Pipeline() *pipeline.Pipeline { return r.pipeline }

// Input is the ring buffer callers feed with 1Msps complex baseband I/Q.
func (r *Receiver) Input() *pipeline.RingBuffer[complex64] { return r.bandIn }

// AudioOutputs returns the two 48kHz float32 PCM channels (left, right).
func (r *Receiver) AudioOutputs() (left, right *pipeline.Reader[float32]) {
	return r.audioLeft, r.audioRight
}

// SetStereoWeight adjusts the blend between mono-sum and stereo-difference
// signal, 0 for forced mono, 1 for full stereo separation.
func (r *Receiver) SetStereoWeight(weight float64) { r.stereoWeight.Store(weight) }

// RdsState returns the live, continuously updated RDS decode.
func (r *Receiver) RdsState() *rds.State { return r.rdsDecoder.State() }

// RdsDecodingStats returns the block-level error-correction counters.
func (r *Receiver) RdsDecodingStats() rds.DecodingStats { return r.rdsGroupsDecoder.Stats() }

// ExpireStaleRds clears any RDS state field that hasn't been refreshed
// within its validity window, so a station re-tune or long fade doesn't
// leave stale programme/text/clock data displayed forever.
func (r *Receiver) ExpireStaleRds(now time.Time) { r.rdsDecoder.ExpireStale(now) }

// PilotSNR, MonoSNR, StereoSNR and RdsSNR return the most recently
// measured signal-to-noise ratio (in dB) for each of the four tapped
// subcarriers, updated roughly every snrRate-th of a second.
func (r *Receiver) PilotSNR() float64  { return r.pilotSnrAtomic.Load() }
func (r *Receiver) MonoSNR() float64   { return r.monoSnrAtomic.Load() }
func (r *Receiver) StereoSNR() float64 { return r.stereoSnrAtomic.Load() }
func (r *Receiver) RdsSNR() float64    { return r.rdsSnrAtomic.Load() }
