// Package taps holds the FIR prototype coefficient tables for the FM/RDS
// receiver graph. The source generates these with an offline Remez/window
// tool and bakes the result into auto-generated .cpp tables (fm_constants.h
// says as much); we don't have that generator, so the tables here are
// computed at init time with a windowed-sinc design, parameterised by the
// same center frequencies, bandwidths and stopbands the source's tables
// were designed for.
package taps

import "math"

// Sampling rates and decimation ratios, matching fm_constants.h.
const (
	InputSamplingRate            = 1000000
	IntermediateSamplingRate     = 250000
	IntermediateAudioSamplingRate = 50000
	OutputAudioSamplingRate       = 48000
	RdsSymbolRate                 = 1187.5

	IntermediateDecimationRatio     = 4
	AudioDecimationRatio            = 5
	AudioResamplerInterpolationRatio = 24
	AudioResamplerDecimationRatio    = 25
)

// Center frequencies and band edges, matching fm_constants.h.
const (
	StereoPilotFrequency    = 19000.0
	NoiseExtractorFrequency = 65000.0

	FmChannelBandwidth    = 120000.0
	FmChannelStopband     = 130000.0
	StereoPilotBandwidth  = 200.0
	StereoPilotStopband   = 2200.0
	AudioBandwidth        = 15000.0
	AudioStopband         = 17000.0
	RdsBandwidth          = 2400.0
	RdsStopband           = 3900.0
	NoiseExtractorBandwidth = 2000.0
	NoiseExtractorStopband  = 5000.0
)

// blackmanHarris evaluates the four-term Blackman-Harris window at tap i of
// n, chosen over a plain Hamming window because it gives steeper stopband
// rejection for the same tap count, which matters for the 400+ tap filters
// this package builds.
func blackmanHarris(i, n int) float64 {
	a0, a1, a2, a3 := 0.35875, 0.48829, 0.14128, 0.01168
	x := 2 * math.Pi * float64(i) / float64(n-1)
	return a0 - a1*math.Cos(x) + a2*math.Cos(2*x) - a3*math.Cos(3*x)
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// designLowpass builds an n-tap windowed-sinc lowpass FIR with cutoff
// halfway between passband and stopband edges, normalised to unit DC gain.
func designLowpass(n int, passband, stopband, sampleRate float64) []float64 {
	cutoff := (passband + stopband) / 2 / sampleRate
	taps := make([]float64, n)
	mid := float64(n-1) / 2
	var sum float64
	for i := 0; i < n; i++ {
		x := float64(i) - mid
		taps[i] = 2 * cutoff * sinc(2*cutoff*x) * blackmanHarris(i, n)
		sum += taps[i]
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

// Filter prototypes, named and sized after fm_constants.h. StereoPilotBandpassTaps
// is a real lowpass prototype; FFTTranslatingFilter shifts it to the pilot
// frequency, which is the Go equivalent of the source's direct use of
// std::complex<float> bandpass taps for that filter.
var (
	FmBasebandTaps = designLowpass(473, FmChannelBandwidth, FmChannelStopband, InputSamplingRate)

	FmDemodDecimatorTaps = designLowpass(65, IntermediateSamplingRate/2*0.9, IntermediateSamplingRate/2, InputSamplingRate)

	StereoPilotBandpassTaps = designLowpass(401, StereoPilotBandwidth, StereoPilotStopband, IntermediateSamplingRate)

	StereoBandpassTaps = designLowpass(433, AudioBandwidth, AudioStopband, IntermediateSamplingRate)

	MonoDecimatorTaps = designLowpass(433, AudioBandwidth, AudioStopband, IntermediateSamplingRate)

	StereoDecimatorTaps = designLowpass(97, AudioBandwidth, AudioStopband, IntermediateSamplingRate/AudioDecimationRatio)

	AudioResamplerTaps = designLowpass(457, OutputAudioSamplingRate/2*0.9, OutputAudioSamplingRate/2, IntermediateAudioSamplingRate*AudioResamplerInterpolationRatio)

	RdsBandpassTaps = designLowpass(593, RdsBandwidth, RdsStopband, IntermediateSamplingRate)

	RdsDemodulatedTaps = designLowpass(593, RdsBandwidth, RdsStopband, IntermediateSamplingRate)

	RdsSymbolShapeTaps = designLowpass(422, RdsSymbolRate*0.9, RdsSymbolRate*1.4, IntermediateSamplingRate)

	NoiseExtractorTaps = designLowpass(305, NoiseExtractorBandwidth, NoiseExtractorStopband, IntermediateSamplingRate)
)
