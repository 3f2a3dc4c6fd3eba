package dspfilters

import (
	"math"
	"math/cmplx"

	"github.com/openfmrx/hvylya/internal/pipeline"
)

// CMAEqualizer is a blind constant-modulus adaptive equalizer tracking
// multipath echoes of the FM baseband signal, grounded on
// cma_equalizer.{h,cpp}. The source batches taps into SIMD lanes purely
// for throughput; this keeps the per-tap scalar recurrence and drops the
// lane batching (see DESIGN.md).
type CMAEqualizer struct {
	in      *pipeline.Reader[complex64]
	out     *pipeline.RingBuffer[complex64]
	inPort  pipeline.InputPort
	outPort pipeline.OutputPort

	tapsCount int

	taps         []complex128 // raw (unregularized) estimated tap values, taps[0] is the direct-path gain inverse
	adjustedTaps []complex128 // taps actually convolved against: adjustedTaps[0]=gain, rest = -taps[i]*gain
	tapsIndices  []int        // tapsIndices[0..tapsEnabledCount) = indices into taps/outputs of enabled taps
	tapsEnabled  []bool
	tapsEnabledCount int

	outputs       []complex128 // circular history of equalizer outputs, doubled for unwrapped reads
	curOutputIdx  int

	a, b           []complex128 // decayed cross-correlation accumulators (row 0 vs every tap)
	aInterm, bInterm []complex128

	decays        []float64
	weightUpdates []float64

	tapsUpdateFreq, gainUpdateFreq, accumUpdateFreq               int
	leftUntilTapsUpdates, leftUntilGainUpdates                    int
	leftUntilDisabledTapsUpdates, leftUntilAccumUpdates            int
	accumulatedSamples                                             int

	gain             complex128
	tap0Mag2         float64
	curWeight        float64
	normWeight       float64
	tapReg           float64
	lastTapsDiff     float64
	minSamplesAccum  bool
}

const (
	cmaMinAbsValue = 1e-20

	cmaMinNormWeight  = 1e-20
	cmaMaxNormWeight  = 1e-2
	cmaNormWeightStep = 1e-2

	cmaMinTapReg  = 1e-5
	cmaMaxTapReg  = 1e-2
	cmaTapRegStep = 1e-3

	cmaTapSumCoef = 1.0 / 250.0

	cmaGainUpdateAccuracy = 1e-10
	cmaTapsUpdateAccuracy = 1e-10

	cmaGainRootAccuracy     = 1e-8
	cmaGainMaxRootIterations = 5

	cmaDecay     = 0.99999
	cmaMinWeight = 9516.0

	cmaMinTapsUpdateInterval = 10
	cmaMaxTapsUpdateInterval = 1000

	cmaMinGainUpdateInterval = 10
	cmaMaxGainUpdateInterval = 100

	cmaDisabledTapsUpdateInterval = 100

	cmaTapsFreqDivider = 50

	cmaMinChannels = 2
	cmaMaxChannels = 8
)

var cmaNormWeights = [3]float64{1.0, 0.5, 0.25}

// NewCMAEqualizer builds an equalizer with the given number of taps
// (the direct path plus tapsCount-1 candidate echo taps).
func NewCMAEqualizer(in *pipeline.Reader[complex64], out *pipeline.RingBuffer[complex64], tapsCount int) *CMAEqualizer {
	if tapsCount <= 0 {
		panic("dspfilters: CMA equalizer requires a positive tap count")
	}
	e := &CMAEqualizer{
		in: in, out: out,
		tapsCount:        tapsCount,
		taps:             make([]complex128, tapsCount),
		adjustedTaps:     make([]complex128, tapsCount),
		tapsIndices:      make([]int, tapsCount),
		tapsEnabled:      make([]bool, tapsCount),
		outputs:          make([]complex128, 2*tapsCount),
		a:                make([]complex128, tapsCount),
		b:                make([]complex128, tapsCount),
		aInterm:          make([]complex128, tapsCount),
		bInterm:          make([]complex128, tapsCount),
		decays:           make([]float64, cmaMaxTapsUpdateInterval+1),
		weightUpdates:    make([]float64, cmaMaxTapsUpdateInterval+1),
		tapsUpdateFreq:   cmaMinTapsUpdateInterval,
		gainUpdateFreq:   cmaMinGainUpdateInterval,
		accumUpdateFreq:  1,
		normWeight:       1e-5,
		tapReg:           1e-3,
	}
	e.leftUntilTapsUpdates = cmaMinTapsUpdateInterval - 1
	e.leftUntilAccumUpdates = e.accumUpdateFreq - 1
	e.taps[0] = complex(1, 0)
	e.gain = complex(1, 0)
	e.tap0Mag2 = 1
	e.tapsEnabled[0] = true
	e.tapsEnabledCount = 1
	e.adjustedTaps[0] = complex(1, 0)

	e.decays[0] = 1
	e.weightUpdates[0] = 0
	for i := 1; i <= cmaMaxTapsUpdateInterval; i++ {
		e.decays[i] = e.decays[i-1] * cmaDecay
		e.weightUpdates[i] = (1 - e.decays[i]) / (1 - cmaDecay)
	}

	e.inPort = pipeline.InputPort{Edge: in, RequiredSize: 1, SuggestedSize: 256}
	e.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	return e
}

func (e *CMAEqualizer) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{e.inPort} }
func (e *CMAEqualizer) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{e.outPort} }

func (e *CMAEqualizer) Reset() {
	*e = *NewCMAEqualizer(e.in, e.out, e.tapsCount)
	e.out.Reset()
}

func (e *CMAEqualizer) Process() error {
	n := e.in.AvailableSize()
	if room := e.out.AvailableWriteRoom(); n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}
	src := e.in.ReadSlice()
	dst := e.out.WriteSlice()

	for i := 0; i < n; i++ {
		sample := complex128(src[i])
		newOutput := e.getOutput(sample)

		e.outputs[e.curOutputIdx] = newOutput
		e.outputs[e.curOutputIdx+e.tapsCount] = newOutput
		dst[i] = complex64(newOutput)

		e.updateIntermAccumulators(sample, newOutput)

		if e.leftUntilTapsUpdates == 0 {
			e.updateAccumulators()

			if e.minSamplesAccum {
				e.updateNormWeight()

				if e.leftUntilGainUpdates == 0 {
					prevGain := e.gain
					e.updateGain()
					gainDiff := prevGain - e.gain
					if real(gainDiff)*real(gainDiff)+imag(gainDiff)*imag(gainDiff) < cmaGainUpdateAccuracy {
						e.gainUpdateFreq = minInt(cmaMaxGainUpdateInterval, e.gainUpdateFreq+1)
					} else {
						e.gainUpdateFreq = maxInt(cmaMinGainUpdateInterval, e.gainUpdateFreq-1)
					}
					e.leftUntilGainUpdates = e.gainUpdateFreq - 1
				} else {
					e.leftUntilGainUpdates--
				}

				e.lastTapsDiff = 0
				tapMagSum := e.updateTaps(e.leftUntilDisabledTapsUpdates == 0)
				e.updateTapReg(tapMagSum)

				if e.lastTapsDiff < cmaTapsUpdateAccuracy {
					e.tapsUpdateFreq = minInt(cmaMaxTapsUpdateInterval, e.tapsUpdateFreq+1)
				} else {
					e.tapsUpdateFreq = maxInt(cmaMinTapsUpdateInterval, e.tapsUpdateFreq-1)
				}

				e.accumUpdateFreq = maxInt(1, e.tapsUpdateFreq/cmaTapsFreqDivider)
				e.leftUntilAccumUpdates = e.accumUpdateFreq - 1

				if e.leftUntilDisabledTapsUpdates > 0 {
					e.leftUntilDisabledTapsUpdates--
				} else {
					e.leftUntilDisabledTapsUpdates = cmaDisabledTapsUpdateInterval - 1
				}
			} else if e.curWeight > cmaMinWeight {
				e.normWeight *= cmplx.Abs(e.b[0] / complex(e.curWeight, 0))
				e.minSamplesAccum = true
			}

			e.leftUntilTapsUpdates = e.tapsUpdateFreq - 1
		} else {
			e.leftUntilTapsUpdates--
		}

		e.curOutputIdx = (e.curOutputIdx + e.tapsCount - 1) & (e.tapsCount - 1)
	}

	e.in.Advance(n)
	e.out.Advance(n)
	if e.in.EOF() {
		e.out.SetEOF()
	}
	return nil
}

func (e *CMAEqualizer) getOutput(sample complex128) complex128 {
	e.outputs[e.curOutputIdx] = sample

	var corrected complex128
	for i := 0; i < e.tapsEnabledCount; i++ {
		corrected += e.outputs[e.curOutputIdx+e.tapsIndices[i]] * e.adjustedTaps[i]
	}

	if mag := cmplx.Abs(corrected); mag > 0 {
		return corrected / complex(mag, 0)
	}
	return corrected
}

func (e *CMAEqualizer) updateIntermAccumulators(sample, newOutput complex128) {
	if e.leftUntilAccumUpdates == 0 {
		coef := conj128(newOutput)
		for i := 0; i < e.tapsCount; i++ {
			out := e.outputs[i+e.curOutputIdx]
			coefOut := coef * out
			outSample := conj128(sample) * out // multiplyConjugated(samples, out) conjugates the first arg in the source's convention
			e.aInterm[i] = e.aInterm[i]*cmaDecay + coefOut
			e.bInterm[i] = e.bInterm[i]*cmaDecay + outSample
		}
		e.accumulatedSamples++
		e.leftUntilAccumUpdates = e.accumUpdateFreq - 1
	} else {
		e.leftUntilAccumUpdates--
	}
}

func (e *CMAEqualizer) updateAccumulators() {
	accDecay := e.decays[e.accumulatedSamples]
	for i := 0; i < e.tapsCount; i++ {
		e.a[i] = e.a[i]*complex(accDecay, 0) + e.aInterm[i]
		e.b[i] = e.b[i]*complex(accDecay, 0) + e.bInterm[i]
		e.aInterm[i] = 0
		e.bInterm[i] = 0
	}
	e.curWeight = accDecay*e.curWeight + e.weightUpdates[e.accumulatedSamples]
	e.accumulatedSamples = 0
}

func (e *CMAEqualizer) updateNormWeight() {
	var tapsDir float64
	for i := 0; i < len(cmaNormWeights); i++ {
		tapsDir += cmaNormWeights[i] * real(e.taps[i+1])
	}
	tapsDir = clampFloat(tapsDir, -1, 1)
	e.normWeight = clampFloat(e.normWeight*(1+cmaNormWeightStep*tapsDir), cmaMinNormWeight, cmaMaxNormWeight)
}

func (e *CMAEqualizer) updateGain() {
	sum := e.b[0]
	for i := 1; i < e.tapsEnabledCount; i++ {
		idx := e.tapsIndices[i]
		sum -= e.taps[idx] * e.getCorrelation(0, idx)
	}
	sum /= complex(e.curWeight, 0)
	sumMag := cmplx.Abs(sum)

	bCoef := -sumMag
	c := -e.normWeight
	d := -e.normWeight * sumMag

	r := sumMag
	rootError := math.MaxFloat64
	for i := 0; math.Abs(rootError) > cmaGainRootAccuracy && i < cmaGainMaxRootIterations; i++ {
		rr := r * r
		br := bCoef * r
		rootError = (rr+br+c)*r + d
		denom := math.Max(cmaMinAbsValue, 3*rr+2*br+c)
		r -= rootError / denom
	}

	newTap0 := complex(r/sumMag, 0) * sum
	e.taps[0] = newTap0
	e.tap0Mag2 = real(newTap0) * real(newTap0) + imag(newTap0)*imag(newTap0)
	e.gain = 1 / newTap0
	e.adjustedTaps[0] = e.gain
}

func (e *CMAEqualizer) updateTaps(calcDisabledTaps bool) float64 {
	var tapMagSum float64
	tapNormInv := e.normWeight / (e.tap0Mag2 * e.curWeight * e.curWeight)
	tapNormInv2 := complex(e.normWeight, 0) / (conj128(e.taps[0]) * complex(e.curWeight, 0))
	curWeightInv := complex(1/e.curWeight, 0)

	curEnabledTapIndex := 1
	for i := 1; i < e.tapsCount; i++ {
		if !e.tapsEnabled[i] && !calcDisabledTaps {
			continue
		}

		tapNormRight := e.b[0]
		tapFitRight := e.b[i] - e.taps[0]*e.getCorrelation(i, 0)
		for j := 1; j < e.tapsEnabledCount; j++ {
			tapIndex := e.tapsIndices[j]
			if tapIndex != i {
				tap := e.taps[tapIndex]
				tapFitRight -= tap * e.getCorrelation(i, tapIndex)
				tapNormRight -= tap * e.getCorrelation(0, tapIndex)
			}
		}

		corr := e.getCorrelation(i, 0)
		tapNormLeft := norm2(corr) * tapNormInv

		tapNormRight *= complex(tapNormInv, 0)
		tapNormRight -= tapNormInv2
		tapNormRight *= corr

		tapFitLeft := 1.0
		tapFitRight *= curWeightInv

		tapLeft := tapNormLeft + tapFitLeft
		tapLeftInv := 1 / tapLeft

		newTap := (tapNormRight + tapFitRight) * complex(tapLeftInv, 0)
		newTapMag2 := norm2(newTap)
		newTapSqrtInv := 1 / math.Sqrt(newTapMag2)
		newTapMag := newTapMag2 * newTapSqrtInv
		reg := e.tapReg * tapLeftInv

		tapMagSum += newTapMag

		if newTapMag > reg {
			newTapCorrected := newTap * complex(1-reg*newTapSqrtInv, 0)
			tapDiff := newTapCorrected - e.taps[i]
			e.lastTapsDiff += norm2(tapDiff)
			e.taps[i] = newTapCorrected
			if !e.tapsEnabled[i] {
				e.tapsEnabled[i] = true
				e.tapsEnabledCount++
				copy(e.tapsIndices[curEnabledTapIndex+1:e.tapsEnabledCount], e.tapsIndices[curEnabledTapIndex:e.tapsEnabledCount-1])
			}
			e.tapsIndices[curEnabledTapIndex] = i
			e.adjustedTaps[curEnabledTapIndex] = -newTapCorrected * e.gain
			curEnabledTapIndex++
		} else {
			e.lastTapsDiff += norm2(e.taps[i])
			e.taps[i] = 0
			if e.tapsEnabled[i] {
				e.tapsEnabled[i] = false
				e.tapsEnabledCount--
				copy(e.tapsIndices[curEnabledTapIndex:e.tapsEnabledCount], e.tapsIndices[curEnabledTapIndex+1:e.tapsEnabledCount+1])
			}
		}
	}

	return tapMagSum
}

func (e *CMAEqualizer) updateTapReg(tapMagSum float64) {
	var step float64
	switch {
	case e.tapsEnabledCount < cmaMinChannels:
		step = -cmaTapRegStep
	case e.tapsEnabledCount > cmaMaxChannels || e.tapsEnabled[1]:
		step = cmaTapRegStep
	default:
		step = clampFloat(tapMagSum*cmaTapSumCoef-e.tapReg, -cmaTapRegStep, cmaTapRegStep)
	}
	e.tapReg = clampFloat(e.tapReg*(1+step), cmaMinTapReg, cmaMaxTapReg)
}

func (e *CMAEqualizer) getCorrelation(row, col int) complex128 {
	if col < row {
		return conj128(e.a[row-col])
	}
	return e.a[col-row]
}

func norm2(c complex128) float64 { return real(c)*real(c) + imag(c)*imag(c) }

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
