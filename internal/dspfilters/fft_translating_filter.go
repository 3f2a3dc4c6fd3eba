package dspfilters

import (
	"math"
	"math/cmplx"

	"github.com/openfmrx/hvylya/internal/pipeline"
)

// FFTTranslatingFilter combines overlap-save convolution with a
// frequency translation, selecting an off-center channel (e.g. the
// 57kHz RDS subcarrier) directly into baseband in one pass, grounded on
// fft_translating_filter.{h,cpp}. The taps are pre-multiplied by the
// translating complex exponential in the time domain before being
// transformed once at construction; a running output rotator then
// corrects the residual phase drift that block-based overlap-save
// processing introduces across block boundaries (the source's
// Rotator::rotate post-process step).
type FFTTranslatingFilter[T Sample] struct {
	in  *pipeline.Reader[T]
	out *pipeline.RingBuffer[complex64]

	blockSize       int
	blockShift      int
	outputBlockSize int
	decim           int
	remainingSkip   int

	tapsFreq []complex128

	rotStep  complex128
	rotPhase complex128
	rotSince int

	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

// NewFFTTranslatingFilter builds a translating overlap-save filter
// selecting centerFreq (cycles/sample, can be negative) and decimating
// by decimationRate.
func NewFFTTranslatingFilter[T Sample](in *pipeline.Reader[T], out *pipeline.RingBuffer[complex64], taps []float64, centerFreq float64, decimationRate int, compensateDelay bool) *FFTTranslatingFilter[T] {
	if decimationRate < 1 {
		decimationRate = 1
	}
	tapsCount := len(taps)
	if tapsCount == 0 {
		panic("dspfilters: FFT translating filter requires at least one tap")
	}
	delay := 0
	if compensateDelay {
		if tapsCount%2 == 0 {
			panic("dspfilters: FFT translating filter delay compensation requires an odd tap count")
		}
		delay = (tapsCount - 1) / 2
	}

	blockSize := maxInt(fftMinBlockSize, nextPowerOfTwo(fftBlockRatio*(tapsCount-1)))
	blockShift := tapsCount - 1
	outputBlockSize := blockSize - blockShift

	translated := CreateTranslatedTaps(taps, centerFreq)
	tapsFreq := make([]complex128, blockSize)
	copy(tapsFreq, translated)
	fftComplex(tapsFreq, false)

	f := &FFTTranslatingFilter[T]{
		in: in, out: out,
		blockSize: blockSize, blockShift: blockShift, outputBlockSize: outputBlockSize,
		decim: decimationRate, tapsFreq: tapsFreq,
		rotStep: cmplx.Exp(complex(0, 2*math.Pi*centerFreq*float64(decimationRate))), rotPhase: complex(1, 0),
	}
	f.inPort = pipeline.InputPort{
		Edge: in, HistorySize: blockShift, Delay: delay,
		RequiredSize: outputBlockSize, SuggestedSize: outputBlockSize * 4,
	}
	f.outPort = pipeline.OutputPort{
		Edge: out, RequiredSize: 1, ProvidedSize: 1,
		SuggestedSize: maxInt(1, outputBlockSize/decimationRate),
	}
	return f
}

func (f *FFTTranslatingFilter[T]) Inputs() []pipeline.InputPort  { return []pipeline.InputPort{f.inPort} }
func (f *FFTTranslatingFilter[T]) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{f.outPort} }
func (f *FFTTranslatingFilter[T]) Reset() {
	f.remainingSkip = 0
	f.rotPhase = complex(1, 0)
	f.rotSince = 0
	f.out.Reset()
}

func (f *FFTTranslatingFilter[T]) Process() error {
	avail := f.in.AvailableSize()
	room := f.out.AvailableWriteRoom()

	maxBlocksFromInput := avail / f.outputBlockSize
	maxOutSamples := room * f.decim
	maxBlocksFromOutput := (maxOutSamples + f.outputBlockSize - 1) / f.outputBlockSize
	blocks := minInt(maxBlocksFromInput, maxBlocksFromOutput)
	if blocks <= 0 {
		return nil
	}

	src := f.in.ReadSlice()
	dst := f.out.WriteSlice()

	window := make([]complex128, f.blockSize)
	outputIndex := 0
	for b := 0; b < blocks; b++ {
		base := b * f.outputBlockSize
		for i := 0; i < f.blockSize; i++ {
			window[i] = toComplex128[T](src[base+i])
		}
		fftComplex(window, false)
		for i := range window {
			window[i] *= f.tapsFreq[i]
		}
		fftComplex(window, true)

		emit := func(c complex128) {
			c *= f.rotPhase
			dst[outputIndex] = complex64(c)
			outputIndex++
			f.rotPhase *= f.rotStep
			f.rotSince++
			if f.rotSince >= renormalizeEvery {
				if mag := cmplx.Abs(f.rotPhase); mag > 0 {
					f.rotPhase /= complex(mag, 0)
				}
				f.rotSince = 0
			}
		}

		if f.decim == 1 {
			for i := f.blockShift; i < f.blockSize; i++ {
				emit(window[i])
			}
		} else {
			index := f.blockShift + f.remainingSkip
			for ; index < f.blockSize; index += f.decim {
				emit(window[index])
			}
			f.remainingSkip = index - f.blockSize
		}
	}

	f.in.Advance(blocks * f.outputBlockSize)
	f.out.Advance(outputIndex)
	if f.in.EOF() {
		f.out.SetEOF()
	}
	return nil
}
