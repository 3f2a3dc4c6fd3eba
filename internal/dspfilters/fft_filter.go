package dspfilters

import (
	"github.com/openfmrx/hvylya/internal/pipeline"
)

// fftMinBlockSize and fftBlockRatio mirror fft_filter.h's MinBlockSize
// and BlockRatio constants governing how large a transform block is
// chosen relative to the tap count.
const (
	fftMinBlockSize = 512
	fftBlockRatio   = 4
)

// FFTFilter is an overlap-save FIR filter, the Go analogue of
// fft_filter.{h,cpp}. It is used in place of FIR whenever the tap count
// is large enough that block convolution beats the direct form.
type FFTFilter[T Sample] struct {
	in  *pipeline.Reader[T]
	out *pipeline.RingBuffer[T]

	blockSize       int
	blockShift      int
	outputBlockSize int
	decim           int
	remainingSkip   int

	tapsFreq []complex128 // forward FFT of the zero-padded, time-reversed-free taps

	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

// NewFFTFilter builds an overlap-save filter for the given taps and
// decimation rate. If compensateDelay is true, len(taps) must be odd.
func NewFFTFilter[T Sample](in *pipeline.Reader[T], out *pipeline.RingBuffer[T], taps []float64, decimationRate int, compensateDelay bool) *FFTFilter[T] {
	if decimationRate < 1 {
		decimationRate = 1
	}
	tapsCount := len(taps)
	if tapsCount == 0 {
		panic("dspfilters: FFT filter requires at least one tap")
	}
	delay := 0
	if compensateDelay {
		if tapsCount%2 == 0 {
			panic("dspfilters: FFT filter delay compensation requires an odd tap count")
		}
		delay = (tapsCount - 1) / 2
	}

	blockSize := maxInt(fftMinBlockSize, nextPowerOfTwo(fftBlockRatio*(tapsCount-1)))
	blockShift := tapsCount - 1
	outputBlockSize := blockSize - blockShift

	tapsFreq := make([]complex128, blockSize)
	for i, t := range taps {
		tapsFreq[i] = complex(t, 0)
	}
	fftComplex(tapsFreq, false)

	f := &FFTFilter[T]{
		in: in, out: out,
		blockSize: blockSize, blockShift: blockShift, outputBlockSize: outputBlockSize,
		decim: decimationRate, tapsFreq: tapsFreq,
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

func (f *FFTFilter[T]) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{f.inPort} }
func (f *FFTFilter[T]) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{f.outPort} }
func (f *FFTFilter[T]) Reset() {
	f.remainingSkip = 0
	f.out.Reset()
}

func (f *FFTFilter[T]) Process() error {
	avail := f.in.AvailableSize()
	room := f.out.AvailableWriteRoom()

	// How many full output blocks of outputBlockSize we could produce
	// from the input we have, and how many decimated samples that
	// leaves room for downstream.
	maxBlocksFromInput := avail / f.outputBlockSize
	maxOutSamples := room * f.decim
	maxBlocksFromOutput := (maxOutSamples + f.outputBlockSize - 1) / f.outputBlockSize
	blocks := minInt(maxBlocksFromInput, maxBlocksFromOutput)
	if blocks <= 0 {
		return nil
	}

	src := f.in.ReadSlice() // src[0:blockShift] is history, valid input starts there
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

		if f.decim == 1 {
			for i := f.blockShift; i < f.blockSize; i++ {
				dst[outputIndex] = fromComplex128[T](window[i])
				outputIndex++
			}
		} else {
			index := f.blockShift + f.remainingSkip
			for ; index < f.blockSize; index += f.decim {
				dst[outputIndex] = fromComplex128[T](window[index])
				outputIndex++
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

func toComplex128[T Sample](v T) complex128 {
	switch x := any(v).(type) {
	case float32:
		return complex(float64(x), 0)
	case complex64:
		return complex128(x)
	}
	panic("unreachable")
}

func fromComplex128[T Sample](c complex128) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(float32(real(c))).(T)
	case complex64:
		return any(complex64(c)).(T)
	}
	panic("unreachable")
}
