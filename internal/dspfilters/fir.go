// Package dspfilters implements the FM-specific signal-processing
// stages: FIR/FFT convolution, polyphase resampling, rotators, PLL and
// Costas loop tracking, the FM discriminator and stereo demultiplexer,
// de-emphasis, and the CMA blind equalizer. Each type is a
// pipeline.Filter, grounded on the source's filters/*.cpp, adapted from
// template-parameterized C++ to Go generics over the sample type.
package dspfilters

import "github.com/openfmrx/hvylya/internal/pipeline"

// Sample is the constraint shared by every signal type flowing through
// the graph: real float32 audio/baseband values, or complex64 IQ/IF
// samples.
type Sample interface {
	~float32 | ~complex64
}

// FIR is a direct-form FIR filter with decimation and optional
// group-delay compensation, the Go analogue of fir_filter.h. Rather than
// the source's per-offset strided tap banks (a SIMD-alignment trick),
// this computes the convolution directly; see DESIGN.md for why that
// trade is acceptable here.
type FIR[T Sample] struct {
	in       *pipeline.Reader[T]
	out      *pipeline.RingBuffer[T]
	taps     []float64
	decim    int
	delay    int
	inPort   pipeline.InputPort
	outPort  pipeline.OutputPort
}

// NewFIR builds a FIR filter. If compensateDelay is true, len(taps) must
// be odd and the input's declared Delay is set to (len(taps)-1)/2,
// matching the source's compensate_delay contract.
func NewFIR[T Sample](in *pipeline.Reader[T], out *pipeline.RingBuffer[T], taps []float64, decimationRate int, compensateDelay bool) *FIR[T] {
	if decimationRate < 1 {
		decimationRate = 1
	}
	history := len(taps) - 1
	delay := 0
	if compensateDelay {
		if len(taps)%2 == 0 {
			panic("dspfilters: FIR delay compensation requires an odd tap count")
		}
		delay = (len(taps) - 1) / 2
	}
	f := &FIR[T]{in: in, out: out, taps: append([]float64(nil), taps...), decim: decimationRate, delay: delay}
	f.inPort = pipeline.InputPort{
		Edge: in, HistorySize: history, Delay: delay,
		RequiredSize: decimationRate, SuggestedSize: decimationRate * 64,
	}
	f.outPort = pipeline.OutputPort{
		Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 64,
	}
	return f
}

func (f *FIR[T]) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{f.inPort} }
func (f *FIR[T]) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{f.outPort} }
func (f *FIR[T]) Reset()                         { f.out.Reset() }

func (f *FIR[T]) Process() error {
	history := len(f.taps) - 1
	avail := f.in.AvailableSize()
	blocks := avail / f.decim
	if room := f.out.AvailableWriteRoom(); blocks > room {
		blocks = room
	}
	if blocks <= 0 {
		return nil
	}

	src := f.in.ReadSlice() // includes `history` samples of read-ahead history
	dst := f.out.WriteSlice()

	for k := 0; k < blocks; k++ {
		center := history + k*f.decim
		dst[k] = firApply(f.taps, src, center)
	}

	f.in.Advance(blocks * f.decim)
	f.out.Advance(blocks)
	if f.in.EOF() {
		f.out.SetEOF()
	}
	return nil
}

// firApply computes sum_{j=0}^{len(taps)-1} taps[len(taps)-1-j] * data[k-j],
// the convolution contract.
func firApply[T Sample](taps []float64, data []T, k int) T {
	n := len(taps)
	var acc complex128
	for j := 0; j < n; j++ {
		acc += complex128(toComplex(data[k-j])) * complex(taps[n-1-j], 0)
	}
	var zero T
	return fromComplex[T](acc, zero)
}

func toComplex[T Sample](v T) complex128 {
	switch x := any(v).(type) {
	case float32:
		return complex(float64(x), 0)
	case complex64:
		return complex128(x)
	}
	panic("unreachable")
}

func fromComplex[T Sample](c complex128, _ T) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(float32(real(c))).(T)
	case complex64:
		return any(complex64(c)).(T)
	}
	panic("unreachable")
}
