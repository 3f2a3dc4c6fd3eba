package dspfilters

import (
	"github.com/openfmrx/hvylya/internal/pipeline"
)

// Resampler is a polyphase rational resampler, the Go analogue of
// resampler.h: a prototype lowpass is split into InterpolationRate
// sub-filters ("kernels") of FiltersCount taps each (zero-stuffed taps
// rescaled by InterpolationRate to preserve gain), and a running kernel
// index walks forward by DecimationRate per output sample, advancing
// the input whenever the kernel index would wrap past InterpolationRate.
type Resampler[T Sample] struct {
	in  *pipeline.Reader[T]
	out *pipeline.RingBuffer[T]

	interp, decim int
	filtersCount  int
	kernels       [][]float64 // kernels[k][j], j=0..filtersCount-1
	kernelIndex   int

	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

// NewResampler builds a resampler converting sampleRate by
// interpolationRate/decimationRate using the given prototype lowpass
// taps (designed for the interpolated rate, i.e. sampleRate*interpolationRate).
func NewResampler[T Sample](in *pipeline.Reader[T], out *pipeline.RingBuffer[T], taps []float64, interpolationRate, decimationRate int) *Resampler[T] {
	if interpolationRate < 1 || decimationRate < 1 {
		panic("dspfilters: resampler rates must be positive")
	}
	tapsCount := len(taps)
	if tapsCount == 0 {
		panic("dspfilters: resampler requires at least one tap")
	}
	filtersCount := (tapsCount + interpolationRate - 1) / interpolationRate

	kernels := make([][]float64, interpolationRate)
	for k := 0; k < interpolationRate; k++ {
		kernel := make([]float64, filtersCount)
		for tapIndex := k; tapIndex < tapsCount; tapIndex += interpolationRate {
			kernel[tapIndex/interpolationRate] = float64(interpolationRate) * taps[tapIndex]
		}
		kernels[k] = kernel
	}

	r := &Resampler[T]{
		in: in, out: out,
		interp: interpolationRate, decim: decimationRate,
		filtersCount: filtersCount, kernels: kernels,
	}
	r.inPort = pipeline.InputPort{Edge: in, HistorySize: filtersCount - 1, RequiredSize: 1, SuggestedSize: 256}
	r.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 0, SuggestedSize: 256}
	return r
}

func (r *Resampler[T]) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{r.inPort} }
func (r *Resampler[T]) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{r.outPort} }
func (r *Resampler[T]) Reset() {
	r.kernelIndex = 0
	r.out.Reset()
}

func (r *Resampler[T]) Process() error {
	avail := r.in.AvailableSize()
	inputDataSize := avail - r.filtersCount + 1
	if inputDataSize <= 0 {
		return nil
	}
	outputDataSize := r.out.AvailableWriteRoom()
	if outputDataSize <= 0 {
		return nil
	}

	src := r.in.ReadSlice()
	dst := r.out.WriteSlice()

	inputIndex := 0
	currentKernelIndex := r.kernelIndex
	for currentKernelIndex >= r.interp && inputIndex < inputDataSize {
		currentKernelIndex -= r.interp
		inputIndex++
	}

	outputIndex := 0
	for inputIndex < inputDataSize && outputIndex < outputDataSize {
		dst[outputIndex] = resamplerApply(r.kernels[currentKernelIndex], src, inputIndex)

		currentKernelIndex += r.decim
		for currentKernelIndex >= r.interp && inputIndex < inputDataSize {
			currentKernelIndex -= r.interp
			inputIndex++
		}
		outputIndex++
	}

	r.kernelIndex = currentKernelIndex
	r.in.Advance(inputIndex)
	r.out.Advance(outputIndex)
	if r.in.EOF() && inputIndex == inputDataSize {
		r.out.SetEOF()
	}
	return nil
}

// resamplerApply computes sum_j kernel[j] * data[inputIndex+filtersCount-1-j],
// i.e. the same index convention as firApply but anchored at inputIndex
// rather than a rolling center.
func resamplerApply[T Sample](kernel []float64, data []T, inputIndex int) T {
	n := len(kernel)
	var acc complex128
	for j := 0; j < n; j++ {
		acc += toComplex(data[inputIndex+n-1-j]) * complex(kernel[j], 0)
	}
	var zero T
	return fromComplex[T](acc, zero)
}
