package fmreceiver

import (
	"math"
	"sync/atomic"

	"github.com/openfmrx/hvylya/internal/dspfilters"
	"github.com/openfmrx/hvylya/internal/pipeline"
)

// SpectrumScanner buffers fftSize-sample blocks of complex baseband,
// transforms each with a one-shot FFT and keeps a sliding-window average
// of the magnitude spectrum, grounded on spectrum_scanner.{h,cpp}. It has
// no output port: it is a terminal tap used by the scan CLI subcommand to
// sweep the dial and report a coarse power level per frequency step.
type SpectrumScanner struct {
	in *pipeline.Reader[complex64]

	fftSize          int
	fftSizeHalf      int
	levelsSize       int
	averagingWindow  int
	maxHistoryValue  uint64
	currentIndex     int
	scale            float64
	buffer           []complex128
	levels           []uint64
	history          [][]uint64
	samples          atomic.Uint64

	inPort pipeline.InputPort
}

// NewSpectrumScanner builds a scanner transforming fftSize-sample blocks
// (fftSize must be a power of two) and averaging magnitudes over the last
// averagingWindow blocks. scale converts the raw per-bin FFT magnitude
// into the scanner's internal fixed-point accumulator units; larger scale
// gives finer level() resolution at the cost of a smaller maxHistoryValue
// ceiling (matching the source's size_t accumulator).
func NewSpectrumScanner(in *pipeline.Reader[complex64], fftSize, averagingWindow int, scale float64) *SpectrumScanner {
	s := &SpectrumScanner{
		in:              in,
		fftSize:         fftSize,
		fftSizeHalf:     fftSize / 2,
		levelsSize:      fftSize + 1,
		averagingWindow: averagingWindow,
		maxHistoryValue: math.MaxUint64 / uint64(averagingWindow),
		scale:           scale,
		buffer:          make([]complex128, fftSize),
		levels:          make([]uint64, fftSize+1),
	}
	s.history = make([][]uint64, averagingWindow)
	for i := range s.history {
		s.history[i] = make([]uint64, fftSize+1)
	}
	s.inPort = pipeline.InputPort{Edge: in, RequiredSize: fftSize, SuggestedSize: fftSize}
	return s
}

func (s *SpectrumScanner) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{s.inPort} }
func (s *SpectrumScanner) Outputs() []pipeline.OutputPort { return nil }

func (s *SpectrumScanner) Reset() {
	s.samples.Store(0)
	for i := range s.levels {
		s.levels[i] = 0
	}
}

// Ready reports whether the averaging window has been fully populated at
// least once, i.e. whether Level returns a meaningful, full-window average.
func (s *SpectrumScanner) Ready() bool { return s.samples.Load() == uint64(s.averagingWindow) }

// Level returns the averaged magnitude at bin index, in increasing
// frequency order (index 0 is -Fs/2, index fftSize is +Fs/2).
func (s *SpectrumScanner) Level(index int) float64 {
	return float64(s.levels[index]) / float64(s.averagingWindow) / s.scale
}

// LevelsSize is the number of bins Level accepts, fftSize+1 (the two ends
// both map to the Nyquist-adjacent bin, closing the display loop).
func (s *SpectrumScanner) LevelsSize() int { return s.levelsSize }

func (s *SpectrumScanner) Process() error {
	n := s.in.AvailableSize()
	n -= n % s.fftSize
	if n <= 0 {
		return nil
	}

	src := s.in.ReadSlice()
	for offset := 0; offset+s.fftSize <= n; offset += s.fftSize {
		for i := 0; i < s.fftSize; i++ {
			s.buffer[i] = complex(float64(real(src[offset+i])), float64(imag(src[offset+i])))
		}
		dspfilters.FFT(s.buffer, false)

		full := s.samples.Load() == uint64(s.averagingWindow)
		if full {
			for i := 0; i < s.levelsSize; i++ {
				s.levels[i] -= s.history[s.currentIndex][i]
			}
		} else {
			s.samples.Add(1)
		}

		for i := 0; i < s.levelsSize; i++ {
			var bin complex128
			if i < s.fftSizeHalf {
				bin = s.buffer[i+s.fftSizeHalf]
			} else {
				bin = s.buffer[i-s.fftSizeHalf]
			}
			mag := cmplxAbs(bin)
			val := uint64(s.scale * (mag / float64(s.fftSize)))
			if val > s.maxHistoryValue {
				val = s.maxHistoryValue
			}
			s.history[s.currentIndex][i] = val
			s.levels[i] += val
		}

		s.currentIndex = (s.currentIndex + 1) % s.averagingWindow
	}

	s.in.Advance(n)
	return nil
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
