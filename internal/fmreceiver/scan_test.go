package fmreceiver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfmrx/hvylya/internal/pipeline"
)

func writeTone(t *testing.T, src *pipeline.RingBuffer[complex64], binsPerBlock int, blocks int) {
	t.Helper()
	for b := 0; b < blocks; b++ {
		room := src.AvailableWriteRoom()
		require.GreaterOrEqual(t, room, binsPerBlock)
		dst := src.WriteSlice()
		for i := 0; i < binsPerBlock; i++ {
			// A constant (DC) complex tone: every bin in the transform
			// should land all its energy in the centre (zero-frequency) bin.
			dst[i] = complex(1, 0)
		}
		src.Advance(binsPerBlock)
	}
}

func TestSpectrumScannerNotReadyBeforeWindowFills(t *testing.T) {
	const fftSize = 64
	const window = 4

	src := pipeline.NewRingBuffer[complex64](4096, 0, 0, fftSize, 1)
	reader := pipeline.Connect[complex64](src, 0, fftSize)
	scanner := NewSpectrumScanner(reader, fftSize, window, 1<<20)

	src.Reset()
	writeTone(t, src, fftSize, window-1)
	require.NoError(t, scanner.Process())
	assert.False(t, scanner.Ready())
}

func TestSpectrumScannerConcentratesDCToneAtCentreBin(t *testing.T) {
	const fftSize = 64
	const window = 4

	src := pipeline.NewRingBuffer[complex64](4096, 0, 0, fftSize, 1)
	reader := pipeline.Connect[complex64](src, 0, fftSize)
	scanner := NewSpectrumScanner(reader, fftSize, window, 1<<20)

	src.Reset()
	writeTone(t, src, fftSize, window)
	require.NoError(t, scanner.Process())
	require.True(t, scanner.Ready())

	centre := scanner.LevelsSize() / 2
	centreLevel := scanner.Level(centre)
	for i := 0; i < scanner.LevelsSize(); i++ {
		if i == centre {
			continue
		}
		assert.LessOrEqual(t, scanner.Level(i), centreLevel,
			"bin %d should not exceed the DC tone's centre bin", i)
	}
	assert.Greater(t, centreLevel, 0.0)
}

func TestSpectrumScannerLevelsSizeIsFftSizePlusOne(t *testing.T) {
	const fftSize = 128
	src := pipeline.NewRingBuffer[complex64](4096, 0, 0, fftSize, 1)
	reader := pipeline.Connect[complex64](src, 0, fftSize)
	scanner := NewSpectrumScanner(reader, fftSize, 2, 1<<20)
	assert.Equal(t, fftSize+1, scanner.LevelsSize())
}

func TestCmplxAbs(t *testing.T) {
	assert.InDelta(t, 5.0, cmplxAbs(complex(3, 4)), 1e-9)
	assert.InDelta(t, 0.0, cmplxAbs(complex(0, 0)), 1e-9)
	assert.InDelta(t, math.Sqrt2, cmplxAbs(complex(1, 1)), 1e-9)
}
