package rds

import (
	"math"

	"github.com/openfmrx/hvylya/internal/pipeline"
	"github.com/openfmrx/hvylya/internal/simd"
)

// frequencyDivider = 19000 (pilot) / 1187.5 (RDS symbol rate) * 4
// zero-crossings per pilot period, the number of candidate sample
// clocks the bit recovery chooses among.
const frequencyDivider = 16 * 4

const bitsAveragingWindow = 256

func sign(v float32) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// BitsDecoder recovers differentially-encoded RDS symbol bits from the
// demodulated baseband by tracking PLL zero-crossings to find the best
// of 64 candidate sample clocks, grounded on rds_bits_decoder.{h,cpp}.
type BitsDecoder struct {
	rds *pipeline.Reader[float32]
	pll *pipeline.Reader[complex64]
	out *pipeline.RingBuffer[int8]

	magsSums [frequencyDivider]*simd.RunningSum

	prevPLLValue             complex64
	prevRDSValue             float32
	prevSignReal, prevSignImag int
	prevSymbol               int
	clockCounter, clocksPassed, bestClock int

	rdsPort pipeline.InputPort
	pllPort pipeline.InputPort
	outPort pipeline.OutputPort
}

func NewBitsDecoder(rds *pipeline.Reader[float32], pll *pipeline.Reader[complex64], out *pipeline.RingBuffer[int8]) *BitsDecoder {
	d := &BitsDecoder{rds: rds, pll: pll, out: out}
	for i := range d.magsSums {
		d.magsSums[i], _ = simd.NewRunningSum(bitsAveragingWindow, 1e-12)
	}
	d.clocksPassed = frequencyDivider
	d.rdsPort = pipeline.InputPort{Edge: rds, RequiredSize: 1, SuggestedSize: 256}
	d.pllPort = pipeline.InputPort{Edge: pll, RequiredSize: 1, SuggestedSize: 256}
	d.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 0, SuggestedSize: 4 * 26}
	return d
}

func (d *BitsDecoder) Inputs() []pipeline.InputPort  { return []pipeline.InputPort{d.rdsPort, d.pllPort} }
func (d *BitsDecoder) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{d.outPort} }

func (d *BitsDecoder) Reset() {
	d.prevPLLValue = 0
	d.prevRDSValue = 0
	d.prevSignReal, d.prevSignImag = 0, 0
	d.prevSymbol = 0
	d.clockCounter = 0
	d.clocksPassed = frequencyDivider
	d.bestClock = 0
	for i := range d.magsSums {
		d.magsSums[i], _ = simd.NewRunningSum(bitsAveragingWindow, 1e-12)
	}
	d.out.Reset()
}

func (d *BitsDecoder) Process() error {
	n := d.rds.AvailableSize()
	if m := d.pll.AvailableSize(); m < n {
		n = m
	}
	room := d.out.AvailableWriteRoom()
	if room <= 0 {
		return nil
	}

	rdsSrc := d.rds.ReadSlice()
	pllSrc := d.pll.ReadSlice()
	dst := d.out.WriteSlice()

	inputIndex, outputIndex := 0, 0
	for ; inputIndex < n && outputIndex < room; inputIndex++ {
		rdsValue := rdsSrc[inputIndex]
		pllValue := pllSrc[inputIndex]

		signReal := sign(real(pllValue))
		signImag := sign(imag(pllValue))

		if d.prevSignReal+signReal == 0 || d.prevSignImag+signImag == 0 || signReal == 0 || signImag == 0 {
			var bestRDSValue float32
			if minAbs(real(pllValue), imag(pllValue)) < minAbs(real(d.prevPLLValue), imag(d.prevPLLValue)) {
				bestRDSValue = rdsValue
			} else {
				bestRDSValue = d.prevRDSValue
			}
			bestAbsRDSValue := float64(absFloat32(bestRDSValue))
			d.magsSums[d.clockCounter].Add(bestAbsRDSValue)

			if d.bestClock == d.clockCounter && d.clocksPassed > frequencyDivider/2 {
				currentSymbol := 0
				if bestRDSValue > 0 {
					currentSymbol = 1
				}
				outputSymbol := d.prevSymbol ^ currentSymbol
				d.prevSymbol = currentSymbol
				dst[outputIndex] = int8(outputSymbol)
				outputIndex++
				d.clocksPassed = 0
			}

			d.clockCounter++
			d.clocksPassed++
			if d.clockCounter == frequencyDivider {
				d.clockCounter = 0
				d.bestClock = d.selectBestClock()
			}
		}

		d.prevRDSValue = rdsValue
		d.prevPLLValue = pllValue
		d.prevSignReal = signReal
		d.prevSignImag = signImag
	}

	d.rds.Advance(inputIndex)
	d.pll.Advance(inputIndex)
	d.out.Advance(outputIndex)
	if d.rds.EOF() || d.pll.EOF() {
		d.out.SetEOF()
	}
	return nil
}

func (d *BitsDecoder) selectBestClock() int {
	var bestMag float64
	bestClock := 0
	for i, s := range d.magsSums {
		if s.Filled() == 0 {
			continue
		}
		avg, err := s.Avg()
		if err != nil {
			continue
		}
		if avg > bestMag {
			bestMag = avg
			bestClock = i
		}
	}
	return bestClock
}

func minAbs(a, b float32) float64 {
	return math.Min(math.Abs(float64(a)), math.Abs(float64(b)))
}

func absFloat32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
