package dspfilters

import (
	"github.com/openfmrx/hvylya/internal/pipeline"
	"github.com/openfmrx/hvylya/internal/simd"
)

// FMDiscriminator computes output[n] = gain * normalized_atan2(imag(z),
// real(z)) where z = x[n]*conj(x[n-1]), gain = sample_rate /
// (4*fm_bandwidth). Grounded on fm_decoder.cpp.
type FMDiscriminator struct {
	in      *pipeline.Reader[complex64]
	out     *pipeline.RingBuffer[float32]
	gain    float64
	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

func NewFMDiscriminator(in *pipeline.Reader[complex64], out *pipeline.RingBuffer[float32], sampleRate, fmBandwidth float64) *FMDiscriminator {
	d := &FMDiscriminator{in: in, out: out, gain: sampleRate / (4 * fmBandwidth)}
	d.inPort = pipeline.InputPort{Edge: in, HistorySize: 1, RequiredSize: 8, SuggestedSize: 256}
	d.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	return d
}

func (d *FMDiscriminator) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{d.inPort} }
func (d *FMDiscriminator) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{d.outPort} }
func (d *FMDiscriminator) Reset()                         { d.out.Reset() }

func (d *FMDiscriminator) Process() error {
	n := d.in.AvailableSize()
	if room := d.out.AvailableWriteRoom(); n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}
	src := d.in.ReadSlice() // includes 1 sample of history at index 0
	dst := d.out.WriteSlice()
	for i := 0; i < n; i++ {
		cur := complex128(src[i+1])
		prev := complex128(src[i])
		z := cur * complex(real(prev), -imag(prev))
		dst[i] = float32(d.gain * simd.NormalizedAtan2(imag(z), real(z)))
	}
	d.in.Advance(n)
	d.out.Advance(n)
	if d.in.EOF() {
		d.out.SetEOF()
	}
	return nil
}

// StereoExtractor produces the 38kHz L-R DSBSC component:
// output = imag(pll^2) * stereoBand.
type StereoExtractor struct {
	pll      *pipeline.Reader[complex64]
	band     *pipeline.Reader[float32]
	out      *pipeline.RingBuffer[float32]
	pllPort  pipeline.InputPort
	bandPort pipeline.InputPort
	outPort  pipeline.OutputPort
}

func NewStereoExtractor(pll *pipeline.Reader[complex64], band *pipeline.Reader[float32], out *pipeline.RingBuffer[float32]) *StereoExtractor {
	s := &StereoExtractor{pll: pll, band: band, out: out}
	s.pllPort = pipeline.InputPort{Edge: pll, RequiredSize: 1, SuggestedSize: 256}
	s.bandPort = pipeline.InputPort{Edge: band, RequiredSize: 1, SuggestedSize: 256}
	s.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	return s
}

func (s *StereoExtractor) Inputs() []pipeline.InputPort {
	return []pipeline.InputPort{s.pllPort, s.bandPort}
}
func (s *StereoExtractor) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{s.outPort} }
func (s *StereoExtractor) Reset()                         { s.out.Reset() }

func (s *StereoExtractor) Process() error {
	n := s.pll.AvailableSize()
	if m := s.band.AvailableSize(); m < n {
		n = m
	}
	if room := s.out.AvailableWriteRoom(); n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}
	pllSrc := s.pll.ReadSlice()
	bandSrc := s.band.ReadSlice()
	dst := s.out.WriteSlice()
	for i := 0; i < n; i++ {
		p := complex128(pllSrc[i])
		squared := p * p
		dst[i] = float32(imag(squared)) * bandSrc[i]
	}
	s.pll.Advance(n)
	s.band.Advance(n)
	s.out.Advance(n)
	if s.pll.EOF() || s.band.EOF() {
		s.out.SetEOF()
	}
	return nil
}

// StereoDemultiplexer mixes mono (L+R) and the recovered (L-R) component
// by the atomically-adjustable stereo blend w in [0,1]: left = L+R +
// w*(L-R), right = L+R - w*(L-R).
type StereoDemultiplexer struct {
	mono    *pipeline.Reader[float32]
	side    *pipeline.Reader[float32]
	left    *pipeline.RingBuffer[float32]
	right   *pipeline.RingBuffer[float32]
	blend   *AtomicFloat

	monoPort  pipeline.InputPort
	sidePort  pipeline.InputPort
	leftPort  pipeline.OutputPort
	rightPort pipeline.OutputPort
}

func NewStereoDemultiplexer(mono, side *pipeline.Reader[float32], left, right *pipeline.RingBuffer[float32], blend *AtomicFloat) *StereoDemultiplexer {
	d := &StereoDemultiplexer{mono: mono, side: side, left: left, right: right, blend: blend}
	d.monoPort = pipeline.InputPort{Edge: mono, RequiredSize: 1, SuggestedSize: 256}
	d.sidePort = pipeline.InputPort{Edge: side, RequiredSize: 1, SuggestedSize: 256}
	d.leftPort = pipeline.OutputPort{Edge: left, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	d.rightPort = pipeline.OutputPort{Edge: right, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	return d
}

func (d *StereoDemultiplexer) Inputs() []pipeline.InputPort {
	return []pipeline.InputPort{d.monoPort, d.sidePort}
}
func (d *StereoDemultiplexer) Outputs() []pipeline.OutputPort {
	return []pipeline.OutputPort{d.leftPort, d.rightPort}
}
func (d *StereoDemultiplexer) Reset() {
	d.left.Reset()
	d.right.Reset()
}

func (d *StereoDemultiplexer) Process() error {
	n := d.mono.AvailableSize()
	if m := d.side.AvailableSize(); m < n {
		n = m
	}
	if room := d.left.AvailableWriteRoom(); n > room {
		n = room
	}
	if room := d.right.AvailableWriteRoom(); n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}
	m := d.mono.ReadSlice()
	s := d.side.ReadSlice()
	l := d.left.WriteSlice()
	r := d.right.WriteSlice()
	w := d.blend.Load()
	for i := 0; i < n; i++ {
		l[i] = m[i] + float32(w)*s[i]
		r[i] = m[i] - float32(w)*s[i]
	}
	d.mono.Advance(n)
	d.side.Advance(n)
	d.left.Advance(n)
	d.right.Advance(n)
	if d.mono.EOF() || d.side.EOF() {
		d.left.SetEOF()
		d.right.SetEOF()
	}
	return nil
}

// Deemphasizer is a first-order IIR lowpass with the coefficient derived
// from the regional time constant tau (e.g. 50us Europe, 75us US).
type Deemphasizer struct {
	in      *pipeline.Reader[float32]
	out     *pipeline.RingBuffer[float32]
	alpha   float64
	state   float64
	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

func NewDeemphasizer(in *pipeline.Reader[float32], out *pipeline.RingBuffer[float32], sampleRate, tauSeconds float64) *Deemphasizer {
	dt := 1 / sampleRate
	alpha := dt / (tauSeconds + dt)
	d := &Deemphasizer{in: in, out: out, alpha: alpha}
	d.inPort = pipeline.InputPort{Edge: in, RequiredSize: 1, SuggestedSize: 256}
	d.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 256}
	return d
}

func (d *Deemphasizer) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{d.inPort} }
func (d *Deemphasizer) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{d.outPort} }
func (d *Deemphasizer) Reset() {
	d.state = 0
	d.out.Reset()
}

func (d *Deemphasizer) Process() error {
	n := d.in.AvailableSize()
	if room := d.out.AvailableWriteRoom(); n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}
	src := d.in.ReadSlice()
	dst := d.out.WriteSlice()
	for i := 0; i < n; i++ {
		d.state += d.alpha * (float64(src[i]) - d.state)
		dst[i] = float32(d.state)
	}
	d.in.Advance(n)
	d.out.Advance(n)
	if d.in.EOF() {
		d.out.SetEOF()
	}
	return nil
}
