package fmreceiver

import "github.com/openfmrx/hvylya/internal/pipeline"

// Sampler decimates a stream by averaging each non-overlapping window of
// ratio input samples into one output sample, matching the role of the
// source's Sampler ahead of the SNR estimators (it brings every tapped
// point in the graph down to a common, low NoiseSamplingRate).
type Sampler struct {
	in    *pipeline.Reader[float32]
	out   *pipeline.RingBuffer[float32]
	ratio int

	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

func NewSampler(in *pipeline.Reader[float32], out *pipeline.RingBuffer[float32], ratio int) *Sampler {
	s := &Sampler{in: in, out: out, ratio: ratio}
	s.inPort = pipeline.InputPort{Edge: in, RequiredSize: ratio, SuggestedSize: ratio * 8}
	s.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 1, SuggestedSize: 1}
	return s
}

func (s *Sampler) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{s.inPort} }
func (s *Sampler) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{s.outPort} }
func (s *Sampler) Reset()                         { s.out.Reset() }

func (s *Sampler) Process() error {
	n := s.in.AvailableSize()
	if room := s.out.AvailableWriteRoom() * s.ratio; n > room {
		n = room
	}
	n -= n % s.ratio
	if n <= 0 {
		return nil
	}

	src := s.in.ReadSlice()
	dst := s.out.WriteSlice()

	outIndex := 0
	for i := 0; i < n; i += s.ratio {
		var sum float32
		for j := 0; j < s.ratio; j++ {
			sum += src[i+j]
		}
		dst[outIndex] = sum / float32(s.ratio)
		outIndex++
	}

	s.in.Advance(n)
	s.out.Advance(outIndex)
	if s.in.EOF() {
		s.out.SetEOF()
	}
	return nil
}
