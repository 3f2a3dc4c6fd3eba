package pipeline

// intSource emits a strictly increasing sequence of ints until it has
// produced `total` of them, then signals EOF. It has no inputs.
type intSource struct {
	out      *RingBuffer[int]
	total    int
	infinite bool
	produced int
	batch    int
	outPort  OutputPort
}

func newIntSource(out *RingBuffer[int], total, batch int) *intSource {
	s := &intSource{out: out, total: total, batch: batch}
	s.outPort = OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 0, SuggestedSize: batch}
	return s
}

func newInfiniteIntSource(out *RingBuffer[int], batch int) *intSource {
	s := newIntSource(out, 0, batch)
	s.infinite = true
	return s
}

func (s *intSource) Inputs() []InputPort   { return nil }
func (s *intSource) Outputs() []OutputPort { return []OutputPort{s.outPort} }
func (s *intSource) Reset() {
	s.produced = 0
	s.out.Reset()
}

func (s *intSource) Process() error {
	room := s.out.AvailableWriteRoom()
	n := s.batch
	if n > room {
		n = room
	}
	if !s.infinite {
		if remaining := s.total - s.produced; n > remaining {
			n = remaining
		}
	}
	if n <= 0 {
		if !s.infinite && s.produced >= s.total {
			s.out.SetEOF()
		}
		return nil
	}
	dst := s.out.WriteSlice()
	for i := 0; i < n; i++ {
		dst[i] = s.produced + i
	}
	s.produced += n
	s.out.Advance(n)
	if !s.infinite && s.produced >= s.total {
		s.out.SetEOF()
	}
	return nil
}

// intPassthrough copies its input to its output one batch at a time,
// exercising the reader/writer wrap machinery on both sides.
type intPassthrough struct {
	in      *Reader[int]
	out     *RingBuffer[int]
	batch   int
	inPort  InputPort
	outPort OutputPort
}

func newIntPassthrough(in *Reader[int], out *RingBuffer[int], batch int) *intPassthrough {
	p := &intPassthrough{in: in, out: out, batch: batch}
	p.inPort = InputPort{Edge: in, RequiredSize: 1, SuggestedSize: batch, MayConsumeNothing: true}
	p.outPort = OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 0, SuggestedSize: batch}
	return p
}

func (p *intPassthrough) Inputs() []InputPort   { return []InputPort{p.inPort} }
func (p *intPassthrough) Outputs() []OutputPort { return []OutputPort{p.outPort} }
func (p *intPassthrough) Reset()                { p.out.Reset() }

func (p *intPassthrough) Process() error {
	n := p.in.AvailableSize()
	if n > p.batch {
		n = p.batch
	}
	if room := p.out.AvailableWriteRoom(); n > room {
		n = room
	}
	if n > 0 {
		src := p.in.ReadSlice()
		dst := p.out.WriteSlice()
		copy(dst[:n], src[:n])
		p.in.Advance(n)
		p.out.Advance(n)
	}
	if p.in.EOF() {
		p.out.SetEOF()
	}
	return nil
}

// intSink accumulates everything it reads.
type intSink struct {
	in      *Reader[int]
	batch   int
	Got     []int
	inPort  InputPort
}

func newIntSink(in *Reader[int], batch int) *intSink {
	s := &intSink{in: in, batch: batch}
	s.inPort = InputPort{Edge: in, RequiredSize: 1, SuggestedSize: batch, MayConsumeNothing: true}
	return s
}

func (s *intSink) Inputs() []InputPort   { return []InputPort{s.inPort} }
func (s *intSink) Outputs() []OutputPort { return nil }
func (s *intSink) Reset()                { s.Got = nil }

func (s *intSink) Process() error {
	n := s.in.AvailableSize()
	if n > s.batch {
		n = s.batch
	}
	if n > 0 {
		src := s.in.ReadSlice()
		s.Got = append(s.Got, src[:n]...)
		s.in.Advance(n)
	}
	return nil
}
