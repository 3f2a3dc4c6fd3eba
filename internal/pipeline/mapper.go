package pipeline

// MapperFilter adapts an arbitrary per-sample function into a Filter,
// replacing the source's CallableTraits + MapperFilter template
// machinery with two explicit Go adapter shapes (see DESIGN.md): this
// one for a pure stateless function, and StatefulMapperFilter below for
// a closure that carries its own state explicitly rather than through
// captured mutable upvalues.
type MapperFilter[In, Out any] struct {
	in  *Reader[In]
	out *RingBuffer[Out]
	fn  func(In) Out

	inPort  InputPort
	outPort OutputPort
}

func NewMapperFilter[In, Out any](in *Reader[In], out *RingBuffer[Out], required int, fn func(In) Out) *MapperFilter[In, Out] {
	return &MapperFilter[In, Out]{
		in:  in,
		out: out,
		fn:  fn,
		inPort: InputPort{
			Edge: in, RequiredSize: required, SuggestedSize: required,
		},
		outPort: OutputPort{
			Edge: out, RequiredSize: required, ProvidedSize: required, SuggestedSize: required,
		},
	}
}

func (m *MapperFilter[In, Out]) Inputs() []InputPort   { return []InputPort{m.inPort} }
func (m *MapperFilter[In, Out]) Outputs() []OutputPort { return []OutputPort{m.outPort} }
func (m *MapperFilter[In, Out]) Reset()                {}

func (m *MapperFilter[In, Out]) Process() error {
	n := m.in.AvailableSize()
	if n > m.inPort.RequiredSize {
		n = m.inPort.RequiredSize
	}
	src := m.in.ReadSlice()
	dst := m.out.WriteSlice()
	for i := 0; i < n; i++ {
		dst[i] = m.fn(src[i])
	}
	m.in.Advance(n)
	m.out.Advance(n)
	return nil
}

// StatefulMapperFilter is the closure-with-state adapter shape: fn
// receives and returns the state value explicitly alongside the sample,
// instead of a captured *struct pointer, to keep state transitions
// visible at the call site.
type StatefulMapperFilter[In, Out, State any] struct {
	in    *Reader[In]
	out   *RingBuffer[Out]
	state State
	fn    func(State, In) (State, Out)

	inPort  InputPort
	outPort OutputPort
}

func NewStatefulMapperFilter[In, Out, State any](in *Reader[In], out *RingBuffer[Out], required int, initial State, fn func(State, In) (State, Out)) *StatefulMapperFilter[In, Out, State] {
	return &StatefulMapperFilter[In, Out, State]{
		in: in, out: out, state: initial, fn: fn,
		inPort:  InputPort{Edge: in, RequiredSize: required, SuggestedSize: required},
		outPort: OutputPort{Edge: out, RequiredSize: required, ProvidedSize: required, SuggestedSize: required},
	}
}

func (m *StatefulMapperFilter[In, Out, State]) Inputs() []InputPort   { return []InputPort{m.inPort} }
func (m *StatefulMapperFilter[In, Out, State]) Outputs() []OutputPort { return []OutputPort{m.outPort} }
func (m *StatefulMapperFilter[In, Out, State]) Reset()                {}

func (m *StatefulMapperFilter[In, Out, State]) Process() error {
	n := m.in.AvailableSize()
	if n > m.inPort.RequiredSize {
		n = m.inPort.RequiredSize
	}
	src := m.in.ReadSlice()
	dst := m.out.WriteSlice()
	for i := 0; i < n; i++ {
		m.state, dst[i] = m.fn(m.state, src[i])
	}
	m.in.Advance(n)
	m.out.Advance(n)
	return nil
}
