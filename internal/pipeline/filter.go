package pipeline

// Filter is the untyped façade the scheduler drives: port descriptors
// for runnability checks, Process to run one batch, and Reset to return
// to the initial state. Concrete filters are Go generic types over their
// sample types (real float32 or complex64); type compatibility between a
// source and a sink is enforced at compile time by Go's type system when
// wiring with Connect, which is the source's build-time connect() check
// turned into something the compiler does for free.
type Filter interface {
	Inputs() []InputPort
	Outputs() []OutputPort
	Process() error
	Reset()
}

// Named is implemented by filters that want a friendly name in logs and
// stall diagnostics; filters that don't implement it fall back to their
// Go type name.
type Named interface {
	Name() string
}

// Connect wires a typed output edge to a new reader on it, returning the
// Reader the sink filter should hold. historySize/suggestedInputSize are
// the sink's declared requirements for this input channel. Because both
// sides are the same generic RingBuffer[T], a mismatched sample type is
// a compile error, not a runtime one.
func Connect[T any](source *RingBuffer[T], historySize, suggestedInputSize int) *Reader[T] {
	return source.AddReader(historySize, suggestedInputSize)
}

// CompositeFilter lets a wiring helper group several inner filters
// behind one Filter interface, exposing only the inner filters' external
// channels. Its sub-graph must still be added to the pipeline so the
// scheduler can run it; Process/Reset here are no-ops because the real
// work happens on the inner filters directly.
type CompositeFilter struct {
	inner   []Filter
	inputs  []InputPort
	outputs []OutputPort
}

func NewCompositeFilter(inner []Filter, inputs []InputPort, outputs []OutputPort) *CompositeFilter {
	return &CompositeFilter{inner: inner, inputs: inputs, outputs: outputs}
}

func (c *CompositeFilter) Inputs() []InputPort   { return c.inputs }
func (c *CompositeFilter) Outputs() []OutputPort { return c.outputs }
func (c *CompositeFilter) Process() error        { return nil }
func (c *CompositeFilter) Reset() {
	for _, f := range c.inner {
		f.Reset()
	}
}

// InnerFilters returns the filters the composite proxies, so a pipeline
// builder can add them transitively.
func (c *CompositeFilter) InnerFilters() []Filter { return c.inner }
