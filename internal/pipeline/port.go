package pipeline

// InputEdge is the scheduler-visible view of a reader, independent of the
// sample type it carries.
type InputEdge interface {
	AvailableSize() int
	Wrapping() bool
	EOF() bool
}

// OutputEdge is the scheduler-visible view of a writer (a RingBuffer).
type OutputEdge interface {
	AvailableWriteRoom() int
	Wrapping() bool
	EOF() bool
}

// InputPort is the declared contract of one filter input channel, per
// Port state.
type InputPort struct {
	Edge InputEdge

	TypeSize          int
	HistorySize       int
	Delay             int
	RequiredSize      int
	SuggestedSize     int
	Padding           int
	MayConsumeNothing bool
}

// Runnable reports whether this port currently has enough data for the
// block to run, per the relaxed/suggested rule.
func (p InputPort) Runnable(relaxed bool) bool {
	need := p.HistorySize + p.RequiredSize
	if !relaxed && !p.Edge.Wrapping() {
		need = p.HistorySize + p.SuggestedSize
	}
	return p.Edge.AvailableSize() >= need
}

// OutputPort is the declared contract of one filter output channel.
type OutputPort struct {
	Edge OutputEdge

	TypeSize      int
	RequiredSize  int
	ProvidedSize  int
	SuggestedSize int
	Padding       int
}

// Runnable reports whether this port currently has enough room for the
// block to run.
func (p OutputPort) Runnable(relaxed bool) bool {
	if p.Edge.EOF() {
		return false
	}
	room := p.RequiredSize
	if !relaxed && !p.Edge.Wrapping() {
		room = p.SuggestedSize
	}
	return p.Edge.AvailableWriteRoom() >= room
}
