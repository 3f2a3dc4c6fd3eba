package fmreceiver

import (
	"github.com/openfmrx/hvylya/internal/dspfilters"
	"github.com/openfmrx/hvylya/internal/pipeline"
)

// snrRecorder is a sink-shaped block that publishes every value flowing
// through it into an AtomicFloat, matching the source's SnrRecorder
// functor wired behind each FmSnrEstimator.
type snrRecorder struct {
	in     *pipeline.Reader[float32]
	target *dspfilters.AtomicFloat

	inPort pipeline.InputPort
}

func newSnrRecorder(in *pipeline.Reader[float32], target *dspfilters.AtomicFloat) *snrRecorder {
	r := &snrRecorder{in: in, target: target}
	r.inPort = pipeline.InputPort{Edge: in, RequiredSize: 1, SuggestedSize: 1}
	return r
}

func (r *snrRecorder) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{r.inPort} }
func (r *snrRecorder) Outputs() []pipeline.OutputPort { return nil }
func (r *snrRecorder) Reset()                         {}

func (r *snrRecorder) Process() error {
	n := r.in.AvailableSize()
	if n <= 0 {
		return nil
	}
	src := r.in.ReadSlice()
	r.target.Store(float64(src[n-1]))
	r.in.Advance(n)
	return nil
}
