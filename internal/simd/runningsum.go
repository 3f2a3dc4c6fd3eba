package simd

import "github.com/openfmrx/hvylya/internal/hvylyaerr"

// RunningSum maintains the sum of the last maxSize values added to it,
// using Kahan compensation to bound floating-point drift, and
// periodically re-accumulates from the live window to eliminate any
// residual error that compensation alone cannot catch.
//
// Grounded on the source's running_sum.cpp: a circular window plus a
// Kahan compensator, re-summed every floor(1/eps) additions.
type RunningSum struct {
	window      []float64
	pos         int
	filled      int
	sum         float64
	compensator float64
	sinceResum  int
	resumEvery  int
}

// NewRunningSum creates a running sum over a window of maxSize values.
// It fails with InvalidArgument if maxSize == 0, matching the source's
// CHECK contract.
func NewRunningSum(maxSize int, eps float64) (*RunningSum, error) {
	if maxSize == 0 {
		return nil, hvylyaerr.NewInvalidArgument("running sum window size must be non-zero")
	}
	if eps <= 0 {
		eps = 1e-9
	}
	resumEvery := int(1 / eps)
	if resumEvery <= 0 {
		resumEvery = 1 << 20
	}
	return &RunningSum{
		window:     make([]float64, maxSize),
		resumEvery: resumEvery,
	}, nil
}

// Add folds in a new value, evicting the oldest one in the window, and
// returns the updated sum.
func (r *RunningSum) Add(v float64) float64 {
	outgoing := r.window[r.pos]
	r.window[r.pos] = v
	r.pos = (r.pos + 1) % len(r.window)
	if r.filled < len(r.window) {
		r.filled++
		outgoing = 0
	}

	delta := v - outgoing
	y := delta - r.compensator
	t := r.sum + y
	r.compensator = (t - r.sum) - y
	r.sum = t

	r.sinceResum++
	if r.sinceResum >= r.resumEvery {
		r.resum()
	}
	return r.sum
}

func (r *RunningSum) resum() {
	var total float64
	for _, v := range r.window[:r.filled] {
		total += v
	}
	r.sum = total
	r.compensator = 0
	r.sinceResum = 0
}

// Sum returns the current window sum.
func (r *RunningSum) Sum() float64 { return r.sum }

// Avg returns the average over the filled portion of the window. It
// fails with InvalidArgument if the window is empty.
func (r *RunningSum) Avg() (float64, error) {
	if r.filled == 0 {
		return 0, hvylyaerr.NewInvalidArgument("running sum average requested on empty window")
	}
	return r.sum / float64(r.filled), nil
}

// Filled reports how many samples are currently held (< maxSize until
// the window first fills).
func (r *RunningSum) Filled() int { return r.filled }
