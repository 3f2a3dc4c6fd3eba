package dspfilters

import (
	"math"
	"sync/atomic"
)

// AtomicFloat is a lock-free float64 control knob shared between the
// processing graph and whatever drives it live (CLI keypress handler,
// RDS-driven auto mute, etc.), mirroring the source's use of
// std::atomic<float> for cross-thread filter parameters such as the
// stereo blend and squelch threshold.
type AtomicFloat struct {
	bits atomic.Uint64
}

func NewAtomicFloat(initial float64) *AtomicFloat {
	a := &AtomicFloat{}
	a.Store(initial)
	return a
}

func (a *AtomicFloat) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

func (a *AtomicFloat) Store(v float64) {
	a.bits.Store(math.Float64bits(v))
}
