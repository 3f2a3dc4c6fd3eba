package simd

import "unsafe"

// AlignedBuffer is a heap-backed real/complex sample buffer whose
// backing array starts on an address that is a multiple of alignBytes,
// obtained by over-allocating and slicing to the first aligned offset
// (Go does not expose posix_memalign; this is the portable equivalent).
type AlignedBuffer[T RealLane | ComplexLane] struct {
	raw   []T
	Data  []T
}

// NewAlignedBuffer allocates n elements of T aligned to alignBytes.
func NewAlignedBuffer[T RealLane | ComplexLane](n, alignBytes int) *AlignedBuffer[T] {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	extra := alignBytes / elemSize
	if extra == 0 {
		extra = 1
	}
	raw := make([]T, n+extra)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := int((uintptr(alignBytes) - addr%uintptr(alignBytes)) % uintptr(alignBytes) / uintptr(elemSize))
	return &AlignedBuffer[T]{raw: raw, Data: raw[offset : offset+n]}
}

func (b *AlignedBuffer[T]) Len() int { return len(b.Data) }
