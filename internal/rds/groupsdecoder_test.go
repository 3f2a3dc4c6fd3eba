package rds

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfmrx/hvylya/internal/pipeline"
)

// encodeBits appends the 26 bits of block (MSB first) to bits.
func encodeBits(bits []int8, info, offset int32) []int8 {
	block := EncodeBlock(info, offset)
	for i := blockBitsCount - 1; i >= 0; i-- {
		bits = append(bits, int8((block>>uint(i))&1))
	}
	return bits
}

func buildGroupsDecoder(bits []int8) (*GroupsDecoder, *pipeline.Reader[Group]) {
	src := pipeline.NewRingBuffer[int8](len(bits)+16, 0, groupBitsCount, 1, 1)
	reader := pipeline.Connect[int8](src, 0, groupBitsCount)
	dst := pipeline.NewRingBuffer[Group](64, 0, 0, 1, 1)
	d := NewGroupsDecoder(reader, dst)

	src.Reset()
	w := src.WriteSlice()
	copy(w, bits)
	src.Advance(len(bits))
	src.SetEOF()

	out := dst.AddReader(0, 1)
	return d, out
}

func TestGroupsDecoderSyncsOnCleanStream(t *testing.T) {
	var bits []int8
	// A few repeats so the decoder accumulates enough valid blocks to
	// declare lock before the one group under test.
	for rep := 0; rep < 3; rep++ {
		bits = encodeBits(bits, 0x1001, OffsetA)
		bits = encodeBits(bits, 0x0400, OffsetB)
		bits = encodeBits(bits, 0xBEEF, OffsetC)
		bits = encodeBits(bits, 0xCAFE, OffsetD)
	}

	d, out := buildGroupsDecoder(bits)
	require.NoError(t, d.Process())

	require.Greater(t, out.AvailableSize(), 0)
	groups := out.ReadSlice()
	last := groups[out.AvailableSize()-1]
	require.Equal(t, StatusValid, last[0].Status)
	require.Equal(t, uint16(0x1001), last[0].Data)
	require.Equal(t, uint16(0x0400), last[1].Data)
	require.Equal(t, uint16(0xBEEF), last[2].Data)
	require.Equal(t, uint16(0xCAFE), last[3].Data)

	stats := d.Stats()
	require.Equal(t, uint64(0), stats.FailedBlocks)
}

func TestGroupsDecoderResyncsAfterGarbage(t *testing.T) {
	var bits []int8
	for i := 0; i < groupBitsCount*2; i++ {
		bits = append(bits, int8(i%2))
	}
	for rep := 0; rep < 3; rep++ {
		bits = encodeBits(bits, 0x4242, OffsetA)
		bits = encodeBits(bits, 0x0000, OffsetB)
		bits = encodeBits(bits, 0x1111, OffsetC)
		bits = encodeBits(bits, 0x2222, OffsetD)
	}

	d, out := buildGroupsDecoder(bits)
	require.NoError(t, d.Process())
	require.Greater(t, out.AvailableSize(), 0)

	groups := out.ReadSlice()
	last := groups[out.AvailableSize()-1]
	require.Equal(t, uint16(0x4242), last[0].Data)
	require.Equal(t, uint16(0x2222), last[3].Data)
}
