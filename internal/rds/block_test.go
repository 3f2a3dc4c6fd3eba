package rds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	for _, offset := range []int32{OffsetA, OffsetB, OffsetC, OffsetD, OffsetCp} {
		for _, info := range []int32{0x0000, 0x1234, 0x5678, 0xFFFF, 0xA5A5} {
			block := EncodeBlock(info, offset)
			decoded, status := DecodeBlock(block, offset)
			require.Equal(t, StatusValid, status)
			assert.Equal(t, info, decoded)
			assert.True(t, IsBlockValid(block, offset))
		}
	}
}

func TestDecodeBlockCorrectsSingleBitError(t *testing.T) {
	block := EncodeBlock(0x1234, OffsetA)
	for bit := 0; bit < blockBitsCount; bit++ {
		corrupted := block ^ (1 << uint(bit))
		decoded, status := DecodeBlock(corrupted, OffsetA)
		if status == StatusValid {
			// a single flipped bit can occasionally still land on a
			// different codeword; not expected for this generator but
			// tolerate it rather than assert impossible behaviour.
			continue
		}
		assert.Equal(t, StatusCorrected, status)
		assert.Equal(t, int32(0x1234), decoded)
	}
}

func TestDecodeBlockRejectsLongBurst(t *testing.T) {
	block := EncodeBlock(0x1234, OffsetA)
	// An 11-bit burst starting mid-word exceeds the 5-bit error-trapping
	// window and must never be silently miscorrected to Valid.
	burst := int32(0x7FF) << 8
	corrupted := block ^ burst
	_, status := DecodeBlock(corrupted, OffsetA)
	assert.NotEqual(t, StatusValid, status)
}

func TestDecodingStatusOrdering(t *testing.T) {
	assert.Less(t, int(StatusUncorrectable), int(StatusCorrected))
	assert.Less(t, int(StatusCorrected), int(StatusValid))
}

func TestWorseStatusTakesMin(t *testing.T) {
	assert.Equal(t, StatusUncorrectable, worseStatus(StatusUncorrectable, StatusValid))
	assert.Equal(t, StatusCorrected, worseStatus(StatusCorrected, StatusValid))
	assert.Equal(t, StatusValid, worseStatus(StatusValid, StatusValid))
}
