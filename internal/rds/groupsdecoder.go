package rds

import (
	"sync"

	"github.com/openfmrx/hvylya/internal/pipeline"
)

const (
	groupBitsCount                = 4 * blockBitsCount
	minBlocksExtractedToSync      = 4
	minBlocksValidToSync          = 2
	minBlocksExtractedWhenSynced  = 3
	minBlocksValidWhenSynced      = 1
	maxFailedBlocks                = 32
)

var blockOffsets = [4]int32{OffsetA, OffsetB, OffsetC, OffsetD}

// GroupsDecoder re-synchronises to the 104-bit group boundary from a
// raw differentially-decoded bit stream, sliding a 4x26-bit window one
// bit at a time and testing every offset hypothesis until enough blocks
// decode cleanly, grounded on rds_groups_decoder.{h,cpp}.
type GroupsDecoder struct {
	in  *pipeline.Reader[int8]
	out *pipeline.RingBuffer[Group]

	blocks          [4]int32
	accumulatedBits int
	recentFailed    int
	synced          bool

	statsMu sync.Mutex
	stats   DecodingStats

	inPort  pipeline.InputPort
	outPort pipeline.OutputPort
}

func NewGroupsDecoder(in *pipeline.Reader[int8], out *pipeline.RingBuffer[Group]) *GroupsDecoder {
	d := &GroupsDecoder{in: in, out: out}
	d.inPort = pipeline.InputPort{Edge: in, RequiredSize: 1, SuggestedSize: groupBitsCount}
	d.outPort = pipeline.OutputPort{Edge: out, RequiredSize: 1, ProvidedSize: 0, SuggestedSize: 1}
	return d
}

func (d *GroupsDecoder) Inputs() []pipeline.InputPort   { return []pipeline.InputPort{d.inPort} }
func (d *GroupsDecoder) Outputs() []pipeline.OutputPort { return []pipeline.OutputPort{d.outPort} }

func (d *GroupsDecoder) Reset() {
	d.accumulatedBits = 0
	d.recentFailed = 0
	d.synced = false
	d.statsMu.Lock()
	d.stats = DecodingStats{}
	d.statsMu.Unlock()
	d.blocks = [4]int32{}
	d.out.Reset()
}

// Stats returns a snapshot of the decoder's running sync/error counters.
func (d *GroupsDecoder) Stats() DecodingStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *GroupsDecoder) addBit(bit int8) {
	for i := 0; i < 3; i++ {
		carry := int32(0)
		if d.blocks[i+1]&(1<<(blockBitsCount-1)) != 0 {
			carry = 1
		}
		d.blocks[i] = ((d.blocks[i] << 1) | carry) & blockMask
	}
	d.blocks[3] = ((d.blocks[3] << 1) | int32(bit)) & blockMask
	d.accumulatedBits++
}

// extractInfo decodes block `offset` of the candidate group, resolving
// the block-C / block-C' version ambiguity against group[1]'s payload
// version flag (bit 11) the way the source's extractInfo does.
func (d *GroupsDecoder) extractInfo(group *Group, offset int) DecodingStatus {
	data, status := DecodeBlock(d.blocks[offset], blockOffsets[offset])

	if offset == 2 {
		data2, status2 := DecodeBlock(d.blocks[offset], OffsetCp)
		versionB := int32(0)
		if status2 >= status {
			data = data2
			status = status2
			versionB = 1
		}

		if status >= StatusCorrected && group[1].Status != StatusUncorrectable {
			if int32((group[1].Data>>11)&1) != versionB {
				if DecodingStatus(group[1].Status) <= status {
					group[1].Status = StatusUncorrectable
				} else {
					status = StatusUncorrectable
				}
			}
		}
	}

	group[offset].Status = status
	group[offset].Data = uint16(data)
	return status
}

func (d *GroupsDecoder) Process() error {
	n := d.in.AvailableSize()
	room := d.out.AvailableWriteRoom()
	if n <= 0 || room <= 0 {
		return nil
	}

	src := d.in.ReadSlice()
	dst := d.out.WriteSlice()

	inputIndex, outputIndex := 0, 0
	for ; inputIndex < n && outputIndex < room; inputIndex++ {
		d.addBit(src[inputIndex])

		d.statsMu.Lock()
		d.stats.TentativeSkippedBits = uint64(d.accumulatedBits)
		d.statsMu.Unlock()

		if d.accumulatedBits < groupBitsCount {
			continue
		}

		var group Group
		var blocksInvalid, blocksCorrected, blocksValid int
		for offset := 0; offset < 4; offset++ {
			switch d.extractInfo(&group, offset) {
			case StatusUncorrectable:
				blocksInvalid++
			case StatusCorrected:
				blocksCorrected++
			case StatusValid:
				blocksValid++
			}
		}

		if d.synced && d.accumulatedBits%groupBitsCount == 0 {
			if blocksValid > 0 {
				d.recentFailed = 0
			} else {
				d.recentFailed += blocksInvalid
			}
			if d.recentFailed > maxFailedBlocks {
				d.synced = false
			}
		}

		syncedByFreshLock := blocksCorrected+blocksValid >= minBlocksExtractedToSync && blocksValid >= minBlocksValidToSync
		syncedBySteadyState := d.synced && d.accumulatedBits%groupBitsCount == 0 &&
			blocksCorrected+blocksValid >= minBlocksExtractedWhenSynced && blocksValid >= minBlocksValidWhenSynced

		if syncedByFreshLock || syncedBySteadyState {
			d.statsMu.Lock()
			d.synced = true
			d.stats.SkippedBits += uint64(d.accumulatedBits - groupBitsCount)
			d.stats.TentativeSkippedBits = 0
			d.stats.FailedBlocks += uint64(blocksInvalid)
			d.stats.CorrectedBlocks += uint64(blocksCorrected)
			d.stats.ValidBlocks += uint64(blocksValid)
			d.statsMu.Unlock()

			d.accumulatedBits = 0
			dst[outputIndex] = group
			outputIndex++
		}
	}

	d.in.Advance(inputIndex)
	d.out.Advance(outputIndex)
	if d.in.EOF() {
		d.out.SetEOF()
	}
	return nil
}
