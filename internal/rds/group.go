package rds

// Block is one of the four 16-bit info words making up a group, along
// with the decoding outcome that produced it.
type Block struct {
	Data   uint16
	Status DecodingStatus
}

// Group is the four-block unit RDS groups are organised into (A, B, C
// or C', D), grounded on rds_group.h.
type Group [4]Block

// DecodingStats accumulates group-sync and error-correction counters,
// exposed through Receiver.RdsDecodingStats and the `test` CLI report.
type DecodingStats struct {
	SkippedBits          uint64
	TentativeSkippedBits uint64
	FailedBlocks         uint64
	CorrectedBlocks      uint64
	ValidBlocks          uint64
}
