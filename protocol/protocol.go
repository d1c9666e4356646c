// Package protocol implements the framed serial link between the firmware and
// a host: VLQ-encoded command blocks protected by a CRC16 and delimited by a
// sync byte.
//
// Block layout:
//
//	len seq payload... crc_hi crc_lo 0x7E
//
// len counts the whole block. seq carries DestBit plus a 4-bit sequence number.
// A block with an empty payload is an ACK (or NAK) naming the next expected
// sequence.
package protocol

// Version is the protocol/firmware version string reported in the dictionary.
const Version = "huepico-0.1.0"

// Block layout constants
const (
	BlockHeaderSize  = 2 // len, seq
	BlockTrailerSize = 3 // crc16, sync
	BlockMin         = BlockHeaderSize + BlockTrailerSize
	BlockMax         = 64

	BlockPosLen = 0
	BlockPosSeq = 1

	SyncByte = 0x7E
	DestBit  = 0x10
	SeqMask  = 0x0F

	// ScratchSize is the capacity of a ScratchOutput.
	ScratchSize = 512
)

// NextSeq returns the sequence byte following seq.
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | DestBit
}
