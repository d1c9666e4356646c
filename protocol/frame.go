package protocol

import "errors"

var (
	// ErrNeedMore means the buffer holds only part of a block.
	ErrNeedMore = errors.New("incomplete block")
	// ErrBadBlock means the bytes at the front are not a valid block.
	ErrBadBlock = errors.New("malformed block")
	// ErrBlockTooLong is returned when a payload does not fit in one block.
	ErrBlockTooLong = errors.New("block too long")
)

// Block is one parsed frame.
type Block struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether b carries no payload.
func (b Block) IsAck() bool { return len(b.Payload) == 0 }

// ParseBlock decodes the block at the front of data and returns the number
// of bytes it occupies. Payload aliases data.
func ParseBlock(data []byte) (Block, int, error) {
	if len(data) < BlockMin {
		return Block{}, 0, ErrNeedMore
	}
	n := int(data[BlockPosLen])
	if n < BlockMin || n > BlockMax {
		return Block{}, 0, ErrBadBlock
	}
	seq := data[BlockPosSeq]
	if seq&^SeqMask != DestBit {
		return Block{}, 0, ErrBadBlock
	}
	if len(data) < n {
		return Block{}, 0, ErrNeedMore
	}
	if data[n-1] != SyncByte {
		return Block{}, 0, ErrBadBlock
	}
	want := uint16(data[n-3])<<8 | uint16(data[n-2])
	if CRC16(data[:n-BlockTrailerSize]) != want {
		return Block{}, 0, ErrBadBlock
	}
	return Block{Seq: seq, Payload: data[BlockHeaderSize : n-BlockTrailerSize]}, n, nil
}

// Resync returns the offset just past the next sync byte in data, or
// len(data) if there is none.
func Resync(data []byte) int {
	for i, b := range data {
		if b == SyncByte {
			return i + 1
		}
	}
	return len(data)
}

// WriteBlock frames whatever body writes to out.
func WriteBlock(out OutputBuffer, seq uint8, body func(OutputBuffer)) {
	start := out.CurPosition()
	out.Output([]byte{0, seq})
	if body != nil {
		body(out)
	}
	out.Update(start, uint8(len(out.DataSince(start))+BlockTrailerSize))
	crc := CRC16(out.DataSince(start))
	out.Output([]byte{uint8(crc >> 8), uint8(crc), SyncByte})
}

// AppendBlock appends a framed copy of payload to dst.
func AppendBlock(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := BlockMin + len(payload)
	if n > BlockMax {
		return dst, ErrBlockTooLong
	}
	start := len(dst)
	dst = append(dst, uint8(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), SyncByte), nil
}

// EncodeCommand returns the VLQ payload of one command.
func EncodeCommand(id uint16, args func(OutputBuffer)) []byte {
	out := NewScratchOutput()
	EncodeVLQUint(out, uint32(id))
	if args != nil {
		args(out)
	}
	return append([]byte(nil), out.Result()...)
}
