package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

// OpType identifies what a journal entry records
type OpType byte

const (
	// OpIndex stores a node payload under its id
	OpIndex OpType = 1

	// OpRemove drops a node id
	OpRemove OpType = 2

	// OpReset clears every node
	OpReset OpType = 3

	// OpCommit closes a transaction; only committed transactions replay
	OpCommit OpType = 4

	// OpCheckpoint marks that a snapshot covers every LSN up to the one in its payload
	OpCheckpoint OpType = 5
)

func (op OpType) String() string {
	switch op {
	case OpIndex:
		return "INDEX"
	case OpRemove:
		return "REMOVE"
	case OpReset:
		return "RESET"
	case OpCommit:
		return "COMMIT"
	case OpCheckpoint:
		return "CHECKPOINT"
	}
	return fmt.Sprintf("OP(%d)", byte(op))
}

func (op OpType) valid() bool {
	return op >= OpIndex && op <= OpCheckpoint
}

const (
	// frameMagic starts every frame so a reader can resynchronize after damage
	frameMagic uint32 = 0xC0DE1DC5

	// HeaderSize is the fixed frame header length.
	// Layout: Magic(4) LSN(8) TxnID(8) Op(1) Reserved(3) KeyLen(4) ValLen(4) UnixNano(8)
	HeaderSize = 40

	// MaxKeyLen bounds node ids
	MaxKeyLen = 4 << 10

	// MaxValueLen bounds encoded node payloads
	MaxValueLen = 16 << 20

	crcSize = 4
)

// Entry is a single journal record
type Entry struct {
	LSN       uint64
	TxnID     uint64
	Op        OpType
	NodeID    string
	Payload   []byte
	Timestamp time.Time
}

// Encode frames the entry as [header][node id][payload][crc32]. The
// checksum covers the header and body.
func (e *Entry) Encode() []byte {
	keyLen, valLen := len(e.NodeID), len(e.Payload)
	buf := make([]byte, HeaderSize+keyLen+valLen+crcSize)

	binary.LittleEndian.PutUint32(buf[0:4], frameMagic)
	binary.LittleEndian.PutUint64(buf[4:12], e.LSN)
	binary.LittleEndian.PutUint64(buf[12:20], e.TxnID)
	buf[20] = byte(e.Op)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(keyLen))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(valLen))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(e.Timestamp.UnixNano()))

	off := HeaderSize
	off += copy(buf[off:], e.NodeID)
	off += copy(buf[off:], e.Payload)
	binary.LittleEndian.PutUint32(buf[off:], crc32.ChecksumIEEE(buf[:off]))
	return buf
}

// Size returns the encoded frame length
func (e *Entry) Size() int {
	return HeaderSize + len(e.NodeID) + len(e.Payload) + crcSize
}

// frameLen reads the total frame length from a header
func frameLen(header []byte) (int, error) {
	if len(header) < HeaderSize {
		return 0, ErrTruncated
	}
	if binary.LittleEndian.Uint32(header[0:4]) != frameMagic {
		return 0, ErrInvalidEntry
	}
	keyLen := binary.LittleEndian.Uint32(header[24:28])
	valLen := binary.LittleEndian.Uint32(header[28:32])
	if keyLen > MaxKeyLen || valLen > MaxValueLen {
		return 0, ErrInvalidEntry
	}
	return HeaderSize + int(keyLen) + int(valLen) + crcSize, nil
}

// DecodeEntry parses one frame from the start of data and returns the
// entry and the number of bytes consumed
func DecodeEntry(data []byte) (*Entry, int, error) {
	size, err := frameLen(data)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < size {
		return nil, 0, ErrTruncated
	}

	body := data[:size-crcSize]
	if binary.LittleEndian.Uint32(data[size-crcSize:size]) != crc32.ChecksumIEEE(body) {
		return nil, 0, ErrCorrupted
	}

	e := &Entry{
		LSN:       binary.LittleEndian.Uint64(data[4:12]),
		TxnID:     binary.LittleEndian.Uint64(data[12:20]),
		Op:        OpType(data[20]),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(data[32:40]))).UTC(),
	}
	if !e.Op.valid() {
		return nil, 0, ErrInvalidEntry
	}

	keyLen := int(binary.LittleEndian.Uint32(data[24:28]))
	e.NodeID = string(data[HeaderSize : HeaderSize+keyLen])
	if valLen := size - crcSize - HeaderSize - keyLen; valLen > 0 {
		e.Payload = make([]byte, valLen)
		copy(e.Payload, data[HeaderSize+keyLen:size-crcSize])
	}
	return e, size, nil
}

// CheckpointLSN returns the snapshot LSN carried by a checkpoint entry
func (e *Entry) CheckpointLSN() uint64 {
	if e.Op != OpCheckpoint || len(e.Payload) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(e.Payload)
}

func (e *Entry) String() string {
	return fmt.Sprintf("LSN=%d txn=%d op=%s node=%q payload=%dB at=%s",
		e.LSN, e.TxnID, e.Op, e.NodeID, len(e.Payload), e.Timestamp.Format(time.RFC3339Nano))
}
