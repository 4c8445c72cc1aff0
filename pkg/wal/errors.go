// Package wal is the append-only node journal that makes index mutations
// durable between snapshots
package wal

import "errors"

var (
	// ErrCorrupted indicates a frame whose checksum does not match
	ErrCorrupted = errors.New("wal: corrupted entry")

	// ErrInvalidEntry indicates a frame with an unknown op or bad lengths
	ErrInvalidEntry = errors.New("wal: invalid entry")

	// ErrLogClosed indicates an operation on a closed journal
	ErrLogClosed = errors.New("wal: log closed")

	// ErrLogNotFound indicates that no journal files exist
	ErrLogNotFound = errors.New("wal: log not found")

	// ErrTruncated indicates a frame cut short, usually by a crash mid-write
	ErrTruncated = errors.New("wal: truncated entry")

	// ErrTxnDone indicates a transaction that was already committed
	ErrTxnDone = errors.New("wal: transaction already committed")
)
