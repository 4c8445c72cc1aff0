package wal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var magicBytes = binary.LittleEndian.AppendUint32(nil, frameMagic)

// Reader iterates the entries of a sequence of journal files. Damaged
// frames are skipped by scanning forward to the next frame marker.
type Reader struct {
	files   []string
	current int
	data    []byte
	pos     int
	skipped int
}

// NewReader creates a reader over files in the given order
func NewReader(files []string) *Reader {
	return &Reader{files: files, current: -1}
}

// Next returns the next intact entry, or io.EOF after the last file
func (r *Reader) Next() (*Entry, error) {
	for {
		if r.current < 0 || r.pos >= len(r.data) {
			if err := r.nextFile(); err != nil {
				return nil, err
			}
			continue
		}

		e, n, err := DecodeEntry(r.data[r.pos:])
		if err == nil {
			r.pos += n
			return e, nil
		}
		if !errors.Is(err, ErrCorrupted) && !errors.Is(err, ErrTruncated) && !errors.Is(err, ErrInvalidEntry) {
			return nil, err
		}
		r.resync()
	}
}

// resync advances past the damaged frame to the next frame marker in the
// current file, or to its end
func (r *Reader) resync() {
	start := r.pos
	next := bytes.Index(r.data[r.pos+1:], magicBytes)
	if next < 0 {
		r.pos = len(r.data)
	} else {
		r.pos += 1 + next
	}
	r.skipped += r.pos - start
}

func (r *Reader) nextFile() error {
	r.current++
	if r.current >= len(r.files) {
		r.data = nil
		return io.EOF
	}
	data, err := os.ReadFile(r.files[r.current])
	if err != nil {
		return fmt.Errorf("read journal file: %w", err)
	}
	r.data = data
	r.pos = 0
	return nil
}

// Skipped reports how many bytes were discarded as damaged
func (r *Reader) Skipped() int {
	return r.skipped
}

// ReadAll reads every intact entry from files and reports the number of
// damaged bytes skipped
func ReadAll(files []string) ([]*Entry, int, error) {
	if len(files) == 0 {
		return nil, 0, ErrLogNotFound
	}

	r := NewReader(files)
	var entries []*Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return entries, r.Skipped(), nil
		}
		if err != nil {
			return nil, r.Skipped(), err
		}
		entries = append(entries, e)
	}
}
