package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxFileSize is the size at which the journal moves to a new file
	DefaultMaxFileSize = 64 << 20

	// FilePrefix names journal files: journal.000, journal.001, ...
	FilePrefix = "journal"
)

// Log is an append-only journal split across numbered files in one
// directory. Files are only removed by RemoveBefore, once a snapshot
// covers them.
type Log struct {
	dir string

	mu        sync.Mutex
	fd        *os.File
	fileSize  int64
	fileIndex int
	closed    bool

	lsn uint64
	txn uint64

	maxFileSize int64
	syncOnWrite bool
	now         func() time.Time
	log         zerolog.Logger
}

// Option configures a Log
type Option func(*Log)

// WithMaxFileSize overrides the rotation threshold
func WithMaxFileSize(n int64) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxFileSize = n
		}
	}
}

// WithSync controls whether every append is fsynced
func WithSync(enabled bool) Option {
	return func(l *Log) { l.syncOnWrite = enabled }
}

// WithLogger sets the logger for rotation and recovery events
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Log) { l.log = logger.With().Str("component", "wal").Logger() }
}

// Open opens or creates the journal in dir. The LSN and transaction
// counters resume after the highest values found on disk.
func Open(dir string, opts ...Option) (*Log, error) {
	l := &Log{
		dir:         dir,
		maxFileSize: DefaultMaxFileSize,
		syncOnWrite: true,
		now:         time.Now,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	files, err := l.Files()
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		entries, skipped, err := ReadAll(files)
		if err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		for _, e := range entries {
			l.lsn = max(l.lsn, e.LSN)
			l.txn = max(l.txn, e.TxnID)
		}
		if skipped > 0 {
			l.log.Warn().Int("skipped_bytes", skipped).Msg("journal contains damaged frames")
		}
		l.fileIndex = fileIndex(files[len(files)-1])
	}

	if err := l.openFileLocked(l.fileIndex); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the journal directory
func (l *Log) Dir() string { return l.dir }

// LastLSN returns the highest LSN assigned so far
func (l *Log) LastLSN() uint64 {
	return atomic.LoadUint64(&l.lsn)
}

// AdvanceLSN raises the LSN counter to at least lsn so new entries sort
// after anything a snapshot already covers
func (l *Log) AdvanceLSN(lsn uint64) {
	for {
		cur := atomic.LoadUint64(&l.lsn)
		if cur >= lsn || atomic.CompareAndSwapUint64(&l.lsn, cur, lsn) {
			return
		}
	}
}

// Begin starts a transaction. Nothing reaches disk until Commit.
func (l *Log) Begin() *Txn {
	return &Txn{log: l, id: atomic.AddUint64(&l.txn, 1)}
}

// append assigns LSNs and writes entries as one contiguous write
func (l *Log) append(entries []Entry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLogClosed
	}

	size := 0
	for i := range entries {
		if len(entries[i].NodeID) > MaxKeyLen || len(entries[i].Payload) > MaxValueLen {
			return 0, fmt.Errorf("%w: entry too large", ErrInvalidEntry)
		}
		size += entries[i].Size()
	}
	if l.fileSize > 0 && l.fileSize+int64(size) > l.maxFileSize {
		if err := l.rotateLocked(); err != nil {
			return 0, err
		}
	}

	now := l.now()
	buf := make([]byte, 0, size)
	var last uint64
	for i := range entries {
		entries[i].LSN = atomic.AddUint64(&l.lsn, 1)
		if entries[i].Timestamp.IsZero() {
			entries[i].Timestamp = now
		}
		buf = append(buf, entries[i].Encode()...)
		last = entries[i].LSN
	}

	n, err := l.fd.Write(buf)
	l.fileSize += int64(n)
	if err != nil {
		return 0, fmt.Errorf("write journal: %w", err)
	}
	if l.syncOnWrite {
		if err := l.fd.Sync(); err != nil {
			return 0, fmt.Errorf("sync journal: %w", err)
		}
	}
	return last, nil
}

// WriteCheckpoint records that a snapshot covers every LSN up to lsn
func (l *Log) WriteCheckpoint(lsn uint64) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, lsn)
	_, err := l.append([]Entry{{Op: OpCheckpoint, Payload: payload}})
	return err
}

// Sync flushes the current file to stable storage
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLogClosed
	}
	return l.fd.Sync()
}

// Rotate closes the current file and starts the next one, returning the
// new file's index. Every entry written before the call lives in a file
// with a lower index.
func (l *Log) Rotate() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrLogClosed
	}
	if err := l.rotateLocked(); err != nil {
		return 0, err
	}
	return l.fileIndex, nil
}

// RemoveBefore deletes journal files whose index is below index
func (l *Log) RemoveBefore(index int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	index = min(index, l.fileIndex)
	files, err := l.Files()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if fileIndex(f) >= index {
			continue
		}
		if err := os.Remove(f); err != nil {
			return removed, fmt.Errorf("remove journal file: %w", err)
		}
		removed++
	}
	if removed > 0 {
		l.log.Debug().Int("files", removed).Int("before", index).Msg("journal truncated")
	}
	return removed, nil
}

// Close syncs and closes the current file
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.fd.Sync(); err != nil {
		l.fd.Close()
		return err
	}
	return l.fd.Close()
}

func (l *Log) rotateLocked() error {
	if err := l.fd.Sync(); err != nil {
		return err
	}
	if err := l.fd.Close(); err != nil {
		return err
	}
	if err := l.openFileLocked(l.fileIndex + 1); err != nil {
		return err
	}
	l.log.Debug().Int("file_index", l.fileIndex).Msg("journal rotated")
	return nil
}

func (l *Log) openFileLocked(index int) error {
	fd, err := os.OpenFile(l.filePath(index), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return err
	}
	l.fd = fd
	l.fileIndex = index
	l.fileSize = stat.Size()
	return nil
}

func (l *Log) filePath(index int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s.%03d", FilePrefix, index))
}

// Files lists journal files in index order
func (l *Log) Files() ([]string, error) {
	return FindFiles(l.dir)
}

// FindFiles lists the journal files in dir in index order
func FindFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && fileIndex(entry.Name()) >= 0 {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Slice(files, func(i, j int) bool { return fileIndex(files[i]) < fileIndex(files[j]) })
	return files, nil
}

// fileIndex parses the numeric suffix of a journal file name, or -1
func fileIndex(path string) int {
	name := filepath.Base(path)
	suffix, ok := strings.CutPrefix(name, FilePrefix+".")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Txn buffers the entries of one transaction
type Txn struct {
	log     *Log
	id      uint64
	entries []Entry
	done    bool
}

// ID returns the transaction id
func (t *Txn) ID() uint64 { return t.id }

// Index records a node payload
func (t *Txn) Index(nodeID string, payload []byte) {
	t.entries = append(t.entries, Entry{TxnID: t.id, Op: OpIndex, NodeID: nodeID, Payload: payload})
}

// Remove records a node removal
func (t *Txn) Remove(nodeID string) {
	t.entries = append(t.entries, Entry{TxnID: t.id, Op: OpRemove, NodeID: nodeID})
}

// Reset records that every node was dropped
func (t *Txn) Reset() {
	t.entries = append(t.entries, Entry{TxnID: t.id, Op: OpReset})
}

// Len returns the number of buffered operations
func (t *Txn) Len() int { return len(t.entries) }

// Commit writes the buffered operations followed by a commit marker in a
// single write and returns the commit LSN
func (t *Txn) Commit() (uint64, error) {
	if t.done {
		return 0, ErrTxnDone
	}
	entries := append(t.entries, Entry{TxnID: t.id, Op: OpCommit})
	lsn, err := t.log.append(entries)
	if err != nil {
		return 0, err
	}
	t.done = true
	return lsn, nil
}
