// ABOUTME: Durable facade over the in-memory index
// ABOUTME: Journals every mutation before applying it and restores from snapshot plus journal on open

package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/codexindex/pkg/index"
	"github.com/nainya/codexindex/pkg/node"
	"github.com/nainya/codexindex/pkg/snapshot"
	"github.com/nainya/codexindex/pkg/wal"
)

var (
	// ErrClosed indicates an operation on a closed engine
	ErrClosed = errors.New("engine: closed")

	// ErrNotDurable indicates a durability operation on an in-memory engine
	ErrNotDurable = errors.New("engine: no data directory configured")
)

// Config controls durability. An empty DataDir runs purely in memory.
type Config struct {
	DataDir            string
	CheckpointInterval time.Duration
	CheckpointOnClose  bool
	SyncWrites         bool
	MaxJournalFileSize int64
	CacheSize          int
	CacheTTL           time.Duration
}

// Observer receives engine activity in addition to index activity
type Observer interface {
	index.Observer
	ObserveJournalWrite(op string, entries int, err error)
	ObserveCheckpoint(took time.Duration, nodes int, err error)
	ObserveRecovery(replayed int, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveIndexOp(string, error, time.Duration)       {}
func (nopObserver) ObserveQuery(index.QueryType, bool, time.Duration) {}
func (nopObserver) SetIndexedNodes(int)                               {}
func (nopObserver) ObserveJournalWrite(string, int, error)            {}
func (nopObserver) ObserveCheckpoint(time.Duration, int, error)       {}
func (nopObserver) ObserveRecovery(int, time.Duration)                {}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger; the index, journal and snapshot store
// derive their loggers from it
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithObserver attaches a metrics observer
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// RecoveryInfo describes what Open restored
type RecoveryInfo struct {
	SnapshotID    string             `json:"snapshot_id,omitempty"`
	SnapshotLSN   uint64             `json:"snapshot_lsn"`
	SnapshotNodes int                `json:"snapshot_nodes"`
	Journal       *wal.RecoveryStats `json:"journal,omitempty"`
	Took          time.Duration      `json:"took"`
}

// CheckpointResult describes one completed checkpoint
type CheckpointResult struct {
	Snapshot     *snapshot.Info `json:"snapshot"`
	RemovedFiles int            `json:"removed_files"`
	Took         time.Duration  `json:"took"`
}

// Status reports the durability state
type Status struct {
	Durable      bool           `json:"durable"`
	DataDir      string         `json:"data_dir,omitempty"`
	LastLSN      uint64         `json:"last_lsn"`
	JournalFiles int            `json:"journal_files"`
	LastSnapshot *snapshot.Info `json:"last_snapshot,omitempty"`
	Recovery     RecoveryInfo   `json:"recovery"`
}

// Engine owns an index and, when configured with a data directory, the
// journal and snapshot store that make it durable
type Engine struct {
	cfg Config

	// mu orders journal writes with their application to the index
	mu sync.Mutex
	// ckMu keeps checkpoints from overlapping
	ckMu sync.Mutex

	ix           *index.Index
	journal      *wal.Log
	snaps        *snapshot.Store
	checkpointer *wal.Checkpointer
	recovery     RecoveryInfo
	closed       bool

	log      zerolog.Logger
	observer Observer
}

// Open builds the index and restores its contents from the latest snapshot
// and the committed journal tail
func Open(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		log:      zerolog.Nop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}

	ixOpts := []index.Option{
		index.WithLogger(e.log),
		index.WithObserver(e.observer),
	}
	if cfg.CacheSize > 0 || cfg.CacheTTL > 0 {
		ixOpts = append(ixOpts, index.WithCache(cfg.CacheSize, cfg.CacheTTL))
	}
	e.ix = index.New(ixOpts...)

	if cfg.DataDir == "" {
		e.log.Info().Msg("running without a data directory; index is not durable")
		return e, nil
	}

	if err := e.recover(ctx); err != nil {
		e.closeStores()
		return nil, err
	}

	if cfg.CheckpointInterval > 0 {
		e.checkpointer = wal.NewCheckpointer(cfg.CheckpointInterval, func(ctx context.Context) error {
			_, err := e.Checkpoint(ctx)
			return err
		}, e.log)
		e.checkpointer.Start(context.Background())
	}
	return e, nil
}

func (e *Engine) recover(ctx context.Context) error {
	start := time.Now()

	snaps, err := snapshot.Open(filepath.Join(e.cfg.DataDir, snapshot.DefaultFileName), e.log)
	if err != nil {
		return err
	}
	e.snaps = snaps

	nodes, info, err := snaps.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	var after uint64
	if info != nil {
		stats := e.ix.IndexNodeBatch(nodes)
		if stats.Failed > 0 {
			return fmt.Errorf("restore snapshot %s: %d nodes rejected", info.ID, stats.Failed)
		}
		after = info.LSN
		e.recovery.SnapshotID = info.ID
		e.recovery.SnapshotLSN = info.LSN
		e.recovery.SnapshotNodes = len(nodes)
	}

	journalDir := e.journalDir()
	stats, err := wal.Recover(journalDir, after, e.replay)
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	e.recovery.Journal = stats

	journal, err := wal.Open(journalDir,
		wal.WithSync(e.cfg.SyncWrites),
		wal.WithMaxFileSize(e.cfg.MaxJournalFileSize),
		wal.WithLogger(e.log),
	)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	journal.AdvanceLSN(after)
	e.journal = journal

	e.recovery.Took = time.Since(start)
	e.observer.ObserveRecovery(stats.ReplayedOperations, e.recovery.Took)
	e.log.Info().
		Str("data_dir", e.cfg.DataDir).
		Int("snapshot_nodes", e.recovery.SnapshotNodes).
		Uint64("snapshot_lsn", after).
		Int("replayed", stats.ReplayedOperations).
		Int("uncommitted", stats.UncommittedTxns).
		Int("skipped_bytes", stats.SkippedBytes).
		Int("nodes", e.ix.Len()).
		Dur("took", e.recovery.Took).
		Msg("index recovered")
	return nil
}

// replay applies one committed journal operation to the index
func (e *Engine) replay(entry *wal.Entry) error {
	switch entry.Op {
	case wal.OpIndex:
		n, err := node.Decode(entry.Payload)
		if err != nil {
			return err
		}
		return e.ix.IndexNode(n)
	case wal.OpRemove:
		e.ix.RemoveNode(entry.NodeID)
		return nil
	case wal.OpReset:
		e.ix.RebuildIndexes()
		return nil
	}
	return fmt.Errorf("%w: unexpected op %s", wal.ErrInvalidEntry, entry.Op)
}

func (e *Engine) journalDir() string {
	return filepath.Join(e.cfg.DataDir, "journal")
}

// Index exposes the underlying index for queries and finders
func (e *Engine) Index() *index.Index {
	return e.ix
}

// Durable reports whether mutations are journaled
func (e *Engine) Durable() bool {
	return e.journal != nil
}

// Closed reports whether Close has completed
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// commit writes a transaction built by fill, when durable
func (e *Engine) commit(op string, fill func(*wal.Txn)) error {
	if e.journal == nil {
		return nil
	}
	txn := e.journal.Begin()
	fill(txn)
	_, err := txn.Commit()
	e.observer.ObserveJournalWrite(op, txn.Len(), err)
	if err != nil {
		return fmt.Errorf("journal %s: %w", op, err)
	}
	return nil
}

// IndexNode validates, journals and indexes one node
func (e *Engine) IndexNode(n *node.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	payload, err := node.Encode(n)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	if err := e.commit("index", func(txn *wal.Txn) { txn.Index(n.NodeID, payload) }); err != nil {
		return err
	}
	return e.ix.IndexNode(n)
}

// IndexNodeBatch journals every valid node in one transaction and then
// indexes them. Invalid nodes are counted as failures and never journaled.
func (e *Engine) IndexNodeBatch(nodes []*node.Node) (index.BatchStats, error) {
	valid := make([]*node.Node, 0, len(nodes))
	payloads := make([][]byte, 0, len(nodes))
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			e.log.Debug().Err(err).Msg("batch node rejected")
			continue
		}
		payload, err := node.Encode(n)
		if err != nil {
			continue
		}
		valid = append(valid, n)
		payloads = append(payloads, payload)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return index.BatchStats{}, ErrClosed
	}

	if len(valid) > 0 {
		err := e.commit("index_batch", func(txn *wal.Txn) {
			for i, n := range valid {
				txn.Index(n.NodeID, payloads[i])
			}
		})
		if err != nil {
			return index.BatchStats{}, err
		}
	}

	stats := e.ix.IndexNodeBatch(valid)
	stats.TotalNodes = len(nodes)
	stats.Failed += len(nodes) - len(valid)
	return stats, nil
}

// RemoveNode journals and applies a removal. Unknown ids report false and
// write nothing.
func (e *Engine) RemoveNode(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrClosed
	}

	if _, ok := e.ix.Get(id); !ok {
		return e.ix.RemoveNode(id), nil
	}
	if err := e.commit("remove", func(txn *wal.Txn) { txn.Remove(id) }); err != nil {
		return false, err
	}
	return e.ix.RemoveNode(id), nil
}

// RebuildIndexes journals a reset and clears the index
func (e *Engine) RebuildIndexes() (index.RebuildStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return index.RebuildStats{}, ErrClosed
	}

	if err := e.commit("reset", func(txn *wal.Txn) { txn.Reset() }); err != nil {
		return index.RebuildStats{}, err
	}
	return e.ix.RebuildIndexes(), nil
}

// Checkpoint saves a snapshot of every indexed node and removes the
// journal files it covers
func (e *Engine) Checkpoint(ctx context.Context) (*CheckpointResult, error) {
	if e.journal == nil {
		return nil, ErrNotDurable
	}

	e.ckMu.Lock()
	defer e.ckMu.Unlock()
	start := time.Now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	nodes := e.ix.Nodes()
	lsn := e.journal.LastLSN()
	next, err := e.journal.Rotate()
	e.mu.Unlock()
	if err != nil {
		e.observer.ObserveCheckpoint(time.Since(start), len(nodes), err)
		return nil, fmt.Errorf("rotate journal: %w", err)
	}

	result, err := e.finishCheckpoint(ctx, nodes, lsn, next)
	took := time.Since(start)
	e.observer.ObserveCheckpoint(took, len(nodes), err)
	if err != nil {
		e.log.Error().Err(err).Uint64("lsn", lsn).Msg("checkpoint failed")
		return nil, err
	}
	result.Took = took

	e.log.Info().
		Str("snapshot_id", result.Snapshot.ID).
		Uint64("lsn", lsn).
		Int("nodes", len(nodes)).
		Int("removed_files", result.RemovedFiles).
		Dur("took", took).
		Msg("checkpoint complete")
	return result, nil
}

func (e *Engine) finishCheckpoint(ctx context.Context, nodes []*node.Node, lsn uint64, next int) (*CheckpointResult, error) {
	info, err := e.snaps.Save(ctx, nodes, lsn)
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	if err := e.journal.WriteCheckpoint(lsn); err != nil {
		return nil, fmt.Errorf("write checkpoint marker: %w", err)
	}
	removed, err := e.journal.RemoveBefore(next)
	if err != nil {
		return nil, fmt.Errorf("truncate journal: %w", err)
	}
	return &CheckpointResult{Snapshot: info, RemovedFiles: removed}, nil
}

// Status reports the durability state
func (e *Engine) Status(ctx context.Context) (Status, error) {
	st := Status{Durable: e.Durable(), DataDir: e.cfg.DataDir, Recovery: e.recovery}
	if e.journal == nil {
		return st, nil
	}

	st.LastLSN = e.journal.LastLSN()
	files, err := e.journal.Files()
	if err != nil {
		return st, err
	}
	st.JournalFiles = len(files)
	st.LastSnapshot, err = e.snaps.Latest(ctx)
	return st, err
}

// Recovery returns what Open restored
func (e *Engine) Recovery() RecoveryInfo {
	return e.recovery
}

// Close stops the checkpointer, optionally takes a final checkpoint and
// releases the journal and snapshot store
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil
	}

	if e.checkpointer != nil {
		e.checkpointer.Stop()
	}

	var errs []error
	if e.cfg.CheckpointOnClose && e.journal != nil {
		if _, err := e.Checkpoint(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	if err := e.closeStores(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) closeStores() error {
	var errs []error
	if e.journal != nil {
		errs = append(errs, e.journal.Close())
	}
	if e.snaps != nil {
		errs = append(errs, e.snaps.Close())
	}
	return errors.Join(errs...)
}
