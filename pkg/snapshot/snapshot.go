// Package snapshot persists point-in-time copies of the indexed node set
// in SQLite, tagged with the journal LSN they cover
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nainya/codexindex/pkg/node"
)

// DefaultFileName is the snapshot database name inside a data directory
const DefaultFileName = "snapshot.db"

// ErrInconsistent indicates a node table that does not match its snapshot record
var ErrInconsistent = errors.New("snapshot: inconsistent contents")

// historyLimit bounds the rows kept in the snapshots table
const historyLimit = 20

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	node_id TEXT PRIMARY KEY,
	seq     INTEGER NOT NULL,
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	lsn        INTEGER NOT NULL,
	taken_at   INTEGER NOT NULL,
	node_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken ON snapshots(taken_at);
`

// Info describes one saved snapshot
type Info struct {
	ID        string    `json:"id"`
	LSN       uint64    `json:"lsn"`
	TakenAt   time.Time `json:"taken_at"`
	NodeCount int       `json:"node_count"`
}

// Store is a SQLite-backed snapshot file. Only the latest node set is
// kept; the snapshots table records the history of saves.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
	now  func() time.Time
}

// Open opens or creates the snapshot database at path
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot schema: %w", err)
	}

	return &Store{
		db:   db,
		path: path,
		log:  logger.With().Str("component", "snapshot").Logger(),
		now:  time.Now,
	}, nil
}

// Path returns the database file path
func (s *Store) Path() string { return s.path }

// Save replaces the stored node set with nodes, in one transaction, and
// records that it covers every journal entry up to lsn
func (s *Store) Save(ctx context.Context, nodes []*node.Node, lsn uint64) (*Info, error) {
	info := &Info{
		ID:        uuid.NewString(),
		LSN:       lsn,
		TakenAt:   s.now().UTC(),
		NodeCount: len(nodes),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
		return nil, fmt.Errorf("clear nodes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO nodes (node_id, seq, payload) VALUES (?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range nodes {
		payload, err := node.Encode(n)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.NodeID, err)
		}
		if _, err := stmt.ExecContext(ctx, n.NodeID, i, payload); err != nil {
			return nil, fmt.Errorf("insert node %s: %w", n.NodeID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, lsn, taken_at, node_count) VALUES (?, ?, ?, ?)",
		info.ID, int64(info.LSN), info.TakenAt.UnixNano(), info.NodeCount,
	); err != nil {
		return nil, fmt.Errorf("record snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM snapshots WHERE id NOT IN (SELECT id FROM snapshots ORDER BY taken_at DESC, rowid DESC LIMIT ?)",
		historyLimit,
	); err != nil {
		return nil, fmt.Errorf("prune snapshot history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}

	s.log.Debug().
		Str("snapshot_id", info.ID).
		Uint64("lsn", info.LSN).
		Int("nodes", info.NodeCount).
		Msg("snapshot saved")
	return info, nil
}

// Latest returns the most recent snapshot, or nil when none was saved
func (s *Store) Latest(ctx context.Context) (*Info, error) {
	infos, err := s.History(ctx, 1)
	if err != nil || len(infos) == 0 {
		return nil, err
	}
	return &infos[0], nil
}

// History lists saved snapshots, newest first
func (s *Store) History(ctx context.Context, limit int) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, lsn, taken_at, node_count FROM snapshots ORDER BY taken_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var (
			info    Info
			lsn     int64
			takenAt int64
		)
		if err := rows.Scan(&info.ID, &lsn, &takenAt, &info.NodeCount); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.LSN = uint64(lsn)
		info.TakenAt = time.Unix(0, takenAt).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Load returns the stored nodes in their saved order together with the
// snapshot they belong to. Both are nil when nothing was saved.
func (s *Store) Load(ctx context.Context) ([]*node.Node, *Info, error) {
	info, err := s.Latest(ctx)
	if err != nil || info == nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT node_id, payload FROM nodes ORDER BY seq")
	if err != nil {
		return nil, nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]*node.Node, 0, info.NodeCount)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, nil, fmt.Errorf("scan node: %w", err)
		}
		n, err := node.Decode(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("decode node %s: %w", id, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(nodes) != info.NodeCount {
		return nil, nil, fmt.Errorf("%w: snapshot %s lists %d nodes, found %d",
			ErrInconsistent, info.ID, info.NodeCount, len(nodes))
	}
	return nodes, info, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
