package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nainya/codexindex/pkg/snapshot"
	"github.com/nainya/codexindex/pkg/wal"
)

var (
	inspectDataDir string
	inspectEntries bool
	inspectJSON    bool

	journalCmd = &cobra.Command{
		Use:   "journal",
		Short: "Work with the on-disk journal",
	}

	journalInspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "Summarize journal files, transactions and the latest snapshot",
		RunE:  runJournalInspect,
	}
)

func init() {
	f := journalInspectCmd.Flags()
	f.StringVar(&inspectDataDir, "data-dir", "./data", "Data directory holding journal/ and the snapshot")
	f.BoolVar(&inspectEntries, "entries", false, "Print every entry")
	f.BoolVar(&inspectJSON, "json", false, "Print the summary as JSON")

	journalCmd.AddCommand(journalInspectCmd)
}

type fileSummary struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type inspectSummary struct {
	Files             []fileSummary  `json:"files"`
	Entries           int            `json:"entries"`
	EntriesByOp       map[string]int `json:"entries_by_op"`
	CommittedTxns     int            `json:"committed_txns"`
	UncommittedTxns   int            `json:"uncommitted_txns"`
	FirstLSN          uint64         `json:"first_lsn"`
	LastLSN           uint64         `json:"last_lsn"`
	LastCheckpointLSN uint64         `json:"last_checkpoint_lsn"`
	SkippedBytes      int            `json:"skipped_bytes"`
	Snapshot          *snapshot.Info `json:"snapshot,omitempty"`
}

func runJournalInspect(cmd *cobra.Command, args []string) error {
	files, err := wal.FindFiles(filepath.Join(inspectDataDir, "journal"))
	if err != nil {
		return err
	}

	summary := inspectSummary{EntriesByOp: map[string]int{}}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return err
		}
		summary.Files = append(summary.Files, fileSummary{Path: f, Size: info.Size()})
	}

	entries, skipped, err := wal.ReadAll(files)
	if err != nil && !errors.Is(err, wal.ErrLogNotFound) {
		return err
	}
	summary.Entries = len(entries)
	summary.SkippedBytes = skipped
	for i, e := range entries {
		if i == 0 {
			summary.FirstLSN = e.LSN
		}
		summary.LastLSN = e.LSN
		summary.EntriesByOp[e.Op.String()]++
		if e.Op == wal.OpCheckpoint {
			summary.LastCheckpointLSN = e.CheckpointLSN()
		}
	}
	for _, txn := range wal.GroupTransactions(entries) {
		if txn.Committed {
			summary.CommittedTxns++
		} else {
			summary.UncommittedTxns++
		}
	}

	snapPath := filepath.Join(inspectDataDir, snapshot.DefaultFileName)
	if _, err := os.Stat(snapPath); err == nil {
		store, err := snapshot.Open(snapPath, zerolog.Nop())
		if err != nil {
			return err
		}
		summary.Snapshot, err = store.Latest(cmd.Context())
		store.Close()
		if err != nil {
			return err
		}
	}

	if inspectJSON {
		return printJSON(summary)
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, f := range summary.Files {
		fmt.Fprintf(w, "%s\t%d bytes\n", f.Path, f.Size)
	}
	fmt.Fprintf(w, "entries\t%d\n", summary.Entries)
	for op, n := range summary.EntriesByOp {
		fmt.Fprintf(w, "  %s\t%d\n", op, n)
	}
	fmt.Fprintf(w, "transactions\t%d committed, %d uncommitted\n", summary.CommittedTxns, summary.UncommittedTxns)
	fmt.Fprintf(w, "lsn range\t%d..%d\n", summary.FirstLSN, summary.LastLSN)
	fmt.Fprintf(w, "last checkpoint lsn\t%d\n", summary.LastCheckpointLSN)
	fmt.Fprintf(w, "skipped bytes\t%d\n", summary.SkippedBytes)
	if s := summary.Snapshot; s != nil {
		fmt.Fprintf(w, "snapshot\t%s lsn=%d nodes=%d taken=%s\n", s.ID, s.LSN, s.NodeCount, s.TakenAt.Format("2006-01-02T15:04:05Z07:00"))
	} else {
		fmt.Fprintf(w, "snapshot\tnone\n")
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if inspectEntries {
		for _, e := range entries {
			fmt.Fprintln(out, e.String())
		}
	}
	return nil
}
