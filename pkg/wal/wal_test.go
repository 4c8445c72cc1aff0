package wal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEntryEncodeDecode(t *testing.T) {
	entry := &Entry{
		LSN:       42,
		TxnID:     7,
		Op:        OpIndex,
		NodeID:    "node-1",
		Payload:   []byte("payload"),
		Timestamp: time.Date(2025, 5, 1, 10, 0, 0, 123, time.UTC),
	}

	data := entry.Encode()
	if len(data) != entry.Size() {
		t.Fatalf("encoded %d bytes, Size() says %d", len(data), entry.Size())
	}

	decoded, n, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("consumed %d bytes, want %d", n, len(data))
	}
	if decoded.LSN != 42 || decoded.TxnID != 7 || decoded.Op != OpIndex {
		t.Errorf("header mismatch: %s", decoded)
	}
	if decoded.NodeID != "node-1" || string(decoded.Payload) != "payload" {
		t.Errorf("body mismatch: %s", decoded)
	}
	if !decoded.Timestamp.Equal(entry.Timestamp) {
		t.Errorf("timestamp mismatch: got %v, want %v", decoded.Timestamp, entry.Timestamp)
	}
}

func TestEntryWithoutPayload(t *testing.T) {
	entry := &Entry{LSN: 3, TxnID: 1, Op: OpRemove, NodeID: "gone"}
	decoded, _, err := DecodeEntry(entry.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Payload != nil {
		t.Errorf("expected nil payload, got %d bytes", len(decoded.Payload))
	}
}

func TestDecodeEntryErrors(t *testing.T) {
	good := (&Entry{LSN: 1, TxnID: 1, Op: OpIndex, NodeID: "n", Payload: []byte("abc")}).Encode()

	flipped := append([]byte(nil), good...)
	flipped[HeaderSize] ^= 0xff

	badOp := (&Entry{LSN: 1, Op: OpType(99)}).Encode()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", good[:10], ErrTruncated},
		{"cut body", good[:len(good)-2], ErrTruncated},
		{"checksum", flipped, ErrCorrupted},
		{"magic", append([]byte{0, 0, 0, 0}, good[4:]...), ErrInvalidEntry},
		{"op", badOp, ErrInvalidEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeEntry(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckpointLSN(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := l.WriteCheckpoint(1234); err != nil {
		t.Fatal(err)
	}
	entries, _, err := ReadAll(mustFiles(t, l))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].CheckpointLSN() != 1234 {
		t.Fatalf("unexpected checkpoint entries: %v", entries)
	}
	if (&Entry{Op: OpIndex}).CheckpointLSN() != 0 {
		t.Error("non-checkpoint entry reported an LSN")
	}
}

func TestTxnCommitWritesOpsAndMarker(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	txn := l.Begin()
	txn.Index("a", []byte("A"))
	txn.Index("b", []byte("B"))
	txn.Remove("a")
	if txn.Len() != 3 {
		t.Fatalf("buffered %d ops, want 3", txn.Len())
	}

	commitLSN, err := txn.Commit()
	if err != nil {
		t.Fatal(err)
	}
	if commitLSN != 4 || l.LastLSN() != 4 {
		t.Errorf("commit LSN %d, last LSN %d, want 4", commitLSN, l.LastLSN())
	}
	if _, err := txn.Commit(); !errors.Is(err, ErrTxnDone) {
		t.Errorf("second commit: got %v, want ErrTxnDone", err)
	}

	entries, _, err := ReadAll(mustFiles(t, l))
	if err != nil {
		t.Fatal(err)
	}
	wantOps := []OpType{OpIndex, OpIndex, OpRemove, OpCommit}
	if len(entries) != len(wantOps) {
		t.Fatalf("read %d entries, want %d", len(entries), len(wantOps))
	}
	for i, e := range entries {
		if e.Op != wantOps[i] {
			t.Errorf("entry %d: op %s, want %s", i, e.Op, wantOps[i])
		}
		if e.TxnID != txn.ID() {
			t.Errorf("entry %d: txn %d, want %d", i, e.TxnID, txn.ID())
		}
		if e.LSN != uint64(i+1) {
			t.Errorf("entry %d: LSN %d, want %d", i, e.LSN, i+1)
		}
	}
}

func TestUncommittedTxnNeverReachesDisk(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	txn := l.Begin()
	txn.Index("a", []byte("A"))
	l.Close()

	entries, _, err := ReadAll(mustFiles(t, l))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty journal, got %d entries", len(entries))
	}
}

func TestReopenResumesCounters(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		txn := l.Begin()
		txn.Index("n", []byte{byte(i)})
		if _, err := txn.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	lastLSN, lastTxn := l.LastLSN(), l.Begin().ID()
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if l.LastLSN() != lastLSN {
		t.Errorf("LSN after reopen: got %d, want %d", l.LastLSN(), lastLSN)
	}
	// the unused transaction id was never written, so it is handed out again
	if id := l.Begin().ID(); id != lastTxn {
		t.Errorf("txn id after reopen: got %d, want %d", id, lastTxn)
	}
}

func TestAppendAfterClose(t *testing.T) {
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	l.Close()

	txn := l.Begin()
	txn.Remove("x")
	if _, err := txn.Commit(); !errors.Is(err, ErrLogClosed) {
		t.Errorf("got %v, want ErrLogClosed", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("double close: %v", err)
	}
}

func TestRejectsOversizedNodeID(t *testing.T) {
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	txn := l.Begin()
	txn.Remove(string(make([]byte, MaxKeyLen+1)))
	if _, err := txn.Commit(); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("got %v, want ErrInvalidEntry", err)
	}
}

func TestRotationKeepsEveryFile(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, WithMaxFileSize(256), WithSync(false))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	payload := make([]byte, 100)
	for i := 0; i < 10; i++ {
		txn := l.Begin()
		txn.Index("node", payload)
		if _, err := txn.Commit(); err != nil {
			t.Fatal(err)
		}
	}

	files := mustFiles(t, l)
	if len(files) < 5 {
		t.Fatalf("expected rotation into several files, got %d", len(files))
	}
	entries, _, err := ReadAll(files)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Errorf("read %d entries across files, want 20", len(entries))
	}
}

func TestRotateAndRemoveBefore(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	commit := func(id string) {
		txn := l.Begin()
		txn.Index(id, []byte(id))
		if _, err := txn.Commit(); err != nil {
			t.Fatal(err)
		}
	}

	commit("a")
	next, err := l.Rotate()
	if err != nil {
		t.Fatal(err)
	}
	if next != 1 {
		t.Errorf("rotated to %d, want 1", next)
	}
	commit("b")

	removed, err := l.RemoveBefore(next)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed %d files, want 1", removed)
	}

	entries, _, err := ReadAll(mustFiles(t, l))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].NodeID != "b" {
		t.Errorf("unexpected entries after truncation: %v", entries)
	}

	// the live file is never removed
	if removed, _ := l.RemoveBefore(100); removed != 0 {
		t.Errorf("removed %d live files", removed)
	}
}

func TestReaderSkipsDamagedFrames(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		txn := l.Begin()
		txn.Index(id, []byte("payload-"+id))
		if _, err := txn.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	l.Close()

	files := mustFiles(t, l)
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	// corrupt the payload of the second index entry
	second := (&Entry{NodeID: "a", Payload: []byte("payload-a")}).Size() +
		(&Entry{}).Size()
	data[second+HeaderSize+2] ^= 0xff
	// and leave a torn frame at the tail
	data = append(data, data[:HeaderSize+3]...)
	if err := os.WriteFile(files[0], data, 0o644); err != nil {
		t.Fatal(err)
	}

	entries, skipped, err := ReadAll(files)
	if err != nil {
		t.Fatal(err)
	}
	if skipped == 0 {
		t.Error("expected skipped bytes")
	}
	var ids []string
	for _, e := range entries {
		if e.Op == OpIndex {
			ids = append(ids, e.NodeID)
		}
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("intact index entries: got %v, want [a c]", ids)
	}
	if len(entries) != 5 {
		t.Errorf("read %d entries, want 5", len(entries))
	}
}

func TestFindFilesIgnoresOtherNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"journal.002", "journal.010", "journal.001", "journal.tmp", "snapshot.db"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := FindFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"journal.001", "journal.002", "journal.010"}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if filepath.Base(files[i]) != want[i] {
			t.Errorf("file %d: got %s, want %s", i, filepath.Base(files[i]), want[i])
		}
	}

	missing, err := FindFiles(filepath.Join(dir, "absent"))
	if err != nil || missing != nil {
		t.Errorf("missing dir: got %v, %v", missing, err)
	}
}

func mustFiles(t *testing.T, l *Log) []string {
	t.Helper()
	files, err := l.Files()
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestAdvanceLSN(t *testing.T) {
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.AdvanceLSN(10)
	l.AdvanceLSN(4)
	if l.LastLSN() != 10 {
		t.Fatalf("LSN %d, want 10", l.LastLSN())
	}
	txn := l.Begin()
	txn.Remove("x")
	lsn, err := txn.Commit()
	if err != nil {
		t.Fatal(err)
	}
	if lsn != 12 {
		t.Errorf("commit LSN %d, want 12", lsn)
	}
}
