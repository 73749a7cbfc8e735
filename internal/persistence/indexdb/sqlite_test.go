package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"voxelsculpt.ai/internal/sim/editor"
	"voxelsculpt.ai/internal/sim/sdf"
	"voxelsculpt.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan editor.EditLogEntry, 1)}
	s.ch <- editor.EditLogEntry{Seq: 1}

	_ = s.WriteEdit(editor.EditLogEntry{Seq: 2})
	_ = s.WriteEdit(editor.EditLogEntry{Seq: 3})

	st := s.Stats()
	if st.DropTotal != 2 {
		t.Fatalf("DropTotal=%d want=2", st.DropTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilSafe(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteEdit(editor.EditLogEntry{}); err != nil {
		t.Fatalf("WriteEdit on nil: %v", err)
	}
	if st := s.Stats(); st != (Stats{}) {
		t.Fatalf("Stats on nil: %+v", st)
	}
}

func TestSQLiteIndex_WritesEditsAndActivations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "edits.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}

	sphere := sdf.Spec{Kind: sdf.KindSphere, Radius: 2}
	entries := []editor.EditLogEntry{
		{Seq: 1, EditID: "e1", Time: "t1", Shape: sphere, Touched: [][3]int{{0, 0, 0}}, Created: [][3]int{{0, 0, 0}}, Voxels: 27},
		{Seq: 2, EditID: "e2", Time: "t2", Shape: sphere, Touched: [][3]int{{0, 0, 0}, {1, 0, 0}}, Voxels: 54},
		{Seq: 3, EditID: "e3", Time: "t3", Shape: sphere, Touched: [][3]int{{0, 0, 1}}, Error: "render chunk: boom"},
	}
	for _, e := range entries {
		if err := idx.WriteEdit(e); err != nil {
			t.Fatalf("WriteEdit: %v", err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := idx.Stats(); st.DropTotal != 0 || st.WriteFailTotal != 0 || st.CommitTotal == 0 {
		t.Fatalf("stats=%+v", st)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM edits`).Scan(&n); err != nil || n != 3 {
		t.Fatalf("edits=%d err=%v", n, err)
	}
	var failed sql.NullString
	if err := db.QueryRow(`SELECT error FROM edits WHERE edit_id='e3'`).Scan(&failed); err != nil || !failed.Valid {
		t.Fatalf("failed edit error=%v err=%v", failed, err)
	}

	rows, err := db.Query(`SELECT x,y,z,edit_id FROM activations ORDER BY x,y,z`)
	if err != nil {
		t.Fatalf("query activations: %v", err)
	}
	defer rows.Close()
	type act struct {
		g  [3]int
		id string
	}
	var got []act
	for rows.Next() {
		var a act
		if err := rows.Scan(&a.g[0], &a.g[1], &a.g[2], &a.id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, a)
	}
	// (0,0,0) keeps its first activation; the failed edit adds nothing.
	want := []act{{[3]int{0, 0, 0}, "e1"}, {[3]int{1, 0, 0}, "e2"}}
	if len(got) != len(want) {
		t.Fatalf("activations=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("activation %d = %v want %v", i, got[i], want[i])
		}
	}

	var digest string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='tuning_digest'`).Scan(&digest); err != nil || len(digest) != 64 {
		t.Fatalf("tuning_digest=%q err=%v", digest, err)
	}
}

func TestSQLiteIndex_WriteAfterCloseIgnored(t *testing.T) {
	idx, err := openSQLite(filepath.Join(t.TempDir(), "edits.sqlite"), 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.Close()
	if err := idx.WriteEdit(editor.EditLogEntry{Seq: 1}); err != nil {
		t.Fatalf("WriteEdit after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
