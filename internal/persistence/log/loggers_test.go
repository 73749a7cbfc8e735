package log

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"voxelsculpt.ai/internal/sim/editor"
	"voxelsculpt.ai/internal/sim/sdf"
)

func TestEditLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewEditLogger(dir)
	for i := 1; i <= 3; i++ {
		err := l.WriteEdit(editor.EditLogEntry{
			Seq:      uint64(i),
			EditID:   "e",
			GridSize: [3]int{2, 1, 2},
			Shape:    sdf.Spec{Kind: sdf.KindSphere, Radius: float32(i)},
			Touched:  [][3]int{{0, 0, 0}},
		})
		if err != nil {
			t.Fatalf("WriteEdit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := EditLogFiles(dir)
	if err != nil {
		t.Fatalf("EditLogFiles: %v", err)
	}
	// A run straddling an hour boundary splits the file.
	if len(files) == 0 || len(files) > 2 {
		t.Fatalf("files=%v", files)
	}

	var got []editor.EditLogEntry
	for _, f := range files {
		if err := ReadEdits(f, func(e editor.EditLogEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("ReadEdits: %v", err)
		}
	}
	if len(got) != 3 {
		t.Fatalf("entries=%d", len(got))
	}
	for i, e := range got {
		if e.Seq != uint64(i+1) || e.Shape.Radius != float32(i+1) || e.GridSize != [3]int{2, 1, 2} {
			t.Fatalf("entry %d = %+v", i, e)
		}
	}
}

func TestReadEdits_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	l := NewEditLogger(dir)
	_ = l.WriteEdit(editor.EditLogEntry{Seq: 1})
	_ = l.WriteEdit(editor.EditLogEntry{Seq: 2})
	_ = l.Close()

	files, _ := EditLogFiles(dir)
	if len(files) == 0 {
		t.Fatalf("no log files")
	}
	stop := errors.New("stop")
	n := 0
	err := ReadEdits(files[0], func(editor.EditLogEntry) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

func TestEditLogFiles_Empty(t *testing.T) {
	files, err := EditLogFiles(t.TempDir())
	if err != nil || len(files) != 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(filepath.Join(dir, "edits"), "edits")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }
	var closed []string
	w.OnFileClosed(func(p string) { closed = append(closed, filepath.Base(p)) })

	if err := w.Write(editor.EditLogEntry{Seq: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(editor.EditLogEntry{Seq: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := EditLogFiles(dir)
	if err != nil {
		t.Fatalf("EditLogFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "edits", "edits-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "edits", "edits-2026-03-01-11.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files=%v", files)
	}
	if len(closed) != 2 || closed[0] != filepath.Base(want[0]) || closed[1] != filepath.Base(want[1]) {
		t.Fatalf("closed=%v", closed)
	}

	// Reopening an hour appends a second frame to the same file.
	clock = clock.Add(-2 * time.Minute)
	if err := w.Write(editor.EditLogEntry{Seq: 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = w.Close()
	var seqs []uint64
	if err := ReadEdits(want[0], func(e editor.EditLogEntry) error {
		seqs = append(seqs, e.Seq)
		return nil
	}); err != nil {
		t.Fatalf("ReadEdits: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 3 {
		t.Fatalf("seqs=%v", seqs)
	}
}
