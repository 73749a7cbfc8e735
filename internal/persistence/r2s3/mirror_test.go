package r2s3

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int // fail this many calls first
	block chan struct{}
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("503")
	}
	f.keys = append(f.keys, key)
	return nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestMirror_UploadsWithPrefixAndRetry(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "edits", "edits-2026-03-01-10.jsonl.zst")
	writeFile(t, p)

	up := &fakeUploader{fails: 2}
	m := NewMirror(up, dir, MirrorOptions{Prefix: "/sculpt/", Backoff: time.Millisecond})
	m.Enqueue(p)
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "sculpt/edits/edits-2026-03-01-10.jsonl.zst" {
		t.Fatalf("keys=%v", up.keys)
	}
	st := m.Stats()
	if st.UploadSuccessTotal != 1 || st.UploadFailTotal != 0 || st.LastSuccessUnix == 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirror_GivesUpAfterMaxAttempts(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.zst")
	writeFile(t, p)

	up := &fakeUploader{fails: 10}
	m := NewMirror(up, dir, MirrorOptions{MaxAttempts: 2, Backoff: time.Millisecond})
	m.Enqueue(p)
	m.Close()
	if st := m.Stats(); st.UploadFailTotal != 1 || st.LastErrorUnix == 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirror_SkipsOutsideDataDir(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "b.zst")
	writeFile(t, outside)

	up := &fakeUploader{}
	m := NewMirror(up, dir, MirrorOptions{})
	m.Enqueue(outside)
	m.Close()
	if len(up.keys) != 0 {
		t.Fatalf("uploaded %v", up.keys)
	}
}

func TestMirror_DropsWhenSaturated(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "c.zst")
	writeFile(t, p)

	up := &fakeUploader{block: make(chan struct{})}
	m := NewMirror(up, dir, MirrorOptions{QueueCapacity: 1, EnqueueWait: time.Millisecond})
	// One in flight (blocked), one queued, the rest dropped.
	for i := 0; i < 5; i++ {
		m.Enqueue(p)
	}
	st := m.Stats()
	if st.DroppedTotal == 0 || st.QueueSaturatedTotal == 0 || st.EnqueuedTotal != 5 {
		t.Fatalf("stats=%+v", st)
	}
	close(up.block)
	m.Close()

	// Enqueue after Close is a no-op.
	m.Enqueue(p)
	if got := m.Stats().EnqueuedTotal; got != 5 {
		t.Fatalf("enqueued after close: %d", got)
	}
}
