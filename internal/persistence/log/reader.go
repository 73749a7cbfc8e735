package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"voxelsculpt.ai/internal/sim/editor"
)

// EditLogFiles lists the hourly edit logs under dataDir in chronological order.
func EditLogFiles(dataDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, "edits", "edits-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	// Hour stamps sort lexically.
	sort.Strings(files)
	return files, nil
}

// ReadEdits decodes every entry of one compressed edit log, calling fn in
// file order. A non-nil error from fn stops the scan.
func ReadEdits(path string, fn func(editor.EditLogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	return decodeEdits(dec, path, fn)
}

func decodeEdits(r io.Reader, name string, fn func(editor.EditLogEntry) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e editor.EditLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", name, line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
