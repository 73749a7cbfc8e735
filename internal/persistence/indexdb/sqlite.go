package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelsculpt.ai/internal/sim/editor"
	"voxelsculpt.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable read-model of the edit log. Writes are queued
// and applied by a single goroutine in batched transactions; the JSONL edit
// log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan editor.EditLogEntry
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal      atomic.Uint64
	writeFailTotal atomic.Uint64
	commitTotal    atomic.Uint64
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropTotal      uint64 `json:"drop_total"`
	WriteFailTotal uint64 `json:"write_fail_total"`
	CommitTotal    uint64 `json:"commit_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan editor.EditLogEntry, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			seq INTEGER NOT NULL,
			edit_id TEXT PRIMARY KEY,
			recorded_at TEXT NOT NULL,
			kind TEXT NOT NULL,
			touched INTEGER NOT NULL,
			created INTEGER NOT NULL,
			voxels INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			error TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_seq ON edits(seq);`,
		`CREATE TABLE IF NOT EXISTS activations (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			edit_id TEXT NOT NULL,
			activated_at TEXT NOT NULL,
			PRIMARY KEY (x, y, z)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEdit queues an entry. It never blocks: when the writer falls behind the
// entry is dropped and counted.
func (s *SQLiteIndex) WriteEdit(entry editor.EditLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- entry:
	default:
		s.dropTotal.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTotal:      s.dropTotal.Load(),
		WriteFailTotal: s.writeFailTotal.Load(),
		CommitTotal:    s.commitTotal.Load(),
	}
}

// UpsertTuning records the configuration the server runs with.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, kv := range [][2]string{
		{"schema_version", "1"},
		{"tuning", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	} {
		if _, err := stmt.Exec(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEdit, _ := s.db.Prepare(`INSERT OR REPLACE INTO edits(seq,edit_id,recorded_at,kind,touched,created,voxels,duration_us,error,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	// First touch wins: later edits never overwrite an activation.
	insertActivation, _ := s.db.Prepare(`INSERT OR IGNORE INTO activations(x,y,z,edit_id,activated_at) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertEdit != nil {
			_ = insertEdit.Close()
		}
		if insertActivation != nil {
			_ = insertActivation.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeFailTotal.Add(1)
		} else {
			s.commitTotal.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeFailTotal.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for e := range s.ch {
		begin()
		if tx == nil {
			s.writeFailTotal.Add(1)
			continue
		}
		if err := s.apply(tx, insertEdit, insertActivation, e); err != nil {
			rollback()
			continue
		}
		opCount++
		// Idle queue: commit now so readers see the edit promptly.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

func (s *SQLiteIndex) apply(tx *sql.Tx, insertEdit, insertActivation *sql.Stmt, e editor.EditLogEntry) error {
	if insertEdit == nil || insertActivation == nil {
		return fmt.Errorf("statements not prepared")
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var errText any
	if e.Error != "" {
		errText = e.Error
	}
	if _, err := tx.Stmt(insertEdit).Exec(
		int64(e.Seq),
		e.EditID,
		e.Time,
		e.Shape.Kind,
		len(e.Touched),
		len(e.Created),
		e.Voxels,
		e.DurationUS,
		errText,
		string(raw),
	); err != nil {
		return err
	}
	if e.Error != "" {
		return nil
	}
	for _, g := range e.Touched {
		if _, err := tx.Stmt(insertActivation).Exec(g[0], g[1], g[2], e.EditID, e.Time); err != nil {
			return err
		}
	}
	return nil
}
