package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	persistlog "voxelsculpt.ai/internal/persistence/log"
	"voxelsculpt.ai/internal/sim/editor"
	"voxelsculpt.ai/internal/sim/mesher"
	"voxelsculpt.ai/internal/sim/terrain"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory containing edits/")
		toSeq   = flag.Uint64("to_seq", 0, "stop at the first edit with a greater seq (optional)")
		digests = flag.Bool("digests", true, "print per-chunk digests of the final session")
	)
	flag.Parse()

	files, err := persistlog.EditLogFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list edit logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no edit logs found in", *dataDir)
		os.Exit(1)
	}

	r := &replayer{toSeq: *toSeq, out: os.Stdout}
	for _, path := range files {
		if err := persistlog.ReadEdits(path, r.apply); err != nil {
			if errors.Is(err, errStop) {
				break
			}
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	r.finish(*digests)
	if r.mismatches > 0 {
		os.Exit(1)
	}
}

var errStop = errors.New("stop")

// countingSink hands out grid coordinates as handles; replay never renders.
type countingSink struct{ meshes int }

func (s *countingSink) Spawn(grid terrain.Vec3i, _ mgl32.Vec3) (terrain.RenderHandle, error) {
	return grid, nil
}

func (s *countingSink) SetMesh(terrain.RenderHandle, *terrain.Mesh) error {
	s.meshes++
	return nil
}

// replayer re-applies logged edits. Terrain is not persisted, so every server
// run starts from an empty grid: seq 1 or a grid change starts a new session.
type replayer struct {
	toSeq uint64
	out   io.Writer

	mgr      *terrain.Manager
	sink     *countingSink
	sessions int
	applied  int
	skipped  int

	mismatches int
}

func (r *replayer) apply(e editor.EditLogEntry) error {
	if r.mgr == nil || e.Seq == 1 || r.configChanged(e) {
		if err := r.startSession(e); err != nil {
			return err
		}
	}
	if r.toSeq != 0 && e.Seq > r.toSeq {
		return errStop
	}
	if e.Error != "" {
		// Failed edits stop part-way; their effect cannot be reproduced.
		r.skipped++
		fmt.Fprintf(r.out, "seq=%d edit=%s skipped (failed: %s)\n", e.Seq, e.EditID, e.Error)
		return nil
	}

	shape, err := e.Shape.Build()
	if err != nil {
		return fmt.Errorf("seq %d: %w", e.Seq, err)
	}
	rep, err := r.mgr.UpdateChunks(shape)
	if err != nil {
		return fmt.Errorf("seq %d: %w", e.Seq, err)
	}
	r.applied++

	if len(rep.Touched) != len(e.Touched) || len(rep.Created) != len(e.Created) || rep.Voxels != e.Voxels {
		r.mismatches++
		fmt.Fprintf(r.out, "seq=%d edit=%s MISMATCH touched=%d/%d created=%d/%d voxels=%d/%d\n",
			e.Seq, e.EditID, len(rep.Touched), len(e.Touched), len(rep.Created), len(e.Created), rep.Voxels, e.Voxels)
	}
	return nil
}

func (r *replayer) configChanged(e editor.EditLogEntry) bool {
	cfg := r.mgr.Config()
	return cfg.GridSize.ToArray() != e.GridSize || cfg.ChunkSize.ToArray() != e.ChunkSize
}

func (r *replayer) startSession(e editor.EditLogEntry) error {
	if r.mgr != nil {
		r.summary()
	}
	cfg := terrain.Config{
		GridSize:  terrain.Vec3i{X: e.GridSize[0], Y: e.GridSize[1], Z: e.GridSize[2]},
		ChunkSize: terrain.Vec3i{X: e.ChunkSize[0], Y: e.ChunkSize[1], Z: e.ChunkSize[2]},
	}
	r.sink = &countingSink{}
	mgr, err := terrain.New(cfg, mesher.Null{}, r.sink)
	if err != nil {
		return fmt.Errorf("seq %d: %w", e.Seq, err)
	}
	r.mgr = mgr
	r.sessions++
	r.applied, r.skipped = 0, 0
	fmt.Fprintf(r.out, "session %d: grid=%v chunk=%v\n", r.sessions, e.GridSize, e.ChunkSize)
	return nil
}

func (r *replayer) summary() {
	fmt.Fprintf(r.out, "session %d: applied=%d skipped=%d meshes=%d\n", r.sessions, r.applied, r.skipped, r.sink.meshes)
}

// finish prints the last session summary and the digest of every created
// chunk in grid index order, plus a combined digest.
func (r *replayer) finish(perChunk bool) {
	if r.mgr == nil {
		return
	}
	r.summary()

	all := sha256.New()
	chunks := 0
	for i := 0; i < r.mgr.Len(); i++ {
		g := r.mgr.Position(i)
		rec, _ := r.mgr.Record(g)
		if rec.Chunk == nil {
			continue
		}
		chunks++
		d := rec.Chunk.Digest()
		all.Write(d[:])
		if perChunk {
			fmt.Fprintf(r.out, "chunk %v %s %s\n", g.ToArray(), rec.Status, hex.EncodeToString(d[:]))
		}
	}
	fmt.Fprintf(r.out, "replay done: sessions=%d chunks=%d mismatches=%d digest=%s\n",
		r.sessions, chunks, r.mismatches, hex.EncodeToString(all.Sum(nil)))
}
