package editor

import "voxelsculpt.ai/internal/sim/terrain"

// Overlay is the debug view of the grid: per-cell status and the region the
// last edit reached.
type Overlay struct {
	GridSize  [3]int      `json:"grid_size"`
	ChunkSize [3]int      `json:"chunk_size"`
	Cells     []CellState `json:"cells"`

	EffectWorld terrain.AABB `json:"effect_world"`
	EffectChunk terrain.AABB `json:"effect_chunk"`
	Edits       uint64       `json:"edits"`
}

type CellState struct {
	Grid    [3]int `json:"grid"`
	Status  string `json:"status"`
	Created bool   `json:"created"`
}

// CurrentOverlay reads the manager directly. Not safe to call concurrently
// with Run; use Overlay from other goroutines.
func (e *Editor) CurrentOverlay() Overlay {
	cfg := e.mgr.Config()
	ov := Overlay{
		GridSize:  cfg.GridSize.ToArray(),
		ChunkSize: cfg.ChunkSize.ToArray(),
		Cells:     make([]CellState, 0, e.mgr.Len()),
		Edits:     e.seq,
	}
	ov.EffectWorld, ov.EffectChunk = e.mgr.EffectBounds()
	for i := 0; i < e.mgr.Len(); i++ {
		g := e.mgr.Position(i)
		rec, _ := e.mgr.Record(g)
		ov.Cells = append(ov.Cells, CellState{
			Grid:    g.ToArray(),
			Status:  rec.Status.String(),
			Created: rec.Created(),
		})
	}
	return ov
}
