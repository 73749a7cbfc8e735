package editor

import (
	"time"

	"voxelsculpt.ai/internal/sim/sdf"
	"voxelsculpt.ai/internal/sim/terrain"
)

// EditLogEntry is the record written for every applied edit. It carries the
// grid configuration so a log can be replayed into a fresh manager.
type EditLogEntry struct {
	Seq    uint64 `json:"seq"`
	EditID string `json:"edit_id"`
	Time   string `json:"time"`

	GridSize  [3]int `json:"grid_size"`
	ChunkSize [3]int `json:"chunk_size"`

	Shape  sdf.Spec      `json:"shape"`
	Bounds [2][3]float32 `json:"bounds"`

	RangeMin [3]int   `json:"range_min"`
	RangeMax [3]int   `json:"range_max"`
	Touched  [][3]int `json:"touched"`
	Created  [][3]int `json:"created,omitempty"`
	Voxels   int      `json:"voxels"`

	DurationUS int64  `json:"duration_us"`
	Error      string `json:"error,omitempty"`
}

func newEditLogEntry(seq uint64, res Result, spec sdf.Spec, shape terrain.SDF, cfg terrain.Config, dur time.Duration) EditLogEntry {
	e := EditLogEntry{
		Seq:        seq,
		EditID:     res.EditID,
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		GridSize:   cfg.GridSize.ToArray(),
		ChunkSize:  cfg.ChunkSize.ToArray(),
		Shape:      spec,
		Bounds:     [2][3]float32{shape.Minimum(), shape.Maximum()},
		RangeMin:   res.Report.RangeMin.ToArray(),
		RangeMax:   res.Report.RangeMax.ToArray(),
		Touched:    Coords(res.Report.Touched),
		Created:    Coords(res.Report.Created),
		Voxels:     res.Report.Voxels,
		DurationUS: dur.Microseconds(),
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

// Coords converts grid coordinates to their wire form.
func Coords(vs []terrain.Vec3i) [][3]int {
	if len(vs) == 0 {
		return nil
	}
	out := make([][3]int, len(vs))
	for i, v := range vs {
		out[i] = v.ToArray()
	}
	return out
}
