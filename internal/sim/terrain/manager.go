package terrain

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsculpt.ai/internal/sim/mathx"
)

var (
	ErrIndexOutOfRange = errors.New("chunk index out of range")
	ErrInvalidConfig   = errors.New("invalid terrain config")
)

type Config struct {
	GridSize  Vec3i // chunks per axis
	ChunkSize Vec3i // voxels per chunk per axis
}

func (c Config) Validate() error {
	if !c.GridSize.Positive() {
		return fmt.Errorf("%w: grid size %v", ErrInvalidConfig, c.GridSize.ToArray())
	}
	if !c.ChunkSize.Positive() {
		return fmt.Errorf("%w: chunk size %v", ErrInvalidConfig, c.ChunkSize.ToArray())
	}
	return nil
}

// Manager owns a dense grid of chunk records and applies SDF edits to the
// chunks they can reach.
//
// Not safe for concurrent use: callers serialise edits.
type Manager struct {
	cfg    Config
	mesher MeshGenerator
	sink   RenderSink

	// len = GridSize.Volume(); allocated once.
	records []ChunkRecord

	// Diagnostics only; never read by the update path.
	effectWorld AABB
	effectChunk AABB
}

// Report describes what one UpdateChunks call touched.
type Report struct {
	// Half-open grid range computed from the edit bounds.
	RangeMin Vec3i
	RangeMax Vec3i

	Touched []Vec3i
	Created []Vec3i
	Voxels  int
}

func New(cfg Config, mesher MeshGenerator, sink RenderSink) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mesher == nil || sink == nil {
		return nil, fmt.Errorf("%w: mesher and render sink are required", ErrInvalidConfig)
	}
	return &Manager{
		cfg:     cfg,
		mesher:  mesher,
		sink:    sink,
		records: make([]ChunkRecord, cfg.GridSize.Volume()),
	}, nil
}

func (m *Manager) Config() Config { return m.cfg }

// Len is the number of grid cells (records).
func (m *Manager) Len() int { return len(m.records) }

// Index linearises a grid coordinate: x fastest, then z, then y.
func (m *Manager) Index(grid Vec3i) int {
	return linearIndex(grid, m.cfg.GridSize)
}

// Position is the inverse of Index.
func (m *Manager) Position(index int) Vec3i {
	return linearPosition(index, m.cfg.GridSize)
}

func (m *Manager) Record(grid Vec3i) (ChunkRecord, bool) {
	if !grid.Within(m.cfg.GridSize) {
		return ChunkRecord{}, false
	}
	return m.records[m.Index(grid)], true
}

// Statuses returns the status of every cell in Index order.
func (m *Manager) Statuses() []ChunkStatus {
	out := make([]ChunkStatus, len(m.records))
	for i := range m.records {
		out[i] = m.records[i].Status
	}
	return out
}

// EffectBounds returns the chunk-aligned region of the last edit in world
// space and in grid space.
func (m *Manager) EffectBounds() (world, chunk AABB) {
	return m.effectWorld, m.effectChunk
}

// Density looks up the voxel at an integer world position. ok is false when
// the position is outside the grid or its chunk has not been created.
func (m *Manager) Density(world Vec3i) (density float32, ok bool) {
	cs := m.cfg.ChunkSize
	grid := Vec3i{
		X: mathx.FloorDiv(world.X, cs.X),
		Y: mathx.FloorDiv(world.Y, cs.Y),
		Z: mathx.FloorDiv(world.Z, cs.Z),
	}
	rec, ok := m.Record(grid)
	if !ok || rec.Chunk == nil {
		return 0, false
	}
	local := Vec3i{
		X: mathx.Mod(world.X, cs.X),
		Y: mathx.Mod(world.Y, cs.Y),
		Z: mathx.Mod(world.Z, cs.Z),
	}
	return rec.Chunk.Density(local), true
}

// CreateChunkAt is CreateChunk addressed by grid coordinate.
func (m *Manager) CreateChunkAt(grid Vec3i) error {
	if !grid.Within(m.cfg.GridSize) {
		return fmt.Errorf("%w: grid %v outside %v", ErrIndexOutOfRange, grid.ToArray(), m.cfg.GridSize.ToArray())
	}
	return m.CreateChunk(m.Index(grid))
}

// CreateChunk allocates the chunk for a cell and asks the sink for a render
// placeholder. An existing chunk and handle are replaced. The chunk starts at
// neutral density.
func (m *Manager) CreateChunk(index int) error {
	if index < 0 || index >= len(m.records) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(m.records))
	}
	grid := m.Position(index)
	origin := grid.Scale(m.cfg.ChunkSize).Vec3()

	h, err := m.sink.Spawn(grid, origin)
	if err != nil {
		return fmt.Errorf("spawn chunk %v: %w", grid.ToArray(), err)
	}
	m.records[index].Chunk = NewChunk(m.cfg.ChunkSize, origin)
	m.records[index].Handle = h
	return nil
}

// UpdateChunks applies an edit to every chunk its bounds can reach, creating
// chunks on first touch and re-rendering each touched chunk. Cells outside
// the grid are skipped. An error from the sink or mesher aborts the edit.
func (m *Manager) UpdateChunks(sdf SDF) (Report, error) {
	lo, hi := m.chunkRange(sdf.Minimum(), sdf.Maximum())

	cs := m.cfg.ChunkSize
	m.effectWorld = AABB{Min: lo.Scale(cs).Vec3(), Max: hi.Scale(cs).Vec3()}
	m.effectChunk = AABB{Min: lo.Vec3(), Max: hi.Vec3()}

	rep := Report{RangeMin: lo, RangeMax: hi}
	for x := lo.X; x < hi.X; x++ {
		for y := lo.Y; y < hi.Y; y++ {
			for z := lo.Z; z < hi.Z; z++ {
				grid := Vec3i{X: x, Y: y, Z: z}
				if !grid.Within(m.cfg.GridSize) {
					continue
				}
				idx := m.Index(grid)
				if idx < 0 || idx >= len(m.records) {
					continue
				}

				if m.records[idx].Chunk == nil {
					if err := m.CreateChunk(idx); err != nil {
						return rep, err
					}
					rep.Created = append(rep.Created, grid)
				}

				rec := &m.records[idx]
				rec.Status = StatusActive

				rep.Voxels += m.UpdateChunk(rec, sdf)
				if err := m.RenderChunk(rec); err != nil {
					return rep, fmt.Errorf("render chunk %v: %w", grid.ToArray(), err)
				}
				rep.Touched = append(rep.Touched, grid)
			}
		}
	}
	return rep, nil
}

// chunkRange converts a world-space box into a half-open grid range, clamped
// to the grid. Quotients are clamped before the int conversion so far-away
// bounds cannot overflow. The result satisfies 0 <= lo <= hi <= GridSize.
func (m *Manager) chunkRange(bmin, bmax mgl32.Vec3) (lo, hi Vec3i) {
	cs := m.cfg.ChunkSize.Vec3()
	gs := m.cfg.GridSize.Vec3()
	grid := m.cfg.GridSize.ToArray()
	var l, h [3]int
	for i := 0; i < 3; i++ {
		l[i] = mathx.FloorToInt(mathx.Clamp(bmin[i]/cs[i], 0, gs[i]))
		l[i] = mathx.ClampInt(l[i], 0, grid[i])
		h[i] = mathx.CeilToInt(mathx.Clamp(bmax[i]/cs[i], 0, gs[i]))
		h[i] = mathx.ClampInt(h[i], l[i], grid[i])
	}
	return Vec3i{l[0], l[1], l[2]}, Vec3i{h[0], h[1], h[2]}
}

// UpdateChunk resamples the voxels of one chunk that fall inside the edit
// bounds and returns how many were written. Voxels outside the clamped local
// box keep their value.
func (m *Manager) UpdateChunk(rec *ChunkRecord, sdf SDF) int {
	c := rec.Chunk
	if c == nil {
		return 0
	}
	size := c.Size().Vec3()
	origin := c.Origin()
	bmin := sdf.Minimum().Sub(origin)
	bmax := sdf.Maximum().Sub(origin)

	var lo [3]int
	var hi [3]float32
	for i := 0; i < 3; i++ {
		lo[i] = mathx.CeilToInt(mathx.Clamp(bmin[i], 0, size[i]))
		hi[i] = mathx.Clamp(bmax[i], 0, size[i])
	}

	n := 0
	for x := lo[0]; float32(x) < hi[0]; x++ {
		for y := lo[1]; float32(y) < hi[1]; y++ {
			for z := lo[2]; float32(z) < hi[2]; z++ {
				local := Vec3i{X: x, Y: y, Z: z}
				c.set(local, sdf.Value(origin.Add(local.Vec3())))
				n++
			}
		}
	}
	return n
}

// RenderChunk rebuilds the whole mesh of a chunk and hands it to the sink.
func (m *Manager) RenderChunk(rec *ChunkRecord) error {
	if rec.Chunk == nil {
		return errors.New("render: chunk not created")
	}
	mesh, err := m.mesher.CreateChunkMesh(rec.Chunk)
	if err != nil {
		return err
	}
	return m.sink.SetMesh(rec.Handle, mesh)
}
