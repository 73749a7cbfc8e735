package terrain

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Voxel struct {
	Density float32
}

// Chunk owns a block of the voxel lattice. Its storage is only written by the
// Manager; everything exported here is read-only.
type Chunk struct {
	size   Vec3i
	origin mgl32.Vec3
	voxels []Voxel // len = size.Volume()

	dirty bool
	hash  [32]byte
}

// NewChunk allocates a chunk at neutral density. Nothing is sampled here.
func NewChunk(size Vec3i, origin mgl32.Vec3) *Chunk {
	return &Chunk{
		size:   size,
		origin: origin,
		voxels: make([]Voxel, size.Volume()),
		dirty:  true,
	}
}

func (c *Chunk) Size() Vec3i        { return c.size }
func (c *Chunk) Origin() mgl32.Vec3 { return c.origin }
func (c *Chunk) Len() int           { return len(c.voxels) }

// Index maps a local voxel coordinate to its storage slot.
// x fastest, then z, then y.
func (c *Chunk) Index(local Vec3i) int {
	return linearIndex(local, c.size)
}

// Position is the inverse of Index.
func (c *Chunk) Position(index int) Vec3i {
	return linearPosition(index, c.size)
}

func (c *Chunk) Contains(local Vec3i) bool { return local.Within(c.size) }

func (c *Chunk) Density(local Vec3i) float32 {
	return c.voxels[c.Index(local)].Density
}

// Voxels returns a copy of the voxel storage in Index order.
func (c *Chunk) Voxels() []Voxel {
	out := make([]Voxel, len(c.voxels))
	copy(out, c.voxels)
	return out
}

func (c *Chunk) set(local Vec3i, density float32) {
	i := c.Index(local)
	if c.voxels[i].Density == density {
		return
	}
	c.voxels[i].Density = density
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [4]byte
		for _, v := range c.voxels {
			binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v.Density))
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

func linearIndex(p, size Vec3i) int {
	return p.X + p.Z*size.X + p.Y*size.X*size.Z
}

func linearPosition(index int, size Vec3i) Vec3i {
	layer := size.X * size.Z
	rem := index % layer
	return Vec3i{
		X: rem % size.X,
		Y: index / layer,
		Z: rem / size.X,
	}
}
