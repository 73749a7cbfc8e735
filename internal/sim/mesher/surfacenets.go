// Package mesher holds CPU mesh generators for terrain chunks.
package mesher

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelsculpt.ai/internal/sim/terrain"
)

// corner i sits at (i&1, (i>>1)&1, (i>>2)&1) relative to the cell's min corner.
var cornerOffsets = [8]terrain.Vec3i{
	{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0},
	{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1},
}

var cubeEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7}, // x
	{0, 2}, {1, 3}, {4, 6}, {5, 7}, // y
	{0, 4}, {1, 5}, {2, 6}, {3, 7}, // z
}

var axes = [3]terrain.Vec3i{{X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 1}}

// SurfaceNets places one vertex per cell that straddles the iso level and
// connects the cells around every crossing lattice edge with a quad. It only
// reads the chunk it is given, so chunk borders are left open.
type SurfaceNets struct {
	IsoLevel float32
}

func (s SurfaceNets) CreateChunkMesh(c *terrain.Chunk) (*terrain.Mesh, error) {
	size := c.Size()
	cells := terrain.Vec3i{X: size.X - 1, Y: size.Y - 1, Z: size.Z - 1}
	mesh := &terrain.Mesh{}
	if !cells.Positive() {
		return mesh, nil
	}

	cellIndex := func(p terrain.Vec3i) int { return p.X + p.Z*cells.X + p.Y*cells.X*cells.Z }
	vertexAt := make([]int32, cells.Volume())
	for i := range vertexAt {
		vertexAt[i] = -1
	}

	var d [8]float32
	for y := 0; y < cells.Y; y++ {
		for z := 0; z < cells.Z; z++ {
			for x := 0; x < cells.X; x++ {
				p := terrain.Vec3i{X: x, Y: y, Z: z}
				mask := 0
				for i, o := range cornerOffsets {
					d[i] = c.Density(p.Add(o)) - s.IsoLevel
					if d[i] < 0 {
						mask |= 1 << i
					}
				}
				if mask == 0 || mask == 0xff {
					continue
				}

				var sum mgl32.Vec3
				n := 0
				for _, e := range cubeEdges {
					a, b := d[e[0]], d[e[1]]
					if (a < 0) == (b < 0) {
						continue
					}
					t := a / (a - b)
					pa := cornerOffsets[e[0]].Vec3()
					pb := cornerOffsets[e[1]].Vec3()
					sum = sum.Add(pa.Add(pb.Sub(pa).Mul(t)))
					n++
				}

				vertexAt[cellIndex(p)] = int32(len(mesh.Vertices))
				mesh.Vertices = append(mesh.Vertices, p.Vec3().Add(sum.Mul(1/float32(n))))
				mesh.Normals = append(mesh.Normals, cornerGradient(d))
			}
		}
	}

	for y := 0; y < size.Y; y++ {
		for z := 0; z < size.Z; z++ {
			for x := 0; x < size.X; x++ {
				p := terrain.Vec3i{X: x, Y: y, Z: z}
				for a := 0; a < 3; a++ {
					q := p.Add(axes[a])
					if !c.Contains(q) {
						continue
					}
					ub, uc := axes[(a+1)%3], axes[(a+2)%3]
					pb, pc := p.ToArray()[(a+1)%3], p.ToArray()[(a+2)%3]
					cb, cc := cells.ToArray()[(a+1)%3], cells.ToArray()[(a+2)%3]
					if pb < 1 || pb >= cb || pc < 1 || pc >= cc {
						continue
					}
					d0 := c.Density(p) - s.IsoLevel
					d1 := c.Density(q) - s.IsoLevel
					if (d0 < 0) == (d1 < 0) {
						continue
					}

					neg := terrain.Vec3i{X: -1, Y: -1, Z: -1}
					quad := [4]int32{
						vertexAt[cellIndex(p.Add(ub.Scale(neg)).Add(uc.Scale(neg)))],
						vertexAt[cellIndex(p.Add(uc.Scale(neg)))],
						vertexAt[cellIndex(p)],
						vertexAt[cellIndex(p.Add(ub.Scale(neg)))],
					}
					if d0 >= 0 {
						quad[1], quad[3] = quad[3], quad[1]
					}
					mesh.Indices = append(mesh.Indices,
						uint32(quad[0]), uint32(quad[1]), uint32(quad[2]),
						uint32(quad[0]), uint32(quad[2]), uint32(quad[3]),
					)
				}
			}
		}
	}
	return mesh, nil
}

// cornerGradient estimates the density gradient across a cell; it points
// from solid (negative) towards empty space.
func cornerGradient(d [8]float32) mgl32.Vec3 {
	var g mgl32.Vec3
	for i := 0; i < 8; i++ {
		o := cornerOffsets[i]
		for axis, bit := range [3]int{o.X, o.Y, o.Z} {
			if bit == 1 {
				g[axis] += d[i]
			} else {
				g[axis] -= d[i]
			}
		}
	}
	if g.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return g.Normalize()
}

// Null produces empty meshes. Useful when only densities matter.
type Null struct{}

func (Null) CreateChunkMesh(*terrain.Chunk) (*terrain.Mesh, error) { return &terrain.Mesh{}, nil }

var (
	_ terrain.MeshGenerator = SurfaceNets{}
	_ terrain.MeshGenerator = Null{}
)
