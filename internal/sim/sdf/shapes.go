// Package sdf provides the edit shapes accepted by the terrain editor.
//
// Every shape reports a world-space box padded by Pad voxels so that the
// lattice points on both sides of the surface are resampled.
package sdf

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsculpt.ai/internal/sim/terrain"
)

// Pad is added around each shape's surface when computing its bounds.
const Pad = 1

type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

func (s Sphere) Minimum() mgl32.Vec3 { return s.Center.Sub(splat(s.Radius + Pad)) }
func (s Sphere) Maximum() mgl32.Vec3 { return s.Center.Add(splat(s.Radius + Pad)) }

func (s Sphere) Value(p mgl32.Vec3) float32 {
	return p.Sub(s.Center).Len() - s.Radius
}

// Box is an axis-aligned box given by its center and half extents.
type Box struct {
	Center      mgl32.Vec3
	HalfExtents mgl32.Vec3
}

func (b Box) Minimum() mgl32.Vec3 { return b.Center.Sub(b.HalfExtents).Sub(splat(Pad)) }
func (b Box) Maximum() mgl32.Vec3 { return b.Center.Add(b.HalfExtents).Add(splat(Pad)) }

func (b Box) Value(p mgl32.Vec3) float32 {
	d := p.Sub(b.Center)
	var q mgl32.Vec3
	for i := 0; i < 3; i++ {
		q[i] = float32(math.Abs(float64(d[i]))) - b.HalfExtents[i]
	}
	outside := mgl32.Vec3{max(q[0], 0), max(q[1], 0), max(q[2], 0)}.Len()
	inside := min(max(q[0], max(q[1], q[2])), 0)
	return outside + inside
}

// Plane is the ground plane y = Height restricted to the region [Min, Max].
// Below the plane the density is negative.
type Plane struct {
	Height float32
	Min    mgl32.Vec3
	Max    mgl32.Vec3
}

func (p Plane) Minimum() mgl32.Vec3 { return p.Min }
func (p Plane) Maximum() mgl32.Vec3 { return p.Max }

func (p Plane) Value(pt mgl32.Vec3) float32 { return pt.Y() - p.Height }

func splat(v float32) mgl32.Vec3 { return mgl32.Vec3{v, v, v} }

var (
	_ terrain.SDF = Sphere{}
	_ terrain.SDF = Box{}
	_ terrain.SDF = Plane{}
)
