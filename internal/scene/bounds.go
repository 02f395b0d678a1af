// Package scene is the client-side replay engine: it reconciles map and
// telemetry coordinate frames, tracks the visible region, fits the overhead
// camera and synthesizes instanced road geometry.
//
// Scene space is the ground plane (X, Z). Map coordinates [x, y, z] project
// to (x, z); vehicle telemetry (x, y) projects to (x, y).
package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// Bounds is an axis-aligned rectangle on the ground plane.
type Bounds struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinZ float64 `json:"minZ"`
	MaxZ float64 `json:"maxZ"`
}

// FallbackBounds is returned for an empty point set so consumers never see
// infinite extents.
var FallbackBounds = Bounds{MinX: -50, MaxX: 50, MinZ: -50, MaxZ: 50}

// ComputeBounds returns the padded bounding rectangle of points. Non-finite
// points are ignored; if nothing remains FallbackBounds is returned.
func ComputeBounds(points []r2.Vec, padding float64) Bounds {
	b := Bounds{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinZ: math.Inf(1), MaxZ: math.Inf(-1),
	}
	n := 0
	for _, p := range points {
		if !finite(p.X) || !finite(p.Y) {
			continue
		}
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinZ = math.Min(b.MinZ, p.Y)
		b.MaxZ = math.Max(b.MaxZ, p.Y)
		n++
	}
	if n == 0 {
		return FallbackBounds
	}
	b.MinX -= padding
	b.MaxX += padding
	b.MinZ -= padding
	b.MaxZ += padding
	return b
}

// Expand returns the coordinate-wise union of current and addition.
// It is order-independent and Expand(r, r) == r.
func Expand(current, addition Bounds) Bounds {
	return Bounds{
		MinX: math.Min(current.MinX, addition.MinX),
		MaxX: math.Max(current.MaxX, addition.MaxX),
		MinZ: math.Min(current.MinZ, addition.MinZ),
		MaxZ: math.Max(current.MaxZ, addition.MaxZ),
	}
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() r2.Vec {
	return r2.Vec{X: (b.MinX + b.MaxX) / 2, Y: (b.MinZ + b.MaxZ) / 2}
}

// Width is the extent along X.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Depth is the extent along Z.
func (b Bounds) Depth() float64 { return b.MaxZ - b.MinZ }

// Contains reports whether other lies entirely inside b.
func (b Bounds) Contains(other Bounds) bool {
	return other.MinX >= b.MinX && other.MaxX <= b.MaxX &&
		other.MinZ >= b.MinZ && other.MaxZ <= b.MaxZ
}

// MapPoints projects every map coordinate onto the ground plane.
func MapPoints(m *trajectory.MapData) []r2.Vec {
	pts := m.Points()
	out := make([]r2.Vec, 0, len(pts))
	for _, p := range pts {
		out = append(out, r2.Vec{X: p[0], Y: p[2]})
	}
	return out
}

// VehiclePoints projects vehicle positions onto the ground plane.
func VehiclePoints(vs []trajectory.VehicleState) []r2.Vec {
	out := make([]r2.Vec, 0, len(vs))
	for _, v := range vs {
		out = append(out, r2.Vec{X: v.X, Y: v.Y})
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
