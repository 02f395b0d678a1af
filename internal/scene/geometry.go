package scene

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// degenerateEpsilon is the shortest edge that still produces a segment.
const degenerateEpsilon = 1e-6

// SegmentStyle sizes the unit box used for every segment.
type SegmentStyle struct {
	Width  float64 // across the edge (box Z scale)
	Height float64 // vertical thickness (box Y scale)
	Y      float64 // elevation of the segment centre
}

// DefaultSegmentStyle draws a thin painted line just above the ground.
var DefaultSegmentStyle = SegmentStyle{Width: 0.15, Height: 0.02, Y: 0.01}

// Instance is one segment transform for an instancing renderer. A unit box
// aligned with +X, scaled by Scale and rotated by RotationY about the
// vertical axis, covers the edge it was built from.
type Instance struct {
	Position  [3]float64 `json:"position"`
	RotationY float64    `json:"rotation_y"`
	Scale     [3]float64 `json:"scale"`
}

// Synthesize converts a polyline into one Instance per non-degenerate edge.
// It is pure: identical input yields identical output.
func Synthesize(line trajectory.Polyline, style SegmentStyle) []Instance {
	if len(line) < 2 {
		return nil
	}
	out := make([]Instance, 0, len(line)-1)
	for i := 0; i+1 < len(line); i++ {
		a, b := line[i], line[i+1]
		dx := b[0] - a[0]
		dz := b[2] - a[2]
		length := math.Hypot(dx, dz)
		if !finite(length) || !finite(a[0]+a[2]+b[0]+b[2]) || length < degenerateEpsilon {
			continue
		}
		// Rotating +X by θ about Y gives (cos θ, 0, -sin θ).
		angle := math.Atan2(-dz, dx)
		if angle == 0 {
			angle = 0 // normalise -0
		}
		out = append(out, Instance{
			Position:  [3]float64{(a[0] + b[0]) / 2, style.Y, (a[2] + b[2]) / 2},
			RotationY: angle,
			Scale:     [3]float64{length, style.Height, style.Width},
		})
	}
	return out
}

// MapGeometry is the instanced geometry for one map load.
type MapGeometry struct {
	Roads      []Instance
	Lanes      []Instance
	Boundaries []Instance
}

// Count returns the total number of instances.
func (g MapGeometry) Count() int {
	return len(g.Roads) + len(g.Lanes) + len(g.Boundaries)
}

// GeometryCache memoizes Synthesize per element identity, shape and style.
type GeometryCache struct {
	mu      sync.Mutex
	entries map[string][]Instance
	hits    int
}

// NewGeometryCache returns an empty cache.
func NewGeometryCache() *GeometryCache {
	return &GeometryCache{entries: make(map[string][]Instance)}
}

// Synthesize returns cached instances for (kind, element id, coordinates,
// style), computing them on first use. Elements without an id are not cached.
func (c *GeometryCache) Synthesize(kind string, e trajectory.MapElement, style SegmentStyle) []Instance {
	if c == nil || e.Properties.ID == "" {
		return Synthesize(e.Coordinates, style)
	}
	key := fmt.Sprintf("%s/%s/%g/%g/%g/%d/%016x", kind, e.Properties.ID, style.Width, style.Height, style.Y, len(e.Coordinates), polylineDigest(e.Coordinates))
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst, ok := c.entries[key]; ok {
		c.hits++
		return inst
	}
	inst := Synthesize(e.Coordinates, style)
	c.entries[key] = inst
	return inst
}

// polylineDigest hashes the exact coordinate bits, so an element reused
// under the same id with a moved vertex misses the cache.
func polylineDigest(p trajectory.Polyline) uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 24)
	for _, pt := range p {
		buf = buf[:0]
		for _, v := range pt {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}

// Hits returns the number of cache hits so far.
func (c *GeometryCache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// BuildMapGeometry synthesizes every map element. Roads use their styled
// width; lanes and boundaries are drawn as thin lines.
func BuildMapGeometry(m *trajectory.MapData, cache *GeometryCache) MapGeometry {
	var g MapGeometry
	if m == nil {
		return g
	}
	for _, e := range m.Roads {
		style := SegmentStyle{Width: e.Properties.Width, Height: DefaultSegmentStyle.Height, Y: 0}
		if style.Width <= 0 {
			style.Width = DefaultSegmentStyle.Width
		}
		g.Roads = append(g.Roads, cache.Synthesize("road", e, style)...)
	}
	for _, e := range m.Lanes {
		g.Lanes = append(g.Lanes, cache.Synthesize("lane", e, DefaultSegmentStyle)...)
	}
	for _, e := range m.Boundaries {
		style := DefaultSegmentStyle
		style.Width = 0.2
		g.Boundaries = append(g.Boundaries, cache.Synthesize("boundary", e, style)...)
	}
	return g
}
