package scene

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// Offset is the translation added to telemetry positions to place them in
// map space.
type Offset struct {
	DX float64 `json:"dx" yaml:"dx"`
	DZ float64 `json:"dz" yaml:"dz"`
}

// Vec returns the offset as a ground-plane vector.
func (o Offset) Vec() r2.Vec { return r2.Vec{X: o.DX, Y: o.DZ} }

// OffsetStrategy decides the telemetry-to-map translation from the first
// observed telemetry bounds and the map bounds.
type OffsetStrategy interface {
	ComputeOffset(telemetry, mapBounds Bounds) Offset
}

// FirstContactOffset aligns the telemetry centre with the map centre.
// It is a workaround for recordings whose origin differs from the map's;
// a wrong first sample (a lone outlier) stays wrong for the whole session.
type FirstContactOffset struct{}

// ComputeOffset returns mapCenter - telemetryCenter.
func (FirstContactOffset) ComputeOffset(telemetry, mapBounds Bounds) Offset {
	d := r2.Sub(mapBounds.Center(), telemetry.Center())
	return Offset{DX: d.X, DZ: d.Y}
}

// FixedOffset applies a known translation regardless of the observed data.
type FixedOffset Offset

// ComputeOffset returns the fixed translation.
func (f FixedOffset) ComputeOffset(Bounds, Bounds) Offset { return Offset(f) }

// DefaultFocusPadding pads vehicle bounds before they grow the focus region.
const DefaultFocusPadding = 10.0

// Aligner owns one rendering session's alignment state: the frozen offset
// and the monotonically growing focus region. It is not safe for concurrent
// use; the render loop is its only caller.
type Aligner struct {
	strategy  OffsetStrategy
	mapBounds Bounds
	padding   float64

	offset    Offset
	offsetSet bool
	focus     Bounds
}

// NewAligner creates an aligner for a map. A nil strategy means FirstContactOffset.
func NewAligner(mapBounds Bounds, strategy OffsetStrategy, padding float64) *Aligner {
	if strategy == nil {
		strategy = FirstContactOffset{}
	}
	return &Aligner{
		strategy:  strategy,
		mapBounds: mapBounds,
		padding:   padding,
		focus:     mapBounds,
	}
}

// Observe aligns one frame's vehicles and returns their adjusted positions
// in input order. The offset is computed on the first non-empty frame and
// never changes afterwards; the focus region only grows.
func (a *Aligner) Observe(vehicles []trajectory.VehicleState) []r2.Vec {
	if len(vehicles) == 0 {
		return nil
	}
	raw := VehiclePoints(vehicles)
	if !hasFinite(raw) {
		return raw
	}
	if !a.offsetSet {
		a.offset = a.strategy.ComputeOffset(ComputeBounds(raw, 0), a.mapBounds)
		a.offsetSet = true
	}
	shift := a.offset.Vec()
	adjusted := make([]r2.Vec, len(raw))
	for i, p := range raw {
		adjusted[i] = r2.Add(p, shift)
	}
	a.focus = Expand(a.focus, ComputeBounds(adjusted, a.padding))
	return adjusted
}

// Offset returns the frozen offset and whether it has been computed yet.
func (a *Aligner) Offset() (Offset, bool) { return a.offset, a.offsetSet }

// Focus returns the current focus region.
func (a *Aligner) Focus() Bounds { return a.focus }

// MapBounds returns the map region the aligner was built with.
func (a *Aligner) MapBounds() Bounds { return a.mapBounds }

// Reset clears the offset and focus, as on a client reload.
func (a *Aligner) Reset() {
	a.offset = Offset{}
	a.offsetSet = false
	a.focus = a.mapBounds
}

func hasFinite(pts []r2.Vec) bool {
	for _, p := range pts {
		if finite(p.X) && finite(p.Y) {
			return true
		}
	}
	return false
}
