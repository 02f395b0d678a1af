package roadmap

import (
	"math"
	"strings"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// Styling of formatted elements.
const (
	LaneWidth       = 3.5
	LaneColor       = "#ffff00"
	BoundaryWidth   = 2.0
	BoundaryColor   = "#ffffff"
	DashedColor     = "#888888"
	RoadWidth       = 8.0
	RoadColor       = "#666666"
	ReferenceColor  = "#444444"
	ReferenceWidth  = 1.0
	referenceExtent = 50.0

	// Source names the producer in map metadata.
	Source = "lanelet2_osm"
)

var laneKeywords = []string{"lane", "road", "highway", "motorway"}

// Format converts a network into scene-space map data. Planar (x, y) maps to
// [x*scale, 0, -y*scale]. Lanelets become lane centre lines; every way
// becomes a road, and also a lane or a boundary depending on its tags. An
// empty network yields two reference lines along the X and Z axes.
func Format(net *Network, scale float64) *trajectory.MapData {
	if scale <= 0 {
		scale = 1
	}
	m := &trajectory.MapData{Roads: []trajectory.MapElement{}}
	bounds := newPlanarBounds()

	for _, ll := range net.Lanelets {
		left, okL := net.Line(ll.Left)
		right, okR := net.Line(ll.Right)
		if !okL || !okR {
			continue
		}
		pts := Centerline(left.Points, right.Points)
		if len(pts) < 2 {
			continue
		}
		bounds.add(pts)
		m.Lanes = append(m.Lanes, element("lane_"+ll.ID, pts, scale, trajectory.ElementProperties{
			Width:  LaneWidth,
			Color:  LaneColor,
			Dashed: ll.Subtype == "dashed",
		}))
	}

	for _, line := range net.Lines {
		if len(line.Points) < 2 {
			continue
		}
		bounds.add(line.Points)
		if isLaneLine(line) {
			m.Lanes = append(m.Lanes, element("line_"+line.ID, line.Points, scale, trajectory.ElementProperties{
				Width:  LaneWidth,
				Color:  LaneColor,
				Dashed: line.Subtype == "dashed",
			}))
		} else {
			color := BoundaryColor
			if line.Subtype == "dashed" {
				color = DashedColor
			}
			m.Boundaries = append(m.Boundaries, element("line_"+line.ID, line.Points, scale, trajectory.ElementProperties{
				Width:  BoundaryWidth,
				Color:  color,
				Dashed: line.Subtype == "dashed",
			}))
		}
		m.Roads = append(m.Roads, element("road_"+line.ID, line.Points, scale, trajectory.ElementProperties{
			Width: RoadWidth,
			Color: RoadColor,
		}))
	}

	total := len(m.Roads) + len(m.Lanes) + len(m.Boundaries)
	if total == 0 {
		m.Boundaries = referenceLines()
	}
	meta := &trajectory.MapMetadata{
		CoordinateScale: scale,
		Units:           "meters",
		TotalElements:   total,
		HasGeometry:     total > 0,
		Source:          Source,
	}
	if b, ok := bounds.result(); ok {
		meta.Bounds = &b
	}
	m.Metadata = meta
	return m
}

func isLaneLine(l Line) bool {
	for _, kw := range laneKeywords {
		if strings.Contains(l.Type, kw) || strings.Contains(l.Subtype, kw) {
			return true
		}
	}
	return false
}

func element(id string, pts []Point, scale float64, props trajectory.ElementProperties) trajectory.MapElement {
	props.ID = id
	coords := make(trajectory.Polyline, len(pts))
	for i, p := range pts {
		coords[i] = trajectory.Point3{p.X * scale, 0, -p.Y * scale}
	}
	return trajectory.MapElement{Type: "LineString", Properties: props, Coordinates: coords}
}

func referenceLines() []trajectory.MapElement {
	props := func(id string) trajectory.ElementProperties {
		return trajectory.ElementProperties{ID: id, Width: ReferenceWidth, Color: ReferenceColor}
	}
	return []trajectory.MapElement{
		{Type: "LineString", Properties: props("reference_x"), Coordinates: trajectory.Polyline{{-referenceExtent, 0, 0}, {referenceExtent, 0, 0}}},
		{Type: "LineString", Properties: props("reference_z"), Coordinates: trajectory.Polyline{{0, 0, -referenceExtent}, {0, 0, referenceExtent}}},
	}
}

type planarBounds struct {
	b   trajectory.MapBounds
	any bool
}

func newPlanarBounds() *planarBounds {
	return &planarBounds{b: trajectory.MapBounds{
		MinX: math.Inf(1), MaxX: math.Inf(-1), MinY: math.Inf(1), MaxY: math.Inf(-1),
	}}
}

func (p *planarBounds) add(pts []Point) {
	for _, pt := range pts {
		p.b.MinX = math.Min(p.b.MinX, pt.X)
		p.b.MaxX = math.Max(p.b.MaxX, pt.X)
		p.b.MinY = math.Min(p.b.MinY, pt.Y)
		p.b.MaxY = math.Max(p.b.MaxY, pt.Y)
		p.any = true
	}
}

func (p *planarBounds) result() (trajectory.MapBounds, bool) {
	return p.b, p.any
}
