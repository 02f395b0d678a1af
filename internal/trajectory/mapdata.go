package trajectory

// Point3 is a map coordinate [x, y, z]; y is the vertical axis and is
// typically near zero.
type Point3 [3]float64

// Polyline is an ordered list of map coordinates.
type Polyline []Point3

// ElementProperties carries per-element styling.
type ElementProperties struct {
	ID     string  `json:"id"`
	Width  float64 `json:"width"`
	Color  string  `json:"color"`
	Dashed bool    `json:"dashed,omitempty"`
}

// MapElement is a styled polyline (road, lane or boundary).
type MapElement struct {
	Type        string            `json:"type"`
	Properties  ElementProperties `json:"properties"`
	Coordinates Polyline          `json:"coordinates"`
}

// MapMetadata describes how the map was produced.
type MapMetadata struct {
	Bounds          *MapBounds `json:"bounds,omitempty"`
	CoordinateScale float64    `json:"coordinate_scale"`
	Units           string     `json:"units"`
	TotalElements   int        `json:"total_elements"`
	HasGeometry     bool       `json:"has_geometry"`
	Source          string     `json:"source,omitempty"`
}

// MapBounds is the raw planar extent of the source network before projection.
type MapBounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// MapData is the road network for a session. It is immutable after load.
type MapData struct {
	Roads      []MapElement `json:"roads"`
	Lanes      []MapElement `json:"lanes,omitempty"`
	Boundaries []MapElement `json:"boundaries,omitempty"`
	Metadata   *MapMetadata `json:"metadata,omitempty"`
}

// Elements returns roads, lanes and boundaries in that order.
func (m *MapData) Elements() []MapElement {
	if m == nil {
		return nil
	}
	out := make([]MapElement, 0, len(m.Roads)+len(m.Lanes)+len(m.Boundaries))
	out = append(out, m.Roads...)
	out = append(out, m.Lanes...)
	out = append(out, m.Boundaries...)
	return out
}

// Points returns every coordinate of every element.
func (m *MapData) Points() []Point3 {
	var pts []Point3
	for _, e := range m.Elements() {
		pts = append(pts, e.Coordinates...)
	}
	return pts
}
