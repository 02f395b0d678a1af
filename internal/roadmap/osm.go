// Package roadmap reads Lanelet2 OSM road networks and formats them into the
// styled map payload sent to clients.
package roadmap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidMap is returned for documents that are not usable OSM.
var ErrInvalidMap = errors.New("invalid OSM map")

const earthRadius = 6378137.0 // WGS84 semi-major axis, metres

type osmTag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

type osmNode struct {
	ID   string   `xml:"id,attr"`
	Lat  float64  `xml:"lat,attr"`
	Lon  float64  `xml:"lon,attr"`
	Tags []osmTag `xml:"tag"`
}

type osmNd struct {
	Ref string `xml:"ref,attr"`
}

type osmWay struct {
	ID   string   `xml:"id,attr"`
	Nds  []osmNd  `xml:"nd"`
	Tags []osmTag `xml:"tag"`
}

type osmMember struct {
	Type string `xml:"type,attr"`
	Ref  string `xml:"ref,attr"`
	Role string `xml:"role,attr"`
}

type osmRelation struct {
	ID      string      `xml:"id,attr"`
	Members []osmMember `xml:"member"`
	Tags    []osmTag    `xml:"tag"`
}

type osmDocument struct {
	XMLName   xml.Name      `xml:"osm"`
	Nodes     []osmNode     `xml:"node"`
	Ways      []osmWay      `xml:"way"`
	Relations []osmRelation `xml:"relation"`
}

func tagValue(tags []osmTag, key string) string {
	for _, t := range tags {
		if t.K == key {
			return t.V
		}
	}
	return ""
}

// Point is a planar coordinate in metres.
type Point struct{ X, Y float64 }

// Line is a way resolved to planar points.
type Line struct {
	ID      string
	Type    string
	Subtype string
	Points  []Point
}

// Lanelet pairs a left and a right boundary way.
type Lanelet struct {
	ID      string
	Subtype string
	Left    string
	Right   string
}

// Network is a parsed OSM document in planar metres.
type Network struct {
	Lines    []Line
	Lanelets []Lanelet
	byID     map[string]int
}

// Line returns the way with id.
func (n *Network) Line(id string) (Line, bool) {
	i, ok := n.byID[id]
	if !ok {
		return Line{}, false
	}
	return n.Lines[i], true
}

// Parse decodes an OSM document. Nodes carrying local_x/local_y tags use
// them directly; others are projected from lat/lon around the first node.
// Ways that reference unknown nodes keep the nodes that resolve.
func Parse(r io.Reader) (*Network, error) {
	var doc osmDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}

	nodes := make(map[string]Point, len(doc.Nodes))
	var origin *osmNode
	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		if p, ok := localXY(n.Tags); ok {
			nodes[n.ID] = p
			continue
		}
		if origin == nil {
			origin = n
		}
		nodes[n.ID] = project(n.Lat, n.Lon, origin.Lat, origin.Lon)
	}

	net := &Network{byID: make(map[string]int, len(doc.Ways))}
	for _, w := range doc.Ways {
		if tagValue(w.Tags, "area") == "yes" {
			continue
		}
		line := Line{
			ID:      w.ID,
			Type:    strings.ToLower(tagValue(w.Tags, "type")),
			Subtype: strings.ToLower(tagValue(w.Tags, "subtype")),
		}
		for _, nd := range w.Nds {
			if p, ok := nodes[nd.Ref]; ok {
				line.Points = append(line.Points, p)
			}
		}
		net.byID[w.ID] = len(net.Lines)
		net.Lines = append(net.Lines, line)
	}

	for _, rel := range doc.Relations {
		if tagValue(rel.Tags, "type") != "lanelet" {
			continue
		}
		ll := Lanelet{ID: rel.ID, Subtype: strings.ToLower(tagValue(rel.Tags, "subtype"))}
		for _, m := range rel.Members {
			if m.Type != "way" {
				continue
			}
			switch m.Role {
			case "left":
				ll.Left = m.Ref
			case "right":
				ll.Right = m.Ref
			}
		}
		net.Lanelets = append(net.Lanelets, ll)
	}
	return net, nil
}

func localXY(tags []osmTag) (Point, bool) {
	xs, ys := tagValue(tags, "local_x"), tagValue(tags, "local_y")
	if xs == "" || ys == "" {
		return Point{}, false
	}
	x, errX := strconv.ParseFloat(xs, 64)
	y, errY := strconv.ParseFloat(ys, 64)
	if errX != nil || errY != nil {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}

// project is an equirectangular approximation, accurate over the few
// kilometres a recording site spans.
func project(lat, lon, lat0, lon0 float64) Point {
	rad := math.Pi / 180
	return Point{
		X: (lon - lon0) * rad * earthRadius * math.Cos(lat0*rad),
		Y: (lat - lat0) * rad * earthRadius,
	}
}

// Centerline averages two boundaries point by point over their common length.
func Centerline(left, right []Point) []Point {
	n := min(len(left), len(right))
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Point{X: (left[i].X + right[i].X) / 2, Y: (left[i].Y + right[i].Y) / 2})
	}
	return out
}
