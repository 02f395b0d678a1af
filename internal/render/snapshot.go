// Package render draws static views of a replay: a PNG of the map with its
// vehicles and an HTML chart of a session's frame statistics.
package render

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/traffic.replay/internal/scene"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// SnapshotOptions sizes and labels a snapshot.
type SnapshotOptions struct {
	Width  vg.Length
	Height vg.Length
	Title  string
}

// DefaultSnapshotOptions is a 16:9 image roughly 1200 px wide.
var DefaultSnapshotOptions = SnapshotOptions{Width: 12 * vg.Inch, Height: 6.75 * vg.Inch}

var (
	background   = color.RGBA{R: 0x1e, G: 0x1e, B: 0x1e, A: 0xff}
	vehicleFill  = color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	vehicleEdge  = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	defaultColor = color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
)

// ParseColor parses "#rrggbb" or "#rgb". Anything else yields grey.
func ParseColor(s string) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return defaultColor
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return defaultColor
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// planXY maps a ground-plane point (x, z) to plot coordinates with north up.
func planXY(x, z float64) plotter.XY { return plotter.XY{X: x, Y: -z} }

// VehicleOutline returns the four ground-plane corners of a vehicle box.
func VehicleOutline(v scene.Vehicle) [4]r2.Vec {
	c, s := math.Cos(v.Heading), math.Sin(v.Heading)
	hl, hw := v.Length/2, v.Width/2
	var out [4]r2.Vec
	for i, k := range [4][2]float64{{hl, hw}, {hl, -hw}, {-hl, -hw}, {-hl, hw}} {
		out[i] = r2.Vec{
			X: v.Position.X + k[0]*c - k[1]*s,
			Y: v.Position.Y + k[0]*s + k[1]*c,
		}
	}
	return out
}

// Snapshot draws the map polylines and vehicle boxes as a PNG.
func Snapshot(w io.Writer, m *trajectory.MapData, vehicles []scene.Vehicle, o SnapshotOptions) error {
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = DefaultSnapshotOptions.Width, DefaultSnapshotOptions.Height
	}
	p := plot.New()
	p.Title.Text = o.Title
	p.BackgroundColor = background
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	if m != nil {
		layers := []struct {
			elems []trajectory.MapElement
			scale vg.Length
		}{
			{m.Roads, 0.6},
			{m.Boundaries, 0.4},
			{m.Lanes, 0.3},
		}
		for _, layer := range layers {
			for _, e := range layer.elems {
				if len(e.Coordinates) < 2 {
					continue
				}
				pts := make(plotter.XYs, len(e.Coordinates))
				for i, c := range e.Coordinates {
					pts[i] = planXY(c[0], c[2])
				}
				line, err := plotter.NewLine(pts)
				if err != nil {
					return fmt.Errorf("map element %s: %w", e.Properties.ID, err)
				}
				line.Color = ParseColor(e.Properties.Color)
				line.Width = vg.Points(math.Max(0.5, e.Properties.Width)) * layer.scale
				if e.Properties.Dashed {
					line.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
				}
				p.Add(line)
			}
		}
	}

	for _, v := range vehicles {
		corners := VehicleOutline(v)
		pts := make(plotter.XYs, len(corners))
		for i, c := range corners {
			pts[i] = planXY(c.X, c.Y)
		}
		poly, err := plotter.NewPolygon(pts)
		if err != nil {
			return fmt.Errorf("vehicle %d: %w", v.ID, err)
		}
		poly.Color = vehicleFill
		poly.LineStyle.Color = vehicleEdge
		poly.LineStyle.Width = vg.Points(0.5)
		p.Add(poly)
	}

	wt, err := p.WriterTo(o.Width, o.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to create png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
