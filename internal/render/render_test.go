package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/traffic.replay/internal/scene"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#ffff00", color.RGBA{R: 255, G: 255, A: 255}},
		{"#444444", color.RGBA{R: 0x44, G: 0x44, B: 0x44, A: 255}},
		{"#fff", color.RGBA{R: 255, G: 255, B: 255, A: 255}},
		{"", defaultColor},
		{"#zzzzzz", defaultColor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseColor(tt.in), tt.in)
	}
}

func TestVehicleOutline(t *testing.T) {
	v := scene.Vehicle{Position: r2.Vec{X: 10, Y: 5}, Heading: math.Pi / 2, Length: 4, Width: 2}
	c := VehicleOutline(v)
	// Rotated a quarter turn the long side runs along the second axis.
	assert.InDelta(t, 9, c[0].X, 1e-9)
	assert.InDelta(t, 7, c[0].Y, 1e-9)
	assert.InDelta(t, 11, c[2].X, 1e-9)
	assert.InDelta(t, 3, c[2].Y, 1e-9)
}

func testMap() *trajectory.MapData {
	return &trajectory.MapData{
		Roads: []trajectory.MapElement{{
			Type:        "LineString",
			Properties:  trajectory.ElementProperties{ID: "road_1", Width: 8, Color: "#666666"},
			Coordinates: trajectory.Polyline{{0, 0, 0}, {100, 0, 0}},
		}},
		Boundaries: []trajectory.MapElement{{
			Type:        "LineString",
			Properties:  trajectory.ElementProperties{ID: "line_1", Width: 2, Color: "#888888", Dashed: true},
			Coordinates: trajectory.Polyline{{0, 0, -4}, {100, 0, -4}},
		}},
	}
}

func TestSnapshot(t *testing.T) {
	vehicles := []scene.Vehicle{
		{ID: 1, Position: r2.Vec{X: 20, Y: -2}, Length: 4.5, Width: 2},
		{ID: 2, Position: r2.Vec{X: 60, Y: -2}, Heading: 0.1, Length: 12, Width: 2.5},
	}
	var buf bytes.Buffer
	opts := SnapshotOptions{Width: 400, Height: 200, Title: "sid_test"}
	require.NoError(t, Snapshot(&buf, testMap(), vehicles, opts))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
	assert.Greater(t, img.Bounds().Dy(), 0)
}

func TestSnapshot_EmptyScene(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Snapshot(&buf, nil, nil, SnapshotOptions{}))
	_, err := png.Decode(&buf)
	assert.NoError(t, err)
}

func makeFrames(n int) trajectory.FrameBuffer {
	frames := make(trajectory.FrameBuffer, n)
	for i := range frames {
		frames[i] = trajectory.Frame{Timestamp: int64(i * 40)}
		for id := 0; id < i%3; id++ {
			frames[i].Vehicles = append(frames[i].Vehicles, trajectory.VehicleState{ID: id, VX: 3, VY: 4})
		}
	}
	return frames
}

func TestCollectFrameStats(t *testing.T) {
	stats := CollectFrameStats(makeFrames(4))
	require.Len(t, stats, 4)
	assert.Equal(t, FrameStats{FrameNumber: 2, Timestamp: 80, Vehicles: 2, MeanSpeed: 5}, stats[2])
	assert.Equal(t, 0.0, stats[0].MeanSpeed)

	long := CollectFrameStats(makeFrames(MaxChartPoints*2 + 1))
	assert.LessOrEqual(t, len(long), MaxChartPoints)
	assert.Equal(t, 3, long[1].FrameNumber)
}

func TestVehicleChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, VehicleChart(&buf, "sid_chart", makeFrames(10)))
	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"), "renders a page")
	assert.Contains(t, html, "sid_chart")
	assert.Contains(t, html, "mean speed (m/s)")
}
