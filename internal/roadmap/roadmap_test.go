package roadmap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

const laneletOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <node id="1" lat="0" lon="0"><tag k="local_x" v="0"/><tag k="local_y" v="0"/></node>
  <node id="2" lat="0" lon="0"><tag k="local_x" v="10"/><tag k="local_y" v="0"/></node>
  <node id="3" lat="0" lon="0"><tag k="local_x" v="0"/><tag k="local_y" v="4"/></node>
  <node id="4" lat="0" lon="0"><tag k="local_x" v="10"/><tag k="local_y" v="4"/></node>
  <way id="100"><nd ref="1"/><nd ref="2"/><tag k="type" v="line_thin"/><tag k="subtype" v="solid"/></way>
  <way id="101"><nd ref="3"/><nd ref="4"/><tag k="type" v="line_thin"/><tag k="subtype" v="dashed"/></way>
  <way id="102"><nd ref="1"/><nd ref="3"/><tag k="area" v="yes"/></way>
  <relation id="200">
    <member type="way" ref="101" role="left"/>
    <member type="way" ref="100" role="right"/>
    <tag k="type" v="lanelet"/><tag k="subtype" v="highway"/>
  </relation>
  <relation id="201"><tag k="type" v="regulatory_element"/></relation>
</osm>`

func TestParse(t *testing.T) {
	net, err := Parse(strings.NewReader(laneletOSM))
	require.NoError(t, err)

	require.Len(t, net.Lines, 2, "area ways are skipped")
	l, ok := net.Line("101")
	require.True(t, ok)
	assert.Equal(t, "dashed", l.Subtype)
	assert.Equal(t, []Point{{0, 4}, {10, 4}}, l.Points)

	require.Len(t, net.Lanelets, 1)
	assert.Equal(t, Lanelet{ID: "200", Subtype: "highway", Left: "101", Right: "100"}, net.Lanelets[0])
}

func TestParse_LatLonProjection(t *testing.T) {
	doc := `<osm>
  <node id="1" lat="49.0" lon="8.0"/>
  <node id="2" lat="49.0" lon="8.001"/>
  <node id="3" lat="49.001" lon="8.0"/>
  <way id="1"><nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="99"/></way>
</osm>`
	net, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	pts := net.Lines[0].Points
	require.Len(t, pts, 3, "unknown node refs are dropped")
	assert.Equal(t, Point{0, 0}, pts[0])
	assert.InDelta(t, 73.03, pts[1].X, 0.05)
	assert.InDelta(t, 0, pts[1].Y, 1e-9)
	assert.InDelta(t, 111.32, pts[2].Y, 0.05)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("<osm><node"))
	assert.True(t, errors.Is(err, ErrInvalidMap))
	_, err = Parse(strings.NewReader("<html></html>"))
	assert.True(t, errors.Is(err, ErrInvalidMap))
}

func TestFormat(t *testing.T) {
	net, err := Parse(strings.NewReader(laneletOSM))
	require.NoError(t, err)
	m := Format(net, 1)

	wantLanes := []trajectory.MapElement{{
		Type:        "LineString",
		Properties:  trajectory.ElementProperties{ID: "lane_200", Width: LaneWidth, Color: LaneColor},
		Coordinates: trajectory.Polyline{{0, 0, -2}, {10, 0, -2}},
	}}
	if diff := cmp.Diff(wantLanes, m.Lanes); diff != "" {
		t.Errorf("lanes mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, m.Boundaries, 2)
	assert.Equal(t, "line_100", m.Boundaries[0].Properties.ID)
	assert.Equal(t, BoundaryColor, m.Boundaries[0].Properties.Color)
	assert.False(t, m.Boundaries[0].Properties.Dashed)
	assert.Equal(t, DashedColor, m.Boundaries[1].Properties.Color)
	assert.True(t, m.Boundaries[1].Properties.Dashed)

	require.Len(t, m.Roads, 2)
	assert.Equal(t, "road_100", m.Roads[0].Properties.ID)
	assert.Equal(t, RoadWidth, m.Roads[0].Properties.Width)
	assert.Equal(t, trajectory.Polyline{{0, 0, 0}, {10, 0, 0}}, m.Roads[0].Coordinates)

	require.NotNil(t, m.Metadata)
	assert.Equal(t, 5, m.Metadata.TotalElements)
	assert.True(t, m.Metadata.HasGeometry)
	assert.Equal(t, "meters", m.Metadata.Units)
	assert.Equal(t, &trajectory.MapBounds{MinX: 0, MaxX: 10, MinY: 0, MaxY: 4}, m.Metadata.Bounds)
}

func TestFormat_ScaleAndLaneKeywords(t *testing.T) {
	net := &Network{
		Lines:    []Line{{ID: "7", Type: "road_border", Points: []Point{{1, 1}, {2, 3}}}},
		Lanelets: []Lanelet{{ID: "9", Left: "7", Right: "missing"}},
		byID:     map[string]int{"7": 0},
	}
	m := Format(net, 2)
	require.Len(t, m.Lanes, 1, "lanelets with an unresolved side are skipped")
	assert.Equal(t, "line_7", m.Lanes[0].Properties.ID)
	assert.Equal(t, trajectory.Polyline{{2, 0, -2}, {4, 0, -6}}, m.Lanes[0].Coordinates)
	assert.Empty(t, m.Boundaries)
	assert.Equal(t, 2.0, m.Metadata.CoordinateScale)
}

func TestFormat_EmptyNetwork(t *testing.T) {
	m := Format(&Network{}, 0)
	assert.Empty(t, m.Roads)
	assert.NotNil(t, m.Roads, "roads always serialises as an array")
	require.Len(t, m.Boundaries, 2)
	assert.Equal(t, "reference_x", m.Boundaries[0].Properties.ID)
	assert.Equal(t, trajectory.Polyline{{0, 0, -50}, {0, 0, 50}}, m.Boundaries[1].Coordinates)
	assert.False(t, m.Metadata.HasGeometry)
	assert.Equal(t, 0, m.Metadata.TotalElements)
	assert.Nil(t, m.Metadata.Bounds)
}

func TestCenterline(t *testing.T) {
	got := Centerline([]Point{{0, 0}, {2, 2}, {4, 4}}, []Point{{0, 2}, {2, 4}})
	assert.Equal(t, []Point{{0, 1}, {2, 3}}, got)
}

func TestLoader_CachesAndDeduplicates(t *testing.T) {
	l := NewLoader(1)
	var calls atomic.Int32
	release := make(chan struct{})
	l.parse = func(path string, scale float64) (*trajectory.MapData, error) {
		calls.Add(1)
		<-release
		return &trajectory.MapData{Roads: []trajectory.MapElement{}}, nil
	}

	var wg sync.WaitGroup
	results := make([]*trajectory.MapData, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := l.Load(context.Background(), "map.osm")
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
	assert.Equal(t, 1, l.Len())

	l.Forget("map.osm")
	assert.Equal(t, 0, l.Len())
}

func TestLoader_ContextCancel(t *testing.T) {
	l := NewLoader(1)
	block := make(chan struct{})
	defer close(block)
	l.parse = func(string, float64) (*trajectory.MapData, error) {
		<-block
		return nil, errors.New("unreachable")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Load(ctx, "slow.osm")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "highD_1.osm")
	require.NoError(t, os.WriteFile(path, []byte(laneletOSM), 0o644))

	m, err := NewLoader(0).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, m.Roads, 2)

	_, err = LoadFile(filepath.Join(dir, "missing.osm"), 1)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := filepath.Join(dir, "bad.osm")
	require.NoError(t, os.WriteFile(bad, []byte("not xml"), 0o644))
	_, err = LoadFile(bad, 1)
	assert.True(t, errors.Is(err, ErrInvalidMap))
}
