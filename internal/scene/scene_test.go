package scene

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

func testMap() *trajectory.MapData {
	return &trajectory.MapData{
		Roads: []trajectory.MapElement{{
			Type:        "LineString",
			Properties:  trajectory.ElementProperties{ID: "road_1", Width: 8, Color: "#666666"},
			Coordinates: trajectory.Polyline{{-100, 0, -20}, {100, 0, 20}},
		}},
		Lanes: []trajectory.MapElement{{
			Type:        "LineString",
			Properties:  trajectory.ElementProperties{ID: "lane_1", Width: 3.5, Color: "#ffff00"},
			Coordinates: trajectory.Polyline{{-100, 0, 0}, {0, 0, 0}, {100, 0, 0}},
		}},
	}
}

func TestScene_Pipeline(t *testing.T) {
	opts := DefaultOptions()
	opts.MapPadding = 0
	opts.FocusPadding = 0
	var fits int
	opts.OnCamera = func(CameraPose) { fits++ }
	s := New(opts)

	s.LoadMap(testMap())
	assert.Equal(t, 3, s.Geometry().Count())
	_, ok := s.Camera()
	assert.False(t, ok, "camera must wait for mount")

	s.MountControls()
	pose, ok := s.Camera()
	require.True(t, ok)
	assert.Equal(t, 1, fits)
	assert.Equal(t, [3]float64{0, pose.Height, 0}, pose.Position)

	length := 16.0
	require.NoError(t, s.ApplyFrame(0, trajectory.Frame{Vehicles: []trajectory.VehicleState{
		{ID: 2, X: 520, Y: 500, VX: 30},
		{ID: 1, X: 480, Y: 500, VX: 3, VY: 4, Length: &length, Type: "Truck"},
	}}))

	st := s.State()
	require.NotNil(t, st.Offset)
	assert.Equal(t, Offset{DX: -500, DZ: -500}, *st.Offset)
	require.Len(t, st.Vehicles, 2)
	assert.Equal(t, 1, st.Vehicles[0].ID)
	assert.InDelta(t, -20, st.Vehicles[0].Position.X, 1e-9)
	assert.Equal(t, 16.0, st.Vehicles[0].Length)
	assert.Equal(t, trajectory.DefaultWidth, st.Vehicles[0].Width)
	assert.Equal(t, "Truck", st.Vehicles[0].Type)
	assert.InDelta(t, 5, st.Vehicles[0].Speed, 1e-9)
	assert.Equal(t, trajectory.DefaultType, st.Vehicles[1].Type)

	// Vehicles far away grow the focus but do not refit the camera.
	require.NoError(t, s.ApplyFrame(1, trajectory.Frame{Vehicles: []trajectory.VehicleState{{ID: 1, X: 5000, Y: 500}}}))
	assert.Equal(t, 1, fits)
	assert.Greater(t, s.State().Focus.MaxX, 4000.0)
	assert.Len(t, s.Vehicles(), 1)
}

func TestScene_ReloadRebuildsMovedGeometry(t *testing.T) {
	s := New(DefaultOptions())
	s.LoadMap(testMap())
	first := s.Geometry()

	moved := testMap()
	moved.Lanes[0].Coordinates = trajectory.Polyline{{-100, 0, 30}, {0, 0, 30}, {100, 0, 30}}
	s.LoadMap(moved)

	want := BuildMapGeometry(moved, nil)
	assert.Equal(t, want, s.Geometry())
	assert.NotEqual(t, first.Lanes, s.Geometry().Lanes)
	assert.Equal(t, first.Roads, s.Geometry().Roads)
}

func TestScene_RejectsOutOfOrderFrames(t *testing.T) {
	s := New(DefaultOptions())
	s.LoadMap(testMap())
	require.NoError(t, s.ApplyFrame(0, trajectory.Frame{}))
	require.NoError(t, s.ApplyFrame(1, trajectory.Frame{}))

	err := s.ApplyFrame(1, trajectory.Frame{})
	assert.True(t, errors.Is(err, ErrFrameOutOfOrder))

	s.BeginStream()
	assert.NoError(t, s.ApplyFrame(0, trajectory.Frame{}))
}

func TestScene_ResetRefitsAndClearsOffset(t *testing.T) {
	s := New(DefaultOptions())
	s.LoadMap(testMap())
	s.MountControls()
	require.NoError(t, s.ApplyFrame(0, trajectory.Frame{Vehicles: []trajectory.VehicleState{{ID: 1, X: 10, Y: 10}}}))

	s.Reset()
	st := s.State()
	assert.Nil(t, st.Offset)
	assert.NotNil(t, st.Camera)
	assert.Equal(t, 0, st.FramesApplied)
	assert.Empty(t, st.Vehicles)
}

func TestScene_SetStrategyBeforeFirstFrame(t *testing.T) {
	s := New(DefaultOptions())
	s.LoadMap(testMap())
	s.SetStrategy(FixedOffset{DX: 1, DZ: 2})
	require.NoError(t, s.ApplyFrame(0, trajectory.Frame{Vehicles: []trajectory.VehicleState{{ID: 1}}}))
	off, _ := s.Aligner().Offset()
	assert.Equal(t, Offset{DX: 1, DZ: 2}, off)

	// Too late: offset is frozen.
	s.SetStrategy(FixedOffset{DX: 9, DZ: 9})
	off, _ = s.Aligner().Offset()
	assert.Equal(t, Offset{DX: 1, DZ: 2}, off)
}

func TestScene_NoMapUsesFallback(t *testing.T) {
	s := New(DefaultOptions())
	assert.Equal(t, FallbackBounds, s.State().MapBounds)
	assert.Nil(t, s.Map())
}
