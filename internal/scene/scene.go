package scene

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// DefaultMapPadding pads the map bounds used for the camera and alignment.
const DefaultMapPadding = 5.0

// ErrFrameOutOfOrder is returned when a frame does not follow the last one.
var ErrFrameOutOfOrder = errors.New("frame out of order")

// Vehicle is a vehicle placed in scene space with defaults applied.
type Vehicle struct {
	ID       int     `json:"id"`
	Position r2.Vec  `json:"position"`
	Heading  float64 `json:"heading"`
	Speed    float64 `json:"speed"`
	Length   float64 `json:"length"`
	Width    float64 `json:"width"`
	Type     string  `json:"type"`
}

// Options configures a Scene.
type Options struct {
	Viewport     Viewport
	Camera       CameraPolicy
	Strategy     OffsetStrategy
	MapPadding   float64
	FocusPadding float64
	Cache        *GeometryCache
	OnCamera     func(CameraPose)
}

// DefaultOptions returns the settings used by the watch client.
func DefaultOptions() Options {
	return Options{
		Viewport:     DefaultViewport,
		Camera:       DefaultCameraPolicy(),
		MapPadding:   DefaultMapPadding,
		FocusPadding: DefaultFocusPadding,
	}
}

// Scene is one rendering session. Frames must be applied from a single
// goroutine.
type Scene struct {
	opts     Options
	cache    *GeometryCache
	camera   *CameraRig
	aligner  *Aligner
	mapData  *trajectory.MapData
	geometry MapGeometry

	vehicles  map[int]Vehicle
	lastFrame int
	frames    int
}

// New creates an empty scene. Until LoadMap is called the map region is
// FallbackBounds.
func New(opts Options) *Scene {
	if opts.Cache == nil {
		opts.Cache = NewGeometryCache()
	}
	s := &Scene{
		opts:      opts,
		cache:     opts.Cache,
		camera:    NewCameraRig(opts.Viewport, opts.Camera, opts.OnCamera),
		vehicles:  make(map[int]Vehicle),
		lastFrame: -1,
	}
	s.aligner = NewAligner(FallbackBounds, opts.Strategy, opts.FocusPadding)
	return s
}

// LoadMap sets the session map, builds its geometry once and requests the
// one-time camera fit.
func (s *Scene) LoadMap(m *trajectory.MapData) {
	s.mapData = m
	s.geometry = BuildMapGeometry(m, s.cache)
	mapBounds := FallbackBounds
	if pts := MapPoints(m); len(pts) > 0 {
		mapBounds = ComputeBounds(pts, s.opts.MapPadding)
	}
	s.aligner = NewAligner(mapBounds, s.opts.Strategy, s.opts.FocusPadding)
	s.camera.RequestFit(mapBounds)
}

// SetStrategy replaces the offset strategy. It only has an effect before
// the first vehicle frame.
func (s *Scene) SetStrategy(st OffsetStrategy) {
	s.opts.Strategy = st
	if _, set := s.aligner.Offset(); !set {
		s.aligner = NewAligner(s.aligner.MapBounds(), st, s.opts.FocusPadding)
	}
}

// MountControls signals that camera controls exist; a held fit is applied now.
func (s *Scene) MountControls() { s.camera.Mount() }

// ApplyFrame aligns a frame and replaces the vehicle table with its vehicles.
// Frame numbers must strictly increase within a stream.
func (s *Scene) ApplyFrame(frameNumber int, f trajectory.Frame) error {
	if frameNumber <= s.lastFrame {
		return fmt.Errorf("%w: got %d after %d", ErrFrameOutOfOrder, frameNumber, s.lastFrame)
	}
	s.lastFrame = frameNumber
	s.frames++

	positions := s.aligner.Observe(f.Vehicles)
	next := make(map[int]Vehicle, len(f.Vehicles))
	for i, v := range f.Vehicles {
		length, width, class := v.Dimensions()
		next[v.ID] = Vehicle{
			ID:       v.ID,
			Position: positions[i],
			Heading:  v.Heading,
			Speed:    math.Hypot(v.VX, v.VY),
			Length:   length,
			Width:    width,
			Type:     class,
		}
	}
	s.vehicles = next
	return nil
}

// BeginStream prepares for a new stream of the same session: frame numbers
// restart at zero while offset, focus and camera are kept.
func (s *Scene) BeginStream() {
	s.lastFrame = -1
}

// Reset returns the scene to its state right after LoadMap, as on reload.
func (s *Scene) Reset() {
	s.aligner.Reset()
	s.camera.Reset()
	s.camera.RequestFit(s.aligner.MapBounds())
	s.vehicles = make(map[int]Vehicle)
	s.lastFrame = -1
	s.frames = 0
}

// Vehicles returns the current vehicles sorted by id.
func (s *Scene) Vehicles() []Vehicle {
	out := make([]Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Map returns the loaded map.
func (s *Scene) Map() *trajectory.MapData { return s.mapData }

// Geometry returns the instanced map geometry.
func (s *Scene) Geometry() MapGeometry { return s.geometry }

// Aligner exposes the alignment state.
func (s *Scene) Aligner() *Aligner { return s.aligner }

// Camera returns the applied camera pose, if the fit has run.
func (s *Scene) Camera() (CameraPose, bool) { return s.camera.Pose() }

// State is a serialisable summary of the scene.
type State struct {
	MapBounds     Bounds      `json:"map_bounds"`
	Focus         Bounds      `json:"focus"`
	Offset        *Offset     `json:"offset,omitempty"`
	Camera        *CameraPose `json:"camera,omitempty"`
	Instances     int         `json:"instances"`
	FramesApplied int         `json:"frames_applied"`
	LastFrame     int         `json:"last_frame"`
	Vehicles      []Vehicle   `json:"vehicles"`
}

// State snapshots the scene.
func (s *Scene) State() State {
	st := State{
		MapBounds:     s.aligner.MapBounds(),
		Focus:         s.aligner.Focus(),
		Instances:     s.geometry.Count(),
		FramesApplied: s.frames,
		LastFrame:     s.lastFrame,
		Vehicles:      s.Vehicles(),
	}
	if off, ok := s.aligner.Offset(); ok {
		st.Offset = &off
	}
	if pose, ok := s.camera.Pose(); ok {
		st.Camera = &pose
	}
	return st
}
