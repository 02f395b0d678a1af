package scene

import "math"

// Viewport describes the render target.
type Viewport struct {
	Width   float64 // pixels
	Height  float64 // pixels
	FovYDeg float64 // vertical field of view in degrees
}

// Aspect returns width/height, or 1 for a degenerate viewport.
func (v Viewport) Aspect() float64 {
	if v.Width <= 0 || v.Height <= 0 {
		return 1
	}
	return v.Width / v.Height
}

// DefaultViewport matches a 16:9 canvas with a 60 degree vertical FOV.
var DefaultViewport = Viewport{Width: 1920, Height: 1080, FovYDeg: 60}

// CameraPolicy holds the display policy for the overhead fit.
type CameraPolicy struct {
	WidthFraction   float64 // share of the longitudinal (X) extent kept visible
	MinVisibleWidth float64
	DepthFactor     float64 // multiple of the lateral (Z) extent kept visible
	MinVisibleDepth float64
	MinHeight       float64
}

// DefaultCameraPolicy shows a third of a highway section lengthwise and the
// whole cross-section with some margin.
func DefaultCameraPolicy() CameraPolicy {
	return CameraPolicy{
		WidthFraction:   1.0 / 3.0,
		MinVisibleWidth: 60,
		DepthFactor:     1.2,
		MinVisibleDepth: 30,
		MinHeight:       20,
	}
}

// CameraPose is an overhead camera looking straight down at Target.
type CameraPose struct {
	Position [3]float64 `json:"position"`
	Target   [3]float64 `json:"target"`
	Up       [3]float64 `json:"up"`
	FovY     float64    `json:"fov_y"`
	Near     float64    `json:"near"`
	Far      float64    `json:"far"`
	Height   float64    `json:"height"`
}

// FitOverhead computes a top-down pose over the map bounds. The visible
// width is mapped to the horizontal FOV and the visible depth to the
// vertical FOV; the higher of the two required heights wins.
func FitOverhead(mapBounds Bounds, vp Viewport, policy CameraPolicy) CameraPose {
	fovY := vp.FovYDeg
	if fovY <= 0 || fovY >= 180 {
		fovY = DefaultViewport.FovYDeg
	}
	halfY := fovY * math.Pi / 360
	halfX := math.Atan(math.Tan(halfY) * vp.Aspect())

	visibleWidth := math.Max(mapBounds.Width()*policy.WidthFraction, policy.MinVisibleWidth)
	visibleDepth := math.Max(mapBounds.Depth()*policy.DepthFactor, policy.MinVisibleDepth)

	hWidth := (visibleWidth / 2) / math.Tan(halfX)
	hDepth := (visibleDepth / 2) / math.Tan(halfY)
	height := math.Max(math.Max(hWidth, hDepth), policy.MinHeight)

	sceneSize := math.Max(mapBounds.Width(), mapBounds.Depth())
	near := math.Max(0.1, height*0.01)
	far := math.Max(height*2, height+sceneSize*2)

	c := mapBounds.Center()
	return CameraPose{
		Position: [3]float64{c.X, height, c.Y},
		Target:   [3]float64{c.X, 0, c.Y},
		Up:       [3]float64{0, 0, -1},
		FovY:     fovY,
		Near:     near,
		Far:      far,
		Height:   height,
	}
}

// CameraRig applies FitOverhead exactly once per rendering session and only
// after the camera controls have mounted. Fit requests that arrive before
// mount are held until Mount; requests after the first fit are ignored so
// playback never resets the user's view.
type CameraRig struct {
	viewport Viewport
	policy   CameraPolicy
	onApply  func(CameraPose)

	mounted bool
	fitted  bool
	pending *Bounds
	pose    CameraPose
}

// NewCameraRig creates a rig. onApply, if non-nil, is called with the pose
// at the moment it is applied.
func NewCameraRig(vp Viewport, policy CameraPolicy, onApply func(CameraPose)) *CameraRig {
	return &CameraRig{viewport: vp, policy: policy, onApply: onApply}
}

// Mount marks the controls as mounted and applies any held fit request.
func (r *CameraRig) Mount() {
	r.mounted = true
	if r.pending != nil {
		b := *r.pending
		r.pending = nil
		r.apply(b)
	}
}

// RequestFit asks for a fit over b. It reports whether the pose was applied now.
func (r *CameraRig) RequestFit(b Bounds) bool {
	if r.fitted {
		return false
	}
	if !r.mounted {
		r.pending = &b
		return false
	}
	r.apply(b)
	return true
}

// Pose returns the applied pose, if any.
func (r *CameraRig) Pose() (CameraPose, bool) { return r.pose, r.fitted }

// Reset forgets the fit, as on a client reload.
func (r *CameraRig) Reset() {
	r.fitted = false
	r.pending = nil
	r.pose = CameraPose{}
}

func (r *CameraRig) apply(b Bounds) {
	r.pose = FitOverhead(b, r.viewport, r.policy)
	r.fitted = true
	if r.onApply != nil {
		r.onApply(r.pose)
	}
}
