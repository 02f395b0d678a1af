package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// visibleExtents returns the ground extents seen from a pose.
func visibleExtents(p CameraPose, vp Viewport) (width, depth float64) {
	halfY := p.FovY * math.Pi / 360
	halfX := math.Atan(math.Tan(halfY) * vp.Aspect())
	return 2 * p.Height * math.Tan(halfX), 2 * p.Height * math.Tan(halfY)
}

func TestFitOverhead_FitsPolicyExtents(t *testing.T) {
	tests := []struct {
		name   string
		bounds Bounds
		vp     Viewport
	}{
		{"long highway", Bounds{-200, 200, -20, 20}, DefaultViewport},
		{"wide map portrait", Bounds{-50, 50, -150, 150}, Viewport{Width: 800, Height: 1200, FovYDeg: 45}},
		{"tiny map hits floors", Bounds{-1, 1, -1, 1}, DefaultViewport},
	}
	policy := DefaultCameraPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pose := FitOverhead(tt.bounds, tt.vp, policy)
			w, d := visibleExtents(pose, tt.vp)

			wantW := math.Max(tt.bounds.Width()*policy.WidthFraction, policy.MinVisibleWidth)
			wantD := math.Max(tt.bounds.Depth()*policy.DepthFactor, policy.MinVisibleDepth)
			assert.GreaterOrEqual(t, w+1e-9, wantW, "visible width")
			assert.GreaterOrEqual(t, d+1e-9, wantD, "visible depth")
			assert.GreaterOrEqual(t, pose.Height, policy.MinHeight)

			c := tt.bounds.Center()
			assert.Equal(t, [3]float64{c.X, pose.Height, c.Y}, pose.Position)
			assert.Equal(t, [3]float64{c.X, 0, c.Y}, pose.Target)
			assert.Less(t, pose.Near, pose.Height)
			assert.Greater(t, pose.Far, pose.Height)
		})
	}
}

func TestFitOverhead_OneExtentIsTight(t *testing.T) {
	b := Bounds{-300, 300, -10, 10}
	pose := FitOverhead(b, DefaultViewport, DefaultCameraPolicy())
	w, d := visibleExtents(pose, DefaultViewport)
	// Width governs here: 600/3 = 200 visible.
	assert.InDelta(t, 200, w, 1e-6)
	assert.Greater(t, d, 30.0)
}

func TestFitOverhead_BadFOVFallsBack(t *testing.T) {
	pose := FitOverhead(Bounds{-10, 10, -10, 10}, Viewport{Width: 100, Height: 100}, DefaultCameraPolicy())
	assert.Equal(t, DefaultViewport.FovYDeg, pose.FovY)
}

func TestCameraRig_FitsOnceAfterMount(t *testing.T) {
	var applied []CameraPose
	rig := NewCameraRig(DefaultViewport, DefaultCameraPolicy(), func(p CameraPose) { applied = append(applied, p) })

	first := Bounds{-100, 100, -20, 20}
	assert.False(t, rig.RequestFit(first), "fit before mount must be deferred")
	_, ok := rig.Pose()
	assert.False(t, ok)

	rig.Mount()
	require.Len(t, applied, 1)
	pose, ok := rig.Pose()
	require.True(t, ok)
	assert.Equal(t, FitOverhead(first, DefaultViewport, DefaultCameraPolicy()), pose)

	// Later requests, e.g. after vehicles widen the scene, are ignored.
	assert.False(t, rig.RequestFit(Bounds{-1000, 1000, -500, 500}))
	assert.Len(t, applied, 1)

	rig.Reset()
	assert.True(t, rig.RequestFit(first))
	assert.Len(t, applied, 2)
}

func TestCameraRig_MountWithoutRequest(t *testing.T) {
	rig := NewCameraRig(DefaultViewport, DefaultCameraPolicy(), nil)
	rig.Mount()
	_, ok := rig.Pose()
	assert.False(t, ok)
	assert.True(t, rig.RequestFit(FallbackBounds))
}
