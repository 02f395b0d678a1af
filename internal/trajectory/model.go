// Package trajectory defines the replay data model shared by the server
// (sessions, transports) and the client-side scene engine.
package trajectory

// Documented defaults for vehicles whose static attributes are absent.
const (
	DefaultLength = 4.5
	DefaultWidth  = 2.0
	DefaultType   = "Car"
)

// VehicleState is one participant's state within a frame.
// Length, Width and Type are optional static attributes: when present they
// are identical in every frame where the same ID appears.
type VehicleState struct {
	ID      int      `json:"id"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	VX      float64  `json:"vx"`
	VY      float64  `json:"vy"`
	Heading float64  `json:"heading"`
	Length  *float64 `json:"length,omitempty"`
	Width   *float64 `json:"width,omitempty"`
	Type    string   `json:"type,omitempty"`
}

// Dimensions returns the vehicle's length, width and class with the
// documented defaults applied for missing attributes.
func (v VehicleState) Dimensions() (length, width float64, class string) {
	length, width, class = DefaultLength, DefaultWidth, DefaultType
	if v.Length != nil {
		length = *v.Length
	}
	if v.Width != nil {
		width = *v.Width
	}
	if v.Type != "" {
		class = v.Type
	}
	return length, width, class
}

// Frame is one timestamp's snapshot of all active participants, ordered by ID.
// Frames are immutable once stored in a session.
type Frame struct {
	Timestamp int64          `json:"timestamp"`
	Vehicles  []VehicleState `json:"vehicles"`
}

// FrameBuffer holds a session's frames; the slice index is the frame number.
type FrameBuffer []Frame

// Len returns the number of buffered frames.
func (b FrameBuffer) Len() int { return len(b) }

// ParticipantCount returns the number of distinct vehicle ids in the buffer.
func (b FrameBuffer) ParticipantCount() int {
	seen := make(map[int]struct{})
	for _, f := range b {
		for _, v := range f.Vehicles {
			seen[v.ID] = struct{}{}
		}
	}
	return len(seen)
}
