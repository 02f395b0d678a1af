package trajectory

import (
	"errors"
	"fmt"
	"math"
)

// DefaultFrameStep samples every native frame.
const DefaultFrameStep = 1

// SessionConfig selects a dataset recording, a map and a time window.
type SessionConfig struct {
	Dataset       string `json:"dataset" validate:"required"`
	FileID        int    `json:"file_id" validate:"gte=1"`
	DatasetPath   string `json:"dataset_path" validate:"required"`
	MapPath       string `json:"map_path" validate:"required"`
	StampStart    *int64 `json:"stamp_start,omitempty" validate:"omitempty,gte=0"`
	StampEnd      *int64 `json:"stamp_end,omitempty" validate:"omitempty,gte=0"`
	FrameStep     int    `json:"frame_step,omitempty" validate:"gte=0"`
	MaxDurationMs *int64 `json:"max_duration_ms,omitempty" validate:"omitempty,gt=0"`
}

// Window is a half-open time range [Start, End) in milliseconds.
type Window struct {
	Start int64
	End   int64
}

// Contains reports whether stamp falls inside the window.
func (w Window) Contains(stamp int64) bool {
	return stamp >= w.Start && stamp < w.End
}

// Normalized returns a copy with defaults applied.
func (c SessionConfig) Normalized() SessionConfig {
	if c.FrameStep <= 0 {
		c.FrameStep = DefaultFrameStep
	}
	return c
}

// Check validates the cross-field constraints that struct tags cannot express.
func (c SessionConfig) Check() error {
	if c.StampStart != nil && c.StampEnd != nil && *c.StampEnd <= *c.StampStart {
		return fmt.Errorf("stamp_end (%d) must be greater than stamp_start (%d)", *c.StampEnd, *c.StampStart)
	}
	if c.FrameStep < 0 {
		return errors.New("frame_step must not be negative")
	}
	return nil
}

// TimeWindow resolves the optional window. When only a duration cap is set
// the window starts at zero; when nothing is set ok is false and the whole
// recording is used.
func (c SessionConfig) TimeWindow() (w Window, ok bool) {
	if c.StampStart == nil && c.StampEnd == nil && c.MaxDurationMs == nil {
		return Window{}, false
	}
	w = Window{Start: 0, End: math.MaxInt64}
	if c.StampStart != nil {
		w.Start = *c.StampStart
	}
	if c.StampEnd != nil {
		w.End = *c.StampEnd
	}
	// A cap that would run past the largest timestamp leaves End alone.
	if c.MaxDurationMs != nil {
		if d := *c.MaxDurationMs; w.Start <= math.MaxInt64-d && w.Start+d < w.End {
			w.End = w.Start + d
		}
	}
	return w, true
}
