package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/traffic.replay/internal/protocol"
	"github.com/banshee-data/traffic.replay/internal/timeutil"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// recordingSink captures messages with the clock time they were sent.
type recordingSink struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	msgs      []protocol.Message
	times     []time.Time
	failAfter int // fail every send after this many successes; 0 = never
}

var errSinkClosed = errors.New("sink closed")

func (s *recordingSink) Send(_ context.Context, msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.msgs) >= s.failAfter {
		return errSinkClosed
	}
	s.msgs = append(s.msgs, msg)
	if s.clock != nil {
		s.times = append(s.times, s.clock.Now())
	}
	return nil
}

func (s *recordingSink) messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.msgs...)
}

func (s *recordingSink) frameTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for i, m := range s.msgs {
		if m.Type == protocol.TypeFrame {
			out = append(out, s.times[i])
		}
	}
	return out
}

func (s *recordingSink) count(t protocol.Type) int {
	n := 0
	for _, m := range s.messages() {
		if m.Type == t {
			n++
		}
	}
	return n
}

// makeFrames builds n frames 40 ms apart with two vehicles each.
func makeFrames(n int) trajectory.FrameBuffer {
	length, width := 4.8, 1.9
	buf := make(trajectory.FrameBuffer, n)
	for i := range buf {
		buf[i] = trajectory.Frame{
			Timestamp: int64(i * 40),
			Vehicles: []trajectory.VehicleState{
				{ID: 1, X: float64(i), Y: 10, VX: 25, Length: &length, Width: &width, Type: "Car"},
				{ID: 2, X: float64(i) + 30, Y: 14, VX: 22},
			},
		}
	}
	return buf
}

func testConfig() trajectory.SessionConfig {
	return trajectory.SessionConfig{Dataset: "highD", FileID: 1, DatasetPath: "/data", MapPath: "/data/map.osm"}
}

func testMap() *trajectory.MapData {
	return &trajectory.MapData{Roads: []trajectory.MapElement{{
		Type:        "LineString",
		Properties:  trajectory.ElementProperties{ID: "road_1", Width: 8, Color: "#666666"},
		Coordinates: trajectory.Polyline{{0, 0, 0}, {100, 0, 0}},
	}}}
}

type fakeHistory struct {
	mu       sync.Mutex
	sessions []Info
	runs     []StreamRun
}

func (h *fakeHistory) RecordSession(_ context.Context, info Info) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = append(h.sessions, info)
	return nil
}

func (h *fakeHistory) RecordStreamRun(_ context.Context, run StreamRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	return nil
}

func (h *fakeHistory) streamRuns() []StreamRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]StreamRun(nil), h.runs...)
}
