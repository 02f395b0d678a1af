// Package session holds replay sessions and streams their frames to clients.
package session

import (
	"sync"
	"time"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
)

// Session binds one dataset/map selection to its buffered frames.
// Config, Map, Frames and the counts are set at creation and never change;
// only the lifecycle fields below mu are mutated afterwards.
type Session struct {
	ID               string
	Config           trajectory.SessionConfig
	Map              *trajectory.MapData
	Frames           trajectory.FrameBuffer
	ParticipantCount int
	Speed            trajectory.SpeedSummary
	CreatedAt        time.Time

	mu            sync.Mutex
	status        Status
	streams       int
	completedOnce bool
	lastAccess    time.Time
}

// TotalFrames returns the number of buffered frames.
func (s *Session) TotalFrames() int { return len(s.Frames) }

// Status returns the lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ActiveStreams returns the number of streams currently delivering this session.
func (s *Session) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams
}

// LastAccess returns the time of the last lookup or stream activity.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) beginStream(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams++
	s.status = StatusStreaming
	s.lastAccess = now
}

// endStream records the end of one stream. Once no stream is running the
// session is completed if any stream ever delivered every frame, and
// created otherwise.
func (s *Session) endStream(now time.Time, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams--
	s.lastAccess = now
	if completed {
		s.completedOnce = true
	}
	if s.streams > 0 {
		return
	}
	if s.completedOnce {
		s.status = StatusCompleted
	} else {
		s.status = StatusCreated
	}
}

// Info is a read-only snapshot of a session for introspection and history.
type Info struct {
	ID               string                  `json:"session_id"`
	Dataset          string                  `json:"dataset"`
	FileID           int                     `json:"file_id"`
	TotalFrames      int                     `json:"total_frames"`
	FrameStep        int                     `json:"frame_step"`
	ParticipantCount int                     `json:"participant_count"`
	Status           Status                  `json:"status"`
	ActiveStreams    int                     `json:"active_streams"`
	CreatedAt        time.Time               `json:"created_at"`
	LastAccess       time.Time               `json:"last_access"`
	Speed            trajectory.SpeedSummary `json:"speed_summary"`
}

// Info snapshots the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:               s.ID,
		Dataset:          s.Config.Dataset,
		FileID:           s.Config.FileID,
		TotalFrames:      len(s.Frames),
		FrameStep:        s.Config.FrameStep,
		ParticipantCount: s.ParticipantCount,
		Status:           s.status,
		ActiveStreams:    s.streams,
		CreatedAt:        s.CreatedAt,
		LastAccess:       s.lastAccess,
		Speed:            s.Speed,
	}
}
