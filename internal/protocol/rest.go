package protocol

import (
	"time"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// InitResponse answers POST /api/simulation/initialize.
type InitResponse struct {
	Success   bool                     `json:"success"`
	Message   string                   `json:"message"`
	SessionID string                   `json:"session_id"`
	MapData   *trajectory.MapData      `json:"map_data"`
	Config    trajectory.SessionConfig `json:"config"`
}

// TrajectoryMetadata describes a session's buffered frames.
type TrajectoryMetadata struct {
	TotalFrames      int                     `json:"total_frames"`
	FrameStep        int                     `json:"frame_step"`
	ParticipantCount int                     `json:"participant_count"`
	CreatedAt        time.Time               `json:"created_at"`
	Status           string                  `json:"status"`
	ActiveStreams    int                     `json:"active_streams"`
	SpeedSummary     trajectory.SpeedSummary `json:"speed_summary"`
}

// SessionResponse answers GET /api/simulation/session/{id}.
type SessionResponse struct {
	Success            bool                     `json:"success"`
	SessionID          string                   `json:"session_id"`
	MapData            *trajectory.MapData      `json:"map_data"`
	TrajectoryMetadata TrajectoryMetadata       `json:"trajectory_metadata"`
	Config             trajectory.SessionConfig `json:"config"`
	Message            string                   `json:"message,omitempty"`
}

// StatusResponse answers GET /api/status.
type StatusResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	ActiveStreams  int    `json:"active_streams"`
	WSConnections  int    `json:"ws_connections"`
	Version        string `json:"version"`
}
