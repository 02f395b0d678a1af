// Package protocol defines the replay message envelope shared by every
// transport. Messages are JSON objects with a "type" discriminator; the
// frame number always sits at the top level, never inside "data".
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// Type discriminates messages.
type Type string

// Outbound (server to client) message types.
const (
	TypeConnected       Type = "connected"
	TypeStreamStarted   Type = "session_stream_started"
	TypeFrame           Type = "simulation_frame"
	TypeStreamCompleted Type = "session_stream_completed"
	TypeStreamStopped   Type = "session_stream_stopped"
	TypeError           Type = "error"
	TypePong            Type = "pong"
)

// Inbound (client to server) message types.
const (
	TypeStartStream Type = "start_session_stream"
	TypeStopStream  Type = "stop_session_stream"
	TypePing        Type = "ping"
)

// Message is the outbound envelope. Optional fields are omitted when unset.
type Message struct {
	Type        Type              `json:"type"`
	ClientID    string            `json:"client_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	FrameNumber *int              `json:"frame_number,omitempty"`
	TotalFrames *int              `json:"total_frames,omitempty"`
	FPS         float64           `json:"fps,omitempty"`
	Data        *trajectory.Frame `json:"data,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// Inbound is a control message from the client.
type Inbound struct {
	Type      Type     `json:"type"`
	SessionID string   `json:"session_id,omitempty"`
	FPS       *float64 `json:"fps,omitempty"`
}

// Connected announces the server-assigned client id.
func Connected(clientID string) Message {
	return Message{Type: TypeConnected, ClientID: clientID, Message: "Connected to traffic replay server"}
}

// StreamStarted announces a stream about to deliver totalFrames frames.
func StreamStarted(sessionID string, totalFrames int, fps float64) Message {
	return Message{Type: TypeStreamStarted, SessionID: sessionID, TotalFrames: &totalFrames, FPS: fps}
}

// Frame wraps one frame snapshot.
func Frame(sessionID string, frameNumber int, f *trajectory.Frame) Message {
	return Message{Type: TypeFrame, SessionID: sessionID, FrameNumber: &frameNumber, Data: f}
}

// StreamCompleted follows the last frame of a stream.
func StreamCompleted(sessionID string) Message {
	return Message{Type: TypeStreamCompleted, SessionID: sessionID, Message: "Stream completed."}
}

// StreamStopped reports a stream cancelled before its last frame.
func StreamStopped(sessionID string, framesSent int) Message {
	return Message{Type: TypeStreamStopped, SessionID: sessionID, Message: fmt.Sprintf("Stream stopped after %d frames.", framesSent)}
}

// Error reports a failure; sessionID may be empty.
func Error(sessionID, msg string) Message {
	return Message{Type: TypeError, SessionID: sessionID, Message: msg}
}

// Pong answers a ping.
func Pong() Message { return Message{Type: TypePong} }

// ToMap converts a message into a generic JSON object, the form used by
// transports without a JSON text payload.
func ToMap(m Message) (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromMap is the inverse of ToMap.
func FromMap(obj map[string]any) (Message, error) {
	var m Message
	b, err := json.Marshal(obj)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
