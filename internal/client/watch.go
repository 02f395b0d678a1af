package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/traffic.replay/internal/protocol"
	"github.com/banshee-data/traffic.replay/internal/scene"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// FPS requests a playback rate; zero selects the server default.
	FPS float64
	// Scene receives the map and every frame. A nil Scene is created with
	// scene.DefaultOptions.
	Scene *scene.Scene
	// OnFrame is called after each frame has been applied.
	OnFrame func(frameNumber int, sc *scene.Scene)
}

// Summary describes a finished watch.
type Summary struct {
	SessionID      string        `json:"session_id"`
	ClientID       string        `json:"client_id"`
	TotalFrames    int           `json:"total_frames"`
	FramesReceived int           `json:"frames_received"`
	FPS            float64       `json:"fps"`
	Outcome        protocol.Type `json:"outcome"`
	Duration       time.Duration `json:"duration"`
	State          scene.State   `json:"state"`
}

// Watch loads the session map into a scene, streams the session over the
// WebSocket endpoint and applies every frame. It returns once the server
// reports the stream completed or stopped. Cancelling ctx asks the server
// to stop the stream and closes the connection.
func (c *Client) Watch(ctx context.Context, sessionID string, opts WatchOptions) (*Summary, error) {
	info, err := c.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sc := opts.Scene
	if sc == nil {
		sc = scene.New(scene.DefaultOptions())
	}
	sc.LoadMap(info.MapData)
	sc.MountControls()

	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.wsURL(), err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	var writeMu sync.Mutex
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			writeMu.Lock()
			_ = conn.WriteJSON(protocol.Inbound{Type: protocol.TypeStopStream, SessionID: sessionID})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			writeMu.Unlock()
			conn.Close()
		case <-stopped:
		}
	}()

	sum := &Summary{SessionID: sessionID}
	started := time.Now()
	read := func() (protocol.Message, error) {
		var m protocol.Message
		if c.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		}
		if err := conn.ReadJSON(&m); err != nil {
			if ctx.Err() != nil {
				return m, ctx.Err()
			}
			return m, fmt.Errorf("read: %w", err)
		}
		return m, nil
	}

	hello, err := read()
	if err != nil {
		return nil, err
	}
	if hello.Type != protocol.TypeConnected {
		return nil, fmt.Errorf("expected %q, got %q", protocol.TypeConnected, hello.Type)
	}
	sum.ClientID = hello.ClientID

	start := protocol.Inbound{Type: protocol.TypeStartStream, SessionID: sessionID}
	if opts.FPS > 0 {
		fps := opts.FPS
		start.FPS = &fps
	}
	writeMu.Lock()
	err = conn.WriteJSON(start)
	writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send start: %w", err)
	}

	for {
		m, err := read()
		if err != nil {
			return nil, err
		}
		switch m.Type {
		case protocol.TypeStreamStarted:
			sc.BeginStream()
			if m.TotalFrames != nil {
				sum.TotalFrames = *m.TotalFrames
			}
			sum.FPS = m.FPS
			logf("streaming %s: %d frames at %.1f fps", sessionID, sum.TotalFrames, sum.FPS)
		case protocol.TypeFrame:
			if m.FrameNumber == nil || m.Data == nil {
				return nil, errors.New("frame message without frame_number or data")
			}
			if err := sc.ApplyFrame(*m.FrameNumber, *m.Data); err != nil {
				return nil, err
			}
			sum.FramesReceived++
			if opts.OnFrame != nil {
				opts.OnFrame(*m.FrameNumber, sc)
			}
		case protocol.TypeStreamCompleted, protocol.TypeStreamStopped:
			sum.Outcome = m.Type
			sum.Duration = time.Since(started)
			sum.State = sc.State()
			return sum, nil
		case protocol.TypeError:
			return nil, fmt.Errorf("%w: %s", ErrStreamError, m.Message)
		}
	}
}
