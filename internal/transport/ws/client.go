package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/banshee-data/traffic.replay/internal/monitoring"
	"github.com/banshee-data/traffic.replay/internal/protocol"
	"github.com/banshee-data/traffic.replay/internal/session"
)

// Transport is the label used in metrics and stream history.
const Transport = "ws"

var (
	// ErrClientClosed is returned by Send after the connection closed.
	ErrClientClosed = errors.New("client connection closed")
	// ErrSendQueueFull is returned when the client stopped draining its
	// queue for longer than the write wait.
	ErrSendQueueFull = fmt.Errorf("client send queue full: %w", session.ErrSinkStalled)
)

// Client is one WebSocket connection. It implements session.Sink.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter

	closeOnce sync.Once
}

// ID returns the server-assigned client id.
func (c *Client) ID() string { return c.id }

// Send queues a message for the writer. A queue that stays full for the
// write wait marks the client as stalled: the send fails and the
// connection is closed, which stops only this client's streams.
func (c *Client) Send(ctx context.Context, msg protocol.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	select {
	case <-c.done:
		monitoring.RecordWSDropped()
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- b:
		return nil
	default:
	}

	timer := time.NewTimer(c.hub.cfg.WriteWait)
	defer timer.Stop()
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		monitoring.RecordWSDropped()
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		monitoring.RecordWSDropped()
		logf("client %s stalled, closing", c.id)
		c.close()
		return ErrSendQueueFull
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// readPump reads control messages until the connection fails.
func (c *Client) readPump() {
	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	pongWait := cfg.PingInterval * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logf("client %s read error: %v", c.id, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.limiter.Allow() {
			c.reply(protocol.Error("", "Rate limit exceeded"))
			continue
		}
		var in protocol.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.reply(protocol.Error("", "Invalid JSON message"))
			continue
		}
		c.dispatch(in)
	}
}

func (c *Client) dispatch(in protocol.Inbound) {
	streamer := c.hub.streamer
	switch in.Type {
	case protocol.TypeStartStream:
		if in.SessionID == "" {
			c.reply(protocol.Error("", "session_id is required"))
			return
		}
		var fps float64
		if in.FPS != nil {
			fps = *in.FPS
		}
		req := session.Request{SessionID: in.SessionID, ClientID: c.id, Transport: Transport, FPS: fps}
		// Rejections are reported to the client by the streamer.
		_ = streamer.StartStream(c.ctx, req, c)

	case protocol.TypeStopStream:
		if in.SessionID == "" {
			c.reply(protocol.Error("", "session_id is required"))
			return
		}
		if !streamer.StopStream(in.SessionID, c.id) {
			c.reply(protocol.Error(in.SessionID, fmt.Sprintf("No active stream for session '%s'.", in.SessionID)))
		}

	case protocol.TypePing:
		c.reply(protocol.Pong())

	default:
		c.reply(protocol.Error("", fmt.Sprintf("Unknown message type: %s", in.Type)))
	}
}

func (c *Client) reply(msg protocol.Message) {
	if err := c.Send(c.ctx, msg); err != nil {
		logf("failed to reply %s to client %s: %v", msg.Type, c.id, err)
	}
}

// writePump owns every write and the final close of the connection. Once
// the client is closed it sends a normal-closure frame and drops the socket,
// which also unblocks readPump.
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				logf("write to client %s failed: %v", c.id, err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
