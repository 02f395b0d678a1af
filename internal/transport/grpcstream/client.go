package grpcstream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/traffic.replay/internal/protocol"
)

// Client calls the Replay service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Stream requests sessionID at fps (0 selects the server default) and calls
// fn for every message in order. It returns nil once the server ends the
// stream normally, or the first error from the call or from fn.
func (c *Client) Stream(ctx context.Context, sessionID string, fps float64, fn func(protocol.Message) error) error {
	req := map[string]any{"session_id": sessionID}
	if fps > 0 {
		req["fps"] = fps
	}
	pb, err := structpb.NewStruct(req)
	if err != nil {
		return err
	}

	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], StreamSessionMethod)
	if err != nil {
		return err
	}
	if err := cs.SendMsg(pb); err != nil {
		return err
	}
	if err := cs.CloseSend(); err != nil {
		return err
	}

	for {
		out := new(structpb.Struct)
		if err := cs.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		msg, err := protocol.FromMap(out.AsMap())
		if err != nil {
			return fmt.Errorf("decode stream message: %w", err)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
