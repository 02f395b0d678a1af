// Package grpcstream serves the replay protocol as a server-streaming gRPC
// method. Requests and responses are google.protobuf.Struct values carrying
// the same JSON objects the WebSocket transport sends.
package grpcstream

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/traffic.replay/internal/monitoring"
	"github.com/banshee-data/traffic.replay/internal/protocol"
	"github.com/banshee-data/traffic.replay/internal/session"
)

var logf = monitoring.Prefixed("gRPC")

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "trafficreplay.v1.Replay"
	// StreamSessionMethod is the full method path of the streaming RPC.
	StreamSessionMethod = "/" + ServiceName + "/StreamSession"
	// Transport is the label used in metrics and stream history.
	Transport = "grpc"
)

// ReplayServer is the service implementation contract.
type ReplayServer interface {
	StreamSession(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc describes the Replay service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReplayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSession",
			Handler:       streamSessionHandler,
			ServerStreams: true,
		},
	},
	Metadata: "trafficreplay/v1/replay.proto",
}

func streamSessionHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(ReplayServer).StreamSession(req, stream)
}

// Service streams sessions through a Streamer. Every call is its own client.
type Service struct {
	streamer *session.Streamer
	stopCh   <-chan struct{}
}

var _ ReplayServer = (*Service)(nil)

// NewService creates a service. Closing stopCh cancels every running call;
// it may be nil.
func NewService(streamer *session.Streamer, stopCh <-chan struct{}) *Service {
	return &Service{streamer: streamer, stopCh: stopCh}
}

// StreamSession delivers one session to the caller. The request is
// {"session_id": string, "fps": number?}.
func (s *Service) StreamSession(req *structpb.Struct, stream grpc.ServerStream) error {
	fields := req.GetFields()
	sessionID := fields["session_id"].GetStringValue()
	if sessionID == "" {
		return status.Error(codes.InvalidArgument, "session_id is required")
	}
	fps := fields["fps"].GetNumberValue()
	clientID := "grpc-" + uuid.NewString()
	logf("StreamSession: session=%s client=%s fps=%.1f", sessionID, clientID, fps)

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	if s.stopCh != nil {
		go func() {
			select {
			case <-s.stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	res, err := s.streamer.Run(ctx, session.Request{
		SessionID: sessionID,
		ClientID:  clientID,
		Transport: Transport,
		FPS:       fps,
	}, &streamSink{stream: stream})
	if err != nil {
		return toStatus(err)
	}
	if res.Outcome == monitoring.OutcomeCancelled {
		if cerr := stream.Context().Err(); cerr != nil {
			return status.FromContextError(cerr).Err()
		}
		return status.Error(codes.Canceled, "stream stopped by server")
	}
	return nil
}

// toStatus maps streamer errors to gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, session.ErrEmptyFrameBuffer):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, session.ErrStreamActive):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, session.ErrSendFailed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// streamSink adapts a server stream to session.Sink.
type streamSink struct {
	stream grpc.ServerStream
}

func (s *streamSink) Send(_ context.Context, msg protocol.Message) error {
	obj, err := protocol.ToMap(msg)
	if err != nil {
		return err
	}
	pb, err := structpb.NewStruct(obj)
	if err != nil {
		return err
	}
	return s.stream.SendMsg(pb)
}
