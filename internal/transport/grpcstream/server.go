package grpcstream

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"

	"github.com/banshee-data/traffic.replay/internal/session"
)

// DefaultMaxMsgSize bounds a single frame message.
const DefaultMaxMsgSize = 16 * 1024 * 1024

// Config holds configuration for the gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxMsgSize is the largest message in either direction
	MaxMsgSize int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:50061",
		MaxMsgSize: DefaultMaxMsgSize,
	}
}

// Server owns the gRPC listener and the Replay service.
type Server struct {
	config   Config
	streamer *session.Streamer
	server   *grpc.Server
	listener net.Listener

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewServer creates a server that streams sessions from streamer.
func NewServer(config Config, streamer *session.Streamer) *Server {
	if config.MaxMsgSize <= 0 {
		config.MaxMsgSize = DefaultMaxMsgSize
	}
	return &Server{
		config:   config,
		streamer: streamer,
		stopCh:   make(chan struct{}),
	}
}

// Start binds ListenAddr and serves in the background.
func (s *Server) Start() error {
	log.Printf("[gRPC] Attempting to bind to %s...", s.config.ListenAddr)
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Printf("[gRPC] Successfully bound to %s", lis.Addr())
	return s.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("grpc server already running")
	}
	s.listener = lis
	s.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(s.config.MaxMsgSize),
		grpc.MaxSendMsgSize(s.config.MaxMsgSize),
	)
	s.server.RegisterService(&ServiceDesc, NewService(s.streamer, s.stopCh))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("[gRPC] Replay service listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			log.Printf("[gRPC] server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop cancels running streams and stops the server.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)

	if s.server != nil {
		s.server.GracefulStop()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	log.Printf("[gRPC] server stopped")
}
