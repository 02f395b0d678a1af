// Package api serves the replay REST endpoints and mounts the WebSocket hub,
// metrics and debug routes on one mux.
package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/banshee-data/traffic.replay/internal/dataset"
	"github.com/banshee-data/traffic.replay/internal/db"
	"github.com/banshee-data/traffic.replay/internal/httputil"
	"github.com/banshee-data/traffic.replay/internal/monitoring"
	"github.com/banshee-data/traffic.replay/internal/scene"
	"github.com/banshee-data/traffic.replay/internal/session"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
	"github.com/banshee-data/traffic.replay/internal/transport/ws"
	"github.com/banshee-data/traffic.replay/internal/version"
)

var logf = monitoring.Prefixed("API")

// MapLoader returns the formatted map stored at path.
type MapLoader interface {
	Load(ctx context.Context, path string) (*trajectory.MapData, error)
}

// Options wires the server's collaborators. DB and Origins are optional.
type Options struct {
	DataDir           string
	SupportedDatasets []string
	Dev               bool

	Registry *session.Registry
	Streamer *session.Streamer
	Hub      *ws.Hub
	Scanner  *dataset.Scanner
	Source   dataset.TrajectorySource
	Maps     MapLoader
	DB       *db.DB
	Origins  *scene.OriginTable
}

type Server struct {
	opts     Options
	validate *validator.Validate
}

func NewServer(o Options) *Server {
	if len(o.SupportedDatasets) == 0 {
		o.SupportedDatasets = []string{"highD"}
	}
	return &Server{opts: o, validate: validator.New()}
}

// ServeMux builds the route table.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/data/files", s.handleDataFiles)
	mux.HandleFunc("POST /api/data/refresh", s.handleDataRefresh)
	mux.HandleFunc("GET /api/data/preview/{dataset}/{file_id}", s.handleRecordingPreview)

	mux.HandleFunc("POST /api/simulation/initialize", s.handleInitialize)
	mux.HandleFunc("GET /api/simulation/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/simulation/session/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/simulation/session/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/simulation/session/{id}/chart", s.handleSessionChart)
	mux.HandleFunc("GET /api/simulation/session/{id}/preview.png", s.handleSessionPreview)
	mux.HandleFunc("GET /api/simulation/history", s.handleHistory)

	if s.opts.Hub != nil {
		mux.Handle("GET /ws/simulation", s.opts.Hub)
		mux.HandleFunc("GET /ws/stats", s.handleWSStats)
	}
	mux.Handle("GET /metrics", monitoring.Handler())

	if s.opts.DB != nil {
		if err := s.opts.DB.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// Handler returns the mux wrapped in the logging (and, in dev mode, CORS)
// middleware.
func (s *Server) Handler() (http.Handler, error) {
	mux, err := s.ServeMux()
	if err != nil {
		return nil, err
	}
	var h http.Handler = mux
	if s.opts.Dev {
		h = CORSMiddleware(h)
	}
	return LoggingMiddleware(h), nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{
		"message": "traffic replay API is running",
		"version": version.Version,
	})
}
