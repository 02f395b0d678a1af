package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/traffic.replay/internal/dataset"
	"github.com/banshee-data/traffic.replay/internal/httputil"
	"github.com/banshee-data/traffic.replay/internal/protocol"
	"github.com/banshee-data/traffic.replay/internal/render"
	"github.com/banshee-data/traffic.replay/internal/roadmap"
	"github.com/banshee-data/traffic.replay/internal/scene"
	"github.com/banshee-data/traffic.replay/internal/security"
	"github.com/banshee-data/traffic.replay/internal/session"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

func (s *Server) supports(kind string) bool {
	for _, d := range s.opts.SupportedDatasets {
		if strings.EqualFold(d, kind) {
			return true
		}
	}
	return false
}

// resolveInputs confines the request paths to the data directory and
// checks they exist.
func (s *Server) resolveInputs(cfg *trajectory.SessionConfig) error {
	mapPath, err := security.ResolveWithin(s.opts.DataDir, cfg.MapPath)
	if err != nil {
		return fmt.Errorf("map_path: %w", err)
	}
	if _, err := os.Stat(mapPath); err != nil {
		return fmt.Errorf("%w: Map file not found: %s", roadmap.ErrNotFound, cfg.MapPath)
	}
	dataPath, err := security.ResolveWithin(s.opts.DataDir, cfg.DatasetPath)
	if err != nil {
		return fmt.Errorf("dataset_path: %w", err)
	}
	if _, err := os.Stat(dataPath); err != nil {
		return fmt.Errorf("%w: Dataset path not found: %s", dataset.ErrNotFound, cfg.DatasetPath)
	}
	cfg.MapPath, cfg.DatasetPath = mapPath, dataPath
	return nil
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var cfg trajectory.SessionConfig
	if err := httputil.DecodeJSON(r, &cfg); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.validate.Struct(cfg); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := cfg.Check(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if !s.supports(cfg.Dataset) {
		httputil.BadRequest(w, fmt.Sprintf("unsupported dataset %q", cfg.Dataset))
		return
	}
	if err := s.resolveInputs(&cfg); err != nil {
		writeError(w, r, err)
		return
	}
	cfg = cfg.Normalized()

	var (
		mapData *trajectory.MapData
		traj    *dataset.Trajectories
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		m, err := s.opts.Maps.Load(ctx, cfg.MapPath)
		if err != nil {
			return fmt.Errorf("failed to parse map file: %w", err)
		}
		mapData = m
		return nil
	})
	g.Go(func() error {
		t, err := s.opts.Source.Load(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to parse dataset: %w", err)
		}
		traj = t
		return nil
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.opts.Registry.Create(cfg, mapData, traj.Frames, traj.ParticipantCount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logf("session %s ready: %s file %d, %d frames", id, cfg.Dataset, cfg.FileID, len(traj.Frames))
	httputil.WriteJSONOK(w, protocol.InitResponse{
		Success:   true,
		Message:   "Simulation session initialized successfully.",
		SessionID: id,
		MapData:   mapData,
		Config:    cfg,
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("id")
	sess, err := s.opts.Registry.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			httputil.NotFound(w, fmt.Sprintf("Session '%s' not found", id))
			return nil, false
		}
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	info := sess.Info()
	httputil.WriteJSONOK(w, protocol.SessionResponse{
		Success:   true,
		SessionID: info.ID,
		MapData:   sess.Map,
		TrajectoryMetadata: protocol.TrajectoryMetadata{
			TotalFrames:      info.TotalFrames,
			FrameStep:        info.FrameStep,
			ParticipantCount: info.ParticipantCount,
			CreatedAt:        info.CreatedAt,
			Status:           string(info.Status),
			ActiveStreams:    info.ActiveStreams,
			SpeedSummary:     info.Speed,
		},
		Config:  sess.Config,
		Message: "Session info retrieved successfully",
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.opts.Registry.Evict(id) {
		httputil.NotFound(w, fmt.Sprintf("Session '%s' not found", id))
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"success": true, "session_id": id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{"success": true, "sessions": s.opts.Registry.List()})
}

func (s *Server) handleSessionChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.VehicleChart(&buf, sess.ID, sess.Frames); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSessionPreview renders the map with one frame's vehicles, aligned
// the same way the client scene aligns them. ?frame=N picks the frame.
func (s *Server) handleSessionPreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	frame := 0
	if v := r.URL.Query().Get("frame"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || (n >= len(sess.Frames) && len(sess.Frames) > 0) {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'frame' parameter: %q", v))
			return
		}
		frame = n
	}

	opts := scene.DefaultOptions()
	opts.Strategy = s.opts.Origins.Strategy(sess.Config.Dataset, sess.Config.FileID)
	sc := scene.New(opts)
	sc.LoadMap(sess.Map)
	sc.MountControls()
	if frame < len(sess.Frames) {
		if err := sc.ApplyFrame(frame, sess.Frames[frame]); err != nil {
			writeError(w, r, err)
			return
		}
	}

	var buf bytes.Buffer
	title := fmt.Sprintf("%s frame %d", sess.ID, frame)
	if err := render.Snapshot(&buf, sess.Map, sc.Vehicles(), render.SnapshotOptions{Title: title}); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.png", security.SanitizeFilename(sess.ID)))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "stream history is disabled")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	runs, err := s.opts.DB.RecentStreamRuns(r.Context(), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	counts, err := s.opts.DB.OutcomeCounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []session.StreamRun{}
	}
	httputil.WriteJSONOK(w, map[string]any{"success": true, "runs": runs, "outcomes": counts})
}
