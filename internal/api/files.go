package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/traffic.replay/internal/dataset"
	"github.com/banshee-data/traffic.replay/internal/httputil"
	"github.com/banshee-data/traffic.replay/internal/protocol"
	"github.com/banshee-data/traffic.replay/internal/version"
)

// FilesResponse answers GET /api/data/files.
type FilesResponse struct {
	Success  bool                               `json:"success"`
	Maps     []dataset.MapFile                  `json:"maps"`
	Datasets map[string][]dataset.RecordingFile `json:"datasets"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := protocol.StatusResponse{
		Status:         "ok",
		ActiveSessions: s.opts.Registry.Len(),
		Version:        version.Version,
	}
	if s.opts.Streamer != nil {
		st.ActiveStreams = s.opts.Streamer.Active()
	}
	if s.opts.Hub != nil {
		st.WSConnections = s.opts.Hub.Len()
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) handleWSStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.opts.Hub.Stats())
}

// handleDataFiles lists maps and recordings. Preview images are exposed
// through the preview route rather than as file system paths.
func (s *Server) handleDataFiles(w http.ResponseWriter, r *http.Request) {
	kinds := s.opts.SupportedDatasets
	if k := r.URL.Query().Get("dataset_type"); k != "" {
		kinds = []string{k}
	}

	maps, err := s.opts.Scanner.Maps()
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := FilesResponse{Success: true, Maps: maps, Datasets: make(map[string][]dataset.RecordingFile, len(kinds))}
	for _, kind := range kinds {
		recs, err := s.opts.Scanner.Recordings(kind)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]dataset.RecordingFile, len(recs))
		for i, rec := range recs {
			if rec.PreviewImage != "" {
				rec.PreviewImage = fmt.Sprintf("/api/data/preview/%s/%d", kind, rec.FileID)
			}
			out[i] = rec
		}
		resp.Datasets[kind] = out
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleDataRefresh(w http.ResponseWriter, r *http.Request) {
	s.opts.Scanner.Refresh()
	httputil.WriteJSONOK(w, map[string]any{"success": true})
}

func (s *Server) handleRecordingPreview(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("dataset")
	if !s.supports(kind) {
		httputil.BadRequest(w, fmt.Sprintf("unsupported dataset %q", kind))
		return
	}
	id, err := strconv.Atoi(r.PathValue("file_id"))
	if err != nil || id < 1 {
		httputil.BadRequest(w, "invalid file id")
		return
	}
	path, ok := s.opts.Scanner.PreviewImage(kind, id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no preview image for %s recording %d", kind, id))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}
