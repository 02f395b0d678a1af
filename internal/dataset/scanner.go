package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// MapFile is one road network under <data>/highD_map.
type MapFile struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Name string `json:"name"`
}

// RecordingFile is one recording under <data>/LevelX/<kind>/data.
type RecordingFile struct {
	FileID       int     `json:"file_id"`
	DatasetPath  string  `json:"dataset_path"`
	PreviewImage string  `json:"preview_image,omitempty"`
	HasTracks    bool    `json:"has_tracks"`
	HasMeta      bool    `json:"has_meta"`
	FrameRate    float64 `json:"frame_rate,omitempty"`
	DurationSec  float64 `json:"duration_s,omitempty"`
	LocationID   int     `json:"location_id,omitempty"`
}

// Scanner lists maps and recordings below a data directory. Results are
// cached until Refresh.
type Scanner struct {
	dataDir string

	mu         sync.Mutex
	maps       []MapFile
	mapsOK     bool
	recordings map[string][]RecordingFile
}

// NewScanner creates a scanner rooted at dataDir.
func NewScanner(dataDir string) *Scanner {
	return &Scanner{dataDir: dataDir, recordings: make(map[string][]RecordingFile)}
}

// DataDir returns the scanned root.
func (s *Scanner) DataDir() string { return s.dataDir }

// MapDir is where road networks live.
func (s *Scanner) MapDir() string { return filepath.Join(s.dataDir, "highD_map") }

// RecordingDir is where recordings of kind live.
func (s *Scanner) RecordingDir(kind string) string {
	if strings.EqualFold(kind, "highD") {
		kind = "highD"
	} else {
		kind = strings.ToLower(kind)
	}
	return filepath.Join(s.dataDir, "LevelX", kind, "data")
}

// Maps lists *.osm files sorted by id.
func (s *Scanner) Maps() ([]MapFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapsOK {
		return s.maps, nil
	}

	paths, err := filepath.Glob(filepath.Join(s.MapDir(), "*.osm"))
	if err != nil {
		return nil, err
	}
	out := make([]MapFile, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		out = append(out, MapFile{ID: id, Path: abs, Name: displayName(id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) == 0 {
		logf("no maps found in %s", s.MapDir())
	}
	s.maps, s.mapsOK = out, true
	return out, nil
}

// Recordings lists recordings of kind sorted by file id. A missing
// directory yields an empty list.
func (s *Scanner) Recordings(kind string) ([]RecordingFile, error) {
	key := strings.ToLower(kind)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.recordings[key]; ok {
		return cached, nil
	}

	dir := s.RecordingDir(kind)
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*_tracks.csv"))
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	out := make([]RecordingFile, 0, len(paths))
	for _, p := range paths {
		prefix, _, _ := strings.Cut(filepath.Base(p), "_")
		id, err := strconv.Atoi(prefix)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true

		rf := RecordingFile{FileID: id, DatasetPath: absDir, HasTracks: true}
		base := filepath.Join(dir, prefix)
		rf.HasMeta = exists(base+"_tracksMeta.csv") && exists(base+"_recordingMeta.csv")
		if preview := base + "_highway.png"; exists(preview) {
			rf.PreviewImage, _ = filepath.Abs(preview)
		}
		if rf.HasMeta {
			if meta, err := ReadRecordingMeta(base + "_recordingMeta.csv"); err == nil {
				rf.FrameRate, rf.DurationSec, rf.LocationID = meta.FrameRate, meta.Duration, meta.LocationID
			} else {
				logf("skipping metadata of %s: %v", p, err)
			}
		}
		out = append(out, rf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	s.recordings[key] = out
	return out, nil
}

// PreviewImage returns the preview path of a recording if one exists.
func (s *Scanner) PreviewImage(kind string, fileID int) (string, bool) {
	p := filepath.Join(s.RecordingDir(kind), RecordingPrefix(fileID)+"_highway.png")
	if !exists(p) {
		return "", false
	}
	return p, true
}

// Refresh drops cached results.
func (s *Scanner) Refresh() {
	s.mu.Lock()
	s.maps, s.mapsOK = nil, false
	s.recordings = make(map[string][]RecordingFile)
	s.mu.Unlock()
	logf("scan cache cleared")
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// displayName turns "highD_1" into "Highd 1".
func displayName(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
