// Package dataset turns LevelX recordings into frame buffers and lists the
// recordings and maps available under the data directory.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/traffic.replay/internal/monitoring"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

var logf = monitoring.Prefixed("Dataset")

var (
	// ErrUnsupportedDataset is returned for dataset kinds without a parser.
	ErrUnsupportedDataset = errors.New("unsupported dataset")
	// ErrNotFound is returned when a recording's files are missing.
	ErrNotFound = errors.New("dataset files not found")
	// ErrNoTrajectoryData is returned when the window holds no vehicle.
	ErrNoTrajectoryData = errors.New("no trajectory data in the requested window")
)

// DefaultFrameRate applies when recordingMeta is missing.
const DefaultFrameRate = 25.0

// ParseError locates a malformed CSV record.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", filepath.Base(e.File), e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Trajectories is a parsed recording restructured into frames.
type Trajectories struct {
	Frames           trajectory.FrameBuffer
	ParticipantCount int
	FrameRate        float64
	// StampRange is the [first, last] timestamp seen in the window, in ms.
	StampRange [2]int64
}

// TrajectorySource loads the frames a session replays.
type TrajectorySource interface {
	Load(ctx context.Context, cfg trajectory.SessionConfig) (*Trajectories, error)
}

// RecordingMeta holds the fields of NN_recordingMeta.csv the server uses.
type RecordingMeta struct {
	ID         int
	FrameRate  float64
	LocationID int
	Duration   float64 // seconds
}

// TrackMeta holds the static attributes of one track.
type TrackMeta struct {
	ID     int
	Length float64
	Width  float64
	Class  string
}

// LevelX reads highD recordings.
type LevelX struct{}

var _ TrajectorySource = LevelX{}

// Supported reports whether kind has a parser.
func Supported(kind string) bool {
	return strings.EqualFold(kind, "highD")
}

// RecordingPrefix is the file name prefix of a recording, e.g. "01".
func RecordingPrefix(fileID int) string {
	return fmt.Sprintf("%02d", fileID)
}

// Load parses tracks, tracksMeta and recordingMeta for cfg.FileID in
// cfg.DatasetPath. Rows inside the time window are grouped by frame; frames
// are kept in timestamp order, sampled every FrameStep and reindexed from 0.
func (LevelX) Load(ctx context.Context, cfg trajectory.SessionConfig) (*Trajectories, error) {
	if !Supported(cfg.Dataset) {
		return nil, fmt.Errorf("%w: %q (only highD is supported)", ErrUnsupportedDataset, cfg.Dataset)
	}
	cfg = cfg.Normalized()
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if st, err := os.Stat(cfg.DatasetPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	} else if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, cfg.DatasetPath)
	}

	prefix := filepath.Join(cfg.DatasetPath, RecordingPrefix(cfg.FileID))
	rec := RecordingMeta{ID: cfg.FileID, FrameRate: DefaultFrameRate}
	if m, err := ReadRecordingMeta(prefix + "_recordingMeta.csv"); err == nil {
		rec = m
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	metas, err := ReadTracksMeta(prefix + "_tracksMeta.csv")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	window, windowed := cfg.TimeWindow()
	byStamp := make(map[int64][]trajectory.VehicleState)
	participants := make(map[int]struct{})
	err = readTracks(ctx, prefix+"_tracks.csv", rec.FrameRate, func(stamp int64, v trajectory.VehicleState) {
		if windowed && !window.Contains(stamp) {
			return
		}
		if m, ok := metas[v.ID]; ok {
			length, width := m.Length, m.Width
			v.Length, v.Width, v.Type = &length, &width, m.Class
		}
		byStamp[stamp] = append(byStamp[stamp], v)
		participants[v.ID] = struct{}{}
	})
	if err != nil {
		return nil, err
	}
	if len(byStamp) == 0 {
		return nil, ErrNoTrajectoryData
	}

	stamps := make([]int64, 0, len(byStamp))
	for s := range byStamp {
		stamps = append(stamps, s)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	frames := make(trajectory.FrameBuffer, 0, len(stamps)/cfg.FrameStep+1)
	for i := 0; i < len(stamps); i += cfg.FrameStep {
		vs := byStamp[stamps[i]]
		sort.Slice(vs, func(a, b int) bool { return vs[a].ID < vs[b].ID })
		frames = append(frames, trajectory.Frame{Timestamp: stamps[i], Vehicles: vs})
	}

	logf("parsed recording %s: %d participants, %d frames (%d before step %d)",
		RecordingPrefix(cfg.FileID), len(participants), len(frames), len(stamps), cfg.FrameStep)
	return &Trajectories{
		Frames:           frames,
		ParticipantCount: len(participants),
		FrameRate:        rec.FrameRate,
		StampRange:       [2]int64{stamps[0], stamps[len(stamps)-1]},
	}, nil
}

// StampForFrame converts a 1-based highD frame number into milliseconds.
func StampForFrame(frame int, frameRate float64) int64 {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return int64(math.Round(float64(frame) * 1000 / frameRate))
}

// readTracks streams NN_tracks.csv. Positions are box centres; highD gives
// the upper-left corner.
func readTracks(ctx context.Context, path string, frameRate float64, fn func(int64, trajectory.VehicleState)) error {
	return eachRecord(path, []string{"frame", "id", "x", "y", "width", "height", "xVelocity", "yVelocity"}, func(line int, get fieldFunc) error {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		frame, err := get.int("frame")
		if err != nil {
			return err
		}
		id, err := get.int("id")
		if err != nil {
			return err
		}
		var nums [6]float64
		for i, col := range []string{"x", "y", "width", "height", "xVelocity", "yVelocity"} {
			if nums[i], err = get.float(col); err != nil {
				return err
			}
		}
		x, y, w, h, vx, vy := nums[0], nums[1], nums[2], nums[3], nums[4], nums[5]
		fn(StampForFrame(frame, frameRate), trajectory.VehicleState{
			ID:      id,
			X:       x + w/2,
			Y:       y + h/2,
			VX:      vx,
			VY:      vy,
			Heading: math.Atan2(vy, vx),
		})
		return nil
	})
}

// ReadTracksMeta reads NN_tracksMeta.csv keyed by track id. In highD the
// box width runs along the road, so it becomes the vehicle length.
func ReadTracksMeta(path string) (map[int]TrackMeta, error) {
	out := make(map[int]TrackMeta)
	err := eachRecord(path, []string{"id", "width", "height", "class"}, func(_ int, get fieldFunc) error {
		id, err := get.int("id")
		if err != nil {
			return err
		}
		length, err := get.float("width")
		if err != nil {
			return err
		}
		width, err := get.float("height")
		if err != nil {
			return err
		}
		out[id] = TrackMeta{ID: id, Length: length, Width: width, Class: get.str("class")}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRecordingMeta reads the single row of NN_recordingMeta.csv.
func ReadRecordingMeta(path string) (RecordingMeta, error) {
	var meta RecordingMeta
	found := false
	err := eachRecord(path, []string{"id", "frameRate"}, func(_ int, get fieldFunc) error {
		if found {
			return nil
		}
		var err error
		if meta.ID, err = get.int("id"); err != nil {
			return err
		}
		if meta.FrameRate, err = get.float("frameRate"); err != nil {
			return err
		}
		if meta.FrameRate <= 0 {
			return fmt.Errorf("frameRate must be positive, got %v", meta.FrameRate)
		}
		if get.has("locationId") {
			if meta.LocationID, err = get.int("locationId"); err != nil {
				return err
			}
		}
		if get.has("duration") {
			if meta.Duration, err = get.float("duration"); err != nil {
				return err
			}
		}
		found = true
		return nil
	})
	if err != nil {
		return meta, err
	}
	if !found {
		return meta, &ParseError{File: path, Line: 1, Err: errors.New("no recording row")}
	}
	return meta, nil
}

type fieldFunc struct {
	rec []string
	idx map[string]int
}

func (f fieldFunc) has(col string) bool {
	_, ok := f.idx[col]
	return ok
}

func (f fieldFunc) str(col string) string {
	i, ok := f.idx[col]
	if !ok || i >= len(f.rec) {
		return ""
	}
	return strings.TrimSpace(f.rec[i])
}

func (f fieldFunc) int(col string) (int, error) {
	s := f.str(col)
	n, err := strconv.Atoi(s)
	if err != nil {
		// Some exports write integral columns as floats.
		v, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || v != math.Trunc(v) {
			return 0, fmt.Errorf("column %s: %q is not an integer", col, s)
		}
		n = int(v)
	}
	return n, nil
}

func (f fieldFunc) float(col string) (float64, error) {
	s := f.str(col)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %q is not a number", col, s)
	}
	return v, nil
}

// eachRecord opens a CSV file with a header row, checks the required
// columns and calls fn for every data row.
func eachRecord(path string, required []string, fn func(line int, get fieldFunc) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	head, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &ParseError{File: path, Line: 1, Err: errors.New("empty file")}
		}
		return &ParseError{File: path, Line: 1, Err: err}
	}
	idx := make(map[string]int, len(head))
	for i, h := range head {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return &ParseError{File: path, Line: 1, Err: fmt.Errorf("missing column %q", col)}
		}
	}

	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &ParseError{File: path, Line: line, Err: err}
		}
		if err := fn(line, fieldFunc{rec: rec, idx: idx}); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return &ParseError{File: path, Line: line, Err: err}
		}
	}
}
