// Package testutil provides shared test fixtures: a small highD data
// directory and synthetic frame buffers.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// LaneletOSM is a two-line lanelet map, 100 m long and 4 m wide.
const LaneletOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <node id="1"><tag k="local_x" v="0"/><tag k="local_y" v="0"/></node>
  <node id="2"><tag k="local_x" v="100"/><tag k="local_y" v="0"/></node>
  <node id="3"><tag k="local_x" v="0"/><tag k="local_y" v="4"/></node>
  <node id="4"><tag k="local_x" v="100"/><tag k="local_y" v="4"/></node>
  <way id="10"><nd ref="1"/><nd ref="2"/><tag k="type" v="line_thin"/><tag k="subtype" v="solid"/></way>
  <way id="11"><nd ref="3"/><nd ref="4"/><tag k="type" v="line_thin"/><tag k="subtype" v="dashed"/></way>
  <relation id="20">
    <member type="way" ref="11" role="left"/>
    <member type="way" ref="10" role="right"/>
    <tag k="type" v="lanelet"/>
  </relation>
</osm>`

// Recording 01 at 25 fps: four frames (stamps 40, 80, 120, 200 ms) and two
// participants.
const (
	TracksCSV = `frame,id,x,y,width,height,xVelocity,yVelocity,xAcceleration
1,2,50,24,5,2,-25,0,0
1,1,10,20,4,2,30,0,0
2,1,11.2,20,4,2,30,0.5,0
3,2,49,24,5,2,-25,0,0
5,1,14,20,4,2,30,0,0
`
	RecordingMetaCSV = "id,frameRate,locationId,speedLimit,duration\n1,25,2,-1,0.2\n"
	TracksMetaCSV    = "id,width,height,initialFrame,finalFrame,numFrames,class\n1,4.0,2.0,1,5,3,Car\n2,5.0,2.0,1,3,2,Truck\n"
)

// DataDir is a data directory laid out like a real one.
type DataDir struct {
	Root         string
	MapPath      string
	RecordingDir string
}

// Config returns a session config for recording 01 on the fixture map.
func (d DataDir) Config() trajectory.SessionConfig {
	return trajectory.SessionConfig{Dataset: "highD", FileID: 1, DatasetPath: d.RecordingDir, MapPath: d.MapPath}
}

// WriteFile writes body to path, creating parent directories.
func WriteFile(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// NewDataDir writes highD_map/highD_1.osm and recording 01 with its
// metadata and preview image under a temporary directory.
func NewDataDir(t testing.TB) DataDir {
	t.Helper()
	root := t.TempDir()
	d := DataDir{
		Root:         root,
		MapPath:      filepath.Join(root, "highD_map", "highD_1.osm"),
		RecordingDir: filepath.Join(root, "LevelX", "highD", "data"),
	}
	WriteFile(t, d.MapPath, LaneletOSM)
	WriteFile(t, filepath.Join(d.RecordingDir, "01_tracks.csv"), TracksCSV)
	WriteFile(t, filepath.Join(d.RecordingDir, "01_recordingMeta.csv"), RecordingMetaCSV)
	WriteFile(t, filepath.Join(d.RecordingDir, "01_tracksMeta.csv"), TracksMetaCSV)
	WriteFile(t, filepath.Join(d.RecordingDir, "01_highway.png"), "\x89PNG\r\n\x1a\nfake")
	return d
}

// Frames builds n frames 40 ms apart with two vehicles driving in opposite
// directions.
func Frames(n int) trajectory.FrameBuffer {
	buf := make(trajectory.FrameBuffer, n)
	for i := range buf {
		buf[i] = trajectory.Frame{
			Timestamp: int64(i * 40),
			Vehicles: []trajectory.VehicleState{
				{ID: 1, X: 10 + float64(i), Y: 20, VX: 30},
				{ID: 2, X: 50 - float64(i), Y: 24, VX: -25},
			},
		}
	}
	return buf
}

// RoadMap is a single straight 100 m road.
func RoadMap() *trajectory.MapData {
	return &trajectory.MapData{
		Roads: []trajectory.MapElement{{
			Type:        "LineString",
			Properties:  trajectory.ElementProperties{ID: "road_1", Width: 3.5},
			Coordinates: trajectory.Polyline{{0, 0, 0}, {100, 0, 0}},
		}},
	}
}
