package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner_Maps(t *testing.T) {
	root := t.TempDir()
	mapDir := filepath.Join(root, "highD_map")
	require.NoError(t, os.MkdirAll(mapDir, 0o755))
	for _, name := range []string{"highD_2.osm", "highD_1.osm", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(mapDir, name), []byte("<osm/>"), 0o644))
	}

	s := NewScanner(root)
	maps, err := s.Maps()
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, "highD_1", maps[0].ID)
	assert.Equal(t, "Highd 1", maps[0].Name)
	assert.True(t, filepath.IsAbs(maps[0].Path))

	// Cached until refreshed.
	require.NoError(t, os.WriteFile(filepath.Join(mapDir, "highD_3.osm"), []byte("<osm/>"), 0o644))
	maps, _ = s.Maps()
	assert.Len(t, maps, 2)
	s.Refresh()
	maps, _ = s.Maps()
	assert.Len(t, maps, 3)
}

func TestScanner_Recordings(t *testing.T) {
	root := t.TempDir()
	s := NewScanner(root)
	dir := s.RecordingDir("highD")
	assert.Equal(t, filepath.Join(root, "LevelX", "highD", "data"), dir)

	writeRecording(t, dir, 2, map[string]string{"tracks.csv": tracksCSV})
	writeRecording(t, dir, 1, map[string]string{
		"tracks.csv":        tracksCSV,
		"recordingMeta.csv": recordingMetaCSV,
		"tracksMeta.csv":    tracksMetaCSV,
		"highway.png":       "png",
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "xx_tracks.csv"), nil, 0o644))

	recs, err := s.Recordings("HIGHD")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, 1, recs[0].FileID)
	assert.True(t, recs[0].HasMeta)
	assert.NotEmpty(t, recs[0].PreviewImage)
	assert.Equal(t, 25.0, recs[0].FrameRate)
	assert.Equal(t, 0.2, recs[0].DurationSec)
	assert.Equal(t, 2, recs[0].LocationID)

	assert.Equal(t, 2, recs[1].FileID)
	assert.False(t, recs[1].HasMeta)
	assert.Empty(t, recs[1].PreviewImage)

	p, ok := s.PreviewImage("highD", 1)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "01_highway.png"), p)
	_, ok = s.PreviewImage("highD", 2)
	assert.False(t, ok)
}

func TestScanner_MissingDirectories(t *testing.T) {
	s := NewScanner(filepath.Join(t.TempDir(), "absent"))
	maps, err := s.Maps()
	require.NoError(t, err)
	assert.Empty(t, maps)
	recs, err := s.Recordings("rounD")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Highd 1", displayName("highD_1"))
	assert.Equal(t, "Round Map", displayName("rounD_map"))
	assert.Equal(t, "X", displayName("x"))
}
