package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/traffic.replay/internal/dataset"
	"github.com/banshee-data/traffic.replay/internal/roadmap"
)

func TestNewDataDir_Loads(t *testing.T) {
	d := NewDataDir(t)

	tr, err := dataset.LevelX{}.Load(context.Background(), d.Config())
	require.NoError(t, err)
	assert.Len(t, tr.Frames, 4)
	assert.Equal(t, 2, tr.ParticipantCount)

	m, err := roadmap.LoadFile(d.MapPath, 1)
	require.NoError(t, err)
	assert.Len(t, m.Lanes, 1)

	recs, err := dataset.NewScanner(d.Root).Recordings("highD")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].HasMeta)
	assert.NotEmpty(t, recs[0].PreviewImage)
}

func TestFrames(t *testing.T) {
	buf := Frames(3)
	require.Len(t, buf, 3)
	assert.Equal(t, int64(80), buf[2].Timestamp)
	assert.Equal(t, 48.0, buf[2].Vehicles[1].X)
}
