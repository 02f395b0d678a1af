package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/traffic.replay/internal/timeutil"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	hist := &fakeHistory{}
	reg := NewRegistry(WithClock(clock), WithHistory(hist))

	id, err := reg.Create(testConfig(), testMap(), makeFrames(3), 2)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^sid_[0-9a-f]{8}$`), id)

	sess, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, sess.Status())
	assert.Equal(t, 3, sess.TotalFrames())
	assert.Equal(t, 2, sess.ParticipantCount)
	assert.Equal(t, epoch, sess.CreatedAt)
	assert.Equal(t, trajectory.DefaultFrameStep, sess.Config.FrameStep)
	assert.Greater(t, sess.Speed.Samples, 0)

	require.Len(t, hist.sessions, 1)
	assert.Equal(t, id, hist.sessions[0].ID)

	_, err = reg.Get("sid_nope")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestRegistry_UniqueIDs(t *testing.T) {
	reg := NewRegistry()
	ids := []string{"sid_aaaaaaaa", "sid_aaaaaaaa", "sid_bbbbbbbb"}
	reg.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	a, err := reg.Create(testConfig(), testMap(), makeFrames(1), 2)
	require.NoError(t, err)
	b, err := reg.Create(testConfig(), testMap(), makeFrames(1), 2)
	require.NoError(t, err)
	assert.Equal(t, "sid_aaaaaaaa", a)
	assert.Equal(t, "sid_bbbbbbbb", b)
}

func TestRegistry_CreateConfigErrors(t *testing.T) {
	start, end := int64(100), int64(50)
	badWindow := testConfig()
	badWindow.StampStart, badWindow.StampEnd = &start, &end

	l1, l2 := 4.0, 5.0
	inconsistent := trajectory.FrameBuffer{
		{Vehicles: []trajectory.VehicleState{{ID: 1, Length: &l1}}},
		{Vehicles: []trajectory.VehicleState{{ID: 1, Length: &l2}}},
	}

	tests := []struct {
		name   string
		cfg    trajectory.SessionConfig
		m      *trajectory.MapData
		frames trajectory.FrameBuffer
		count  int
	}{
		{"nil map", testConfig(), nil, makeFrames(1), 1},
		{"nil frames", testConfig(), testMap(), nil, 1},
		{"negative participants", testConfig(), testMap(), makeFrames(1), -1},
		{"bad window", badWindow, testMap(), makeFrames(1), 1},
		{"changing attributes", testConfig(), testMap(), inconsistent, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			_, err := reg.Create(tt.cfg, tt.m, tt.frames, tt.count)
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "want ConfigError, got %T", err)
			assert.Equal(t, 0, reg.Len())
		})
	}
}

func TestRegistry_Evict(t *testing.T) {
	reg := NewRegistry()
	id, _ := reg.Create(testConfig(), testMap(), makeFrames(1), 2)
	assert.True(t, reg.Evict(id))
	assert.False(t, reg.Evict(id))
	_, err := reg.Get(id)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestRegistry_EvictExpired(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	reg := NewRegistry(WithClock(clock), WithTTL(10*time.Minute))

	idle, _ := reg.Create(testConfig(), testMap(), makeFrames(5), 2)
	busy, _ := reg.Create(testConfig(), testMap(), makeFrames(5), 2)
	fresh, _ := reg.Create(testConfig(), testMap(), makeFrames(5), 2)

	busySess, _ := reg.Get(busy)
	busySess.beginStream(clock.Now())

	clock.Advance(9 * time.Minute)
	_, _ = reg.Get(fresh) // touch
	assert.Equal(t, 0, reg.EvictExpired())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, reg.EvictExpired())
	_, err := reg.Get(idle)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	_, err = reg.Get(busy)
	assert.NoError(t, err, "streaming sessions never expire")
	_, err = reg.Get(fresh)
	assert.NoError(t, err)
}

func TestRegistry_NoTTL(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	reg := NewRegistry(WithClock(clock))
	_, _ = reg.Create(testConfig(), testMap(), makeFrames(1), 2)
	clock.Advance(1000 * time.Hour)
	assert.Equal(t, 0, reg.EvictExpired())
}

func TestRegistry_MaxSessions(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	reg := NewRegistry(WithClock(clock), WithMaxSessions(2))

	first, _ := reg.Create(testConfig(), testMap(), makeFrames(1), 2)
	clock.Advance(time.Second)
	second, _ := reg.Create(testConfig(), testMap(), makeFrames(1), 2)
	clock.Advance(time.Second)

	third, err := reg.Create(testConfig(), testMap(), makeFrames(1), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	_, err = reg.Get(first)
	assert.True(t, errors.Is(err, ErrSessionNotFound), "oldest idle session is evicted")

	for _, id := range []string{second, third} {
		s, err := reg.Get(id)
		require.NoError(t, err)
		s.beginStream(clock.Now())
	}
	_, err = reg.Create(testConfig(), testMap(), makeFrames(1), 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRegistryFull))
	assert.True(t, IsConfigError(err))
}

func TestRegistry_List(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	reg := NewRegistry(WithClock(clock))
	a, _ := reg.Create(testConfig(), testMap(), makeFrames(2), 2)
	clock.Advance(time.Second)
	b, _ := reg.Create(testConfig(), testMap(), makeFrames(4), 2)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].ID)
	assert.Equal(t, b, list[1].ID)
	assert.Equal(t, 4, list[1].TotalFrames)
	assert.Equal(t, "highD", list[1].Dataset)
}

func TestRegistry_RunJanitor(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	reg := NewRegistry(WithClock(clock), WithTTL(time.Minute))
	_, _ = reg.Create(testConfig(), testMap(), makeFrames(1), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.RunJanitor(ctx, 30*time.Second) }()

	require.Eventually(t, func() bool {
		clock.Advance(30 * time.Second)
		return reg.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestSession_StatusTransitions(t *testing.T) {
	s := &Session{status: StatusCreated}
	s.beginStream(epoch)
	s.beginStream(epoch)
	assert.Equal(t, StatusStreaming, s.Status())
	assert.Equal(t, 2, s.ActiveStreams())

	s.endStream(epoch, true)
	assert.Equal(t, StatusStreaming, s.Status(), "other stream still running")
	s.endStream(epoch, false)
	assert.Equal(t, StatusCompleted, s.Status())

	s.beginStream(epoch)
	s.endStream(epoch, false)
	assert.Equal(t, StatusCompleted, s.Status())
}
