package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

func TestFrame_NumberAtTopLevel(t *testing.T) {
	f := trajectory.Frame{Timestamp: 40, Vehicles: []trajectory.VehicleState{{ID: 3, X: 1}}}
	b, err := json.Marshal(Frame("sid_1234abcd", 0, &f))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "simulation_frame", raw["type"])
	assert.Equal(t, "sid_1234abcd", raw["session_id"])
	assert.Equal(t, float64(0), raw["frame_number"], "frame 0 must not be omitted")

	data := raw["data"].(map[string]any)
	assert.ElementsMatch(t, []string{"timestamp", "vehicles"}, keys(data))
}

func TestStreamStarted_CarriesTotals(t *testing.T) {
	b, err := json.Marshal(StreamStarted("sid_x", 500, 25))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"session_stream_started","session_id":"sid_x","total_frames":500,"fps":25}`, string(b))
}

func TestError_Shape(t *testing.T) {
	b, err := json.Marshal(Error("", "session_id is required"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"session_id is required"}`, string(b))
}

func TestMapRoundTrip(t *testing.T) {
	l := 4.2
	f := trajectory.Frame{Timestamp: 1200, Vehicles: []trajectory.VehicleState{{ID: 9, X: 1.5, Y: -2, VX: 30, Heading: 0.1, Length: &l, Type: "Car"}}}
	in := Frame("sid_abc", 17, &f)

	obj, err := ToMap(in)
	require.NoError(t, err)
	out, err := FromMap(obj)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestInbound_Decode(t *testing.T) {
	var in Inbound
	require.NoError(t, json.Unmarshal([]byte(`{"type":"start_session_stream","session_id":"sid_1","fps":30}`), &in))
	assert.Equal(t, TypeStartStream, in.Type)
	require.NotNil(t, in.FPS)
	assert.Equal(t, 30.0, *in.FPS)

	in = Inbound{}
	require.NoError(t, json.Unmarshal([]byte(`{"type":"start_session_stream","session_id":"sid_1"}`), &in))
	assert.Nil(t, in.FPS)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
