package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamMetrics(t *testing.T) {
	before := testutil.ToFloat64(streamsTotal.WithLabelValues(OutcomeCompleted))
	activeBefore := testutil.ToFloat64(streamsActive)

	StreamStarted()
	assert.Equal(t, activeBefore+1, testutil.ToFloat64(streamsActive))

	StreamFinished(OutcomeCompleted)
	assert.Equal(t, activeBefore, testutil.ToFloat64(streamsActive))
	assert.Equal(t, before+1, testutil.ToFloat64(streamsTotal.WithLabelValues(OutcomeCompleted)))
}

func TestRecordFrameSent(t *testing.T) {
	before := testutil.ToFloat64(framesSentTotal.WithLabelValues("ws"))
	RecordFrameSent("ws", 0.001)
	RecordFrameSent("ws", 0.002)
	assert.Equal(t, before+2, testutil.ToFloat64(framesSentTotal.WithLabelValues("ws")))
}

func TestHandler_ExposesNamespace(t *testing.T) {
	RecordSessionCreated()
	SetSessionsActive(3)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "trafficreplay_sessions_created_total"))
	assert.True(t, strings.Contains(text, "trafficreplay_sessions_active 3"))
}

func TestRegistry_Singleton(t *testing.T) {
	assert.Same(t, Registry(), Registry())
}
