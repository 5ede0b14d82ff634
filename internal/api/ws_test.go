package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamRunLogs(t *testing.T) {
	s, router := newTestServer(successLauncher)
	run := s.Runs.Create("InvoiceBot", "Finance", nil)
	run.AppendLog("line-1")
	run.AppendLog("line-2")
	run.Complete()

	ts := httptest.NewServer(router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/runs/" + run.ID + "/logs"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var lines []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Normal closure once the run is drained.
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		lines = append(lines, string(msg))
	}
	assert.Equal(t, []string{"line-1", "line-2"}, lines)
}

func TestStreamRunLogs_NotFound(t *testing.T) {
	_, router := newTestServer(successLauncher)

	ts := httptest.NewServer(router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/runs/missing/logs"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}
