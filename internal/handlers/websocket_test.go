package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/models"
	"github.com/ternarybob/gazette/internal/services/progress"
)

func newWSFixture(t *testing.T, cfg *common.WebSocketConfig) (*WebSocketHandler, *progress.Broadcaster, *httptest.Server) {
	t.Helper()
	logger := arbor.NewLogger()
	broadcast := progress.NewBroadcaster(logger)
	handler := NewWebSocketHandler(broadcast, logger, cfg)

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(srv.Close)
	return handler, broadcast, srv
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketRequiresTaskID(t *testing.T) {
	_, _, srv := newWSFixture(t, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestWebSocketHandshakeAndProgressFrames(t *testing.T) {
	handler, broadcast, srv := newWSFixture(t, nil)

	conn := dialWS(t, srv, "?task_id=task_1")

	connected := readWSMessage(t, conn)
	assert.Equal(t, "connected", connected.Type)
	payload := connected.Payload.(map[string]interface{})
	assert.Equal(t, "task_1", payload["task_id"])
	assert.NotEmpty(t, payload["server_instance_id"])
	assert.Equal(t, 1, handler.ClientCount())

	broadcast.Notify("task_1", &models.ProgressPayload{
		TaskID:      "task_1",
		ScrapePhase: models.PhaseContentScraping,
		Progress:    45,
		Message:     "抓取內文中",
		StartTime:   time.Now(),
	})

	frame := readWSMessage(t, conn)
	assert.Equal(t, "task_progress", frame.Type)
	body := frame.Payload.(map[string]interface{})
	assert.Equal(t, float64(45), body["progress"])
	assert.Equal(t, string(models.PhaseContentScraping), body["scrape_phase"])
}

func TestWebSocketSubscriptionIsPerTask(t *testing.T) {
	_, broadcast, srv := newWSFixture(t, nil)

	conn := dialWS(t, srv, "?task_id=task_1")
	readWSMessage(t, conn) // connected

	// a frame for another task never reaches this connection
	broadcast.Notify("task_other", &models.ProgressPayload{TaskID: "task_other", ScrapePhase: models.PhaseLinkCollection, Progress: 10})
	broadcast.Notify("task_1", &models.ProgressPayload{TaskID: "task_1", ScrapePhase: models.PhaseCompleted, Progress: 100})

	frame := readWSMessage(t, conn)
	body := frame.Payload.(map[string]interface{})
	assert.Equal(t, "task_1", body["task_id"])
	assert.Equal(t, float64(100), body["progress"])
}

func TestWebSocketThrottlePassesTerminalFrames(t *testing.T) {
	// a long interval suppresses every non-terminal frame after the first
	cfg := &common.WebSocketConfig{ThrottleInterval: "1h"}
	_, broadcast, srv := newWSFixture(t, cfg)

	conn := dialWS(t, srv, "?task_id=task_1")
	readWSMessage(t, conn) // connected

	broadcast.Notify("task_1", &models.ProgressPayload{TaskID: "task_1", ScrapePhase: models.PhaseLinkCollection, Progress: 5})
	broadcast.Notify("task_1", &models.ProgressPayload{TaskID: "task_1", ScrapePhase: models.PhaseLinkCollection, Progress: 6})
	broadcast.Notify("task_1", &models.ProgressPayload{TaskID: "task_1", ScrapePhase: models.PhaseCompleted, Progress: 100})

	first := readWSMessage(t, conn)
	assert.Equal(t, float64(5), first.Payload.(map[string]interface{})["progress"])

	// the throttled frame (progress 6) is dropped; the terminal frame is not
	final := readWSMessage(t, conn)
	assert.Equal(t, float64(100), final.Payload.(map[string]interface{})["progress"])
}

func TestWebSocketUnsubscribesOnDisconnect(t *testing.T) {
	handler, broadcast, srv := newWSFixture(t, nil)

	conn := dialWS(t, srv, "?task_id=task_1")
	readWSMessage(t, conn) // connected
	conn.Close()

	require.Eventually(t, func() bool {
		return handler.ClientCount() == 0
	}, 2*time.Second, 20*time.Millisecond)

	// notifying after disconnect must not panic or block
	broadcast.Notify("task_1", &models.ProgressPayload{TaskID: "task_1", ScrapePhase: models.PhaseCompleted, Progress: 100})
}
