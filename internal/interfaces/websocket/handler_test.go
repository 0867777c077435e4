package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-message-relay/internal/infrastructure/hub"
	"go-message-relay/internal/infrastructure/logger"
)

func newTestServer(t *testing.T, running bool) (*hub.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New(logger.NewNopLogger())
	if running {
		require.NoError(t, h.Start(context.Background()))
		t.Cleanup(func() { _ = h.Stop(context.Background()) })
	}

	router := gin.New()
	InitWebSocketRouter(logger.NewNopLogger(), h, hub.DefaultWebSocketOptions(), &router.RouterGroup)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return h, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestConnect_ReceivesBroadcasts(t *testing.T) {
	h, srv := newTestServer(t, true)

	client, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	h.Dispatch([]byte("msg1"))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "msg1", string(data))
}

func TestConnect_IndependentClients(t *testing.T) {
	h, srv := newTestServer(t, true)

	a, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)

	// Dropping one client must not disturb the other.
	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	res := h.Broadcast([]byte("still here"))
	assert.Equal(t, 1, res.Delivered)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := a.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "still here", string(data))
}

func TestConnect_HubNotRunning(t *testing.T) {
	_, srv := newTestServer(t, false)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetConnections(t *testing.T) {
	h, srv := newTestServer(t, true)

	client, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/v1/ws/connections")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Total       int `json:"total_connections"`
		Connections []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Connections, 1)
	assert.True(t, strings.HasPrefix(body.Connections[0].ID, "ws-"))
	assert.Equal(t, "websocket", body.Connections[0].Type)
}
