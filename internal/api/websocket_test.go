package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atlas-desktop/risk-sim/internal/api"
	"github.com/atlas-desktop/risk-sim/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func connectedGauge(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "risksim_websocket_clients" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("websocket_clients gauge not registered")
	return 0
}

func startHub(t *testing.T) (*api.Hub, *metrics.Metrics, context.CancelFunc, string) {
	t.Helper()
	m := metrics.New()
	hub := api.NewHub(zap.NewNop(), m)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if !hub.Serve(conn) {
			conn.Close()
		}
	}))
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return hub, m, cancel, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubShutdownDetachesClients(t *testing.T) {
	hub, m, cancel, url := startHub(t)
	conn := dial(t, url)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteJSON(api.WSMessage{Type: api.MsgTypeSubscribe, Channel: api.RunChannel("a")}))
	require.Eventually(t, func() bool { return hub.Watchers(api.RunChannel("a")) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, connectedGauge(t, m))

	cancel()

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Watchers(api.RunChannel("a")))
	assert.Equal(t, 0.0, connectedGauge(t, m))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	late := dial(t, url)
	require.NoError(t, late.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0.0, connectedGauge(t, m))
}

func TestHubRejectsNonRunChannel(t *testing.T) {
	hub, _, _, url := startHub(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(api.WSMessage{Type: api.MsgTypeSubscribe, Channel: "trades"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var reply api.WSMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, api.MsgTypeError, reply.Type)
	assert.Equal(t, "trades", reply.Channel)
	assert.Contains(t, string(reply.Data), "must name a run")
	assert.Equal(t, 0, hub.Watchers("trades"))
}

func TestHubPublishReachesWatchersOnly(t *testing.T) {
	hub, _, _, url := startHub(t)
	watching := dial(t, url)
	idle := dial(t, url)
	channel := api.RunChannel("run-1")

	require.NoError(t, watching.WriteJSON(api.WSMessage{Type: api.MsgTypeSubscribe, Channel: channel}))
	require.Eventually(t, func() bool {
		return hub.Watchers(channel) == 1 && hub.ClientCount() == 2
	}, 5*time.Second, 10*time.Millisecond)

	hub.Publish(channel, api.MsgTypeProgress, map[string]int{"completedBatches": 1})

	require.NoError(t, watching.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg api.WSMessage
	require.NoError(t, watching.ReadJSON(&msg))
	assert.Equal(t, api.MsgTypeProgress, msg.Type)
	assert.Equal(t, channel, msg.Channel)
	assert.JSONEq(t, `{"completedBatches":1}`, string(msg.Data))

	require.NoError(t, idle.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := idle.ReadMessage()
	assert.Error(t, err)

	require.NoError(t, watching.WriteJSON(api.WSMessage{Type: api.MsgTypeUnsubscribe, Channel: channel}))
	require.Eventually(t, func() bool { return hub.Watchers(channel) == 0 }, 5*time.Second, 10*time.Millisecond)
}
