package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-ai/switchyard/internal/budget"
	"github.com/switchyard-ai/switchyard/internal/events"
)

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env wsEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebSocketReceivesPublishedEvents(t *testing.T) {
	env := newServerEnv(t, defaultServerBudget())
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=secret"), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readEnvelope(t, conn)
	assert.Equal(t, "connected", hello.Type)

	// Give the writer loop time to register the subscription before
	// publishing.
	require.Eventually(t, func() bool {
		return env.hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	env.hub.Publish(events.ChannelEvents, map[string]string{"hello": "world"})

	msg := readEnvelope(t, conn)
	assert.Equal(t, "event", msg.Type)
	data := msg.Data.(map[string]any)
	assert.Equal(t, "world", data["hello"])
}

func TestWebSocketAuthHeaderAccepted(t *testing.T) {
	env := newServerEnv(t, defaultServerBudget())
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	header := map[string][]string{"Authorization": {"Bearer secret"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), header)
	require.NoError(t, err)
	defer conn.Close()

	hello := readEnvelope(t, conn)
	assert.Equal(t, "connected", hello.Type)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	env := newServerEnv(t, defaultServerBudget())
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=wrong"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestWebSocketSubscribeUnsubscribe(t *testing.T) {
	env := newServerEnv(t, defaultServerBudget())
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=secret"), nil)
	require.NoError(t, err)
	defer conn.Close()

	readEnvelope(t, conn) // connected

	require.NoError(t, conn.WriteJSON(wsClientMessage{Type: "unsubscribe", Channel: "budget"}))
	ack := readEnvelope(t, conn)
	assert.Equal(t, "unsubscribed", ack.Type)

	require.Eventually(t, func() bool {
		return env.hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	// Budget messages are filtered out now; event messages still arrive.
	env.hub.Publish(events.ChannelBudget, budget.Alert{Period: budget.Daily})
	env.hub.Publish(events.ChannelEvents, map[string]string{"kind": "query"})

	msg := readEnvelope(t, conn)
	assert.Equal(t, "event", msg.Type)
}

func TestWebSocketPingGetsPong(t *testing.T) {
	env := newServerEnv(t, defaultServerBudget())
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=secret"), nil)
	require.NoError(t, err)
	defer conn.Close()

	readEnvelope(t, conn) // connected

	require.NoError(t, conn.WriteJSON(wsClientMessage{Type: "ping"}))
	pong := readEnvelope(t, conn)
	assert.Equal(t, "pong", pong.Type)
}

func TestWebSocketRateLimitBlocksFloods(t *testing.T) {
	env := newServerEnv(t, defaultServerBudget())
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	var conns []*websocket.Conn
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	for i := 0; i < wsConnLimit; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=secret"), nil)
		require.NoError(t, err, "connection %d", i)
		conns = append(conns, conn)
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=secret"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 429, resp.StatusCode)
}
