package websocket_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"batchqc/internal/websocket"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dial(t *testing.T, srv *httptest.Server) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func waitForClients(t *testing.T, hub *websocket.Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestBatchFinalizedBroadcast(t *testing.T) {
	hub := websocket.NewHub(zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitForClients(t, hub, 2)

	hub.BatchFinalized(101)

	for _, conn := range []*ws.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var evt map[string]any
		require.NoError(t, json.Unmarshal(data, &evt))
		assert.Equal(t, "batch_finalized", evt["type"])
		assert.Equal(t, float64(101), evt["id"])
		assert.Equal(t, "finalize", evt["action"])
	}

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	waitForClients(t, hub, 0)
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := websocket.NewHub(zerolog.Nop())
	hub.BatchFinalized(1)
	assert.Zero(t, hub.Count())
}
