package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// wsPair returns a Client wrapping the server side of a live connection,
// and the app side to read from.
func wsPair(t *testing.T, name string) (*Client, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(ts.Close)

	app, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	c := newClient(<-serverSide, ClientInfo{Name: name}, "token")
	t.Cleanup(func() { c.Close() })
	return c, app
}

func TestClientRespond(t *testing.T) {
	c, app := wsPair(t, "aide-web")

	require.NoError(t, c.Respond("d-1", map[string]any{"results": []string{}}))
	require.NoError(t, c.RespondError("d-2", CodeNoActiveAgents, "select at least one agent"))

	var ok, failed Frame
	require.NoError(t, app.ReadJSON(&ok))
	require.NoError(t, app.ReadJSON(&failed))

	assert.Equal(t, "d-1", ok.ID)
	require.NotNil(t, ok.OK)
	assert.True(t, *ok.OK)
	assert.JSONEq(t, `{"results":[]}`, string(ok.Payload))

	assert.Equal(t, "d-2", failed.ID)
	require.NotNil(t, failed.Error)
	assert.Equal(t, ErrorShape{Code: CodeNoActiveAgents, Message: "select at least one agent"}, *failed.Error)
}

func TestClientSendAfterClose(t *testing.T) {
	c, _ := wsPair(t, "aide-phone")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	err := c.SendEvent(EventChatDelta, ChatDelta{RequestID: "c-1", Content: "hi"}, 1)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClientSetBroadcast(t *testing.T) {
	cs := newClientSet(testLog())
	web, webApp := wsPair(t, "aide-web")
	phone, phoneApp := wsPair(t, "aide-phone")
	cs.add(web)
	cs.add(phone)
	assert.Equal(t, 2, cs.count())

	cs.broadcast(EventPersonaChanged, domain.Persona{Name: "Nova"}, 7)

	for _, app := range []*websocket.Conn{webApp, phoneApp} {
		var f Frame
		require.NoError(t, app.ReadJSON(&f))
		assert.Equal(t, FrameTypeEvent, f.Type)
		assert.Equal(t, EventPersonaChanged, f.Event)
		assert.Equal(t, int64(7), f.Seq)
		assert.Contains(t, string(f.Payload), `"Nova"`)
	}
}

func TestClientSetBroadcastSkipsClosed(t *testing.T) {
	cs := newClientSet(testLog())
	gone, _ := wsPair(t, "aide-phone")
	live, liveApp := wsPair(t, "aide-web")
	cs.add(gone)
	cs.add(live)
	gone.Close()

	cs.broadcast(EventPersonaChanged, domain.Persona{Name: "Nova"}, 1)

	var f Frame
	require.NoError(t, liveApp.ReadJSON(&f))
	assert.Equal(t, EventPersonaChanged, f.Event)
}

func TestClientSetRemoveAndCloseAll(t *testing.T) {
	cs := newClientSet(testLog())
	a, _ := wsPair(t, "aide-web")
	b, _ := wsPair(t, "aide-phone")
	cs.add(a)
	cs.add(b)

	cs.remove(a.ConnID)
	cs.remove("no-such-conn")
	assert.Equal(t, 1, cs.count())

	cs.closeAll()
	assert.Equal(t, 0, cs.count())
	assert.ErrorIs(t, b.Respond("x", nil), ErrClientClosed)
}
