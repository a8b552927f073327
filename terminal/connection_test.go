package terminal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-terminals/config"
	"github.com/agentuity/go-terminals/logger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTerminalServer echoes stdin back as stdout and sends a disconnect
// frame when it receives "exit".
func newTerminalServer(t *testing.T) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var lastPath atomic.Value
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastPath.Store(r.URL.EscapedPath())
		if r.Header.Get("Authorization") != "token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteJSON([]any{"setup", map[string]any{}}); err != nil {
			return
		}
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch {
			case msg.Type == MessageStdin && msg.Text() == "exit":
				conn.WriteJSON(Message{Type: MessageDisconnect})
				return
			case msg.Type == MessageStdin:
				conn.WriteJSON(Message{Type: MessageStdout, Content: []any{msg.Text()}})
			case msg.Type == MessageSetSize:
				conn.WriteMessage(websocket.TextMessage, []byte("not json"))
				conn.WriteJSON(Message{Type: MessageStdout, Content: msg.Content})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &lastPath
}

func connectTestTerminal(t *testing.T, srv *httptest.Server, name string) *Connection {
	t.Helper()
	settings := config.Default()
	settings.BaseURL = srv.URL
	settings.Token = "secret"
	m := newReadyManager(t, newFakeTransport(name), WithSettings(settings))
	conn, err := m.ConnectTo(ConnectOptions{Model: Model{Name: name}})
	require.NoError(t, err)
	return conn
}

func TestConnectionRoundTrip(t *testing.T) {
	srv, lastPath := newTerminalServer(t)
	conn := connectTestTerminal(t, srv, "my term")

	var statuses recorder[ConnectionStatus]
	conn.StatusChanged().Subscribe(statuses.add)
	messages := make(chan Message, 8)
	conn.Messages().Subscribe(func(msg Message) { messages <- msg })

	assert.ErrorIs(t, conn.Send(Stdin("ls\r")), ErrNotConnected)
	require.NoError(t, conn.Connect(testContext(t)))
	assert.Equal(t, "/terminals/websocket/my%20term", lastPath.Load())
	assert.Equal(t, StatusConnected, conn.ConnectionStatus())
	require.NoError(t, conn.Connect(testContext(t)))

	require.NoError(t, conn.Send(Stdin("ls\r")))
	select {
	case msg := <-messages:
		assert.Equal(t, MessageStdout, msg.Type)
		assert.Equal(t, "ls\r", msg.Text())
	case <-time.After(5 * time.Second):
		t.Fatal("no stdout frame received")
	}

	// the malformed frame the server sends first is skipped
	require.NoError(t, conn.Send(SetSize(24, 80)))
	select {
	case msg := <-messages:
		assert.Equal(t, []any{float64(24), float64(80)}, msg.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("no resize echo received")
	}

	conn.Dispose()
	assert.Equal(t, StatusDisconnected, conn.ConnectionStatus())
	assert.Equal(t, []ConnectionStatus{StatusConnecting, StatusConnected, StatusDisconnected}, statuses.all())
	assert.ErrorIs(t, conn.Send(Stdin("x")), ErrDisposed)
	assert.ErrorIs(t, conn.Connect(testContext(t)), ErrDisposed)
}

func TestConnectionServerDisconnect(t *testing.T) {
	srv, _ := newTerminalServer(t)
	conn := connectTestTerminal(t, srv, "1")

	var disconnects atomic.Int32
	conn.Messages().Subscribe(func(msg Message) {
		if msg.Type == MessageDisconnect {
			disconnects.Add(1)
		}
	})
	require.NoError(t, conn.Connect(testContext(t)))
	require.NoError(t, conn.Send(Stdin("exit")))

	require.Eventually(t, conn.IsDisposed, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), disconnects.Load())
}

func TestConnectionReconnect(t *testing.T) {
	srv, _ := newTerminalServer(t)
	conn := connectTestTerminal(t, srv, "1")
	messages := make(chan Message, 8)
	conn.Messages().Subscribe(func(msg Message) { messages <- msg })

	require.NoError(t, conn.Connect(testContext(t)))
	require.NoError(t, conn.Reconnect(testContext(t)))
	assert.Equal(t, StatusConnected, conn.ConnectionStatus())

	require.NoError(t, conn.Send(Stdin("pwd")))
	select {
	case msg := <-messages:
		assert.Equal(t, "pwd", msg.Text())
	case <-time.After(5 * time.Second):
		t.Fatal("no stdout frame after reconnect")
	}
}

func TestConnectionDialFailure(t *testing.T) {
	srv, _ := newTerminalServer(t)
	settings := config.Default()
	settings.BaseURL = srv.URL
	m := newReadyManager(t, newFakeTransport("1"), WithSettings(settings))
	conn, err := m.ConnectTo(ConnectOptions{Model: Model{Name: "1"}})
	require.NoError(t, err)

	err = conn.Connect(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `connecting to terminal "1"`)
	assert.Equal(t, StatusDisconnected, conn.ConnectionStatus())
	assert.False(t, conn.IsDisposed())
}

func TestConnectionDisposeIsReentrant(t *testing.T) {
	m := newReadyManager(t, newFakeTransport("a"))
	conn, err := m.ConnectTo(ConnectOptions{Model: Model{Name: "a"}})
	require.NoError(t, err)

	var calls atomic.Int32
	conn.Disposed().Subscribe(func(c *Connection) {
		calls.Add(1)
		c.Dispose()
	})
	conn.Dispose()
	conn.Dispose()
	assert.Equal(t, int32(1), calls.Load())
	assert.NotEmpty(t, conn.ID())
}

func TestConnectionIDsAreUnique(t *testing.T) {
	m := newReadyManager(t, newFakeTransport("a"))
	a, err := m.ConnectTo(ConnectOptions{Model: Model{Name: "a"}})
	require.NoError(t, err)
	b, err := m.ConnectTo(ConnectOptions{Model: Model{Name: "a"}})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Len(t, m.Connections(), 2)
}

func TestConnectionWebsocketURL(t *testing.T) {
	settings := config.Default()
	settings.BaseURL = "https://example.com/lab/"
	conn := newConnection(ConnectOptions{Model: Model{Name: "a/b"}, Settings: settings}, logger.NewTestLogger(), nil)
	assert.Equal(t, "wss://example.com/lab/terminals/websocket/a%2Fb", conn.websocketURL())
}

func TestMessageJSON(t *testing.T) {
	buf, err := json.Marshal(SetSize(24, 80))
	require.NoError(t, err)
	assert.JSONEq(t, `["set_size", 24, 80]`, string(buf))

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`["stdout", "hello ", "world"]`), &msg))
	assert.Equal(t, MessageStdout, msg.Type)
	assert.Equal(t, "hello world", msg.Text())

	require.NoError(t, json.Unmarshal([]byte(`["disconnect"]`), &msg))
	assert.Equal(t, MessageDisconnect, msg.Type)
	assert.Empty(t, msg.Content)

	for _, bad := range []string{`{}`, `[]`, `[1, "x"]`} {
		assert.Error(t, json.Unmarshal([]byte(bad), &msg), bad)
	}
}
