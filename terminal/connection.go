package terminal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/agentuity/go-terminals/config"
	"github.com/agentuity/go-terminals/event"
	"github.com/agentuity/go-terminals/logger"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// ConnectionStatus is the state of a connection's websocket.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ConnectOptions describe the terminal to connect to.
type ConnectOptions struct {
	// Model must carry a name.
	Model Model
	// Settings default to the manager's settings when nil.
	Settings *config.Settings
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Connection is a handle on one terminal session. It owns its own disposal
// and, once Connect is called, the websocket proxying the terminal stream.
type Connection struct {
	id       string
	model    Model
	settings *config.Settings
	dialer   *websocket.Dialer
	logger   logger.Logger
	shutdown func(ctx context.Context, name string) error

	disposed      *event.Signal[*Connection]
	messages      *event.Signal[Message]
	statusChanged *event.Signal[ConnectionStatus]

	mu         sync.Mutex
	writeMu    sync.Mutex
	isDisposed bool
	status     ConnectionStatus
	conn       *websocket.Conn
}

func newConnection(opts ConnectOptions, log logger.Logger, shutdown func(ctx context.Context, name string) error) *Connection {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	id := uuid.NewString()
	log = log.With(map[string]interface{}{"terminal": opts.Model.Name, "connection": id})
	return &Connection{
		id:            id,
		model:         opts.Model,
		settings:      opts.Settings,
		dialer:        dialer,
		logger:        log,
		shutdown:      shutdown,
		disposed:      event.New[*Connection](log),
		messages:      event.New[Message](log),
		statusChanged: event.New[ConnectionStatus](log),
	}
}

// ID uniquely identifies this handle; several handles may share a name.
func (c *Connection) ID() string {
	return c.id
}

// Name is the terminal session name.
func (c *Connection) Name() string {
	return c.model.Name
}

func (c *Connection) Model() Model {
	return c.model
}

func (c *Connection) Settings() *config.Settings {
	return c.settings
}

// Disposed fires once, when the connection is disposed.
func (c *Connection) Disposed() *event.Signal[*Connection] {
	return c.disposed
}

// Messages fires for every frame received from the terminal.
func (c *Connection) Messages() *event.Signal[Message] {
	return c.messages
}

// StatusChanged fires when the websocket status changes.
func (c *Connection) StatusChanged() *event.Signal[ConnectionStatus] {
	return c.statusChanged
}

func (c *Connection) IsDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isDisposed
}

func (c *Connection) ConnectionStatus() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) websocketURL() string {
	return strings.TrimRight(c.settings.WebsocketURL(), "/") + "/terminals/websocket/" + url.PathEscape(c.model.Name)
}

// Connect opens the terminal websocket. It is a no-op when already connected.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.isDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setStatus(StatusConnecting)
	header := http.Header{}
	if c.settings.Token != "" {
		header.Set("Authorization", "token "+c.settings.Token)
	}
	for k, v := range c.settings.Headers {
		header.Set(k, v)
	}
	u := c.websocketURL()
	conn, resp, err := c.dialer.DialContext(ctx, u, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.Wrapf(err, "connecting to terminal %q", c.model.Name)
	}

	c.mu.Lock()
	if c.isDisposed || c.conn != nil {
		c.mu.Unlock()
		conn.Close()
		if c.IsDisposed() {
			return ErrDisposed
		}
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Debug("connected to %s", u)
	c.setStatus(StatusConnected)
	go c.readLoop(conn)
	return nil
}

// Reconnect closes the current websocket, if any, and connects again.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return c.Connect(ctx)
}

// Send writes a message to the terminal.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	disposed := c.isDisposed
	c.mu.Unlock()
	if disposed {
		return ErrDisposed
	}
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return errors.Wrapf(err, "writing to terminal %q", c.model.Name)
	}
	return nil
}

// Shutdown deletes the terminal on the server and disposes the connection.
func (c *Connection) Shutdown(ctx context.Context) error {
	if err := c.shutdown(ctx, c.model.Name); err != nil {
		return err
	}
	c.Dispose()
	return nil
}

// Dispose closes the websocket and fires Disposed. It is idempotent and may
// be called from inside a Disposed subscriber.
func (c *Connection) Dispose() {
	c.mu.Lock()
	if c.isDisposed {
		c.mu.Unlock()
		return
	}
	c.isDisposed = true
	conn := c.conn
	c.conn = nil
	changed := c.status != StatusDisconnected
	c.status = StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	if changed {
		c.statusChanged.Publish(StatusDisconnected)
	}
	c.logger.Trace("disposed")
	c.disposed.Publish(c)
	c.disposed.Close()
	c.messages.Close()
	c.statusChanged.Close()
}

func (c *Connection) setStatus(status ConnectionStatus) {
	c.mu.Lock()
	if c.isDisposed || c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	c.mu.Unlock()
	c.statusChanged.Publish(status)
}

func (c *Connection) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.closed(conn, err)
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("ignoring malformed frame: %v", err)
			continue
		}
		switch msg.Type {
		case MessageSetup:
			c.setStatus(StatusConnected)
		case MessageDisconnect:
			c.messages.Publish(msg)
			c.Dispose()
			return
		default:
			c.messages.Publish(msg)
		}
	}
}

func (c *Connection) closed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	if !current {
		return
	}
	conn.Close()
	c.logger.Debug("websocket closed: %v", err)
	c.setStatus(StatusDisconnected)
}
