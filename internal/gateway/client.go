package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/aide/internal/logging"
)

// ErrClientClosed is returned when writing to a closed connection.
var ErrClientClosed = errors.New("client connection closed")

// writeWait bounds a single frame write so one stalled phone cannot hold a
// broadcast.
const writeWait = 10 * time.Second

// Client is one authenticated app connection.
type Client struct {
	ConnID      string
	Info        ClientInfo
	AuthMethod  string
	ConnectedAt time.Time

	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, info ClientInfo, authMethod string) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		AuthMethod:  authMethod,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// Send writes a frame. Safe for concurrent use.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

// SendEvent pushes a named event.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond answers request id with payload.
func (c *Client) Respond(id string, payload any) error {
	f, err := NewResponse(id, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError answers request id with an error.
func (c *Client) RespondError(id, code, message string) error {
	return c.Send(NewErrorResponse(id, code, message))
}

// Close closes the connection. Later sends fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// clientSet tracks the connected apps.
type clientSet struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

func newClientSet(log *logging.Logger) *clientSet {
	return &clientSet{clients: make(map[string]*Client), log: log}
}

func (cs *clientSet) add(c *Client) {
	cs.mu.Lock()
	cs.clients[c.ConnID] = c
	cs.mu.Unlock()
	cs.log.Info().Str("connId", c.ConnID).Str("client", c.Info.Name).Msg("client connected")
}

func (cs *clientSet) remove(connID string) {
	cs.mu.Lock()
	delete(cs.clients, connID)
	cs.mu.Unlock()
	cs.log.Info().Str("connId", connID).Msg("client disconnected")
}

func (cs *clientSet) count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.clients)
}

func (cs *clientSet) snapshot() []*Client {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*Client, 0, len(cs.clients))
	for _, c := range cs.clients {
		out = append(out, c)
	}
	return out
}

// broadcast sends an event to every client. Writes happen outside the set
// lock, so a slow client does not block connects and disconnects.
func (cs *clientSet) broadcast(event string, payload any, seq int64) {
	for _, c := range cs.snapshot() {
		if err := c.SendEvent(event, payload, seq); err != nil {
			cs.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", event).Msg("broadcast failed")
		}
	}
}

func (cs *clientSet) closeAll() {
	cs.mu.Lock()
	clients := cs.clients
	cs.clients = make(map[string]*Client)
	cs.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}
