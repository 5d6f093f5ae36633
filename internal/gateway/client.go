package gateway

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/depot/internal/hooks"
	"github.com/soyeahso/depot/internal/logging"
)

// ErrClientClosed is returned when sending to a closed stream.
var ErrClientClosed = errors.New("client connection closed")

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxInbound   = 4096
)

// Client is one subscriber on the event stream. Clients only listen: any
// inbound data frame is read and discarded.
type Client struct {
	ConnID      string
	Remote      string
	ConnectedAt time.Time

	conn *websocket.Conn
	log  *logging.Logger

	writeMu sync.Mutex
	once    sync.Once
	closed  chan struct{}
}

func newClient(conn *websocket.Conn, remote string, log *logging.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ConnID:      id,
		Remote:      remote,
		ConnectedAt: time.Now(),
		conn:        conn,
		log:         log.With("connId", id),
		closed:      make(chan struct{}),
	}
}

// Send writes one frame.
func (c *Client) Send(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

func (c *Client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a close frame and releases the connection. Safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// readPump keeps the read deadline fed by pongs and returns when the peer
// goes away.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxInbound)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}
	}
}

// stream forwards events to the peer until the subscription ends, the peer
// disconnects, or a write fails.
func (c *Client) stream(events <-chan hooks.Payload) {
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		c.readPump()
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-peerGone:
			return
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		case p, ok := <-events:
			if !ok {
				return
			}
			frame, err := NewEvent(p)
			if err != nil {
				c.log.Warn().Err(err).Str("event", p.Event).Msg("failed to encode event")
				continue
			}
			if err := c.Send(frame); err != nil {
				c.log.Debug().Err(err).Msg("send failed")
				return
			}
		}
	}
}

// ClientInfo describes a connected stream.
type ClientInfo struct {
	ConnID      string    `json:"connId"`
	Remote      string    `json:"remote"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// ClientRegistry tracks connected event streams.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client), log: log}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ConnID] = c
	n := len(r.clients)
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("remote", c.Remote).Int("clients", n).Msg("stream opened")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	c, ok := r.clients[connID]
	delete(r.clients, connID)
	r.mu.Unlock()
	if ok {
		r.log.Info().Str("connId", connID).Dur("connected", time.Since(c.ConnectedAt)).Msg("stream closed")
	}
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// List describes every connected client, oldest first.
func (r *ClientRegistry) List() []ClientInfo {
	r.mu.RLock()
	out := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, ClientInfo{ConnID: c.ConnID, Remote: c.Remote, ConnectedAt: c.ConnectedAt})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// CloseAll disconnects every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}
