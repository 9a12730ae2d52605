package signal

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Transport is the per-room publish/subscribe channel the engine runs on.
// Delivery is reliable-ordered per subscriber but not exactly-once; the
// protocol layers above are built to tolerate duplicates.
type Transport interface {
	// Publish sends an envelope to the room. Fire-and-forget: errors mean
	// the local connection is gone, not that delivery failed remotely.
	Publish(env Envelope) error

	// Inbound returns the stream of envelopes from the room. Closed when
	// the transport shuts down for good.
	Inbound() <-chan Envelope

	Close()
}

const (
	reconnectDelay = 5 * time.Second
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 54 * time.Second
)

// Client is a websocket Transport that maintains a connection to the room
// relay, reconnecting with a fixed delay until closed.
type Client struct {
	url string
	log zerolog.Logger

	inbound chan Envelope

	connMu sync.Mutex
	conn   *websocket.Conn

	onReconnect func()

	closeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

// Dial connects to the room relay websocket endpoint and starts the read
// loop. url is the full endpoint including room and user identity, e.g.
// ws://host/ws/rooms/BLUE-OTTER-42?user=alice.
func Dial(url string, log zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		url:     url,
		log:     log.With().Str("component", "transport").Logger(),
		inbound: make(chan Envelope, 100),
		conn:    conn,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// SetReconnectHandler installs a callback invoked after every successful
// reconnect, so the engine can re-announce its presence.
func (c *Client) SetReconnectHandler(fn func()) {
	c.connMu.Lock()
	c.onReconnect = fn
	c.connMu.Unlock()
}

// Publish sends one envelope. Serialized with a mutex because gorilla
// connections allow only one concurrent writer.
func (c *Client) Publish(env Envelope) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("transport not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}

// Inbound returns the stream of room envelopes.
func (c *Client) Inbound() <-chan Envelope {
	return c.inbound
}

// Close shuts the transport down permanently.
func (c *Client) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()
}

func (c *Client) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

func (c *Client) readLoop() {
	defer close(c.inbound)

	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})

		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.log.Warn().Err(err).Msg("websocket read failed")
				}
				break
			}
			select {
			case c.inbound <- env:
			case <-c.done:
				return
			default:
				c.log.Warn().Str("type", env.Type).Msg("inbound buffer full, dropping envelope")
			}
		}

		if c.isClosed() {
			return
		}
		if !c.reconnect() {
			return
		}
	}
}

// reconnect retries the dial with a fixed delay until it succeeds or the
// client is closed. Returns false only on permanent shutdown.
func (c *Client) reconnect() bool {
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(reconnectDelay):
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.log.Warn().Err(err).Msg("reconnect failed, retrying")
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		fn := c.onReconnect
		c.connMu.Unlock()

		c.log.Info().Msg("transport reconnected")
		if fn != nil {
			fn()
		}
		return true
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}
