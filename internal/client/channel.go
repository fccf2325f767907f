// Package client implements the client side of the voice protocol: the
// channel multiplexer, the gapless playback scheduler and the microphone
// capture streamer.
package client

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbeckmann/voicebot/internal/protocol"
)

// ChannelState is the connection lifecycle state.
type ChannelState int

const (
	Connecting ChannelState = iota
	Open
	Closing
	Reconnecting
	Closed
)

func (s ChannelState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler receives inbound messages of a registered type.
type Handler func(msg protocol.Message)

// ChannelConfig configures a channel.
type ChannelConfig struct {
	URL string

	// MaxReconnectAttempts bounds reconnection after an unexpected close
	// (default 5). Once exhausted the channel is terminally Closed.
	MaxReconnectAttempts int

	// ReconnectBaseDelay is multiplied by the attempt number to space
	// attempts (default 1s).
	ReconnectBaseDelay time.Duration

	// OnDisconnect is invoked once when reconnection gives up, surfacing the
	// connectivity error to the application layer.
	OnDisconnect func(err error)

	Dialer *websocket.Dialer
	Logger *log.Logger
}

// Channel is one logical bidirectional stream carrying typed messages. The
// underlying connection is owned by the channel; callers never touch it.
type Channel struct {
	cfg ChannelConfig

	mu       sync.Mutex
	state    ChannelState
	conn     *websocket.Conn
	handlers map[string][]Handler
	writeMu  sync.Mutex
}

// NewChannel creates a channel for the given URL. Connect must be called
// before Send.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Channel{
		cfg:      cfg,
		state:    Connecting,
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for a message type. Messages with no registered
// handler are ignored.
func (c *Channel) On(msgType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = append(c.handlers[msgType], h)
}

// State returns the current connection state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the endpoint and starts the read loop.
func (c *Channel) Connect() error {
	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	conn, _, err := c.cfg.Dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		c.mu.Lock()
		c.state = Closed
		c.mu.Unlock()
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = Open
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Send marshals and writes an envelope. Sending while the channel is not
// Open is a no-op that logs a warning; callers are expected to check state.
func (c *Channel) Send(msgType string, payload any, id string) error {
	c.mu.Lock()
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	if state != Open {
		c.cfg.Logger.Printf("channel: dropping %s send, connection is %s", msgType, state)
		return nil
	}

	msg, err := protocol.NewMessage(msgType, payload, id)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// Close shuts the channel down deliberately; no reconnection is attempted.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Closing
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = conn.Close()
	}

	c.mu.Lock()
	c.state = Closed
	c.mu.Unlock()
	return err
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			deliberate := c.state == Closing || c.state == Closed
			c.mu.Unlock()
			if deliberate {
				return
			}
			c.cfg.Logger.Printf("channel: connection lost: %v", err)
			c.reconnect(err)
			return
		}

		msg, err := protocol.Parse(raw)
		if err != nil {
			c.cfg.Logger.Printf("channel: %v", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg protocol.Message) {
	c.mu.Lock()
	handlers := c.handlers[msg.Type]
	c.mu.Unlock()

	// Unknown types are ignored, not treated as protocol errors.
	for _, h := range handlers {
		h(msg)
	}
}

// reconnect retries the connection with bounded backoff: attempt n waits
// base*n. After the cap the channel is terminally Closed and the error is
// surfaced via OnDisconnect.
func (c *Channel) reconnect(cause error) {
	c.mu.Lock()
	c.state = Reconnecting
	c.mu.Unlock()

	lastErr := cause
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		time.Sleep(c.cfg.ReconnectBaseDelay * time.Duration(attempt))

		c.mu.Lock()
		if c.state != Reconnecting {
			// Closed deliberately while waiting.
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, _, err := c.cfg.Dialer.Dial(c.cfg.URL, nil)
		if err != nil {
			lastErr = err
			c.cfg.Logger.Printf("channel: reconnect attempt %d/%d failed: %v",
				attempt, c.cfg.MaxReconnectAttempts, err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = Open
		c.mu.Unlock()
		c.cfg.Logger.Printf("channel: reconnected after %d attempt(s)", attempt)

		go c.readLoop(conn)
		return
	}

	c.mu.Lock()
	c.state = Closed
	c.mu.Unlock()
	c.cfg.Logger.Printf("channel: giving up after %d reconnect attempts", c.cfg.MaxReconnectAttempts)
	if c.cfg.OnDisconnect != nil {
		c.cfg.OnDisconnect(fmt.Errorf("connection lost after %d reconnect attempts: %w",
			c.cfg.MaxReconnectAttempts, lastErr))
	}
}
