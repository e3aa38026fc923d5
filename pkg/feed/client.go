// Package feed provides a WebSocket client for the live stream of a running
// ddos-radar console.
package feed

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hervehildenbrand/ddos-radar/pkg/view"
)

const (
	// Connection settings
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 1 * time.Minute
	reconnectBackoff      = 2.0
	pingInterval          = 30 * time.Second
	connectionTimeout     = 10 * time.Second
	writeTimeout          = 10 * time.Second
)

// ErrNotConnected is returned when a frame is written while disconnected.
var ErrNotConnected = errors.New("feed: not connected")

// Client follows a console websocket with automatic reconnection.
type Client struct {
	url     string
	updates chan<- Update
	done    chan struct{}
	wg      sync.WaitGroup

	writeMu sync.Mutex
	conn    *websocket.Conn

	// Stats
	messagesReceived uint64
	updatesParsed    uint64
	errors           uint64
	reconnects       uint64

	// State
	running   atomic.Bool
	connected atomic.Bool
}

// NewClient creates a client for a console websocket URL such as
// ws://localhost:8080/ws.
func NewClient(url string, updates chan<- Update) *Client {
	return &Client{
		url:     url,
		updates: updates,
		done:    make(chan struct{}),
	}
}

// Start begins the WebSocket connection in a goroutine.
func (c *Client) Start() {
	if c.running.Swap(true) {
		log.Printf("[feed] Client already running")
		return
	}

	c.wg.Add(1)
	go c.runLoop()
	log.Printf("[feed] Client started for %s", c.url)
}

// Stop gracefully shuts down the client.
func (c *Client) Stop() {
	if !c.running.Swap(false) {
		return
	}
	close(c.done)
	c.wg.Wait()
	log.Printf("[feed] Client stopped")
}

// Connected reports whether the client currently holds a connection.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// SetTrafficFilter asks the console to change its traffic filter.
func (c *Client) SetTrafficFilter(f view.Filter) error {
	return c.write(map[string]interface{}{
		"type":   "set_traffic_filter",
		"filter": f,
	})
}

func (c *Client) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Stats returns current statistics.
func (c *Client) Stats() map[string]interface{} {
	return map[string]interface{}{
		"url":               c.url,
		"connected":         c.connected.Load(),
		"messages_received": atomic.LoadUint64(&c.messagesReceived),
		"updates_parsed":    atomic.LoadUint64(&c.updatesParsed),
		"errors":            atomic.LoadUint64(&c.errors),
		"reconnects":        atomic.LoadUint64(&c.reconnects),
	}
}

func (c *Client) runLoop() {
	defer c.wg.Done()

	reconnectDelay := initialReconnectDelay

	for c.running.Load() {
		streamed, err := c.connectAndStream()
		if err != nil {
			atomic.AddUint64(&c.errors, 1)
			atomic.AddUint64(&c.reconnects, 1)
			log.Printf("[feed] Connection error: %v, reconnecting in %v", err, reconnectDelay)
		}
		if streamed {
			reconnectDelay = initialReconnectDelay
		}

		select {
		case <-c.done:
			return
		case <-time.After(reconnectDelay):
			reconnectDelay = time.Duration(float64(reconnectDelay) * reconnectBackoff)
			if reconnectDelay > maxReconnectDelay {
				reconnectDelay = maxReconnectDelay
			}
		}
	}
}

// connectAndStream reads frames until the connection breaks. streamed is set
// once at least one frame arrived.
func (c *Client) connectAndStream() (streamed bool, err error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: connectionTimeout,
	}

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.connected.Store(true)
	log.Printf("[feed] Connected to %s", c.url)

	defer func() {
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		c.connected.Store(false)
	}()

	pingDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			case <-pingDone:
				return
			case <-c.done:
				// Unblocks ReadMessage
				conn.Close()
				return
			}
		}
	}()
	defer close(pingDone)

	for c.running.Load() {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return streamed, nil
			}
			if !c.running.Load() {
				return streamed, nil
			}
			return streamed, fmt.Errorf("read failed: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		streamed = true
		atomic.AddUint64(&c.messagesReceived, 1)

		update, err := ParseMessage(message)
		if err != nil {
			if atomic.AddUint64(&c.errors, 1) <= 10 {
				log.Printf("[feed] Parse error: %v", err)
			}
			continue
		}
		if update == nil {
			continue
		}
		parsed := atomic.AddUint64(&c.updatesParsed, 1)
		// Non-blocking send to channel
		select {
		case c.updates <- *update:
		default:
			if parsed%1000 == 0 {
				log.Printf("[feed] Update channel full, dropping update")
			}
		}
	}
	return streamed, nil
}
