package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hervehildenbrand/ddos-radar/pkg/engine"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	"github.com/hervehildenbrand/ddos-radar/pkg/view"
)

const (
	// Connection settings
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// Frame types.
const (
	FrameViewUpdate       = "view_update"
	FrameSetTrafficFilter = "set_traffic_filter"
	FrameEvent            = "event"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type   string       `json:"type"`
	View   string       `json:"view,omitempty"`
	Data   interface{}  `json:"data,omitempty"`
	Filter *view.Filter `json:"filter,omitempty"`
}

// Hub pushes view updates to every connected browser.
type Hub struct {
	eng      *engine.Engine
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	// Stats
	connects      uint64
	framesSent    uint64
	framesDropped uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	// filter is the client's own traffic filter, unfiltered until it sends one.
	mu     sync.Mutex
	filter view.Filter
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a hub and registers it for engine changes.
func NewHub(eng *engine.Engine) *Hub {
	h := &Hub{
		eng:     eng,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	eng.OnChange(h.Publish)
	return h
}

// Publish sends the current state of one view to every client.
func (h *Hub) Publish(name string) {
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	if n == 0 {
		return
	}

	if name == engine.ViewTraffic {
		h.publishTraffic()
		return
	}

	payload, err := h.frame(name)
	if err != nil {
		log.Printf("[ws] Failed to encode %s: %v", name, err)
		return
	}
	h.broadcast(payload)
}

// publishTraffic sends each client the traffic view computed for its own
// filter. Clients sharing a filter share one encoded frame. The engine's
// stored filter only drives the terminal printer.
func (h *Hub) publishTraffic() {
	h.mu.Lock()
	defer h.mu.Unlock()

	payloads := make(map[view.Filter][]byte)
	for c := range h.clients {
		c.mu.Lock()
		payload, ok := payloads[c.filter]
		if !ok {
			var err error
			payload, err = h.trafficFrame(c.filter)
			if err != nil {
				c.mu.Unlock()
				log.Printf("[ws] Failed to encode traffic: %v", err)
				return
			}
			payloads[c.filter] = payload
		}
		h.enqueue(c, payload)
		c.mu.Unlock()
	}
}

// setFilter stores a client's traffic filter and answers with the view
// recomputed for it. Other clients are not affected.
func (h *Hub) setFilter(c *client, f view.Filter) {
	f = f.Normalized()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
	payload, err := h.trafficFrame(f)
	if err != nil {
		log.Printf("[ws] Failed to encode traffic: %v", err)
		return
	}
	h.enqueue(c, payload)
}

func (h *Hub) trafficFrame(f view.Filter) ([]byte, error) {
	return json.Marshal(Frame{Type: FrameViewUpdate, View: engine.ViewTraffic, Data: h.eng.ComputeTraffic(f)})
}

// PublishEvent sends a detector event to every client.
func (h *Hub) PublishEvent(event models.Event) {
	payload, err := json.Marshal(Frame{Type: FrameEvent, Data: event})
	if err != nil {
		log.Printf("[ws] Failed to encode event: %v", err)
		return
	}
	h.broadcast(payload)
}

func (h *Hub) frame(name string) ([]byte, error) {
	return json.Marshal(Frame{Type: FrameViewUpdate, View: name, Data: ViewData(h.eng, name, nil)})
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueue(c, payload)
	}
}

func (h *Hub) enqueue(c *client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		// Slow client, drop the frame. The next update carries full state.
		dropped := atomic.AddUint64(&h.framesDropped, 1)
		if dropped%100 == 1 {
			log.Printf("[ws] Client send buffer full, dropped %d frames", dropped)
		}
	}
}

// ServeWS upgrades the request and streams updates until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] Upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		filter: view.Filter{}.Normalized(),
	}

	// Initial state for every view
	for _, name := range []string{engine.ViewTraffic, engine.ViewBlacklist, engine.ViewNotifications, engine.ViewSummary, engine.ViewChat} {
		var payload []byte
		var err error
		if name == engine.ViewTraffic {
			payload, err = h.trafficFrame(c.filter)
		} else {
			payload, err = h.frame(name)
		}
		if err != nil {
			continue
		}
		c.send <- payload
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	atomic.AddUint64(&h.connects, 1)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		var in Frame
		if err := c.conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws] Read failed: %v", err)
			}
			return
		}
		switch in.Type {
		case FrameSetTrafficFilter:
			if in.Filter != nil {
				h.setFilter(c, *in.Filter)
			}
		default:
			log.Printf("[ws] Ignoring frame type %q", in.Type)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(c)
				return
			}
			atomic.AddUint64(&h.framesSent, 1)
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// Stats returns current statistics.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	return map[string]interface{}{
		"clients":        n,
		"connects":       atomic.LoadUint64(&h.connects),
		"frames_sent":    atomic.LoadUint64(&h.framesSent),
		"frames_dropped": atomic.LoadUint64(&h.framesDropped),
	}
}
