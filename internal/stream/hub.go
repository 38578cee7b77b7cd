package stream

import (
	"net/http"
	"sync"
	"time"

	"stock-price-checker/internal/metrics"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

// Event announces an accepted like.
type Event struct {
	Stock string    `json:"stock"`
	Likes int       `json:"likes"`
	At    time.Time `json:"at"`
}

// Publisher receives like events from the request path.
type Publisher interface {
	Publish(Event)
}

type subscriber struct {
	send chan Event
}

// Hub fans like events out to websocket subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	done    chan struct{}
	closed  bool
	metrics *metrics.Metrics

	upgrader websocket.Upgrader
}

func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.GetMetrics()
	}
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		done:    make(chan struct{}),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		select {
		case sub.send <- ev:
		default:
			h.metrics.IncrementDroppedEvent()
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[sub] = struct{}{}
	h.metrics.IncrementSubscriber()
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		h.metrics.DecrementSubscriber()
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away or the hub is closed. Client messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("like stream upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	sub := &subscriber{send: make(chan Event, sendBuffer)}
	if !h.add(sub) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		return
	}
	defer h.remove(sub)

	log.Debugf("like stream subscriber %s connected", r.RemoteAddr)

	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debugf("like stream write to %s failed: %v", r.RemoteAddr, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-gone:
			log.Debugf("like stream subscriber %s disconnected", r.RemoteAddr)
			return
		case <-h.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeTimeout))
			return
		}
	}
}
