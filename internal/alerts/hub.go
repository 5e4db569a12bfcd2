package alerts

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"urban-issue-service/internal/logging"
)

const (
	maxSubscribers = 100
	sendBuffer     = 16
	writeWait      = 10 * time.Second
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks the websocket connections of dispatch dashboards. Each
// subscriber has its own buffered queue drained by a writer goroutine, so a
// dashboard that stops reading never blocks Broadcast.
type Hub struct {
	subscribers map[*websocket.Conn]*subscriber
	mutex       sync.Mutex
	logger      *logging.Logger
	writeWait   time.Duration
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		subscribers: make(map[*websocket.Conn]*subscriber),
		logger:      logger,
		writeWait:   writeWait,
	}
}

// Add registers a connection and starts its writer. It reports false when
// the hub is full.
func (h *Hub) Add(conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.subscribers) >= maxSubscribers {
		h.logger.Warnf("Max websocket subscribers reached (%d)", maxSubscribers)
		return false
	}
	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.subscribers[conn] = s
	go h.write(s)
	h.logger.Infof("Added websocket subscriber (total: %d)", len(h.subscribers))
	return true
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.drop(conn) {
		h.logger.Infof("Removed websocket subscriber (remaining: %d)", len(h.subscribers))
	}
}

// drop unregisters conn and stops its writer. Callers hold the mutex.
func (h *Hub) drop(conn *websocket.Conn) bool {
	s, ok := h.subscribers[conn]
	if !ok {
		return false
	}
	delete(h.subscribers, conn)
	close(s.send)
	return true
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.subscribers)
}

// Broadcast queues message for every subscriber without blocking. A
// subscriber whose queue is full is disconnected.
func (h *Hub) Broadcast(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn, s := range h.subscribers {
		select {
		case s.send <- message:
		default:
			h.logger.Warnf("Websocket subscriber %s is not keeping up, disconnecting", conn.RemoteAddr())
			h.drop(conn)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.subscribers {
		h.drop(conn)
	}
}

func (h *Hub) write(s *subscriber) {
	defer s.conn.Close()
	for message := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to send websocket message: %v", err)
			h.Remove(s.conn)
			return
		}
	}
	s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
