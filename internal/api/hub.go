package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skyarena/server/internal/core/event"
	"go.uber.org/zap"
)

const writeWait = 2 * time.Second

// Message is one frame of the turn feed.
type Message struct {
	Type string `json:"type"` // "turn", "lease", "stopped"
	Turn int    `json:"turn"`
	Data any    `json:"data,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans engine events out to websocket subscribers. Broadcasts run on the
// engine loop goroutine, so every write is bounded by writeWait.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Attach subscribes the hub to the engine's event bus.
func (h *Hub) Attach(bus *event.Bus) {
	event.Subscribe(bus, func(ev event.TurnResolved) {
		h.Broadcast(Message{Type: "turn", Turn: ev.Turn, Data: ev})
	})
	event.Subscribe(bus, func(ev event.LeaseIssued) {
		h.Broadcast(Message{Type: "lease", Turn: ev.Turn, Data: ev})
	})
	event.Subscribe(bus, func(ev event.EngineStopped) {
		h.Broadcast(Message{Type: "stopped", Turn: ev.Turn, Data: ev})
	})
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast sends msg to every subscriber, dropping the ones that fail.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal feed message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if err := s.write(data); err != nil {
			h.log.Debug("feed subscriber dropped", zap.Error(err))
			h.remove(s)
		}
	}
}

// ServeWS upgrades the request and keeps the subscriber until it disconnects.
// Inbound frames are read and discarded.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("remote", c.ClientIP()), zap.Error(err))
		return
	}
	s := &subscriber{conn: conn}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("feed subscriber joined", zap.String("remote", c.ClientIP()))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(s)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()
	for s := range subs {
		s.mu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "node shutting down"),
			time.Now().Add(writeWait))
		s.mu.Unlock()
		s.conn.Close()
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	h.mu.Unlock()
	if ok {
		s.conn.Close()
	}
}
