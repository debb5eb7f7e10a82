package sockets

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reserver/pkg/clock"
	"reserver/pkg/logger"
	"reserver/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 32
)

// conn is the subset of *websocket.Conn the hub uses; tests substitute
// their own implementation.
type conn interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type session struct {
	userID int64
	conn   conn
	send   chan Message
	done   chan struct{}
	once   sync.Once
}

// Hub tracks connected websocket sessions per user and fans pushed
// messages out to them. A user can hold several sessions at once, one per
// open tab or device.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[*session]struct{}
	clock    clock.Clock
	log      *logger.Logger
}

func NewHub(clk clock.Clock, log *logger.Logger) *Hub {
	return &Hub{
		sessions: make(map[int64]map[*session]struct{}),
		clock:    clk,
		log:      log,
	}
}

// Attach registers a connection for the user and starts its write pump.
// The returned detach function must be called when the connection ends.
func (h *Hub) Attach(userID int64, c conn) (detach func()) {
	s := &session{
		userID: userID,
		conn:   c,
		send:   make(chan Message, sendBufferSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*session]struct{})
	}
	h.sessions[userID][s] = struct{}{}
	h.mu.Unlock()
	metrics.SocketSessions.Inc()

	go h.writePump(s)
	return func() { h.detach(s) }
}

func (h *Hub) detach(s *session) {
	h.mu.Lock()
	set, ok := h.sessions[s.userID]
	if ok {
		if _, present := set[s]; present {
			delete(set, s)
			if len(set) == 0 {
				delete(h.sessions, s.userID)
			}
			metrics.SocketSessions.Dec()
		} else {
			ok = false
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	s.once.Do(func() { close(s.done) })
	_ = s.conn.Close()
}

// SendToUser delivers a message to every session the user has open. A
// session with a full buffer is dropped rather than blocking the caller.
func (h *Hub) SendToUser(userID int64, message interface{}) {
	msg := h.wrap(message)

	h.mu.RLock()
	var stale []*session
	for s := range h.sessions[userID] {
		select {
		case s.send <- msg:
		default:
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.log.Warn("dropping unresponsive socket session", "user_id", s.userID)
		h.detach(s)
	}
}

// Broadcast delivers a message to every connected session.
func (h *Hub) Broadcast(message interface{}) {
	msg := h.wrap(message)

	h.mu.RLock()
	var stale []*session
	for _, set := range h.sessions {
		for s := range set {
			select {
			case s.send <- msg:
			default:
				stale = append(stale, s)
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.detach(s)
	}
}

// SessionCount reports the number of open sessions for the user.
func (h *Hub) SessionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

func (h *Hub) wrap(message interface{}) Message {
	if msg, ok := message.(Message); ok {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = h.clock.Now()
		}
		return msg
	}
	msgType := ""
	if m, ok := message.(map[string]interface{}); ok {
		if t, ok := m["type"].(string); ok {
			msgType = t
		}
	}
	return Message{Type: msgType, Timestamp: h.clock.Now(), Data: message}
}

func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteJSON(msg); err != nil {
				h.log.Debug("socket write failed", "user_id", s.userID, "error", err)
				h.detach(s)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.detach(s)
				return
			}
		case <-s.done:
			return
		}
	}
}
