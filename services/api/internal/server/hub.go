package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cowly/internal/util"
	"cowly/pkg/events"
)

const (
	hubSendBuffer = 16
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = hubPongWait * 9 / 10
)

// Hub fans reading events out to the websocket clients of the owning user.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	userID string
	send   chan events.ReadingEvent
}

// NewHub builds a hub that accepts upgrades from allowedOrigins ("*" allows
// any origin; an empty list only allows same-host requests).
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{clients: make(map[*hubClient]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSpace(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Publish delivers ev to every client of ev.UserID. A client whose buffer is
// full misses the event rather than stalling the others.
func (h *Hub) Publish(ev events.ReadingEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID != ev.UserID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			slog.Warn("live client too slow, dropping event", "user_id", c.userID, "cow_id", ev.CowID)
		}
	}
}

// Run consumes sub until ctx ends, publishing each event.
func (h *Hub) Run(ctx context.Context, sub *events.Subscription) error {
	return sub.Run(ctx, h.Publish)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *hubClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// serveWS upgrades the request and streams the user's events until the
// client goes away.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request, userID string) {
	logger := util.LoggerFromContext(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &hubClient{userID: userID, send: make(chan events.ReadingEvent, hubSendBuffer)}
	h.register(c)
	logger.Info("live client connected", "user_id", userID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(hubPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(hubPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		h.unregister(c)
		_ = conn.Close()
		logger.Info("live client disconnected", "user_id", userID)
	}()
	for {
		select {
		case <-done:
			return
		case ev := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
