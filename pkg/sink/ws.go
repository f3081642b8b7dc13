package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/gwillem/glove/pkg/pose"
)

const (
	// Time allowed to write one message to a client.
	writeWait = time.Second

	// Outgoing messages buffered per client. A client that falls this far
	// behind misses snapshots.
	sendBufferSize = 32
)

// WSMessage is the envelope sent to browser clients.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub broadcasts pose snapshots to connected WebSocket clients and serves
// the latest snapshot over HTTP. Apply never waits on a client: each client
// has its own writer goroutine.
type WSHub struct {
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	last     pose.Snapshot
	havePose bool
	dropped  uint64
}

// NewWSHub returns a hub with no clients.
func NewWSHub() *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Name identifies the sink in logs.
func (h *WSHub) Name() string {
	return "websocket"
}

// Handler serves /ws, /api/pose and /api/status.
func (h *WSHub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/api/pose", h.handlePose)
	mux.HandleFunc("/api/status", h.handleStatus)
	return mux
}

func (h *WSHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("err", err).Warn("ws: upgrade failed")
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.WithField("remote", r.RemoteAddr).Debug("ws: client connected")

	go h.writePump(c)

	// Reads only detect the close; clients never send anything we use.
	go func() {
		defer h.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writePump drains c.send onto the connection until the hub closes the
// channel or a write fails.
func (h *WSHub) writePump(c *wsClient) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.WithField("err", err).Debug("ws: write failed, dropping client")
			h.remove(c)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *WSHub) handlePose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	h.mu.RLock()
	snap, ok := h.last, h.havePose
	h.mu.RUnlock()
	if !ok {
		http.Error(w, "no pose yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.WithField("err", err).Warn("ws: encode pose")
	}
}

// HubStatus is served at /api/status.
type HubStatus struct {
	Clients  int    `json:"clients"`
	HavePose bool   `json:"have_pose"`
	Seq      uint64 `json:"seq"`
	Dropped  uint64 `json:"dropped"`
}

func (h *WSHub) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	st := HubStatus{Clients: h.Clients()}
	h.mu.RLock()
	st.HavePose, st.Seq, st.Dropped = h.havePose, h.last.Seq, h.dropped
	h.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.WithField("err", err).Warn("ws: encode status")
	}
}

// remove unregisters c and closes its connection. Safe to call more than
// once.
func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Apply stores the snapshot and queues it for every client. A client whose
// buffer is full misses this snapshot.
func (h *WSHub) Apply(_ context.Context, snap pose.Snapshot) error {
	b, err := json.Marshal(WSMessage{Type: "pose", Data: snap})
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = snap
	h.havePose = true
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped++
		}
	}
	return nil
}

// Serve runs an HTTP server for the hub until ctx is done.
func (h *WSHub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.WithField("addr", addr).Info("ws: listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects every client.
func (h *WSHub) Close() error {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.remove(c)
	}
	return nil
}
