package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ChangeEvent is broadcast to every connected /ws/changes client whenever a
// put or delete commits successfully.
type ChangeEvent struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ChangeFeed fans out ChangeEvents to every connected websocket client. It
// holds no history; a client only sees changes that happen while connected.
type ChangeFeed struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewChangeFeed returns an empty feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{clients: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection. It blocks reading (and discarding) client frames until the
// connection closes, which is what drives cleanup on disconnect.
func (f *ChangeFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.clients[conn] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends event to every connected client, dropping any client whose
// write fails.
func (f *ChangeFeed) Broadcast(event ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// Close disconnects every client.
func (f *ChangeFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		conn.Close()
	}
	f.clients = make(map[*websocket.Conn]struct{})
}
