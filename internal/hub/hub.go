// Package hub holds the in-memory connection registry: which users have live
// realtime connections, and which connections are subscribed to which chat
// rooms. It is constructed once per process and reached only through its
// methods.
package hub

import "sync"

// Conn is one live realtime connection handle. *websocket.Conn satisfies it;
// tests substitute in-memory fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Hub maps user ids to their live connections and chat ids to subscribed
// connections. A user may hold any number of concurrent connections
// (multi-device); presence is "any connection alive".
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}
	rooms map[string]map[Conn]struct{}
}

func New() *Hub {
	return &Hub{
		conns: make(map[string]map[Conn]struct{}),
		rooms: make(map[string]map[Conn]struct{}),
	}
}

// Register adds a connection for the given user. It returns true only on the
// 0->1 transition, so callers fire the online presence event exactly once no
// matter how many devices attach afterwards.
func (h *Hub) Register(userID string, conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := len(h.conns[userID]) == 0
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
	return first
}

// Unregister removes a connection for the given user and drops it from every
// room. It returns true only on the 1->0 transition; removing one of several
// connections reports false.
func (h *Hub) Unregister(userID string, conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
	for chatID, members := range h.rooms {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.rooms, chatID)
		}
	}
	return len(h.conns[userID]) == 0
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// JoinRoom subscribes a connection to a chat room. Messages for a chat are
// pushed only to subscribed connections.
func (h *Hub) JoinRoom(chatID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[chatID] == nil {
		h.rooms[chatID] = make(map[Conn]struct{})
	}
	h.rooms[chatID][conn] = struct{}{}
}

// SendToRoom sends the payload to every connection subscribed to the chat.
func (h *Hub) SendToRoom(chatID string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.rooms[chatID] {
		writeOrClose(conn, payload)
	}
}

// SendToUser sends the payload to all live connections of one user. A user
// with no connections receives nothing; that is not an error.
func (h *Hub) SendToUser(userID string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.conns[userID] {
		writeOrClose(conn, payload)
	}
}

// BroadcastToUsers sends the payload to all live connections of the given
// users.
func (h *Hub) BroadcastToUsers(userIDs []string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, uid := range userIDs {
		for conn := range h.conns[uid] {
			writeOrClose(conn, payload)
		}
	}
}

// BroadcastAll sends the payload to every connected user.
func (h *Hub) BroadcastAll(payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.conns {
		for conn := range conns {
			writeOrClose(conn, payload)
		}
	}
}

func writeOrClose(conn Conn, payload any) {
	if err := conn.WriteJSON(payload); err != nil {
		conn.Close()
		// actual removal happens when the reader notices the closed
		// transport and unregisters; a stale conn may linger briefly
	}
}
