package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"hichat/internal/domain"
	"hichat/internal/hub"
	"hichat/internal/security"
	"hichat/internal/service"
)

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractToken pulls the credential from the query string (how browser
// clients pass it at connect time), the Authorization header, or the
// bearer websocket subprotocol.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	return ""
}

// session is one authenticated realtime connection.
type session struct {
	hub   *hub.Hub
	conn  hub.Conn
	user  *domain.User
	chats *service.ChatService
}

// MakeHandler returns the HTTP handler for the /ws endpoint. The handshake
// authenticates via token before any event processing; an invalid or missing
// token rejects the connection. After upgrade the connection registers with
// the hub and events are dispatched until the transport closes:
//   - join chat     -> subscribe this connection to a chat room
//   - chat message  -> persist, push to room, push unread deltas
//   - webrtc-*      -> forward to the target user's connections
func MakeHandler(
	h *hub.Hub,
	tokens *security.TokenService,
	users domain.UserRepository,
	chats *service.ChatService,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr := extractToken(r)
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		userID, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := users.GetByID(ctx, userID)
		if err != nil || user == nil {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// The request context dies with the handshake; events on this
		// connection outlive it.
		ctx = context.Background()

		sess := &session{hub: h, conn: conn, user: user, chats: chats}

		if h.Register(user.ID, conn) {
			h.BroadcastAll(NewPresenceEvent(user.ID, true))
		}
		defer func() {
			if h.Unregister(user.ID, conn) {
				h.BroadcastAll(NewPresenceEvent(user.ID, false))
			}
		}()

		for {
			var payload map[string]any
			if err := conn.ReadJSON(&payload); err != nil {
				break
			}
			sess.handleEvent(ctx, payload)
		}
	}
}

// handleEvent dispatches one inbound event. Failures on this path are logged
// and dropped: the relay has no error channel back to the sender.
func (s *session) handleEvent(ctx context.Context, payload map[string]any) {
	evType, _ := payload["type"].(string)
	switch evType {

	case EventJoinChat:
		chatID, _ := payload["chat_id"].(string)
		if chatID == "" {
			return
		}
		ok, err := s.chats.IsMember(ctx, chatID, s.user.ID)
		if err != nil {
			log.Printf("ws: join chat %s: %v", chatID, err)
			return
		}
		if !ok {
			log.Printf("ws: drop join of %s by non-member %s", chatID, s.user.ID)
			return
		}
		s.hub.JoinRoom(chatID, s.conn)

	case EventChatMessage:
		chatID, _ := payload["chat_id"].(string)
		text, _ := payload["text"].(string)
		replyTo, _ := payload["reply_to"].(string)
		msg, counts, err := s.chats.AppendMessage(ctx, chatID, s.user.ID, text, replyTo)
		if err != nil {
			log.Printf("ws: drop message from %s: %v", s.user.ID, err)
			return
		}
		s.hub.SendToRoom(chatID, NewMessageEvent(msg))
		for uid, unread := range counts {
			if uid == s.user.ID {
				continue
			}
			s.hub.SendToUser(uid, NewUnreadEvent(chatID, unread))
		}

	case EventCallOffer, EventCallAnswer, EventCallICECandidate,
		EventCallReject, EventCallEnd, EventCallMuteToggle:
		s.forwardCallEvent(evType, payload)

	default:
		log.Printf("ws: unknown event type %q from user %s", evType, s.user.ID)
	}
}

// forwardCallEvent re-emits a signaling event to every live connection of the
// target user. The relay keeps no call state and checks no call semantics; a
// target with zero connections means the event vanishes and the caller's
// client times out on its own.
func (s *session) forwardCallEvent(evType string, payload map[string]any) {
	targetID, _ := payload["target_user_id"].(string)
	callID, _ := payload["call_id"].(string)
	if targetID == "" || callID == "" {
		log.Printf("ws: drop %s from %s without target or call id", evType, s.user.ID)
		return
	}

	fwd := map[string]any{
		"type":      evType,
		"caller_id": s.user.ID,
		"call_id":   callID,
	}
	if evType == EventCallOffer {
		fwd["caller_username"] = s.user.Username
		fwd["caller_avatar"] = s.user.Avatar
	}
	for _, key := range []string{"sdp", "candidate", "muted"} {
		if v, ok := payload[key]; ok {
			fwd[key] = v
		}
	}

	s.hub.SendToUser(targetID, fwd)
}
