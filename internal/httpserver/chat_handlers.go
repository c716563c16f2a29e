package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hichat/internal/domain"
	"hichat/internal/hub"
	"hichat/internal/service"
	"hichat/internal/ws"
)

type chatCreateRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// handleCreateChat finds or lazily creates the direct chat between the caller
// and the requested peer. On first contact the other party's live connections
// are told about the new chat.
func handleCreateChat(chatSvc *service.ChatService, userSvc *service.UserService, h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req chatCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		otherID := req.UserID
		if otherID == "" && req.Username != "" {
			other, err := userSvc.GetByUsername(r.Context(), req.Username)
			if err != nil {
				writeError(w, err)
				return
			}
			if other == nil {
				writeError(w, fmt.Errorf("user %q: %w", req.Username, domain.ErrNotFound))
				return
			}
			otherID = other.ID
		}
		if otherID == "" {
			writeError(w, fmt.Errorf("user_id or username is required: %w", domain.ErrInvalidInput))
			return
		}

		summary, created, err := chatSvc.FindOrCreateChat(r.Context(), currentUser.ID, otherID)
		if err != nil {
			writeError(w, err)
			return
		}

		if created {
			callerProfile := domain.PublicProfileOf(currentUser, h.IsOnline(currentUser.ID))
			h.SendToUser(otherID, ws.NewChatCreatedEvent(summary.ID, callerProfile))
		}

		writeJSON(w, http.StatusOK, summary)
	}
}

func handleListChats(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		summaries, err := chatSvc.ListChatsForUser(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

// handleListMessages returns the chat history and resets the caller's unread
// counter as a side effect.
func handleListMessages(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		msgs, err := chatSvc.ListMessages(r.Context(), chi.URLParam(r, "chatID"), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if msgs == nil {
			msgs = []*domain.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleMarkChatRead(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if err := chatSvc.MarkRead(r.Context(), chi.URLParam(r, "chatID"), currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
