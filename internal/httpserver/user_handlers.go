package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hichat/internal/hub"
	"hichat/internal/service"
)

func handleSearchUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profiles, err := userSvc.Search(r.Context(), r.URL.Query().Get("username"), 50)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profiles)
	}
}

func handleGetUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := userSvc.GetPublicProfile(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

type profileUpdateRequest struct {
	Username *string `json:"username"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
}

func handleUpdateProfile(userSvc *service.UserService, h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req profileUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		user, err := userSvc.UpdateProfile(r.Context(), currentUser.ID, service.ProfileUpdateInput{
			Username: req.Username,
			Bio:      req.Bio,
			Avatar:   req.Avatar,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Avatar   string `json:"avatar"`
			Bio      string `json:"bio"`
			Online   bool   `json:"online"`
		}{
			ID:       user.ID,
			Username: user.Username,
			Avatar:   user.Avatar,
			Bio:      user.Bio,
			Online:   h.IsOnline(user.ID),
		})
	}
}
