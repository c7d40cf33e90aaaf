package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"socialsync/internal/httputil"
	"socialsync/internal/model"
	"socialsync/internal/service"
)

type UserHandler struct {
	userService  *service.UserService
	mediaService *service.MediaService
}

// NewUserHandler creates the profile handler. mediaService may be nil when
// no bucket is configured; avatar uploads then answer 503.
func NewUserHandler(userService *service.UserService, mediaService *service.MediaService) *UserHandler {
	return &UserHandler{
		userService:  userService,
		mediaService: mediaService,
	}
}

// Me handles GET /me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	user, err := h.userService.EnsureProfile(r.Context(), *identity)
	if err != nil {
		writeServiceError(w, r, err, "Me", "Failed to load profile")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// UpdateMe handles PATCH /me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req model.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), identity.UID, req)
	if err != nil {
		writeServiceError(w, r, err, "UpdateProfile", "Failed to update profile")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// ChangePassword handles POST /me/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req model.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		httputil.WriteBadRequest(w, "Current and new password are required")
		return
	}

	if err := h.userService.ChangePassword(r.Context(), identity.UID, &req); err != nil {
		writeServiceError(w, r, err, "ChangePassword", "Failed to change password")
		return
	}

	httputil.WriteMessage(w, "Password changed")
}

// UploadAvatar handles POST /me/avatar
// Expects multipart/form-data with a file field named "avatar".
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.mediaService == nil {
		writeServiceError(w, r, model.ErrMediaStorageDisabled, "UploadAvatar", "")
		return
	}

	up, ok := readUpload(w, r, "avatar", model.MaxImageSizeBytes)
	if !ok {
		return
	}
	defer up.Close()

	result, err := h.mediaService.UploadProfileImage(r.Context(), identity.UID, up.file, up.size, up.contentType)
	if err != nil {
		writeServiceError(w, r, err, "UploadAvatar", "Failed to upload avatar")
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), identity.UID, model.UpdateProfileRequest{PhotoURL: &result.URL})
	if err != nil {
		writeServiceError(w, r, err, "UploadAvatar", "Failed to update profile")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// GetProfile handles GET /users/{id}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		httputil.WriteBadRequest(w, "Invalid user ID")
		return
	}

	profile, err := h.userService.GetProfile(r.Context(), userID, viewerID(r))
	if err != nil {
		writeServiceError(w, r, err, "GetProfile", "Failed to load profile")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, profile)
}

// Search handles GET /users/search?q=
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		httputil.WriteBadRequest(w, "Query parameter 'q' is required")
		return
	}

	limit, _, ok := pageParams(w, r)
	if !ok {
		return
	}

	users, err := h.userService.Search(r.Context(), query, limit)
	if err != nil {
		writeServiceError(w, r, err, "Search", "Failed to search users")
		return
	}
	if users == nil {
		users = []model.UserSummary{}
	}

	httputil.WriteJSON(w, http.StatusOK, model.UserSearchResponse{Users: users})
}
