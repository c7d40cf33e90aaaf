package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"socialsync/internal/httputil"
	"socialsync/internal/model"
	"socialsync/internal/service"
)

type FriendHandler struct {
	friendService *service.FriendService
}

func NewFriendHandler(friendService *service.FriendService) *FriendHandler {
	return &FriendHandler{
		friendService: friendService,
	}
}

// List handles GET /friends
func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	resp, err := h.friendService.ListFriends(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(w, r, err, "ListFriends", "Failed to get friends")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Requests handles GET /friends/requests
// Lists the pending requests addressed to the caller.
func (h *FriendHandler) Requests(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	resp, err := h.friendService.ListRequests(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(w, r, err, "ListRequests", "Failed to get friend requests")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Status handles GET /friends/{id}/status
func (h *FriendHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	otherID := chi.URLParam(r, "id")
	status, err := h.friendService.Status(r.Context(), identity.UID, otherID)
	if err != nil {
		writeServiceError(w, r, err, "FriendStatus", "Failed to get friend status")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, model.FriendStatusResponse{UserID: otherID, Status: status})
}

// SendRequest handles POST /friends/{id}/request
func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	req, err := h.friendService.SendRequest(r.Context(), *identity, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "SendFriendRequest", "Failed to send friend request")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, req)
}

// CancelRequest handles DELETE /friends/{id}/request
// Withdraws a request the caller sent.
func (h *FriendHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.friendService.CancelRequest(r.Context(), identity.UID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "CancelFriendRequest", "Failed to cancel friend request")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Accept handles POST /friends/requests/{id}/accept
func (h *FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.friendService.AcceptRequest(r.Context(), *identity, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "AcceptFriendRequest", "Failed to accept friend request")
		return
	}

	httputil.WriteMessage(w, "Friend request accepted")
}

// Decline handles DELETE /friends/requests/{id}
func (h *FriendHandler) Decline(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.friendService.DeleteRequest(r.Context(), identity.UID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "DeclineFriendRequest", "Failed to decline friend request")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unfriend handles DELETE /friends/{id}
func (h *FriendHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.friendService.Unfriend(r.Context(), identity.UID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "Unfriend", "Failed to unfriend")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
