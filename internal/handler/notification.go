package handler

import (
	"net/http"
	"strings"

	"socialsync/internal/httputil"
	"socialsync/internal/model"
	"socialsync/internal/service"
)

type NotificationHandler struct {
	notifService *service.NotificationService
}

func NewNotificationHandler(notifService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notifService: notifService,
	}
}

// List handles GET /notifications
// Returns the caller's notifications newest first with the unread count.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}

	notifications, err := h.notifService.List(r.Context(), identity.UID, limit, cursor)
	if err != nil {
		writeServiceError(w, r, err, "ListNotifications", "Failed to get notifications")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, notifications)
}

// Activity handles GET /notifications/activity
func (h *NotificationHandler) Activity(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	resp, err := h.notifService.Activity(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(w, r, err, "Activity", "Failed to get activity")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// MarkRead handles POST /notifications/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req model.MarkReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.NotificationIDs) == 0 {
		httputil.WriteBadRequest(w, "notification_ids is required")
		return
	}

	if err := h.notifService.MarkAsRead(r.Context(), identity.UID, req.NotificationIDs); err != nil {
		writeServiceError(w, r, err, "MarkRead", "Failed to mark notifications as read")
		return
	}

	httputil.WriteMessage(w, "Notifications marked as read")
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.notifService.MarkAllAsRead(r.Context(), identity.UID); err != nil {
		writeServiceError(w, r, err, "MarkAllRead", "Failed to mark all notifications as read")
		return
	}

	httputil.WriteMessage(w, "All notifications marked as read")
}

// GetUnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	count, err := h.notifService.GetUnreadCount(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(w, r, err, "GetUnreadCount", "Failed to get unread count")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"unread_count": count,
	})
}

// Delete handles DELETE /notifications
// Depending on the configured mode the ids are removed or only acknowledged.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req model.DeleteNotificationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.NotificationIDs) == 0 {
		httputil.WriteBadRequest(w, "notification_ids is required")
		return
	}

	resp, err := h.notifService.Delete(r.Context(), identity.UID, req.NotificationIDs)
	if err != nil {
		writeServiceError(w, r, err, "DeleteNotifications", "Failed to delete notifications")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// RegisterToken handles POST /devices
// Registers a push token for the caller's device.
func (h *NotificationHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req model.RegisterTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}
	if !model.IsValidPlatform(req.Platform) {
		httputil.WriteBadRequest(w, "platform must be ios or android")
		return
	}

	if err := h.notifService.RegisterDeviceToken(r.Context(), identity.UID, req.Token, req.Platform); err != nil {
		writeServiceError(w, r, err, "RegisterToken", "Failed to register device token")
		return
	}

	httputil.WriteMessage(w, "Device token registered")
}

// RemoveToken handles DELETE /devices
func (h *NotificationHandler) RemoveToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req model.RegisterTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	if err := h.notifService.RemoveDeviceToken(r.Context(), identity.UID, req.Token); err != nil {
		writeServiceError(w, r, err, "RemoveToken", "Failed to remove device token")
		return
	}

	httputil.WriteMessage(w, "Device token removed")
}
