package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"socialsync/internal/httputil"
	"socialsync/internal/model"
	"socialsync/internal/service"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// Conversations handles GET /chats
// Lists the caller's conversations newest first with unread counts.
func (h *ChatHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	resp, err := h.chatService.Conversations(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(w, r, err, "Conversations", "Failed to get conversations")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// History handles GET /chats/{peerId}/messages
// Query params:
//   - before: optional, id of the oldest message the client already has
//   - limit: optional, page size
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}

	resp, err := h.chatService.History(r.Context(), identity.UID, chi.URLParam(r, "peerId"), limit, cursor)
	if err != nil {
		writeServiceError(w, r, err, "History", "Failed to get messages")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Send handles POST /chats/{peerId}/messages
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.chatService.Send(r.Context(), *identity, chi.URLParam(r, "peerId"), req.Content)
	if err != nil {
		writeServiceError(w, r, err, "SendMessage", "Failed to send message")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, msg)
}

// SendVoice handles POST /chats/{peerId}/voice
// Expects multipart/form-data with a file field named "audio".
func (h *ChatHandler) SendVoice(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	up, ok := readUpload(w, r, "audio", model.MaxAudioSizeBytes)
	if !ok {
		return
	}
	defer up.Close()

	msg, err := h.chatService.SendVoice(r.Context(), *identity, chi.URLParam(r, "peerId"), up.file, up.size, up.contentType)
	if err != nil {
		writeServiceError(w, r, err, "SendVoice", "Failed to send voice message")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, msg)
}

// MarkRead handles POST /chats/{peerId}/messages/{messageId}/read
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	err := h.chatService.MarkRead(r.Context(), identity.UID, chi.URLParam(r, "peerId"), chi.URLParam(r, "messageId"))
	if err != nil {
		writeServiceError(w, r, err, "MarkMessageRead", "Failed to mark message as read")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /chats/{peerId}/read
func (h *ChatHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	marked, err := h.chatService.MarkAllRead(r.Context(), identity.UID, chi.URLParam(r, "peerId"))
	if err != nil {
		writeServiceError(w, r, err, "MarkChatRead", "Failed to mark messages as read")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"marked": marked,
	})
}
