package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"socialsync/internal/httputil"
	"socialsync/internal/logging"
	"socialsync/internal/model"
	"socialsync/internal/service"
)

type CommentHandler struct {
	commentService *service.CommentService
}

func NewCommentHandler(commentService *service.CommentService) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
	}
}

// Create handles POST /posts/{id}/comments
// Blank text stores nothing and answers 204.
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req model.CreateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	postID := chi.URLParam(r, "id")
	comment, err := h.commentService.Add(r.Context(), *identity, postID, req.Text)
	if err != nil && comment == nil {
		writeServiceError(w, r, err, "CreateComment", "Failed to create comment")
		return
	}
	if err != nil {
		// Stored; only the notification failed
		logging.For("http").WithError(err).WithField("post_id", postID).Warn("CreateComment notification FAILED")
	}
	if comment == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, comment)
}

// List handles GET /posts/{id}/comments
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.commentService.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "ListComments", "Failed to get comments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /posts/{id}/comments/{commentId}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	err := h.commentService.Delete(r.Context(), *identity, chi.URLParam(r, "id"), chi.URLParam(r, "commentId"))
	if err != nil {
		writeServiceError(w, r, err, "DeleteComment", "Failed to delete comment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
