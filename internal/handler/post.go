package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"socialsync/internal/httputil"
	"socialsync/internal/model"
	"socialsync/internal/service"
)

type PostHandler struct {
	postService     *service.PostService
	reactionService *service.ReactionService
}

func NewPostHandler(postService *service.PostService, reactionService *service.ReactionService) *PostHandler {
	return &PostHandler{
		postService:     postService,
		reactionService: reactionService,
	}
}

// Create handles POST /posts
// Creates a new post for the authenticated user.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req model.CreatePostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.postService.Create(r.Context(), *identity, req)
	if err != nil {
		writeServiceError(w, r, err, "CreatePost", "Failed to create post")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, post)
}

// GetByID handles GET /posts/{id}
// Returns a single post with counts and viewer flags.
func (h *PostHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")

	post, err := h.postService.Get(r.Context(), postID, viewerID(r))
	if err != nil {
		writeServiceError(w, r, err, "GetPost", "Failed to get post")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

// Delete handles DELETE /posts/{id}
// Only the owner of the copy may delete it.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.postService.Delete(r.Context(), *identity, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "DeletePost", "Failed to delete post")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListRecent handles GET /posts
func (h *PostHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}

	resp, err := h.postService.ListRecent(r.Context(), viewerID(r), limit, cursor)
	if err != nil {
		writeServiceError(w, r, err, "ListRecent", "Failed to list posts")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ListByUser handles GET /users/{id}/posts
func (h *PostHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}

	resp, err := h.postService.ListByUser(r.Context(), chi.URLParam(r, "id"), viewerID(r), limit, cursor)
	if err != nil {
		writeServiceError(w, r, err, "ListByUser", "Failed to list posts")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// React handles POST /posts/{id}/reactions/{kind}
// Toggles the caller's like or laugh on the post.
func (h *PostHandler) React(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	kind, err := model.ParseReactionKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeServiceError(w, r, err, "React", "")
		return
	}

	result, err := h.reactionService.Toggle(r.Context(), *identity, chi.URLParam(r, "id"), kind)
	if err != nil {
		writeServiceError(w, r, err, "React", "Failed to update reaction")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Share handles POST /posts/{id}/share
// Copies the post body into a new post owned by the caller.
func (h *PostHandler) Share(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	post, err := h.postService.Share(r.Context(), *identity, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "SharePost", "Failed to share post")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, post)
}
