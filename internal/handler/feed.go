package handler

import (
	"net/http"

	"socialsync/internal/httputil"
	"socialsync/internal/service"
)

type FeedHandler struct {
	feedService *service.FeedService
}

func NewFeedHandler(feedService *service.FeedService) *FeedHandler {
	return &FeedHandler{
		feedService: feedService,
	}
}

// GetFeed handles GET /feed
// Returns the home feed: posts and shares of the caller and their friends.
//
// Query params:
//   - cursor: optional, opaque cursor from the previous page's next_cursor
//   - limit: optional, number of posts per page (default 20, max 50)
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}

	feed, err := h.feedService.HomeFeed(r.Context(), identity.UID, limit, cursor)
	if err != nil {
		writeServiceError(w, r, err, "GetFeed", "Failed to get feed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, feed)
}
