package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"socialsync/internal/httputil"
	"socialsync/internal/logging"
	"socialsync/internal/model"
	"socialsync/internal/store"
	"socialsync/internal/transport/http/middleware"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorTable maps domain errors to HTTP responses: validation 400, auth
// 401, ownership 403, missing 404, duplicates 409, unconfigured 503.
var errorTable = []errorMapping{
	// 400
	{model.ErrEmptyPost, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Post needs text or an image"},
	{model.ErrPostTextTooLong, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Post text too long (max 2200 characters)"},
	{model.ErrInvalidReactionKind, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Reaction must be like or laugh"},
	{model.ErrInvalidCursor, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Invalid cursor"},
	{model.ErrContentTooLong, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Comment too long (max 2200 characters)"},
	{model.ErrEmptyMessage, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Message is empty"},
	{model.ErrMessageTooLong, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Message too long (max 4000 characters)"},
	{model.ErrSelfChat, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Cannot chat with yourself"},
	{model.ErrSelfFriendRequest, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Cannot send a friend request to yourself"},
	{model.ErrInvalidEmail, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Invalid email address"},
	{model.ErrInvalidUsername, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Username must be 1-30 letters, digits, dots or underscores"},
	{model.ErrPasswordTooShort, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Password must be at least 6 characters"},
	{model.ErrPasswordMismatch, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Password confirmation does not match"},
	{model.ErrFileTooLarge, http.StatusBadRequest, model.CodeFileTooLarge, "File exceeds the size limit"},
	{model.ErrInvalidImageType, http.StatusBadRequest, model.CodeInvalidImageType, "Unsupported image type. Allowed: jpeg, png, gif, webp"},
	{model.ErrInvalidAudioType, http.StatusBadRequest, model.CodeInvalidAudioType, "Unsupported audio type. Allowed: m4a, aac, mp3, ogg, wav, webm"},
	{store.ErrInvalidPath, http.StatusBadRequest, httputil.ErrCodeBadRequest, "Invalid identifier"},

	// 401
	{model.ErrInvalidCredentials, http.StatusUnauthorized, httputil.ErrCodeUnauthorized, "Invalid email or password"},
	{model.ErrRefreshTokenNotFound, http.StatusUnauthorized, model.CodeTokenInvalid, "Invalid refresh token"},
	{model.ErrRefreshTokenExpired, http.StatusUnauthorized, model.CodeTokenExpired, "Refresh token has expired"},
	{model.ErrRefreshTokenReused, http.StatusUnauthorized, model.CodeTokenReused, "Refresh token reuse detected. Please login again."},

	// 403
	{model.ErrNotPostOwner, http.StatusForbidden, httputil.ErrCodeForbidden, "You can only delete your own posts"},
	{model.ErrNotCommentOwner, http.StatusForbidden, httputil.ErrCodeForbidden, "You can only delete your own comments"},
	{model.ErrNotChatMember, http.StatusForbidden, httputil.ErrCodeForbidden, "Not a participant of this chat"},

	// 404
	{model.ErrUserNotFound, http.StatusNotFound, httputil.ErrCodeNotFound, "User not found"},
	{model.ErrPostNotFound, http.StatusNotFound, httputil.ErrCodeNotFound, "Post not found"},
	{model.ErrCommentNotFound, http.StatusNotFound, httputil.ErrCodeNotFound, "Comment not found"},
	{model.ErrMessageNotFound, http.StatusNotFound, httputil.ErrCodeNotFound, "Message not found"},
	{model.ErrNotificationNotFound, http.StatusNotFound, httputil.ErrCodeNotFound, "Notification not found"},
	{model.ErrFriendRequestNotFound, http.StatusNotFound, httputil.ErrCodeNotFound, "Friend request not found"},
	{model.ErrNotFriends, http.StatusNotFound, httputil.ErrCodeNotFound, "Not friends"},

	// 409
	{model.ErrEmailExists, http.StatusConflict, httputil.ErrCodeConflict, "Email already registered"},
	{model.ErrUsernameExists, http.StatusConflict, httputil.ErrCodeConflict, "Username already exists"},
	{model.ErrAlreadyFriends, http.StatusConflict, httputil.ErrCodeConflict, "Already friends"},
	{model.ErrFriendRequestExists, http.StatusConflict, httputil.ErrCodeConflict, "Friend request already pending"},

	// 503
	{model.ErrMediaStorageDisabled, http.StatusServiceUnavailable, httputil.ErrCodeUnavailable, "Media storage is not configured"},
}

// writeServiceError maps err to its HTTP response. Unmapped errors are
// logged and reported as 500 with the fallback message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, op, fallback string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			httputil.WriteError(w, m.status, m.code, m.message)
			return
		}
	}

	fields := logrus.Fields{"op": op, "path": r.URL.Path}
	if uid, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		fields["user_id"] = uid
	}
	logging.For("http").WithError(err).WithFields(fields).Error(op + " FAILED")
	httputil.WriteInternalError(w, fallback)
}

// requireIdentity returns the signed-in identity or writes 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*model.Identity, bool) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return nil, false
	}
	return identity, true
}

// viewerID is the signed-in user id, or "" for anonymous requests.
func viewerID(r *http.Request) string {
	uid, _ := middleware.GetUserIDFromContext(r.Context())
	return uid
}

// decodeJSON reads a size-capped JSON body or writes 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// pageParams parses ?limit= and ?cursor= (alias ?before=). A zero limit
// selects the default page size.
func pageParams(w http.ResponseWriter, r *http.Request) (limit int, cursor string, ok bool) {
	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "Invalid limit parameter")
			return 0, "", false
		}
		limit = parsed
	}
	cursor = q.Get("cursor")
	if cursor == "" {
		cursor = q.Get("before")
	}
	return limit, cursor, true
}
