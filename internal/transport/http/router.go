package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"socialsync/internal/handler"
	"socialsync/internal/httputil"
	authmw "socialsync/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	AuthHandler         *handler.AuthHandler // nil when identities come from Firebase
	UserHandler         *handler.UserHandler
	FriendHandler       *handler.FriendHandler
	FeedHandler         *handler.FeedHandler
	PostHandler         *handler.PostHandler
	CommentHandler      *handler.CommentHandler
	MediaHandler        *handler.MediaHandler
	ChatHandler         *handler.ChatHandler
	NotificationHandler *handler.NotificationHandler
	StreamHandler       *handler.StreamHandler

	Verifier    authmw.Verifier
	LimiterPool *authmw.LimiterPool
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(authmw.Metrics)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	optional := authmw.OptionalAuthMiddleware(cfg.Verifier)
	limit := authmw.RateLimit(cfg.LimiterPool)

	// Public routes - no authentication required
	if cfg.AuthHandler != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Use(limit)
			r.Post("/register", cfg.AuthHandler.Register)
			r.Post("/login", cfg.AuthHandler.Login)
			r.Post("/refresh", cfg.AuthHandler.Refresh)
			r.Post("/logout", cfg.AuthHandler.Logout)
		})
	}

	// Public read endpoints with optional authentication
	r.Group(func(r chi.Router) {
		r.Use(optional)
		r.Use(limit)

		r.Get("/users/search", cfg.UserHandler.Search)
		r.Get("/users/{id}", cfg.UserHandler.GetProfile)
		r.Get("/users/{id}/posts", cfg.PostHandler.ListByUser)

		r.Get("/posts", cfg.PostHandler.ListRecent)
		r.Get("/posts/{id}", cfg.PostHandler.GetByID)
		r.Get("/posts/{id}/comments", cfg.CommentHandler.List)

		r.Get("/ws/posts/{id}/comments", cfg.StreamHandler.Comments)
	})

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.Verifier))
		r.Use(limit)

		if cfg.AuthHandler != nil {
			r.Post("/auth/logout-all", cfg.AuthHandler.LogoutAll)
		}

		// Current user endpoints
		r.Get("/me", cfg.UserHandler.Me)
		r.Patch("/me", cfg.UserHandler.UpdateMe)
		r.Post("/me/password", cfg.UserHandler.ChangePassword)
		r.Post("/me/avatar", cfg.UserHandler.UploadAvatar)

		// Feed endpoint
		r.Get("/feed", cfg.FeedHandler.GetFeed)

		// Post endpoints
		r.Post("/posts", cfg.PostHandler.Create)
		r.Delete("/posts/{id}", cfg.PostHandler.Delete)
		r.Post("/posts/{id}/reactions/{kind}", cfg.PostHandler.React)
		r.Post("/posts/{id}/share", cfg.PostHandler.Share)
		r.Post("/posts/{id}/comments", cfg.CommentHandler.Create)
		r.Delete("/posts/{id}/comments/{commentId}", cfg.CommentHandler.Delete)

		// Media endpoints
		r.Post("/media/posts", cfg.MediaHandler.UploadPostImage)
		r.Post("/media/posts/presign", cfg.MediaHandler.PresignPostUpload)

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", cfg.ChatHandler.Conversations)
			r.Get("/{peerId}/messages", cfg.ChatHandler.History)
			r.Post("/{peerId}/messages", cfg.ChatHandler.Send)
			r.Post("/{peerId}/voice", cfg.ChatHandler.SendVoice)
			r.Post("/{peerId}/read", cfg.ChatHandler.MarkAllRead)
			r.Post("/{peerId}/messages/{messageId}/read", cfg.ChatHandler.MarkRead)
		})

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", cfg.FriendHandler.List)
			r.Get("/requests", cfg.FriendHandler.Requests)
			r.Post("/requests/{id}/accept", cfg.FriendHandler.Accept)
			r.Delete("/requests/{id}", cfg.FriendHandler.Decline)
			r.Get("/{id}/status", cfg.FriendHandler.Status)
			r.Post("/{id}/request", cfg.FriendHandler.SendRequest)
			r.Delete("/{id}/request", cfg.FriendHandler.CancelRequest)
			r.Delete("/{id}", cfg.FriendHandler.Unfriend)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.NotificationHandler.List)
			r.Get("/activity", cfg.NotificationHandler.Activity)
			r.Get("/unread-count", cfg.NotificationHandler.GetUnreadCount)
			r.Post("/read", cfg.NotificationHandler.MarkRead)
			r.Post("/read-all", cfg.NotificationHandler.MarkAllRead)
			r.Delete("/", cfg.NotificationHandler.Delete)
		})

		r.Post("/devices", cfg.NotificationHandler.RegisterToken)
		r.Delete("/devices", cfg.NotificationHandler.RemoveToken)

		r.Get("/ws/chats/{peerId}", cfg.StreamHandler.Chat)
		r.Get("/ws/notifications", cfg.StreamHandler.Notifications)
	})

	return r
}
